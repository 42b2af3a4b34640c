package admin

import (
	"encoding/json"
	"net/http"
	"time"
)

// Connectivity reports whether the broker session is currently up.
type Connectivity interface {
	IsConnected() bool
}

type healthHandler struct {
	conn    Connectivity
	started time.Time
}

func NewHealthHandler(c Connectivity, started time.Time) http.Handler {
	return &healthHandler{conn: c, started: started}
}

// The process is alive even while the broker is away, so /healthz is
// always 200 and only reports degradation.
func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status        string  `json:"status"`
		MQTTConnected bool    `json:"mqtt_connected"`
		UptimeS       float64 `json:"uptime_sec"`
	}
	st := status{
		Status:        "ok",
		MQTTConnected: h.conn != nil && h.conn.IsConnected(),
		UptimeS:       time.Since(h.started).Seconds(),
	}
	if !st.MQTTConnected {
		st.Status = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// Handler /readyz: 200 solo se la sessione MQTT è connessa.
type readyHandler struct {
	conn Connectivity
}

func NewReadyHandler(c Connectivity) http.Handler {
	return &readyHandler{conn: c}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.conn != nil && h.conn.IsConnected()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}

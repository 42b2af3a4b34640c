// Package admin exposes the simulator's operational surface: liveness and
// readiness probes, Prometheus metrics, device state snapshots and a gRPC
// health service.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sensor_simulator "github.com/LeonardoBeccarini/sdcc_fleetsim/internal/sensor-simulator"
	valve_simulator "github.com/LeonardoBeccarini/sdcc_fleetsim/internal/valve-simulator"
)

type ValveSource interface {
	Snapshot() []valve_simulator.ValveSnapshot
}

type SensorSource interface {
	Snapshot() []sensor_simulator.SensorSnapshot
}

type Deps struct {
	Conn     Connectivity
	Registry *prometheus.Registry
	Valves   ValveSource
	Sensors  SensorSource
	Started  time.Time
}

func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", NewHealthHandler(d.Conn, d.Started)).Methods(http.MethodGet)
	r.Handle("/readyz", NewReadyHandler(d.Conn)).Methods(http.MethodGet)
	if d.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{Registry: d.Registry})).Methods(http.MethodGet)
	}
	if d.Valves != nil {
		r.HandleFunc("/valves", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, d.Valves.Snapshot())
		}).Methods(http.MethodGet)
		r.HandleFunc("/valves/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := mux.Vars(req)["id"]
			for _, v := range d.Valves.Snapshot() {
				if v.ID == id {
					writeJSON(w, http.StatusOK, v)
					return
				}
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown valve " + id})
		}).Methods(http.MethodGet)
	}
	if d.Sensors != nil {
		r.HandleFunc("/sensors", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, d.Sensors.Snapshot())
		}).Methods(http.MethodGet)
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

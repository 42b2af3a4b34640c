package valve_simulator

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/metrics"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/radio"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/pkg/rabbitmq"
)

// handleMessage is the downlink callback. It never blocks: a valid command is
// applied later, after the simulated device latency, on its own timer.
// Invalid commands are dropped without touching any valve.
func (s *ValveSimulator) handleMessage(topic string, msg mqtt.Message) error {
	received := s.cfg.Clock.Now()

	cmd, err := messages.ParseCommand(msg.Payload())
	if err != nil {
		s.cfg.Metrics.Command(metrics.CommandMalformed)
		s.log.Debug("command discarded", "topic", topic, "err", err)
		return nil
	}
	if _, ok := s.valves[cmd.ValveID]; !ok {
		s.cfg.Metrics.Command(metrics.CommandUnknown)
		s.log.Debug("command for unknown valve discarded", "topic", topic, "valve", cmd.ValveID)
		return nil
	}

	// QoS1 redelivery: drop only messages the broker flagged as duplicates
	// of a command id already accepted. Fresh repeats are always applied.
	if cmd.CommandID != nil {
		key := cmd.ValveID + "|" + *cmd.CommandID
		if msg.Duplicate() && s.deduper.Seen(key) {
			s.cfg.Metrics.Command(metrics.CommandDuplicate)
			s.log.Debug("redelivered command dropped", "valve", cmd.ValveID, "command_id", *cmd.CommandID)
			return nil
		}
		s.deduper.Remember(key)
	}

	delay := s.cfg.Source.Duration(s.cfg.MinLatency, s.cfg.MaxLatency)
	s.afterFunc(delay, func() { s.apply(cmd, received) })
	return nil
}

// apply runs the full transition for cmd, even if the valve is already in
// the target state, and publishes the resulting status.
func (s *ValveSimulator) apply(cmd messages.Command, received time.Time) {
	v, ok := s.valves[cmd.ValveID]
	if !ok {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	switch cmd.Action {
	case entities.ValveOpen:
		s.setStateLocked(v, entities.ValveOpen)
		if cmd.DurationSec > 0 {
			s.scheduleCloseLocked(v, time.Duration(cmd.DurationSec)*time.Second)
		} else {
			// open indefinitely: an earlier timed close no longer applies
			s.cancelJobLocked(v)
		}
	case entities.ValveClose:
		s.setStateLocked(v, entities.ValveClose)
		s.cancelJobLocked(v)
	default:
		return
	}
	v.lastCommandID = cmd.CommandID
	s.cfg.Metrics.Command(metrics.CommandApplied)

	s.emitCommandLocked(v, cmd.CommandID, cmd.Action, received)
	s.log.Info("command applied", "valve", v.meta.ID, "action", cmd.Action, "duration_sec", cmd.DurationSec)
}

// scheduleCloseLocked supersedes any pending close job with a new one due d
// from now.
func (s *ValveSimulator) scheduleCloseLocked(v *valve, d time.Duration) {
	s.cancelJobLocked(v)
	v.gen++
	gen := v.gen
	job := &closeJob{gen: gen, due: s.cfg.Clock.Now().Add(d)}
	job.timer = s.cfg.Clock.AfterFunc(d, func() { s.autoClose(v, gen) })
	v.job = job
	s.cfg.Metrics.CloseJob(metrics.JobScheduled)
}

func (s *ValveSimulator) cancelJobLocked(v *valve) {
	if v.job == nil {
		return
	}
	v.job.timer.Stop()
	v.job = nil
	s.cfg.Metrics.CloseJob(metrics.JobCancelled)
}

// autoClose is the body of a close job. A job that was cancelled or
// superseded while its timer was firing finds a different generation and
// does nothing.
func (s *ValveSimulator) autoClose(v *valve, gen uint64) {
	if s.stopped.Load() {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.job == nil || v.job.gen != gen {
		return
	}
	v.job = nil
	s.setStateLocked(v, entities.ValveClose)
	s.cfg.Metrics.CloseJob(metrics.JobFired)
	s.emitLocked(v, nil, messages.EventAutoClose, s.cfg.Clock.Now())
	s.log.Info("valve auto-closed", "valve", v.meta.ID)
}

func (s *ValveSimulator) setStateLocked(v *valve, next entities.ValveState) {
	if v.state == next {
		return
	}
	if next == entities.ValveOpen {
		s.cfg.Metrics.ValveOpened()
	} else {
		s.cfg.Metrics.ValveClosed()
	}
	v.state = next
}

func (s *ValveSimulator) emitCommandLocked(v *valve, cmdID *string, action entities.ValveState, received time.Time) {
	drain := idleDrainV
	if action == entities.ValveOpen {
		drain = openDrainV
	}
	s.publishLocked(v, cmdID, messages.EventCommand, drain, received)
}

func (s *ValveSimulator) emitLocked(v *valve, cmdID *string, event messages.StatusEvent, received time.Time) {
	s.publishLocked(v, cmdID, event, idleDrainV, received)
}

// publishLocked applies the battery cost of transmitting, builds the status
// and publishes it. Publish failures are counted, never returned.
func (s *ValveSimulator) publishLocked(v *valve, cmdID *string, event messages.StatusEvent, drain float64, received time.Time) {
	now := s.cfg.Clock.Now()
	v.battery.Drain(drain)
	if s.cfg.Daylight.Contains(now) {
		v.battery.Charge(solarChargeV)
	}
	rssi, snr := radio.ValveLink.Sample(s.cfg.Source)

	rec := messages.StatusRecord{
		ValveID:     v.meta.ID,
		CommandID:   cmdID,
		State:       string(v.state),
		Event:       event,
		BatteryV:    v.battery.Read(),
		RSSI:        rssi,
		SNR:         snr,
		Timestamp:   received.UnixMilli(),
		RespondedAt: now.UnixMilli(),
	}
	v.lastEmitted = now

	payload, err := rec.Encode()
	if err != nil {
		s.log.Error("encode status", "valve", v.meta.ID, "err", err)
		return
	}
	topic := messages.ValveStatusTopic(s.cfg.TopicRoot, v.meta.ID)
	if err := s.publisher.PublishMessage(topic, rabbitmq.QoSAtLeastOnce, payload); err != nil {
		s.cfg.Metrics.PublishFailed("status")
		s.log.Debug("status not published", "valve", v.meta.ID, "event", event, "err", err)
	} else {
		s.cfg.Metrics.Published("status")
	}
	if s.cfg.Sink != nil {
		s.cfg.Sink.WriteStatus(rec)
	}
}

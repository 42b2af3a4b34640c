// Package scheduler drives periodic emission on tick boundaries aligned to
// the Unix epoch, so independently started simulators tick together.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/clock"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/metrics"
)

var (
	ErrInvalidPeriod = errors.New("scheduler: period must be positive")
	ErrInvalidScale  = errors.New("scheduler: time scale must be positive")
)

// TickFunc is invoked once per tick with the aligned simulated timestamp.
type TickFunc func(ts time.Time)

type Config struct {
	Period time.Duration
	// Scale is how many simulated seconds pass per real second.
	Scale   float64
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Scheduler keeps a simulated time base: from the moment it is created,
// simulated time runs Scale times faster than the clock.
type Scheduler struct {
	cfg      Config
	start    time.Time
	handlers []TickFunc
	log      *slog.Logger
}

func New(cfg Config, handlers ...TickFunc) (*Scheduler, error) {
	if cfg.Period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if !(cfg.Scale > 0) {
		return nil, ErrInvalidScale
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		start:    cfg.Clock.Now(),
		handlers: handlers,
		log:      cfg.Log.With("component", "scheduler"),
	}, nil
}

// AlignNext returns the smallest multiple of period, counted from the Unix
// epoch, that is not before now.
func AlignNext(now time.Time, period time.Duration) time.Time {
	n, p := now.UnixNano(), period.Nanoseconds()
	q := n / p
	if n%p > 0 {
		q++
	}
	return time.Unix(0, q*p).In(now.Location())
}

// SimNow is the current simulated instant.
func (s *Scheduler) SimNow() time.Time {
	elapsed := s.cfg.Clock.Now().Sub(s.start)
	return s.start.Add(time.Duration(float64(elapsed) * s.cfg.Scale))
}

// realDelay converts the simulated distance to target into clock time.
func (s *Scheduler) realDelay(target time.Time) time.Duration {
	return time.Duration(float64(target.Sub(s.SimNow())) / s.cfg.Scale)
}

// Run fires the handlers on every tick until ctx is cancelled. The target
// advances by exactly one period per tick, however late a tick was served.
func (s *Scheduler) Run(ctx context.Context) error {
	next := AlignNext(s.SimNow(), s.cfg.Period)
	s.log.Info("scheduler started",
		"period", s.cfg.Period, "time_scale", s.cfg.Scale, "first_tick", next.UTC().Format(time.RFC3339))

	for {
		if d := s.realDelay(next); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.cfg.Clock.After(d):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		s.fire(next)
		next = next.Add(s.cfg.Period)
	}
}

func (s *Scheduler) fire(ts time.Time) {
	began := s.cfg.Clock.Now()
	for _, h := range s.handlers {
		h(ts)
	}
	took := s.cfg.Clock.Now().Sub(began)
	s.cfg.Metrics.Tick(took.Seconds())
	s.log.Debug("tick", "ts", ts.UTC().Format(time.RFC3339), "took", took)
}

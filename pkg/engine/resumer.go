package engine

import (
	"context"
	"time"

	"github.com/pipeboard/automation/pkg/logging"
)

const defaultPollInterval = 1 * time.Second

// Resumer is the background loop that wakes suspended runs. It polls
// the continuation store instead of arming one timer per run, so a
// restarted process picks suspended runs back up with no rebuild step.
type Resumer struct {
	engine   Engine
	clock    Clock
	interval time.Duration
	logger   logging.Logger
}

// NewResumer creates a resumer polling at the given interval
func NewResumer(eng Engine, clock Clock, interval time.Duration, logger logging.Logger) *Resumer {
	if clock == nil {
		clock = RealClock{}
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Resumer{engine: eng, clock: clock, interval: interval, logger: logger}
}

// Run polls until the context is cancelled
func (r *Resumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(r.interval):
			if n, err := r.engine.ResumeDue(ctx); err != nil {
				r.logger.Error("resume sweep failed", logField("error", err.Error()))
			} else if n > 0 {
				r.logger.Debug("resumed suspended runs", logField("count", n))
			}
		}
	}
}

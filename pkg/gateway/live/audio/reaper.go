package audio

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultSweepInterval is how often the reaper scans for idle sessions.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultMaxIdle is how long a session may go without audio before
	// its buffer and conversation state are reclaimed.
	DefaultMaxIdle = 5 * time.Minute
)

// ConversationCloser releases per-session conversation state for swept
// sessions. Implementations must skip sessions with processing in flight.
type ConversationCloser interface {
	CloseIdle(sessionID string)
}

// Reaper periodically evicts idle audio buffers and tells the
// conversation layer to release matching state.
type Reaper struct {
	acc      *Accumulator
	conv     ConversationCloser
	interval time.Duration
	maxIdle  time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

type ReaperOption func(*Reaper)

func WithSweepInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithMaxIdle(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.maxIdle = d
		}
	}
}

func WithReaperLogger(logger *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewReaper(acc *Accumulator, conv ConversationCloser, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		acc:      acc,
		conv:     conv,
		interval: DefaultSweepInterval,
		maxIdle:  DefaultMaxIdle,
		logger:   slog.Default(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the sweep loop in a goroutine. Call Stop to end it.
func (r *Reaper) Start() {
	go func() {
		defer close(r.doneChan)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		r.logger.Info("session reaper started",
			"interval", r.interval,
			"max_idle", r.maxIdle)
		for {
			select {
			case <-ticker.C:
				r.RunOnce()
			case <-r.stopChan:
				return
			}
		}
	}()
}

// RunOnce performs a single sweep and returns the number of sessions
// reclaimed.
func (r *Reaper) RunOnce() int {
	removed := r.acc.SweepIdle(r.maxIdle)
	if r.conv != nil {
		for _, id := range removed {
			r.conv.CloseIdle(id)
		}
	}
	return len(removed)
}

// Stop ends the sweep loop and waits for it to exit. Safe to call twice.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	<-r.doneChan
}

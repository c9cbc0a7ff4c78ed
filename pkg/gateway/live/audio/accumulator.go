// Package audio accumulates inbound microphone chunks per session and
// decides when enough audio has arrived to run the processing pipeline.
package audio

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultLowWatermark is roughly 360ms of PCM16 audio at 44.1kHz.
	DefaultLowWatermark = 16000
	// DefaultHighWatermark is roughly 10s of PCM16 audio at 44.1kHz.
	// Reaching it forces a drain to bound per-session memory.
	DefaultHighWatermark = 441000
)

type session struct {
	chunks       [][]byte
	totalBytes   int
	lastActivity time.Time
}

// Accumulator holds one buffer of pending audio per session. Operations
// on different sessions run fully in parallel; add and drain on the
// same session are mutually exclusive.
type Accumulator struct {
	lowWatermark  int
	highWatermark int
	logger        *slog.Logger
	now           func() time.Time

	// Called when the high watermark forces a drain. Optional.
	OnOverflow func(sessionID string)

	mu       sync.Mutex
	sessions map[string]*session
}

type Option func(*Accumulator)

func WithWatermarks(low, high int) Option {
	return func(a *Accumulator) {
		if low > 0 {
			a.lowWatermark = low
		}
		if high > 0 {
			a.highWatermark = high
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Accumulator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAccumulator(opts ...Option) *Accumulator {
	a := &Accumulator{
		lowWatermark:  DefaultLowWatermark,
		highWatermark: DefaultHighWatermark,
		logger:        slog.Default(),
		now:           time.Now,
		sessions:      make(map[string]*session),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add appends a chunk to the session's buffer, creating the buffer on
// first use. It reports whether the buffer is ready to drain: true when
// the total reaches the low watermark, or unconditionally when it
// reaches the high watermark. Whether a drain may actually start is the
// caller's decision; a suppressed signal leaves the audio buffered.
func (a *Accumulator) Add(sessionID string, chunk []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.sessions[sessionID]
	if s == nil {
		s = &session{}
		a.sessions[sessionID] = s
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
	s.totalBytes += len(buf)
	s.lastActivity = a.now()

	if s.totalBytes >= a.highWatermark {
		a.logger.Warn("audio buffer overflow, forcing drain",
			"session_id", sessionID,
			"total_bytes", s.totalBytes)
		if a.OnOverflow != nil {
			a.OnOverflow(sessionID)
		}
		return true
	}
	return s.totalBytes >= a.lowWatermark
}

// Drain atomically concatenates and clears the session's buffer.
// It returns nil when the session has no pending chunks.
func (a *Accumulator) Drain(sessionID string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.sessions[sessionID]
	if s == nil || len(s.chunks) == 0 {
		return nil
	}

	combined := make([]byte, 0, s.totalBytes)
	for _, c := range s.chunks {
		combined = append(combined, c...)
	}
	s.chunks = nil
	s.totalBytes = 0

	a.logger.Debug("audio buffer drained",
		"session_id", sessionID,
		"bytes", len(combined))
	return combined
}

// ForceDrain drains regardless of watermark state. Used for explicit
// end-of-speech signals from the client.
func (a *Accumulator) ForceDrain(sessionID string) []byte {
	return a.Drain(sessionID)
}

// PendingBytes returns the current buffered byte count for a session.
func (a *Accumulator) PendingBytes(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s := a.sessions[sessionID]; s != nil {
		return s.totalBytes
	}
	return 0
}

// Remove discards the session's buffer entirely.
func (a *Accumulator) Remove(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[sessionID]; ok {
		delete(a.sessions, sessionID)
		a.logger.Debug("audio session removed", "session_id", sessionID)
	}
}

// SweepIdle removes sessions whose last activity predates now-maxIdle
// and returns their ids.
func (a *Accumulator) SweepIdle(maxIdle time.Duration) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-maxIdle)
	var removed []string
	for id, s := range a.sessions {
		if s.lastActivity.Before(cutoff) {
			delete(a.sessions, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		a.logger.Info("idle audio sessions swept", "count", len(removed))
	}
	return removed
}

// Len returns the number of tracked sessions.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

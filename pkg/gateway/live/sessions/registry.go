// Package sessions tracks voice session records and the live handles of
// connections currently serving them.
package sessions

import (
	"context"
	"sync"
	"time"
)

// Record is the durable view of a session. Records are kept after the
// session ends so operators can inspect recent activity.
type Record struct {
	ID           string
	DeviceID     string
	StartedAt    time.Time
	LastActivity time.Time
	EndedAt      time.Time
	Active       bool
}

// Handle carries the callbacks a live connection exposes to the
// registry, used during shutdown.
type Handle struct {
	Cancel func()
	Warn   func(code, message string) error
}

type activeSession struct {
	handle Handle
	once   sync.Once
}

// Registry tracks sessions across their lifecycle. Start registers a
// record and a live handle; End marks the record ended but retains it.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
	active  map[string]*activeSession
	wg      sync.WaitGroup
	now     func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records: make(map[string]*Record),
		active:  make(map[string]*activeSession),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start records a new session and registers its live handle. The
// returned func marks the session ended; calling it more than once is
// safe. Re-registering an id ends the previous registration first.
func (r *Registry) Start(sessionID, deviceID string, h Handle) (end func()) {
	if r == nil {
		return func() {}
	}

	entry := &activeSession{handle: h}

	r.mu.Lock()
	old := r.active[sessionID]
	r.active[sessionID] = entry
	started := r.now()
	r.records[sessionID] = &Record{
		ID:           sessionID,
		DeviceID:     deviceID,
		StartedAt:    started,
		LastActivity: started,
		Active:       true,
	}
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		r.end(sessionID, old)
	}

	return func() { r.end(sessionID, entry) }
}

func (r *Registry) end(sessionID string, entry *activeSession) {
	if r == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		r.mu.Lock()
		if r.active[sessionID] == entry {
			delete(r.active, sessionID)
			if rec := r.records[sessionID]; rec != nil && rec.Active {
				rec.Active = false
				rec.EndedAt = r.now()
			}
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

// Touch updates the session's last-activity time. Inbound audio and
// control frames count as activity.
func (r *Registry) Touch(sessionID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.records[sessionID]; rec != nil {
		rec.LastActivity = r.now()
	}
}

// Get returns a copy of the session's record.
func (r *Registry) Get(sessionID string) (Record, bool) {
	if r == nil {
		return Record{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[sessionID]
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// ActiveCount returns the number of sessions with a live connection.
func (r *Registry) ActiveCount() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// WarnAll sends an error frame to every live session, best effort.
func (r *Registry) WarnAll(code, message string) (sent int) {
	if r == nil {
		return 0
	}

	var warns []func(code, message string) error
	r.mu.Lock()
	for _, entry := range r.active {
		if entry == nil || entry.handle.Warn == nil {
			continue
		}
		warns = append(warns, entry.handle.Warn)
	}
	r.mu.Unlock()

	for _, warn := range warns {
		_ = warn(code, message)
		sent++
	}
	return sent
}

// CancelAll cancels every live session's context.
func (r *Registry) CancelAll() (canceled int) {
	if r == nil {
		return 0
	}

	var cancels []func()
	r.mu.Lock()
	for _, entry := range r.active {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every live session has ended or ctx is done. It
// reports whether all sessions drained in time.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if ctx == nil {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

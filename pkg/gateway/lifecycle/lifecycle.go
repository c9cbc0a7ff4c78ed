package lifecycle

import "sync/atomic"

// Lifecycle holds process-wide state shared across handlers. During
// graceful shutdown the gateway flips to draining so readiness probes
// fail and new live connections are refused while active sessions
// finish their final turn.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

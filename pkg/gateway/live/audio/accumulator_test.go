package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestAddBelowLowWatermarkNotReady(t *testing.T) {
	acc := NewAccumulator(WithWatermarks(16000, 441000))
	if ready := acc.Add("s1", make([]byte, 8000)); ready {
		t.Fatalf("8000 bytes should not be ready")
	}
	if got := acc.PendingBytes("s1"); got != 8000 {
		t.Fatalf("pending = %d, want 8000", got)
	}
}

func TestAddReachingLowWatermarkReady(t *testing.T) {
	acc := NewAccumulator(WithWatermarks(16000, 441000))
	acc.Add("s1", make([]byte, 12000))
	if ready := acc.Add("s1", make([]byte, 8000)); !ready {
		t.Fatalf("20000 bytes should be ready to drain")
	}
}

func TestDrainConcatenatesInOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.Add("s1", []byte{1, 2, 3})
	acc.Add("s1", []byte{4, 5})
	acc.Add("s1", []byte{6})

	got := acc.Drain("s1")
	want := []byte{1, 2, 3, 4, 5, 6}
	if !bytes.Equal(got, want) {
		t.Fatalf("drain = %v, want %v", got, want)
	}
	if acc.PendingBytes("s1") != 0 {
		t.Fatalf("buffer should be empty after drain")
	}
	if acc.Drain("s1") != nil {
		t.Fatalf("second drain should return nil")
	}
}

func TestDrainCopiesChunks(t *testing.T) {
	acc := NewAccumulator()
	chunk := []byte{9, 9, 9}
	acc.Add("s1", chunk)
	chunk[0] = 0 // caller reuses its slice

	got := acc.Drain("s1")
	if !bytes.Equal(got, []byte{9, 9, 9}) {
		t.Fatalf("accumulator must copy chunks, got %v", got)
	}
}

func TestHighWatermarkForcesDrain(t *testing.T) {
	acc := NewAccumulator(WithWatermarks(16000, 30000))
	var overflowed string
	acc.OnOverflow = func(id string) { overflowed = id }

	acc.Drain("s1") // no-op on unknown session
	acc.Add("s1", make([]byte, 15000))
	if ready := acc.Add("s1", make([]byte, 20000)); !ready {
		t.Fatalf("crossing high watermark must report ready")
	}
	if overflowed != "s1" {
		t.Fatalf("overflow callback not fired, got %q", overflowed)
	}
}

func TestRemoveDiscardsBuffer(t *testing.T) {
	acc := NewAccumulator()
	acc.Add("s1", make([]byte, 100))
	acc.Remove("s1")
	if acc.Len() != 0 {
		t.Fatalf("expected 0 sessions, got %d", acc.Len())
	}
	if acc.Drain("s1") != nil {
		t.Fatalf("drain after remove should be nil")
	}
}

func TestSweepIdleEvictsOnlyStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	acc := NewAccumulator(WithClock(func() time.Time { return now }))

	acc.Add("stale", make([]byte, 10))
	now = now.Add(10 * time.Minute)
	acc.Add("fresh", make([]byte, 10))

	removed := acc.SweepIdle(5 * time.Minute)
	if len(removed) != 1 || removed[0] != "stale" {
		t.Fatalf("removed = %v, want [stale]", removed)
	}
	if acc.PendingBytes("fresh") != 10 {
		t.Fatalf("fresh session must survive the sweep")
	}
}

type closerSpy struct{ closed []string }

func (c *closerSpy) CloseIdle(id string) { c.closed = append(c.closed, id) }

func TestReaperRunOnceClosesConversations(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	acc := NewAccumulator(WithClock(func() time.Time { return now }))
	acc.Add("old", make([]byte, 10))
	now = now.Add(time.Hour)

	spy := &closerSpy{}
	r := NewReaper(acc, spy, WithMaxIdle(5*time.Minute))
	if n := r.RunOnce(); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if len(spy.closed) != 1 || spy.closed[0] != "old" {
		t.Fatalf("conversation close = %v, want [old]", spy.closed)
	}
}

func TestReaperStartStop(t *testing.T) {
	acc := NewAccumulator()
	r := NewReaper(acc, nil, WithSweepInterval(10*time.Millisecond))
	r.Start()
	time.Sleep(30 * time.Millisecond)
	r.Stop()
	r.Stop() // idempotent
}

package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hannalabs/hanna/pkg/gateway/live/audio"
	"github.com/hannalabs/hanna/pkg/gateway/live/conversation"
	"github.com/hannalabs/hanna/pkg/gateway/live/sessions"
)

type sessionFixture struct {
	*pipelineFixture
	acc  *audio.Accumulator
	sess *LiveSession
}

// newSessionFixture wires a LiveSession around the pipeline fakes
// without a websocket connection; only the message handlers and
// lifecycle paths are exercised, which never touch the socket.
func newSessionFixture(t *testing.T, opts ...audio.Option) *sessionFixture {
	t.Helper()
	pf := newPipelineFixture()
	acc := audio.NewAccumulator(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sess := &LiveSession{
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		accumulator:      acc,
		conversations:    pf.conv,
		cfg:              Config{MaxAudioFrameBytes: 1 << 20, OutboundQueueSize: 128},
		now:              time.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueCap),
		outboundNormal:   make(chan outboundFrame, 128),
		pipe:             pf.pipe,
		sessionID:        "s1",
	}
	return &sessionFixture{pipelineFixture: pf, acc: acc, sess: sess}
}

func TestSessionBusyGuardKeepsAudioBuffered(t *testing.T) {
	f := newSessionFixture(t, audio.WithWatermarks(100, 1<<20))
	var wg sync.WaitGroup

	if !f.conv.TryAcquire("s1") {
		t.Fatal("could not hold the pipeline guard")
	}
	f.sess.handleAudio(make([]byte, 20000), &wg)

	if got := f.acc.PendingBytes("s1"); got != 20000 {
		t.Fatalf("pending=%d while busy, want 20000", got)
	}
	if f.stt.got != nil {
		t.Fatal("pipeline ran while the guard was held")
	}

	// An explicit end_of_speech while busy must leave the buffer intact
	// too.
	if err := f.sess.handleText([]byte(`{"type":"end_of_speech"}`), &wg); err != nil {
		t.Fatalf("handleText: %v", err)
	}
	if got := f.acc.PendingBytes("s1"); got != 20000 {
		t.Fatalf("pending=%d after end_of_speech while busy, want 20000", got)
	}

	// Once the guard is free, the next signal drains everything that
	// accumulated.
	f.conv.Release("s1")
	f.sess.handleAudio(make([]byte, 5000), &wg)
	wg.Wait()

	if got := len(f.stt.got); got != 25000 {
		t.Fatalf("pipeline received %d bytes, want 25000", got)
	}
	if got := f.acc.PendingBytes("s1"); got != 0 {
		t.Fatalf("pending=%d after drain, want 0", got)
	}
}

func TestSessionTeardownReleasesState(t *testing.T) {
	f := newSessionFixture(t)
	var wg sync.WaitGroup

	f.sess.handleAudio(make([]byte, 20000), &wg)
	wg.Wait()

	if f.conv.Len() != 1 {
		t.Fatalf("conversation store len=%d after a turn, want 1", f.conv.Len())
	}

	f.sess.teardown()

	if f.conv.Len() != 0 {
		t.Fatalf("conversation store len=%d after teardown, want 0", f.conv.Len())
	}
	if f.acc.Len() != 0 {
		t.Fatalf("accumulator len=%d after teardown, want 0", f.acc.Len())
	}
}

func TestSessionSupersededStateClosedAtTeardown(t *testing.T) {
	f := newSessionFixture(t)
	f.sess.sessionID = ""

	if err := f.sess.startSession("device-a"); err != nil {
		t.Fatalf("startSession: %v", err)
	}
	first := f.sess.sessionID
	f.conv.Append(first, conversation.RoleUser, "hello")

	if err := f.sess.startSession("device-a"); err != nil {
		t.Fatalf("startSession: %v", err)
	}
	if f.sess.sessionID == first {
		t.Fatal("expected a fresh session id")
	}
	if f.conv.Len() != 0 {
		t.Fatalf("superseded conversation state survived: len=%d", f.conv.Len())
	}

	// A run that outlived the old session can recreate its state;
	// teardown closes it again.
	f.conv.Append(first, conversation.RoleUser, "stale")
	f.sess.teardown()
	if f.conv.Len() != 0 {
		t.Fatalf("conversation store len=%d after teardown, want 0", f.conv.Len())
	}
}

func TestSessionInboundAudioTouchesRegistry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newSessionFixture(t)
	f.sess.registry = sessions.NewRegistry(sessions.WithClock(func() time.Time { return now }))
	f.sess.sessionID = ""

	if err := f.sess.startSession("device-a"); err != nil {
		t.Fatalf("startSession: %v", err)
	}

	var wg sync.WaitGroup
	now = now.Add(30 * time.Second)
	f.sess.handleAudio(make([]byte, 100), &wg)

	rec, ok := f.sess.registry.Get(f.sess.sessionID)
	if !ok {
		t.Fatal("session missing from registry")
	}
	if !rec.LastActivity.Equal(now) {
		t.Fatalf("LastActivity=%v, want %v", rec.LastActivity, now)
	}
}

// Package session drives one live voice connection: it accumulates
// microphone audio, runs the voice pipeline when enough has arrived,
// and streams transcripts, reply text, and synthesized audio back.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hannalabs/hanna/pkg/core/chat"
	"github.com/hannalabs/hanna/pkg/core/voice/stt"
	"github.com/hannalabs/hanna/pkg/core/voice/tts"
	"github.com/hannalabs/hanna/pkg/gateway/live/audio"
	"github.com/hannalabs/hanna/pkg/gateway/live/conversation"
	"github.com/hannalabs/hanna/pkg/gateway/live/protocol"
	"github.com/hannalabs/hanna/pkg/gateway/live/sessions"
	"github.com/hannalabs/hanna/pkg/gateway/metrics"
	"github.com/hannalabs/hanna/pkg/knowledge"
	"github.com/pkg/errors"
)

const (
	defaultAudioChunkSize    = 16384
	defaultChunkPacing       = 50 * time.Millisecond
	defaultMinProcessBytes   = 1000
	defaultStageTimeout      = 30 * time.Second
	outboundPriorityQueueCap = 8
)

var errBackpressure = errors.New("live outbound backpressure")

type Config struct {
	MaxAudioFrameBytes  int
	MaxJSONMessageBytes int64
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	OutboundQueueSize   int

	// Pipeline tuning.
	StageTimeout    time.Duration
	AudioChunkSize  int
	ChunkPacing     time.Duration
	MinProcessBytes int

	// Provider overrides. Zero values use the provider defaults.
	TranscribeModel string
	SampleRate      int
	SpeechModel     string
	SpeechVoice     string
}

type Dependencies struct {
	Conn          *websocket.Conn
	Logger        *slog.Logger
	STT           stt.Provider
	TTS           tts.Provider
	Generator     chat.Generator
	Retriever     knowledge.Retriever
	Accumulator   *audio.Accumulator
	Conversations *conversation.Store
	Registry      *sessions.Registry
	Metrics       *metrics.Metrics
	RequestID     string
	Config        Config
	Now           func() time.Time
}

type LiveSession struct {
	conn          *websocket.Conn
	logger        *slog.Logger
	accumulator   *audio.Accumulator
	conversations *conversation.Store
	registry      *sessions.Registry
	metrics       *metrics.Metrics
	requestID     string
	cfg           Config
	now           func() time.Time

	pipe *pipeline

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	// Current session on this connection. Only the Run loop touches it.
	sessionID  string
	deviceID   string
	endSession func()

	// Sessions replaced by a later start_session. Closed again at
	// teardown in case an in-flight run recreated their state.
	superseded []string
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.STT == nil {
		return nil, fmt.Errorf("stt provider is required")
	}
	if deps.TTS == nil {
		return nil, fmt.Errorf("tts provider is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("chat generator is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("knowledge retriever is required")
	}
	if deps.Accumulator == nil || deps.Conversations == nil {
		return nil, fmt.Errorf("accumulator and conversation store are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if deps.Config.MaxAudioFrameBytes <= 0 {
		deps.Config.MaxAudioFrameBytes = 1 << 20
	}
	if deps.Config.StageTimeout <= 0 {
		deps.Config.StageTimeout = defaultStageTimeout
	}
	if deps.Config.AudioChunkSize <= 0 {
		deps.Config.AudioChunkSize = defaultAudioChunkSize
	}
	if deps.Config.MinProcessBytes <= 0 {
		deps.Config.MinProcessBytes = defaultMinProcessBytes
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &LiveSession{
		conn:             deps.Conn,
		logger:           deps.Logger,
		accumulator:      deps.Accumulator,
		conversations:    deps.Conversations,
		registry:         deps.Registry,
		metrics:          deps.Metrics,
		requestID:        deps.RequestID,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueCap),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
	}
	s.pipe = &pipeline{
		stt:           deps.STT,
		retriever:     deps.Retriever,
		generator:     deps.Generator,
		tts:           deps.TTS,
		conversations: deps.Conversations,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		cfg:           deps.Config,
		now:           deps.Now,
		sleep:         sleepCtx,
	}
	return s, nil
}

func (s *LiveSession) Run() error {
	defer s.cancel()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	} else {
		// Clear any deadline inherited from the HTTP server.
		_ = s.conn.SetReadDeadline(time.Time{})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	var wg sync.WaitGroup
	// teardown must run after the pipeline waitgroup has drained so
	// closing the conversation state cannot race an in-flight run.
	defer s.teardown()
	defer func() {
		// Cancel first so in-flight pipeline runs drop their sends
		// instead of backing up the outbound queues.
		s.cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerErrCh:
			return err
		case frame, ok := <-readCh:
			if !ok {
				return nil
			}
			if frame.err != nil {
				// Client went away. In-flight pipeline runs finish
				// against a dead emitter, which drops their sends.
				return nil
			}
			switch frame.messageType {
			case websocket.TextMessage:
				if err := s.handleText(frame.data, &wg); err != nil {
					return err
				}
			case websocket.BinaryMessage:
				s.handleAudio(frame.data, &wg)
			}
		}
	}
}

func (s *LiveSession) handleText(data []byte, wg *sync.WaitGroup) error {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		return s.sendError(protocol.CodeProcessingError, err.Error())
	}

	switch m := msg.(type) {
	case protocol.ClientStartSession:
		return s.startSession(m.DeviceID)
	case protocol.ClientAudioChunk:
		decoded, decErr := base64.StdEncoding.DecodeString(m.DataB64)
		if decErr != nil {
			return s.sendError(protocol.CodeAudioProcessingError, "invalid audio_chunk.data_b64")
		}
		s.handleAudio(decoded, wg)
	case protocol.ClientEndOfSpeech:
		if s.sessionID == "" {
			return s.sendError(protocol.CodeSessionStartError, "session not started")
		}
		s.touch()
		s.launchRun(wg)
	}
	return nil
}

func (s *LiveSession) startSession(deviceID string) error {
	// A repeated start supersedes the previous session on this
	// connection; its buffered audio and conversation state are
	// discarded.
	if s.sessionID != "" {
		s.accumulator.Remove(s.sessionID)
		s.conversations.Close(s.sessionID)
		s.superseded = append(s.superseded, s.sessionID)
		if s.endSession != nil {
			s.endSession()
			s.endSession = nil
		}
		if s.metrics != nil {
			s.metrics.SessionsActive.Dec()
		}
	}

	s.sessionID = uuid.NewString()
	s.deviceID = deviceID
	if s.registry != nil {
		s.endSession = s.registry.Start(s.sessionID, deviceID, sessions.Handle{
			Cancel: s.Cancel,
			Warn:   s.SendWarning,
		})
	}
	if s.metrics != nil {
		s.metrics.SessionsStarted.Inc()
		s.metrics.SessionsActive.Inc()
	}

	s.logger.Info("voice session started",
		"session_id", s.sessionID,
		"device_id", deviceID,
		"request_id", s.requestID)
	return s.sendJSON(protocol.SessionStarted(s.sessionID))
}

func (s *LiveSession) handleAudio(data []byte, wg *sync.WaitGroup) {
	if s.sessionID == "" {
		// Audio without a session is a protocol misuse on the audio
		// path, not a failed start.
		_ = s.sendError(protocol.CodeAudioProcessingError, "session not started")
		return
	}
	if len(data) > s.cfg.MaxAudioFrameBytes {
		_ = s.sendError(protocol.CodeAudioProcessingError, "audio chunk exceeds max size")
		return
	}

	if s.metrics != nil {
		s.metrics.AudioBytesIn.Add(float64(len(data)))
	}
	s.touch()
	if s.accumulator.Add(s.sessionID, data) {
		s.launchRun(wg)
	}
}

// launchRun acquires the single-flight guard and only then drains the
// session's buffered audio for a pipeline run. When the guard is held
// the readiness signal is ignored and the audio keeps accumulating for
// the next run; draining first would lose it.
func (s *LiveSession) launchRun(wg *sync.WaitGroup) {
	if !s.conversations.TryAcquire(s.sessionID) {
		s.logger.Debug("pipeline busy, audio keeps accumulating",
			"session_id", s.sessionID,
			"pending_bytes", s.accumulator.PendingBytes(s.sessionID))
		return
	}

	buf := s.accumulator.Drain(s.sessionID)
	if len(buf) == 0 {
		s.conversations.Release(s.sessionID)
		return
	}

	sessionID := s.sessionID
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.conversations.Release(sessionID)
		s.pipe.run(s.ctx, sessionID, buf, s)
	}()
}

// touch refreshes the registry's last-activity time for the current
// session.
func (s *LiveSession) touch() {
	if s.registry != nil && s.sessionID != "" {
		s.registry.Touch(s.sessionID)
	}
}

// teardown releases everything the connection owns: the audio buffer
// and conversation state of the current session, the states of any
// superseded sessions, and the registry entry.
func (s *LiveSession) teardown() {
	for _, id := range s.superseded {
		s.conversations.Close(id)
	}
	s.superseded = nil
	if s.sessionID != "" {
		s.accumulator.Remove(s.sessionID)
		s.conversations.Close(s.sessionID)
		if s.metrics != nil {
			s.metrics.SessionsActive.Dec()
		}
	}
	if s.endSession != nil {
		s.endSession()
		s.endSession = nil
	}
}

func (s *LiveSession) sendError(code, message string) error {
	payload, err := json.Marshal(protocol.Error(code, message))
	if err != nil {
		return err
	}
	return s.enqueuePriority(outboundFrame{textPayload: payload})
}

func (s *LiveSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{textPayload: payload})
}

func (s *LiveSession) sendBinary(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	return s.enqueueNormal(outboundFrame{binaryPayload: buf})
}

func (s *LiveSession) enqueueNormal(frame outboundFrame) error {
	select {
	case <-s.ctx.Done():
		// Connection is gone; drop the frame so in-flight pipeline
		// runs can finish quietly.
		return nil
	case s.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// Cancel aborts the session from outside the Run loop.
func (s *LiveSession) Cancel() {
	s.cancel()
}

// SendWarning pushes an error frame to the client, used by the registry
// during shutdown.
func (s *LiveSession) SendWarning(code, message string) error {
	return s.sendError(code, message)
}

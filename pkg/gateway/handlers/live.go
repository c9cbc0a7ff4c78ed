package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hannalabs/hanna/pkg/core/chat"
	"github.com/hannalabs/hanna/pkg/core/voice/stt"
	"github.com/hannalabs/hanna/pkg/core/voice/tts"
	"github.com/hannalabs/hanna/pkg/gateway/config"
	"github.com/hannalabs/hanna/pkg/gateway/lifecycle"
	"github.com/hannalabs/hanna/pkg/gateway/live/audio"
	"github.com/hannalabs/hanna/pkg/gateway/live/conversation"
	"github.com/hannalabs/hanna/pkg/gateway/live/session"
	"github.com/hannalabs/hanna/pkg/gateway/live/sessions"
	"github.com/hannalabs/hanna/pkg/gateway/metrics"
	"github.com/hannalabs/hanna/pkg/gateway/mw"
	"github.com/hannalabs/hanna/pkg/knowledge"
)

// LiveHandler upgrades /ws requests and hands the connection to a live
// voice session.
type LiveHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle

	STT           stt.Provider
	TTS           tts.Provider
	Generator     chat.Generator
	Retriever     knowledge.Retriever
	Accumulator   *audio.Accumulator
	Conversations *conversation.Store
	Registry      *sessions.Registry
	Metrics       *metrics.Metrics
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeJSONError(w, r, http.StatusServiceUnavailable, "draining", "gateway is draining")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return
	}
	defer conn.Close()

	requestID, _ := mw.RequestIDFrom(r.Context())

	s, err := session.New(session.Dependencies{
		Conn:          conn,
		Logger:        h.Logger,
		STT:           h.STT,
		TTS:           h.TTS,
		Generator:     h.Generator,
		Retriever:     h.Retriever,
		Accumulator:   h.Accumulator,
		Conversations: h.Conversations,
		Registry:      h.Registry,
		Metrics:       h.Metrics,
		RequestID:     requestID,
		Config: session.Config{
			MaxAudioFrameBytes:  h.Config.LiveMaxAudioFrameBytes,
			MaxJSONMessageBytes: h.Config.LiveMaxJSONMessageBytes,
			PingInterval:        h.Config.LiveWSPingInterval,
			WriteTimeout:        h.Config.LiveWSWriteTimeout,
			ReadTimeout:         h.Config.LiveWSReadTimeout,
			OutboundQueueSize:   h.Config.LiveOutboundQueueSize,
			StageTimeout:        h.Config.StageTimeout,
			AudioChunkSize:      h.Config.AudioChunkSize,
			ChunkPacing:         h.Config.ChunkPacing,
			MinProcessBytes:     h.Config.MinProcessBytes,
			TranscribeModel:     h.Config.TranscribeModel,
			SampleRate:          h.Config.AudioSampleRate,
			SpeechModel:         h.Config.SpeechModel,
			SpeechVoice:         h.Config.SpeechVoice,
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("failed to initialize live session", "request_id", requestID, "error", err)
		}
		return
	}

	if err := s.Run(); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("live connection ended with error", "request_id", requestID, "error", err)
		}
	}
}

// Package server wires the HTTP surface of the gateway: the live
// websocket endpoint, health and readiness probes, and Prometheus
// metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hannalabs/hanna/pkg/core/chat"
	"github.com/hannalabs/hanna/pkg/core/voice/stt"
	"github.com/hannalabs/hanna/pkg/core/voice/tts"
	"github.com/hannalabs/hanna/pkg/gateway/config"
	"github.com/hannalabs/hanna/pkg/gateway/handlers"
	"github.com/hannalabs/hanna/pkg/gateway/lifecycle"
	"github.com/hannalabs/hanna/pkg/gateway/live/audio"
	"github.com/hannalabs/hanna/pkg/gateway/live/conversation"
	"github.com/hannalabs/hanna/pkg/gateway/live/protocol"
	"github.com/hannalabs/hanna/pkg/gateway/live/sessions"
	"github.com/hannalabs/hanna/pkg/gateway/metrics"
	"github.com/hannalabs/hanna/pkg/gateway/mw"
	"github.com/hannalabs/hanna/pkg/knowledge"
)

// Dependencies carries the upstream providers the server cannot build
// itself. DB is optional and only used for readiness pings.
type Dependencies struct {
	STT       stt.Provider
	TTS       tts.Provider
	Generator chat.Generator
	Retriever knowledge.Retriever
	DB        handlers.Pinger
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	deps          Dependencies
	accumulator   *audio.Accumulator
	conversations *conversation.Store
	registry      *sessions.Registry
	reaper        *audio.Reaper
	lifecycle     *lifecycle.Lifecycle
	metrics       *metrics.Metrics
	promRegistry  *prometheus.Registry
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) (*Server, error) {
	if deps.STT == nil || deps.TTS == nil {
		return nil, fmt.Errorf("stt and tts providers are required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("chat generator is required")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("knowledge retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	accumulator := audio.NewAccumulator(
		audio.WithWatermarks(cfg.AudioLowWatermarkBytes, cfg.AudioHighWatermarkBytes),
		audio.WithLogger(logger),
	)
	conversations := conversation.NewStore(
		conversation.WithMaxMessages(cfg.MaxHistoryMessages),
		conversation.WithLogger(logger),
	)
	reaper := audio.NewReaper(accumulator, conversations,
		audio.WithSweepInterval(cfg.SessionSweepInterval),
		audio.WithMaxIdle(cfg.SessionMaxIdle),
		audio.WithReaperLogger(logger),
	)

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		mux:           http.NewServeMux(),
		deps:          deps,
		accumulator:   accumulator,
		conversations: conversations,
		registry:      sessions.NewRegistry(),
		reaper:        reaper,
		lifecycle:     &lifecycle.Lifecycle{},
		metrics:       metrics.New(promRegistry),
		promRegistry:  promRegistry,
	}

	s.accumulator.OnOverflow = func(string) {
		s.metrics.BufferOverflows.Inc()
	}

	s.routes()
	s.reaper.Start()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		DB:        s.deps.DB,
	})
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))

	s.mux.Handle("/ws", handlers.LiveHandler{
		Config:        s.cfg,
		Logger:        s.logger,
		Lifecycle:     s.lifecycle,
		STT:           s.deps.STT,
		TTS:           s.deps.TTS,
		Generator:     s.deps.Generator,
		Retriever:     s.deps.Retriever,
		Accumulator:   s.accumulator,
		Conversations: s.conversations,
		Registry:      s.registry,
		Metrics:       s.metrics,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness and refuses new live connections.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WarnLiveSessionsDraining tells connected clients the gateway is
// about to go away.
func (s *Server) WarnLiveSessionsDraining() {
	n := s.registry.WarnAll(protocol.CodeServerDraining, "gateway is shutting down")
	if n > 0 {
		s.logger.Info("warned live sessions about shutdown", "sessions", n)
	}
}

// WaitLiveSessions blocks until every live session has ended or the
// context expires. It reports whether all sessions drained in time.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.registry.Wait(ctx)
}

// CancelLiveSessions force-closes whatever is still connected.
func (s *Server) CancelLiveSessions() {
	n := s.registry.CancelAll()
	if n > 0 {
		s.logger.Warn("canceled live sessions at shutdown", "sessions", n)
	}
}

// Close stops background workers. It does not touch open connections.
func (s *Server) Close() {
	s.reaper.Stop()
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hannalabs/hanna/pkg/gateway/config"
	"github.com/hannalabs/hanna/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger is the slice of *sql.DB readiness checks need.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	DB        Pinger
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "gateway is draining")
	}

	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "openai api key is not configured")
	}
	if h.Config.KnowledgeTopK <= 0 {
		issues = append(issues, "knowledge top_k must be > 0")
	}
	if h.Config.AudioHighWatermarkBytes <= h.Config.AudioLowWatermarkBytes {
		issues = append(issues, "audio high watermark must be above low watermark")
	}
	if h.Config.StageTimeout <= 0 {
		issues = append(issues, "stage timeout must be > 0")
	}

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			issues = append(issues, "knowledge store is unreachable")
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:       ok,
		Draining: draining,
		Issues:   issues,
	})
}

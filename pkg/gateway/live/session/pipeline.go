package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hannalabs/hanna/pkg/core/chat"
	"github.com/hannalabs/hanna/pkg/core/voice/stt"
	"github.com/hannalabs/hanna/pkg/core/voice/tts"
	"github.com/hannalabs/hanna/pkg/gateway/live/conversation"
	"github.com/hannalabs/hanna/pkg/gateway/live/protocol"
	"github.com/hannalabs/hanna/pkg/gateway/metrics"
	"github.com/hannalabs/hanna/pkg/knowledge"
)

// emitter abstracts the outbound side of a session so the pipeline can
// be driven without a websocket.
type emitter interface {
	sendJSON(v any) error
	sendBinary(data []byte) error
}

// pipeline runs one full voice turn: transcribe the drained audio,
// retrieve knowledge, generate a reply, synthesize it, and stream the
// audio back in paced chunks.
type pipeline struct {
	stt           stt.Provider
	retriever     knowledge.Retriever
	generator     chat.Generator
	tts           tts.Provider
	conversations *conversation.Store
	metrics       *metrics.Metrics
	logger        *slog.Logger
	cfg           Config
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) bool
}

const (
	outcomeCompleted       = "completed"
	outcomeTooShort        = "too_short"
	outcomeEmptyTranscript = "empty_transcript"
	outcomeError           = "error"
)

// run executes the pipeline for one drained buffer. Failures are
// reported to the client as a PROCESSING_ERROR frame; the session
// stays usable afterwards.
func (p *pipeline) run(ctx context.Context, sessionID string, audio []byte, emit emitter) {
	outcome := p.doRun(ctx, sessionID, audio, emit)
	if p.metrics != nil {
		p.metrics.PipelineRuns.WithLabelValues(outcome).Inc()
	}
}

func (p *pipeline) doRun(ctx context.Context, sessionID string, audio []byte, emit emitter) string {
	if len(audio) < p.cfg.MinProcessBytes {
		p.logger.Debug("skipping short audio buffer",
			"session_id", sessionID,
			"bytes", len(audio))
		return outcomeTooShort
	}

	start := p.now()

	var transcript *stt.Transcript
	err := p.stage(ctx, "transcribe", func(sctx context.Context) error {
		var serr error
		transcript, serr = p.stt.Transcribe(sctx, audio, stt.TranscribeOptions{
			Model:      p.cfg.TranscribeModel,
			SampleRate: p.cfg.SampleRate,
		})
		return serr
	})
	if err != nil {
		return p.fail(sessionID, emit, err)
	}

	userText := strings.TrimSpace(transcript.Text)
	if userText == "" {
		p.logger.Debug("empty transcription, nothing to process", "session_id", sessionID)
		return outcomeEmptyTranscript
	}
	if serr := emit.sendJSON(protocol.UserTranscript(userText)); serr != nil {
		p.logger.Warn("failed to send transcript", "session_id", sessionID, "error", serr)
	}

	var result *knowledge.Result
	err = p.stage(ctx, "retrieve", func(sctx context.Context) error {
		var serr error
		result, serr = p.retriever.Query(sctx, userText)
		return serr
	})
	if err != nil {
		return p.fail(sessionID, emit, err)
	}

	// History records the composed turn, context block and all, so
	// later generations replay exactly what the model saw.
	composed := chat.ComposeUserMessage(userText, result.Snippets())
	history := p.conversations.History(sessionID)
	p.conversations.Append(sessionID, conversation.RoleUser, composed)

	var reply string
	err = p.stage(ctx, "generate", func(sctx context.Context) error {
		var serr error
		reply, serr = p.generator.Generate(sctx, chat.Request{
			UserText: composed,
			History:  toChatHistory(history),
		})
		return serr
	})
	if err != nil {
		return p.fail(sessionID, emit, err)
	}

	p.conversations.Append(sessionID, conversation.RoleAssistant, reply)
	if serr := emit.sendJSON(protocol.SpeakingText(reply)); serr != nil {
		p.logger.Warn("failed to send reply text", "session_id", sessionID, "error", serr)
	}

	var synthesis *tts.Synthesis
	err = p.stage(ctx, "synthesize", func(sctx context.Context) error {
		var serr error
		synthesis, serr = p.tts.Synthesize(sctx, reply, tts.SynthesizeOptions{Model: p.cfg.SpeechModel, Voice: p.cfg.SpeechVoice})
		return serr
	})
	if err != nil {
		return p.fail(sessionID, emit, err)
	}

	if serr := p.streamAudio(ctx, synthesis.Audio, emit); serr != nil {
		return p.fail(sessionID, emit, serr)
	}

	p.logger.Info("voice pipeline completed",
		"session_id", sessionID,
		"audio_in_bytes", len(audio),
		"audio_out_bytes", len(synthesis.Audio),
		"duration", p.now().Sub(start))
	return outcomeCompleted
}

// streamAudio sends synthesized audio as fixed-size binary frames with
// a pacing delay between them so slow clients are not flooded.
func (p *pipeline) streamAudio(ctx context.Context, audio []byte, emit emitter) error {
	chunkSize := p.cfg.AudioChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultAudioChunkSize
	}

	for offset := 0; offset < len(audio); offset += chunkSize {
		end := offset + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := emit.sendBinary(audio[offset:end]); err != nil {
			return errors.Wrap(err, "send audio chunk")
		}
		if p.metrics != nil {
			p.metrics.AudioBytesOut.Add(float64(end - offset))
		}
		if p.cfg.ChunkPacing > 0 && end < len(audio) {
			if !p.sleep(ctx, p.cfg.ChunkPacing) {
				return ctx.Err()
			}
		}
	}
	return nil
}

// stage runs one pipeline step under its own timeout and records its
// duration. A timeout surfaces as a normal stage failure.
func (p *pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	sctx := ctx
	if p.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, p.cfg.StageTimeout)
		defer cancel()
	}

	start := p.now()
	err := fn(sctx)
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(name).Observe(p.now().Sub(start).Seconds())
	}
	if err != nil {
		return errors.Wrap(err, name)
	}
	return nil
}

func (p *pipeline) fail(sessionID string, emit emitter, err error) string {
	args := []any{"session_id", sessionID, "error", err}
	if last, ok := p.conversations.LastUserMessage(sessionID); ok {
		args = append(args, "last_user_message", last)
	}
	p.logger.Error("voice pipeline failed", args...)
	if serr := emit.sendJSON(protocol.Error(
		protocol.CodeProcessingError,
		"Failed to process your message. Please try again.",
	)); serr != nil {
		p.logger.Warn("failed to send pipeline error", "session_id", sessionID, "error", serr)
	}
	return outcomeError
}

func toChatHistory(history []conversation.Message) []chat.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]chat.Message, 0, len(history))
	for _, m := range history {
		out = append(out, chat.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

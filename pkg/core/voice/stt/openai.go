package stt

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const defaultTranscribeModel = openai.Whisper1

// transcriber is the slice of the OpenAI client this provider needs.
type transcriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIProvider implements the STT Provider interface using OpenAI's
// transcription API.
type OpenAIProvider struct {
	client transcriber
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAI creates a new OpenAI STT provider.
func NewOpenAI(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NewOpenAIWithClient creates a provider around an existing client.
func NewOpenAIWithClient(client *openai.Client) *OpenAIProvider {
	return &OpenAIProvider{client: client}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Transcribe converts audio to text. Raw PCM16 input is wrapped in a
// WAV header first; anything else is passed through unchanged.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (*Transcript, error) {
	if len(audio) == 0 {
		return nil, errors.New("empty audio payload")
	}

	payload := audio
	filename := "audio.wav"
	switch opts.Format {
	case "", "pcm16":
		payload = PCM16ToWAV(audio, opts.SampleRate, DefaultChannels, DefaultBitsPerSample)
	case "wav":
	default:
		filename = "audio." + opts.Format
	}

	model := opts.Model
	if model == "" {
		model = defaultTranscribeModel
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: filename,
		Reader:   bytes.NewReader(payload),
		Language: opts.Language,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create transcription")
	}

	return &Transcript{
		Text:     resp.Text,
		Language: resp.Language,
	}, nil
}

package tts

import (
	"context"
	"io"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultSpeechModel = openai.TTSModel1
	defaultVoice       = openai.VoiceNova
	defaultFormat      = openai.SpeechResponseFormatMp3
)

// speechCreator is the slice of the OpenAI client this provider needs.
type speechCreator interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAIProvider implements the TTS Provider interface using OpenAI's
// speech API.
type OpenAIProvider struct {
	client speechCreator
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAI creates a new OpenAI TTS provider.
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

// Synthesize converts text to audio.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if text == "" {
		return nil, errors.New("empty synthesis text")
	}

	model := openai.SpeechModel(defaultSpeechModel)
	if opts.Model != "" {
		model = openai.SpeechModel(opts.Model)
	}
	voice := openai.SpeechVoice(defaultVoice)
	if opts.Voice != "" {
		voice = openai.SpeechVoice(opts.Voice)
	}
	format := openai.SpeechResponseFormat(defaultFormat)
	if opts.Format != "" {
		format = openai.SpeechResponseFormat(opts.Format)
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: format,
		Speed:          opts.Speed,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create speech")
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, errors.Wrap(err, "read speech response")
	}

	return &Synthesis{
		Audio:  audio,
		Format: string(format),
	}, nil
}

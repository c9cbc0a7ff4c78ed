// Package stt provides speech-to-text functionality.
package stt

import "context"

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model      string // Provider-specific model (default: "whisper-1")
	Language   string // ISO language code hint
	Format     string // Audio format hint ("pcm16" audio is wrapped in a WAV header)
	SampleRate int    // PCM16 sample rate in Hz (default: 44100)
}

// Transcript is the result of transcription.
type Transcript struct {
	Text     string // Full transcribed text
	Language string // Detected or specified language
}

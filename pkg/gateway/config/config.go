package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// Upstream credentials and knowledge store.
	OpenAIAPIKey string
	PostgresDSN  string

	// Model selection.
	TranscribeModel string
	ChatModel       string
	SpeechModel     string
	SpeechVoice     string
	EmbeddingModel  string
	SystemPrompt    string

	// Knowledge retrieval.
	KnowledgeTopK     int
	KnowledgeMinScore float64

	// Live WebSocket session limits.
	LiveMaxAudioFrameBytes  int
	LiveMaxJSONMessageBytes int64
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveWSReadTimeout       time.Duration
	LiveOutboundQueueSize   int

	// Voice pipeline tuning.
	AudioSampleRate         int
	AudioLowWatermarkBytes  int
	AudioHighWatermarkBytes int
	MinProcessBytes         int
	StageTimeout            time.Duration
	AudioChunkSize          int
	ChunkPacing             time.Duration
	MaxHistoryMessages      int

	// Idle session reaping.
	SessionSweepInterval time.Duration
	SessionMaxIdle       time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("HANNA_ADDR", ":8080"),
		OpenAIAPIKey:            strings.TrimSpace(os.Getenv("HANNA_OPENAI_API_KEY")),
		PostgresDSN:             strings.TrimSpace(os.Getenv("HANNA_POSTGRES_DSN")),
		TranscribeModel:         envOr("HANNA_TRANSCRIBE_MODEL", "whisper-1"),
		ChatModel:               envOr("HANNA_CHAT_MODEL", "gpt-4-turbo-preview"),
		SpeechModel:             envOr("HANNA_SPEECH_MODEL", "tts-1"),
		SpeechVoice:             envOr("HANNA_SPEECH_VOICE", "nova"),
		EmbeddingModel:          envOr("HANNA_EMBEDDING_MODEL", "text-embedding-3-large"),
		SystemPrompt:            strings.TrimSpace(os.Getenv("HANNA_SYSTEM_PROMPT")),
		KnowledgeTopK:           envIntOr("HANNA_KNOWLEDGE_TOP_K", 3),
		KnowledgeMinScore:       envFloat64Or("HANNA_KNOWLEDGE_MIN_SCORE", 0.7),
		LiveMaxAudioFrameBytes:  envIntOr("HANNA_LIVE_MAX_AUDIO_FRAME_BYTES", 1<<20),
		LiveMaxJSONMessageBytes: envInt64Or("HANNA_LIVE_MAX_JSON_MESSAGE_BYTES", 2<<20),
		LiveWSPingInterval:      envDurationOr("HANNA_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("HANNA_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:       envDurationOr("HANNA_LIVE_WS_READ_TIMEOUT", 0),
		LiveOutboundQueueSize:   envIntOr("HANNA_LIVE_OUTBOUND_QUEUE_SIZE", 128),
		AudioSampleRate:         envIntOr("HANNA_AUDIO_SAMPLE_RATE", 44100),
		AudioLowWatermarkBytes:  envIntOr("HANNA_AUDIO_LOW_WATERMARK_BYTES", 16000),
		AudioHighWatermarkBytes: envIntOr("HANNA_AUDIO_HIGH_WATERMARK_BYTES", 441000),
		MinProcessBytes:         envIntOr("HANNA_MIN_PROCESS_BYTES", 1000),
		StageTimeout:            envDurationOr("HANNA_STAGE_TIMEOUT", 30*time.Second),
		AudioChunkSize:          envIntOr("HANNA_AUDIO_CHUNK_SIZE", 16384),
		ChunkPacing:             envDurationOr("HANNA_CHUNK_PACING", 50*time.Millisecond),
		MaxHistoryMessages:      envIntOr("HANNA_MAX_HISTORY_MESSAGES", 10),
		SessionSweepInterval:    envDurationOr("HANNA_SESSION_SWEEP_INTERVAL", 5*time.Minute),
		SessionMaxIdle:          envDurationOr("HANNA_SESSION_MAX_IDLE", 5*time.Minute),
		ReadHeaderTimeout:       envDurationOr("HANNA_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:             envDurationOr("HANNA_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:     envDurationOr("HANNA_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("HANNA_OPENAI_API_KEY must be set")
	}
	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("HANNA_POSTGRES_DSN must be set")
	}
	if cfg.KnowledgeTopK <= 0 {
		return Config{}, fmt.Errorf("HANNA_KNOWLEDGE_TOP_K must be > 0")
	}
	if cfg.KnowledgeMinScore < 0 || cfg.KnowledgeMinScore >= 1 {
		return Config{}, fmt.Errorf("HANNA_KNOWLEDGE_MIN_SCORE must be in [0, 1)")
	}
	if cfg.LiveMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("HANNA_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("HANNA_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("HANNA_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("HANNA_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("HANNA_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.LiveOutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("HANNA_LIVE_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.AudioSampleRate <= 0 {
		return Config{}, fmt.Errorf("HANNA_AUDIO_SAMPLE_RATE must be > 0")
	}
	if cfg.AudioLowWatermarkBytes <= 0 {
		return Config{}, fmt.Errorf("HANNA_AUDIO_LOW_WATERMARK_BYTES must be > 0")
	}
	if cfg.AudioHighWatermarkBytes <= cfg.AudioLowWatermarkBytes {
		return Config{}, fmt.Errorf("HANNA_AUDIO_HIGH_WATERMARK_BYTES must be > HANNA_AUDIO_LOW_WATERMARK_BYTES")
	}
	if cfg.MinProcessBytes <= 0 {
		return Config{}, fmt.Errorf("HANNA_MIN_PROCESS_BYTES must be > 0")
	}
	if cfg.StageTimeout <= 0 {
		return Config{}, fmt.Errorf("HANNA_STAGE_TIMEOUT must be > 0")
	}
	if cfg.AudioChunkSize <= 0 {
		return Config{}, fmt.Errorf("HANNA_AUDIO_CHUNK_SIZE must be > 0")
	}
	if cfg.ChunkPacing < 0 {
		return Config{}, fmt.Errorf("HANNA_CHUNK_PACING must be >= 0")
	}
	if cfg.MaxHistoryMessages <= 0 {
		return Config{}, fmt.Errorf("HANNA_MAX_HISTORY_MESSAGES must be > 0")
	}
	if cfg.SessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("HANNA_SESSION_SWEEP_INTERVAL must be > 0")
	}
	if cfg.SessionMaxIdle <= 0 {
		return Config{}, fmt.Errorf("HANNA_SESSION_MAX_IDLE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("HANNA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("HANNA_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("HANNA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

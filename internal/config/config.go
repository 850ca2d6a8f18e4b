package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port        string
	DatabaseURL string

	S3 S3Config

	// provider selection and keys
	OpenAIKey     string
	TTSProvider   string // "openai" or "elevenlabs"
	ElevenLabsKey string
	TTSVoice      string

	// pipeline knobs
	SourceLanguage      string
	TargetLanguage      string
	CharsPerSecond      float64 // translated-character budget per second of speech
	ConfidenceThreshold float64
	Workers             int
	TranslateParallel   int
	MaxStageAttempts    int

	// optional inbox directory watched for new videos
	InboxDir   string
	ArchiveDir string

	// failure alerts
	AdminBotToken string
	AdminChatID   int64
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getenv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    os.Getenv("S3_REGION"),
		},

		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		TTSProvider:   getenv("TTS_PROVIDER", "openai"),
		ElevenLabsKey: os.Getenv("ELEVENLABS_API_KEY"),
		TTSVoice:      getenv("TTS_VOICE", "alloy"),

		SourceLanguage: getenv("SOURCE_LANGUAGE", "en"),
		TargetLanguage: getenv("TARGET_LANGUAGE", "ja"),

		InboxDir:   os.Getenv("INBOX_DIR"),
		ArchiveDir: getenv("ARCHIVE_DIR", "data/archived"),

		AdminBotToken: os.Getenv("ADMIN_BOT_TOKEN"),
	}

	var err error
	if cfg.CharsPerSecond, err = getfloat("CHARS_PER_SECOND", 5.68); err != nil {
		return nil, err
	}
	if cfg.ConfidenceThreshold, err = getfloat("CONFIDENCE_THRESHOLD", 0.25); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getint("PIPELINE_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.TranslateParallel, err = getint("TRANSLATE_PARALLEL", 4); err != nil {
		return nil, err
	}
	if cfg.MaxStageAttempts, err = getint("MAX_STAGE_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	if chat := os.Getenv("ADMIN_CHAT_ID"); chat != "" {
		cfg.AdminChatID, err = strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_CHAT_ID: %w", err)
		}
	}

	return cfg, cfg.validate()
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.S3.Endpoint == "" || c.S3.Bucket == "" {
		return fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.TTSProvider != "openai" && c.TTSProvider != "elevenlabs" {
		return fmt.Errorf("TTS_PROVIDER must be openai or elevenlabs, got %q", c.TTSProvider)
	}
	if c.TTSProvider == "elevenlabs" && c.ElevenLabsKey == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs")
	}
	if c.CharsPerSecond <= 0 {
		return fmt.Errorf("CHARS_PER_SECOND must be positive")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in [0,1]")
	}
	if c.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getfloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

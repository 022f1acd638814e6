package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EngineKokoro = "kokoro"
	EnginePiper  = "piper"
)

// Config holds every setting of the application.
type Config struct {
	// EnvFileLoaded is false when no .env file was found.
	EnvFileLoaded bool

	Engine        string
	TTSURL        string
	TTSProxy      string
	TTSRateLimit  float64
	TTSRetries    uint64
	TTSTimeout    time.Duration
	PiperBinary   string
	PiperModelDir string
	FFmpegPath    string

	OutputDir    string
	DefaultLang  string
	DefaultVoice string
	DefaultSpeed int

	TelegramToken  string
	SQLitePath     string
	StorageDir     string
	HTTPAddr       string
	MiniAppURL     string
	MaxUploadBytes int64

	LogLevel string
	LogJSON  bool
}

// Load reads the given .env files (".env" when none are given) into the
// environment and builds a Config from it. Variables already set in the
// environment win over the files. A missing file is not an error.
func Load(files ...string) (*Config, error) {
	loaded := godotenv.Load(files...) == nil

	var errs []string
	num := func(key string, fallback float64) float64 {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return fallback
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a number", key, raw))
			return fallback
		}
		return v
	}
	dur := func(key string, fallback time.Duration) time.Duration {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return fallback
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a duration", key, raw))
			return fallback
		}
		return v
	}
	flag := func(key string) bool {
		v, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
		return v
	}

	cfg := &Config{
		EnvFileLoaded: loaded,

		Engine:        strings.ToLower(withDefault(os.Getenv("TTS_ENGINE"), EngineKokoro)),
		TTSURL:        strings.TrimRight(withDefault(os.Getenv("TTS_URL"), "http://localhost:8880"), "/"),
		TTSProxy:      strings.TrimSpace(os.Getenv("TTS_PROXY")),
		TTSRateLimit:  num("TTS_RATE_LIMIT", 2),
		TTSRetries:    uint64(num("TTS_RETRIES", 3)),
		TTSTimeout:    dur("TTS_TIMEOUT", 10*time.Minute),
		PiperBinary:   withDefault(os.Getenv("PIPER_BINARY"), "piper"),
		PiperModelDir: resolvePath(withDefault(os.Getenv("PIPER_MODEL_DIR"), "models/piper")),
		FFmpegPath:    withDefault(os.Getenv("FFMPEG_PATH"), "ffmpeg"),

		OutputDir:    strings.TrimSpace(os.Getenv("OUTPUT_DIR")),
		DefaultLang:  withDefault(os.Getenv("DEFAULT_LANG"), "en-gb"),
		DefaultVoice: withDefault(os.Getenv("DEFAULT_VOICE"), "af_sky"),
		DefaultSpeed: int(num("DEFAULT_SPEED", 100)),

		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		SQLitePath:     resolvePath(withDefault(os.Getenv("SQLITE_PATH"), "data/app.db")),
		StorageDir:     resolvePath(withDefault(os.Getenv("STORAGE_DIR"), "storage/books")),
		HTTPAddr:       withDefault(os.Getenv("HTTP_ADDR"), ":8080"),
		MiniAppURL:     strings.TrimSpace(os.Getenv("MINIAPP_URL")),
		MaxUploadBytes: int64(num("MAX_UPLOAD_MB", 20) * 1024 * 1024),

		LogLevel: withDefault(os.Getenv("LOG_LEVEL"), "info"),
		LogJSON:  flag("LOG_JSON"),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineKokoro, EnginePiper:
	default:
		return fmt.Errorf("TTS_ENGINE must be %q or %q, got %q", EngineKokoro, EnginePiper, c.Engine)
	}
	if c.DefaultSpeed < 50 || c.DefaultSpeed > 200 {
		return fmt.Errorf("DEFAULT_SPEED must be within 50..200, got %d", c.DefaultSpeed)
	}
	if c.TTSRateLimit < 0 {
		return fmt.Errorf("TTS_RATE_LIMIT must not be negative")
	}
	return nil
}

// ValidateBot checks the settings only the bot needs.
func (c *Config) ValidateBot() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is not set")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

func withDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func resolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if filepath.IsAbs(p) {
		return p
	}

	if exe, err := os.Executable(); err == nil {
		base := filepath.Dir(exe)
		return filepath.Clean(filepath.Join(base, p))
	}

	if cwd, err := os.Getwd(); err == nil {
		return filepath.Clean(filepath.Join(cwd, p))
	}

	return p
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"TTS_ENGINE", "TTS_URL", "TTS_PROXY", "TTS_RATE_LIMIT", "TTS_RETRIES", "TTS_TIMEOUT",
	"PIPER_BINARY", "PIPER_MODEL_DIR", "FFMPEG_PATH", "OUTPUT_DIR", "DEFAULT_LANG",
	"DEFAULT_VOICE", "DEFAULT_SPEED", "TELEGRAM_TOKEN", "SQLITE_PATH", "STORAGE_DIR",
	"HTTP_ADDR", "MINIAPP_URL", "MAX_UPLOAD_MB", "LOG_LEVEL", "LOG_JSON",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.False(t, cfg.EnvFileLoaded)
	assert.Equal(t, EngineKokoro, cfg.Engine)
	assert.Equal(t, "http://localhost:8880", cfg.TTSURL)
	assert.Equal(t, 2.0, cfg.TTSRateLimit)
	assert.Equal(t, uint64(3), cfg.TTSRetries)
	assert.Equal(t, 10*time.Minute, cfg.TTSTimeout)
	assert.Equal(t, "en-gb", cfg.DefaultLang)
	assert.Equal(t, "af_sky", cfg.DefaultVoice)
	assert.Equal(t, 100, cfg.DefaultSpeed)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, int64(20*1024*1024), cfg.MaxUploadBytes)
	assert.True(t, filepath.IsAbs(cfg.SQLitePath))
	assert.Error(t, cfg.ValidateBot())
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TTS_ENGINE=piper\nDEFAULT_SPEED=150\nTELEGRAM_TOKEN=abc\n"), 0o600))
	t.Setenv("TTS_URL", "http://tts:9000/")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.EnvFileLoaded)
	assert.Equal(t, EnginePiper, cfg.Engine)
	assert.Equal(t, 150, cfg.DefaultSpeed)
	assert.Equal(t, "http://tts:9000", cfg.TTSURL)
	assert.NoError(t, cfg.ValidateBot())
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"TTS_ENGINE":     "espeak",
		"DEFAULT_SPEED":  "300",
		"TTS_TIMEOUT":    "forever",
		"TTS_RATE_LIMIT": "fast",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}

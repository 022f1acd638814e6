package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleuser/audiblez/internal/models"
)

func TestKokoroSynthesize(t *testing.T) {
	wav := wavBytes(t, Audio{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 24000})

	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	c := NewKokoroClient(KokoroConfig{BaseURL: srv.URL + "/"})
	a, err := c.Synthesize(context.Background(), models.SynthesisRequest{
		Text: "Hello.", Voice: "af_sky", Lang: "en-gb", Speed: 1.0,
	})
	require.NoError(t, err)

	assert.Equal(t, 24000, a.SampleRate)
	assert.Len(t, a.Samples, 3)
	assert.Equal(t, "Hello.", got.Input)
	assert.Equal(t, "af_sky", got.Voice)
	assert.Equal(t, 1.0, got.Speed)
	assert.Equal(t, "b", got.LangCode)
	assert.Equal(t, "wav", got.ResponseFormat)
}

func TestKokoroRetriesServerErrors(t *testing.T) {
	wav := wavBytes(t, Audio{Samples: []float32{0}, SampleRate: 22050})

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	c := NewKokoroClient(KokoroConfig{BaseURL: srv.URL, Retries: 2})
	_, err := c.Synthesize(context.Background(), models.SynthesisRequest{Text: "x", Voice: "v", Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestKokoroClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewKokoroClient(KokoroConfig{BaseURL: srv.URL, Retries: 3})
	_, err := c.Synthesize(context.Background(), models.SynthesisRequest{Text: "x", Voice: "nope", Speed: 1})
	require.Error(t, err)

	var se *SynthesisError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, int32(1), calls.Load())
}

func TestKokoroEmptyText(t *testing.T) {
	c := NewKokoroClient(KokoroConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Synthesize(context.Background(), models.SynthesisRequest{Text: "  \n"})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestKokoroVoicesAreCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/audio/voices", r.URL.Path)
		_, _ = w.Write([]byte(`{"voices":["af_sky","bf_emma"]}`))
	}))
	defer srv.Close()

	c := NewKokoroClient(KokoroConfig{BaseURL: srv.URL})
	for i := 0; i < 2; i++ {
		voices, err := c.Voices(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"af_sky", "bf_emma"}, voices)
	}
	assert.Equal(t, int32(1), calls.Load())

	voices, err := c.Voices(context.Background())
	require.NoError(t, err)
	voices[0] = "changed"
	again, err := c.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "af_sky", again[0])

	assert.NoError(t, ValidateVoice(context.Background(), c, "bf_emma"))
	assert.ErrorIs(t, ValidateVoice(context.Background(), c, "xx"), ErrUnknownVoice)
}

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/cycleuser/audiblez/internal/models"
)

const kokoroEngine = "kokoro"

// kokoroLangCodes maps pipeline locales to the server's single-letter codes.
// Locales missing here are sent without a code and the server picks one from
// the voice.
var kokoroLangCodes = map[string]string{
	"en-us": "a",
	"en-gb": "b",
	"fr-fr": "f",
	"ja":    "j",
	"cmn":   "z",
}

type KokoroConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Retries   uint64
}

// KokoroClient talks to a Kokoro ONNX server exposing the OpenAI-style speech
// endpoint.
type KokoroClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	limiter    *rate.Limiter
	retries    uint64

	voicesMu sync.Mutex
	voices   []string
}

func NewKokoroClient(cfg KokoroConfig) *KokoroClient {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	model := cfg.Model
	if model == "" {
		model = "kokoro"
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}
	return &KokoroClient{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      model,
		limiter:    rate.NewLimiter(limit, burst),
		retries:    cfg.Retries,
	}
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	ResponseFormat string  `json:"response_format"`
	LangCode       string  `json:"lang_code,omitempty"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

func (c *KokoroClient) Synthesize(ctx context.Context, req models.SynthesisRequest) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}

	payload, err := json.Marshal(speechRequest{
		Model:          c.model,
		Input:          req.Text,
		Voice:          req.Voice,
		Speed:          req.Speed,
		ResponseFormat: "wav",
		LangCode:       kokoroLangCodes[req.Lang],
	})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal request: %w", err)
	}

	var out Audio
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		body, err := c.post(ctx, "/v1/audio/speech", payload)
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out, err = DecodeWAV(bytes.NewReader(body))
		return err
	})
	if err != nil {
		return Audio{}, &SynthesisError{Engine: kokoroEngine, Err: err}
	}
	return out, nil
}

func (c *KokoroClient) Voices(ctx context.Context) ([]string, error) {
	c.voicesMu.Lock()
	defer c.voicesMu.Unlock()
	if c.voices != nil {
		return slices.Clone(c.voices), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/audio/voices", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	var payload struct {
		Voices []string `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	c.voices = payload.Voices
	return slices.Clone(c.voices), nil
}

func (c *KokoroClient) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return buf.Bytes(), nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

package tts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cycleuser/audiblez/internal/models"
)

var (
	ErrEmptyText       = errors.New("empty text")
	ErrUnsupportedLang = errors.New("unsupported language")
	ErrUnknownVoice    = errors.New("unknown voice")
)

// Languages is the fixed set of locales the pipeline accepts.
var Languages = []string{"en-gb", "en-us", "fr-fr", "ja", "ko", "cmn"}

// Audio is a mono sample buffer returned by an engine. Samples are in [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
}

// Duration is the playback length of the buffer.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(a.Samples)) * time.Second / time.Duration(a.SampleRate)
}

// Synthesizer turns one request into audio. Implementations are not assumed to
// be safe for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, req models.SynthesisRequest) (Audio, error)
	Voices(ctx context.Context) ([]string, error)
}

// SynthesisError wraps an engine failure with the engine name.
type SynthesisError struct {
	Engine string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s synthesis failed: %v", e.Engine, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ValidateLanguage checks lang against Languages.
func ValidateLanguage(lang string) error {
	if !slices.Contains(Languages, lang) {
		return fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedLang, lang, Languages)
	}
	return nil
}

// ValidateVoice checks voice against the engine catalogue.
func ValidateVoice(ctx context.Context, s Synthesizer, voice string) error {
	voices, err := s.Voices(ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}
	if !slices.Contains(voices, voice) {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, voice)
	}
	return nil
}

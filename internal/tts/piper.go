package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cycleuser/audiblez/internal/models"
)

const piperEngine = "piper"

// Piper runs the piper binary once per request. Voices are the *.onnx models
// found in ModelDir; the language is implied by the voice.
type Piper struct {
	binary   string
	modelDir string
}

func NewPiper(binary, modelDir string) (*Piper, error) {
	if strings.TrimSpace(binary) == "" {
		return nil, fmt.Errorf("piper binary path is required")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("piper binary not found: %w", err)
	}
	if _, err := os.Stat(modelDir); err != nil {
		return nil, fmt.Errorf("piper model dir: %w", err)
	}
	return &Piper{binary: binary, modelDir: modelDir}, nil
}

func (p *Piper) Synthesize(ctx context.Context, req models.SynthesisRequest) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}
	model := filepath.Join(p.modelDir, req.Voice+".onnx")
	if _, err := os.Stat(model); err != nil {
		return Audio{}, &SynthesisError{Engine: piperEngine, Err: fmt.Errorf("%w: %s", ErrUnknownVoice, req.Voice)}
	}

	out, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return Audio{}, fmt.Errorf("temp file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := []string{
		"--model", model,
		"--output_file", outPath,
		"--length_scale", lengthScale(req.Speed),
	}
	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stdin = strings.NewReader(req.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Audio{}, &SynthesisError{Engine: piperEngine, Err: fmt.Errorf("%w, stderr: %s", err, tail(stderr.String(), 400))}
	}

	f, err := os.Open(outPath)
	if err != nil {
		return Audio{}, &SynthesisError{Engine: piperEngine, Err: err}
	}
	defer f.Close()

	a, err := DecodeWAV(f)
	if err != nil {
		return Audio{}, &SynthesisError{Engine: piperEngine, Err: err}
	}
	return a, nil
}

func (p *Piper) Voices(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.modelDir)
	if err != nil {
		return nil, fmt.Errorf("read voices directory: %w", err)
	}

	var voices []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".onnx") {
			continue
		}
		voices = append(voices, strings.TrimSuffix(e.Name(), ".onnx"))
	}
	sort.Strings(voices)
	return voices, nil
}

// lengthScale converts a speed multiplier into piper's phoneme length scale.
func lengthScale(speed float64) string {
	if speed <= 0 {
		speed = 1
	}
	return strconv.FormatFloat(1/speed, 'f', 3, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

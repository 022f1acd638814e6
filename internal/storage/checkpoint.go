package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/cycleuser/audiblez/internal/tts"
)

// Layout names every file a run produces. All names derive from the source
// file name, so a rerun against the same source finds its own checkpoints.
type Layout struct {
	Dir  string
	Stem string
}

// NewLayout puts outputs in outputDir, or next to the source when it is empty.
func NewLayout(source, outputDir string) Layout {
	dir := outputDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(source)
	}
	base := filepath.Base(source)
	return Layout{
		Dir:  dir,
		Stem: strings.TrimSuffix(base, filepath.Ext(base)),
	}
}

func (l Layout) path(suffix string) string {
	return filepath.Join(l.Dir, l.Stem+suffix)
}

// ChapterPath is the checkpoint file of the 1-based chapter n.
func (l Layout) ChapterPath(n int) string {
	return l.path(fmt.Sprintf("_chapter_%d.wav", n))
}

func (l Layout) IntermediatePath() string { return l.path(".tmp.m4a") }
func (l Layout) FinalPath() string        { return l.path(".m4b") }
func (l Layout) ConcatListPath() string   { return l.path(".concat.txt") }
func (l Layout) MetadataPath() string     { return l.path(".ffmeta.txt") }

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteChapter writes the audio as WAV. The data goes to a ".part" file first
// and is renamed into place, so a checkpoint never exists half-written.
func WriteChapter(path string, a tts.Audio) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if err := a.WriteWAV(f); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// WAVDuration reads the playback length from a WAV header.
func WAVDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.New("not a valid wav file")
	}
	return dec.Duration()
}

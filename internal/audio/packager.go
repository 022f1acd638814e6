package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/models"
	"github.com/cycleuser/audiblez/internal/storage"
)

// ErrToolMissing is returned when ffmpeg cannot be found.
var ErrToolMissing = errors.New("ffmpeg not found")

const stderrTailLines = 15

// PackagingError is an ffmpeg failure. Stderr holds the last lines of its output.
type PackagingError struct {
	Step   string
	Err    error
	Stderr string
}

func (e *PackagingError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s: %v: %s", e.Step, e.Err, e.Stderr)
}

func (e *PackagingError) Unwrap() error { return e.Err }

// Packager joins chapter WAV files into a tagged .m4b with chapter markers.
type Packager struct {
	Binary   string
	Runner   Runner
	LookPath func(string) (string, error)
}

func NewPackager(binary string) *Packager {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Packager{
		Binary:   binary,
		Runner:   execRunner{},
		LookPath: exec.LookPath,
	}
}

// Available reports whether the ffmpeg binary is on PATH.
func (p *Packager) Available() bool {
	_, err := p.LookPath(p.Binary)
	return err == nil
}

// Package builds layout.FinalPath() from book.Chapters, in order.
//
// The concat list is kept next to the intermediate file while it exists and
// records which chapters it was encoded from. The intermediate is reused only
// when that list matches the current chapters. Both are deleted once the
// final file is written and kept when the final step fails, so the next run
// with the same chapters only has to redo the remux.
func (p *Packager) Package(ctx context.Context, layout storage.Layout, book models.Audiobook) (models.Audiobook, error) {
	log := logger.FromContext(ctx).With("book", book.Title)

	if len(book.Chapters) == 0 {
		return book, errors.New("no chapter files to package")
	}
	bin, err := p.LookPath(p.Binary)
	if err != nil {
		return book, ErrToolMissing
	}

	list, err := concatList(book.Chapters)
	if err != nil {
		return book, err
	}

	listPath := layout.ConcatListPath()
	metaPath := layout.MetadataPath()
	tmpPath := layout.IntermediatePath()
	defer os.Remove(metaPath)

	if reusable(tmpPath, listPath, list) {
		log.Info("reusing intermediate audio", "file", tmpPath)
	} else {
		if storage.Exists(tmpPath) {
			log.Info("intermediate audio is out of date, encoding again", "file", tmpPath)
		}
		if err := os.WriteFile(listPath, []byte(list), 0o644); err != nil {
			return book, fmt.Errorf("write concat list: %w", err)
		}
		log.Info("encoding chapters", "chapters", len(book.Chapters), "file", tmpPath)
		stderr, err := p.Runner.Run(ctx, bin, concatArgs(listPath, tmpPath)...)
		if err != nil {
			// a half-written intermediate must not be reused later
			_ = os.Remove(tmpPath)
			_ = os.Remove(listPath)
			return book, &PackagingError{Step: "encode", Err: err, Stderr: tail(stderr)}
		}
	}

	if err := writeMetadata(ctx, metaPath, book); err != nil {
		return book, err
	}

	finalPath := layout.FinalPath()
	log.Info("writing audiobook", "file", finalPath)
	stderr, err := p.Runner.Run(ctx, bin, finalArgs(tmpPath, metaPath, finalPath, book)...)
	if err != nil {
		log.Warn("keeping intermediate audio for retry", "file", tmpPath)
		return book, &PackagingError{Step: "remux", Err: err, Stderr: tail(stderr)}
	}

	for _, path := range []string{tmpPath, listPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove intermediate file", "file", path, "error", err)
		}
	}
	book.Path = finalPath
	return book, nil
}

// reusable reports whether tmpPath exists and was encoded from list.
func reusable(tmpPath, listPath, list string) bool {
	if !storage.Exists(tmpPath) {
		return false
	}
	prev, err := os.ReadFile(listPath)
	return err == nil && string(prev) == list
}

func concatArgs(listPath, tmpPath string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c:a", "aac", "-b:a", "64k",
		tmpPath,
	}
}

func finalArgs(tmpPath, metaPath, finalPath string, book models.Audiobook) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", tmpPath, "-i", metaPath,
		"-map", "0:a", "-map_metadata", "1", "-map_chapters", "1",
		"-c", "copy", "-f", "mp4",
		"-metadata", "title=" + book.Title,
		"-metadata", "author=" + book.Author,
		finalPath,
	}
}

func concatList(chapters []models.AudioChapterFile) (string, error) {
	var b strings.Builder
	for _, ch := range chapters {
		abs, err := filepath.Abs(ch.Path)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", ch.Path, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return b.String(), nil
}

// writeMetadata writes an FFMETADATA1 file with one chapter per WAV file. When
// a duration cannot be read the chapter markers are left out entirely.
func writeMetadata(ctx context.Context, path string, book models.Audiobook) error {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	fmt.Fprintf(&b, "title=%s\n", escapeMeta(book.Title))
	fmt.Fprintf(&b, "artist=%s\n", escapeMeta(book.Author))

	markers, err := chapterMarkers(book.Chapters)
	if err != nil {
		logger.FromContext(ctx).Warn("writing audiobook without chapter markers", "error", err)
	} else {
		b.WriteString(markers)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func chapterMarkers(chapters []models.AudioChapterFile) (string, error) {
	var b strings.Builder
	var start time.Duration
	for _, ch := range chapters {
		d := ch.Duration
		if d <= 0 {
			var err error
			if d, err = storage.WAVDuration(ch.Path); err != nil {
				return "", fmt.Errorf("duration of %s: %w", ch.Path, err)
			}
		}
		title := ch.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", ch.Index)
		}
		end := start + d
		b.WriteString("\n[CHAPTER]\nTIMEBASE=1/1000\n")
		fmt.Fprintf(&b, "START=%d\nEND=%d\n", start.Milliseconds(), end.Milliseconds())
		fmt.Fprintf(&b, "title=%s\n", escapeMeta(title))
		start = end
	}
	return b.String(), nil
}

var metaEscaper = strings.NewReplacer(
	`\`, `\\`,
	"=", `\=`,
	";", `\;`,
	"#", `\#`,
	"\n", "\\\n",
)

func escapeMeta(s string) string {
	return metaEscaper.Replace(s)
}

func tail(stderr []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stderr)), "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/cycleuser/audiblez/internal/audio"
	"github.com/cycleuser/audiblez/internal/chapters"
	"github.com/cycleuser/audiblez/internal/epub"
	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/models"
	"github.com/cycleuser/audiblez/internal/parser"
	"github.com/cycleuser/audiblez/internal/storage"
	"github.com/cycleuser/audiblez/internal/tts"
)

var (
	ErrSelectionEmpty = errors.New("no chapters selected")
	ErrInvalidRequest = errors.New("invalid request")
)

// Request describes one conversion.
type Request struct {
	Source    string
	OutputDir string
	Lang      string
	Voice     string
	Speed     float64
	Manual    bool

	// Picker overrides the converter's picker for manual selection.
	Picker chapters.Picker
	// JobID is passed to the Recorder; runs without one are not recorded.
	JobID string
}

// Result summarizes a run. Files lists every chapter file present after the
// run, in narration order, whether synthesized now or found on disk.
type Result struct {
	Title    string
	Author   string
	Files    []models.AudioChapterFile
	Skipped  int
	Failed   int
	Output   string
	Packaged bool
}

// Progress is reported after every chapter.
type Progress struct {
	Percent int
	Chapter int
	ETA     time.Duration
}

type Loader func(ctx context.Context, path string) (*models.Book, error)

type Packager interface {
	Available() bool
	Package(ctx context.Context, layout storage.Layout, book models.Audiobook) (models.Audiobook, error)
}

// Recorder persists run milestones. Failures are logged and never stop a run.
type Recorder interface {
	SetBook(ctx context.Context, jobID, title, author string) error
	AddChapter(ctx context.Context, jobID string, file models.AudioChapterFile) error
	SetProgress(ctx context.Context, jobID string, percent int) error
}

// Converter runs the pipeline: load, select, extract, synthesize, package.
// Chapters are processed one at a time.
type Converter struct {
	load     Loader
	synth    tts.Synthesizer
	packager Packager
	picker   chapters.Picker
	recorder Recorder

	toolWarning sync.Once
}

type Option func(*Converter)

func WithLoader(l Loader) Option { return func(c *Converter) { c.load = l } }

func WithPicker(p chapters.Picker) Option { return func(c *Converter) { c.picker = p } }

func WithRecorder(r Recorder) Option { return func(c *Converter) { c.recorder = r } }

func NewConverter(synth tts.Synthesizer, packager Packager, opts ...Option) *Converter {
	c := &Converter{
		load:     epub.Open,
		synth:    synth,
		packager: packager,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const toolMissingMessage = "ffmpeg not found, keeping chapter files without an audiobook"

// Run converts req.Source. Chapter files already on disk are kept and not
// synthesized again, so a rerun after a crash or cancel resumes where the
// previous one stopped. onProgress may be nil.
func (c *Converter) Run(ctx context.Context, req Request, onProgress func(Progress)) (Result, error) {
	log := logger.FromContext(ctx).With("book", filepath.Base(req.Source))
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	book, err := c.load(ctx, req.Source)
	if err != nil {
		return Result{}, err
	}
	res := Result{Title: book.Title, Author: book.Author}
	c.record(ctx, req.JobID, "set book", func() error { return c.recorder.SetBook(ctx, req.JobID, book.Title, book.Author) })

	picker := req.Picker
	if picker == nil {
		picker = c.picker
	}
	if req.Manual && picker == nil {
		return res, fmt.Errorf("%w: manual selection without a picker", ErrInvalidRequest)
	}
	sel := chapters.Select(ctx, book, req.Manual, picker)
	if sel.Empty() {
		return res, ErrSelectionEmpty
	}
	log.Info("chapters selected", "count", len(sel.Documents), "strategy", sel.Strategy)

	pending := make([]models.Chapter, 0, len(sel.Documents))
	var total int
	for i, doc := range sel.Documents {
		text, err := parser.ExtractBytes(doc.Body)
		if err != nil {
			log.Warn("cannot extract text", "chapter", doc.Name, "error", err)
			text = ""
		}
		total += utf8.RuneCountInString(text)
		pending = append(pending, models.Chapter{Index: i + 1, Document: doc, Text: text})
	}

	if err := c.validate(ctx, req); err != nil {
		return res, err
	}

	layout := storage.NewLayout(req.Source, req.OutputDir)
	if err := os.MkdirAll(layout.Dir, 0o755); err != nil {
		return res, fmt.Errorf("create output dir: %w", err)
	}
	log.Info("starting synthesis", "chars", humanize.Comma(int64(total)), "voice", req.Voice, "lang", req.Lang, "speed", req.Speed)

	remaining := total
	number := 1
	for _, ch := range pending {
		if err := ctx.Err(); err != nil {
			log.Info("conversion cancelled", "chapter", number)
			return res, err
		}
		if ch.Text == "" {
			log.Debug("skipping chapter without text", "chapter", ch.Document.Name)
			continue
		}

		chars := utf8.RuneCountInString(ch.Text)
		file := models.AudioChapterFile{
			Index: number,
			Path:  layout.ChapterPath(number),
			Title: chapterTitle(ch.Document),
			Chars: chars,
		}
		number++

		if storage.Exists(file.Path) {
			log.Info("already exists, skipping", "file", file.Path)
			if d, err := storage.WAVDuration(file.Path); err == nil {
				file.Duration = d
			}
			res.Files = append(res.Files, file)
			res.Skipped++
			remaining -= chars
			onProgress(Progress{Percent: percent(total, remaining), Chapter: file.Index})
			continue
		}

		text := ch.Text
		if file.Index == 1 {
			text = book.Intro() + ".\n\n" + text
		}

		log.Info("synthesizing chapter", "chapter", file.Index, "title", file.Title, "chars", humanize.Comma(int64(chars)))
		start := time.Now()
		duration, err := c.synthesize(ctx, req, text, file.Path)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("conversion cancelled", "chapter", file.Index)
				return res, ctx.Err()
			}
			log.Error("chapter failed", "chapter", file.Index, "error", err)
			res.Failed++
			remaining -= chars
			onProgress(Progress{Percent: percent(total, remaining), Chapter: file.Index})
			continue
		}
		file.Duration = duration
		res.Files = append(res.Files, file)
		c.record(ctx, req.JobID, "add chapter", func() error { return c.recorder.AddChapter(ctx, req.JobID, file) })

		remaining -= chars
		eta := estimate(chars, time.Since(start), remaining)
		p := percent(total, remaining)
		log.Info("chapter done", "chapter", file.Index, "file", file.Path, "eta", FormatETA(eta), "progress", p)
		c.record(ctx, req.JobID, "set progress", func() error { return c.recorder.SetProgress(ctx, req.JobID, p) })
		onProgress(Progress{Percent: p, Chapter: file.Index, ETA: eta})
	}

	if len(res.Files) == 0 {
		log.Warn("no chapter audio, nothing to package")
		return res, nil
	}
	c.pack(ctx, layout, &res)
	return res, nil
}

func (c *Converter) validate(ctx context.Context, req Request) error {
	if req.Speed <= 0 {
		return fmt.Errorf("%w: speed must be positive, got %v", ErrInvalidRequest, req.Speed)
	}
	if err := tts.ValidateLanguage(req.Lang); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := tts.ValidateVoice(ctx, c.synth, req.Voice); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (c *Converter) synthesize(ctx context.Context, req Request, text, path string) (time.Duration, error) {
	out, err := c.synth.Synthesize(ctx, models.SynthesisRequest{
		Text:  text,
		Voice: req.Voice,
		Lang:  req.Lang,
		Speed: req.Speed,
	})
	if err != nil {
		return 0, err
	}
	if err := storage.WriteChapter(path, out); err != nil {
		return 0, err
	}
	return out.Duration(), nil
}

// pack builds the .m4b. Packaging problems are logged and leave the chapter
// files in place; they never fail the run.
func (c *Converter) pack(ctx context.Context, layout storage.Layout, res *Result) {
	log := logger.FromContext(ctx).With("book", res.Title)

	if c.packager == nil || !c.packager.Available() {
		c.toolWarning.Do(func() { log.Warn(toolMissingMessage) })
		return
	}

	book, err := c.packager.Package(ctx, layout, models.Audiobook{
		Title:    res.Title,
		Author:   res.Author,
		Chapters: res.Files,
	})
	if err != nil {
		var perr *audio.PackagingError
		switch {
		case errors.Is(err, audio.ErrToolMissing):
			c.toolWarning.Do(func() { log.Warn(toolMissingMessage) })
		case errors.As(err, &perr):
			log.Error("packaging failed", "step", perr.Step, "error", perr.Err, "stderr", perr.Stderr)
		default:
			log.Error("packaging failed", "error", err)
		}
		return
	}
	res.Output = book.Path
	res.Packaged = true
	log.Info("audiobook created", "file", book.Path)
}

func (c *Converter) record(ctx context.Context, jobID, what string, fn func() error) {
	if c.recorder == nil || jobID == "" {
		return
	}
	if err := fn(); err != nil {
		logger.FromContext(ctx).Warn("cannot record job state", "job", jobID, "op", what, "error", err)
	}
}

func chapterTitle(doc models.Document) string {
	if t := parser.ChapterTitle(doc.Body); t != "" {
		return t
	}
	return doc.Name
}

func percent(total, remaining int) int {
	if total <= 0 {
		return 100
	}
	return (total - remaining) * 100 / total
}

// estimate extrapolates the last chapter's chars/sec over what is left.
func estimate(chars int, elapsed time.Duration, remaining int) time.Duration {
	if chars <= 0 || elapsed <= 0 || remaining <= 0 {
		return 0
	}
	perChar := elapsed / time.Duration(chars)
	return perChar * time.Duration(remaining)
}

// FormatETA renders d as "00d 00h 00m 00s".
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	days := secs / 86400
	hours := secs % 86400 / 3600
	mins := secs % 3600 / 60
	return fmt.Sprintf("%02dd %02dh %02dm %02ds", days, hours, mins, secs%60)
}

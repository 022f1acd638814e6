package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleuser/audiblez/internal/audio"
	"github.com/cycleuser/audiblez/internal/epub"
	"github.com/cycleuser/audiblez/internal/epub/epubtest"
	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/models"
	"github.com/cycleuser/audiblez/internal/storage"
	"github.com/cycleuser/audiblez/internal/tts"
)

type fakeSynth struct {
	mu       sync.Mutex
	calls    []models.SynthesisRequest
	failWhen string
	onCall   func(ctx context.Context, n int) error
}

func (f *fakeSynth) Synthesize(ctx context.Context, req models.SynthesisRequest) (tts.Audio, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()

	if f.onCall != nil {
		if err := f.onCall(ctx, n); err != nil {
			return tts.Audio{}, err
		}
	}
	if f.failWhen != "" && strings.Contains(req.Text, f.failWhen) {
		return tts.Audio{}, &tts.SynthesisError{Engine: "fake", Err: errors.New("boom")}
	}
	return tts.Audio{Samples: make([]float32, 800), SampleRate: 8000}, nil
}

func (f *fakeSynth) Voices(context.Context) ([]string, error) {
	return []string{"af_sky", "bf_emma"}, nil
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePackager struct {
	available bool
	err       error
	got       models.Audiobook
	calls     int
}

func (p *fakePackager) Available() bool { return p.available }

func (p *fakePackager) Package(_ context.Context, layout storage.Layout, book models.Audiobook) (models.Audiobook, error) {
	p.calls++
	p.got = book
	if p.err != nil {
		return book, p.err
	}
	book.Path = layout.FinalPath()
	return book, os.WriteFile(book.Path, []byte("m4b"), 0o644)
}

type fakePicker struct {
	names []string
	err   error
}

func (p fakePicker) Pick(context.Context, []string) ([]string, error) { return p.names, p.err }

func doc(name string, paragraphs ...string) models.Document {
	return models.Document{
		ID:        name,
		Name:      name,
		MediaType: "application/xhtml+xml",
		Kind:      models.KindText,
		Body:      []byte(epubtest.XHTML(paragraphs...)),
	}
}

func staticLoader(docs ...models.Document) Loader {
	return func(_ context.Context, path string) (*models.Book, error) {
		return &models.Book{Path: path, Title: "Dune", Author: "Frank Herbert", Documents: docs}, nil
	}
}

func testRequest(dir string) Request {
	return Request{
		Source: filepath.Join(dir, "dune.epub"),
		Lang:   "en-us",
		Voice:  "af_sky",
		Speed:  1.0,
	}
}

func testContext() context.Context {
	return logger.ContextWithLogger(context.Background(), logger.NewLogger(logger.TestConfig()))
}

func defaultDocs() []models.Document {
	return []models.Document{
		doc("cover.xhtml", "Cover"),
		doc("chapter1.xhtml", "It was a warm night."),
		doc("chapter2.xhtml", "The desert was silent."),
	}
}

func TestConverterRun(t *testing.T) {
	t.Run("Should narrate matching chapters in order and package them", func(t *testing.T) {
		dir := t.TempDir()
		synth := &fakeSynth{}
		pack := &fakePackager{available: true}
		conv := NewConverter(synth, pack, WithLoader(staticLoader(defaultDocs()...)))

		res, err := conv.Run(testContext(), testRequest(dir), nil)
		require.NoError(t, err)

		require.Len(t, synth.calls, 2)
		assert.True(t, strings.HasPrefix(synth.calls[0].Text, "Dune by Frank Herbert.\n\n"))
		assert.Contains(t, synth.calls[0].Text, "warm night")
		assert.Equal(t, "The desert was silent.\n", synth.calls[1].Text)
		assert.Equal(t, 1.0, synth.calls[0].Speed)

		require.Len(t, res.Files, 2)
		assert.Equal(t, filepath.Join(dir, "dune_chapter_1.wav"), res.Files[0].Path)
		assert.Equal(t, filepath.Join(dir, "dune_chapter_2.wav"), res.Files[1].Path)
		assert.FileExists(t, res.Files[0].Path)
		assert.FileExists(t, res.Files[1].Path)

		assert.True(t, res.Packaged)
		assert.Equal(t, filepath.Join(dir, "dune.m4b"), res.Output)
		assert.Equal(t, res.Files, pack.got.Chapters)
		assert.Equal(t, "Dune", pack.got.Title)
	})

	t.Run("Should not synthesize chapters that already exist", func(t *testing.T) {
		dir := t.TempDir()
		first := &fakeSynth{}
		conv := NewConverter(first, &fakePackager{}, WithLoader(staticLoader(defaultDocs()...)))
		_, err := conv.Run(testContext(), testRequest(dir), nil)
		require.NoError(t, err)

		second := &fakeSynth{}
		conv = NewConverter(second, &fakePackager{}, WithLoader(staticLoader(defaultDocs()...)))
		res, err := conv.Run(testContext(), testRequest(dir), nil)
		require.NoError(t, err)

		assert.Zero(t, second.callCount())
		assert.Equal(t, 2, res.Skipped)
		assert.Len(t, res.Files, 2)
	})

	t.Run("Should narrate every document when no name looks like a chapter", func(t *testing.T) {
		dir := t.TempDir()
		synth := &fakeSynth{}
		docs := []models.Document{doc("a.xhtml", "one"), doc("b.xhtml", "two"), doc("c.xhtml", "three")}
		conv := NewConverter(synth, &fakePackager{}, WithLoader(staticLoader(docs...)))

		res, err := conv.Run(testContext(), testRequest(dir), nil)
		require.NoError(t, err)
		assert.Len(t, res.Files, 3)
		assert.Equal(t, "three\n", synth.calls[2].Text)
	})

	t.Run("Should skip empty chapters without consuming a number", func(t *testing.T) {
		dir := t.TempDir()
		synth := &fakeSynth{}
		docs := []models.Document{doc("chapter1.xhtml"), doc("chapter2.xhtml", "Only text")}
		conv := NewConverter(synth, &fakePackager{}, WithLoader(staticLoader(docs...)))

		res, err := conv.Run(testContext(), testRequest(dir), nil)
		require.NoError(t, err)
		assert.Zero(t, res.Failed)
		require.Len(t, res.Files, 1)
		assert.Equal(t, 1, res.Files[0].Index)
		assert.NoFileExists(t, filepath.Join(dir, "dune_chapter_2.wav"))
		assert.True(t, strings.HasPrefix(synth.calls[0].Text, "Dune by Frank Herbert."))
	})

	t.Run("Should continue after a chapter fails", func(t *testing.T) {
		dir := t.TempDir()
		synth := &fakeSynth{failWhen: "warm night"}
		pack := &fakePackager{available: true}
		conv := NewConverter(synth, pack, WithLoader(staticLoader(defaultDocs()...)))

		res, err := conv.Run(testContext(), testRequest(dir), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.NoFileExists(t, filepath.Join(dir, "dune_chapter_1.wav"))
		require.Len(t, res.Files, 1)
		assert.Equal(t, 2, res.Files[0].Index)
		assert.Len(t, pack.got.Chapters, 1)
	})

	t.Run("Should report progress up to 100", func(t *testing.T) {
		dir := t.TempDir()
		var seen []int
		conv := NewConverter(&fakeSynth{}, &fakePackager{}, WithLoader(staticLoader(defaultDocs()...)))

		_, err := conv.Run(testContext(), testRequest(dir), func(p Progress) { seen = append(seen, p.Percent) })
		require.NoError(t, err)
		require.Len(t, seen, 2)
		assert.Less(t, seen[0], seen[1])
		assert.Equal(t, 100, seen[1])
	})
}

func TestConverterRunFailures(t *testing.T) {
	t.Run("Should fail on a missing source without writing files", func(t *testing.T) {
		dir := t.TempDir()
		synth := &fakeSynth{}
		conv := NewConverter(synth, &fakePackager{available: true})

		_, err := conv.Run(testContext(), testRequest(dir), nil)
		assert.ErrorIs(t, err, epub.ErrLoad)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.Zero(t, synth.callCount())
	})

	t.Run("Should fail when the manual selection is cancelled", func(t *testing.T) {
		dir := t.TempDir()
		conv := NewConverter(&fakeSynth{}, &fakePackager{}, WithLoader(staticLoader(defaultDocs()...)))
		req := testRequest(dir)
		req.Manual = true
		req.Picker = fakePicker{err: errors.New("user aborted")}

		_, err := conv.Run(testContext(), req, nil)
		assert.ErrorIs(t, err, ErrSelectionEmpty)
		assert.NoFileExists(t, filepath.Join(dir, "dune_chapter_1.wav"))
	})

	t.Run("Should narrate only picked chapters", func(t *testing.T) {
		dir := t.TempDir()
		synth := &fakeSynth{}
		conv := NewConverter(synth, &fakePackager{}, WithLoader(staticLoader(defaultDocs()...)),
			WithPicker(fakePicker{names: []string{"chapter2.xhtml", "cover.xhtml"}}))
		req := testRequest(dir)
		req.Manual = true

		res, err := conv.Run(testContext(), req, nil)
		require.NoError(t, err)
		require.Len(t, res.Files, 2)
		assert.Contains(t, synth.calls[0].Text, "Cover")
		assert.Contains(t, synth.calls[1].Text, "desert")
	})

	t.Run("Should reject an unknown voice before synthesis", func(t *testing.T) {
		dir := t.TempDir()
		synth := &fakeSynth{}
		conv := NewConverter(synth, &fakePackager{}, WithLoader(staticLoader(defaultDocs()...)))
		req := testRequest(dir)
		req.Voice = "zz_nobody"

		_, err := conv.Run(testContext(), req, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.Zero(t, synth.callCount())
	})

	t.Run("Should reject an unsupported language", func(t *testing.T) {
		conv := NewConverter(&fakeSynth{}, &fakePackager{}, WithLoader(staticLoader(defaultDocs()...)))
		req := testRequest(t.TempDir())
		req.Lang = "de-de"

		_, err := conv.Run(testContext(), req, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("Should stop between chapters when cancelled", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel := context.WithCancel(testContext())
		defer cancel()
		synth := &fakeSynth{onCall: func(_ context.Context, n int) error {
			if n == 1 {
				cancel()
			}
			return nil
		}}
		conv := NewConverter(synth, &fakePackager{available: true}, WithLoader(staticLoader(defaultDocs()...)))

		res, err := conv.Run(ctx, testRequest(dir), nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, synth.callCount())
		assert.Len(t, res.Files, 1)
		assert.FileExists(t, filepath.Join(dir, "dune_chapter_1.wav"))
	})
}

func TestConverterPackaging(t *testing.T) {
	t.Run("Should complete without an audiobook when ffmpeg is missing", func(t *testing.T) {
		dir := t.TempDir()
		pack := &fakePackager{available: false}
		conv := NewConverter(&fakeSynth{}, pack, WithLoader(staticLoader(defaultDocs()...)))

		res, err := conv.Run(testContext(), testRequest(dir), nil)
		require.NoError(t, err)
		assert.False(t, res.Packaged)
		assert.Zero(t, pack.calls)
		assert.NoFileExists(t, filepath.Join(dir, "dune.m4b"))
		assert.FileExists(t, filepath.Join(dir, "dune_chapter_1.wav"))
	})

	t.Run("Should absorb packaging failures", func(t *testing.T) {
		dir := t.TempDir()
		pack := &fakePackager{available: true, err: &audio.PackagingError{Step: "remux", Err: errors.New("exit status 1")}}
		conv := NewConverter(&fakeSynth{}, pack, WithLoader(staticLoader(defaultDocs()...)))

		res, err := conv.Run(testContext(), testRequest(dir), nil)
		require.NoError(t, err)
		assert.False(t, res.Packaged)
		assert.Empty(t, res.Output)
		assert.Len(t, res.Files, 2)
	})
}

func TestConverterWithRealArchive(t *testing.T) {
	dir := t.TempDir()
	path := epubtest.Write(t, dir, "novel.epub", "Novel", "Writer",
		epubtest.Chapter("cover.xhtml", "Cover page"),
		epubtest.Chapter("chapter1.xhtml", "First"),
		epubtest.Chapter("chapter2.xhtml", "Second"),
	)
	synth := &fakeSynth{}
	conv := NewConverter(synth, &fakePackager{})

	res, err := conv.Run(testContext(), Request{Source: path, Lang: "en-gb", Voice: "bf_emma", Speed: 1.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Novel", res.Title)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "Novel by Writer.\n\nFirst\n", synth.calls[0].Text)
	assert.Equal(t, filepath.Join(dir, "novel_chapter_2.wav"), res.Files[1].Path)
}

func TestSpeedFromControl(t *testing.T) {
	speed, err := SpeedFromControl(100)
	require.NoError(t, err)
	assert.Equal(t, 1.0, speed)

	speed, err = SpeedFromControl(200)
	require.NoError(t, err)
	assert.Equal(t, 2.0, speed)

	_, err = SpeedFromControl(49)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = SpeedFromControl(201)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "00d 00h 00m 00s", FormatETA(0))
	assert.Equal(t, "01d 01h 01m 01s", FormatETA(90061*1e9))
	assert.Equal(t, "00d 00h 02m 05s", FormatETA(125*1e9))
}

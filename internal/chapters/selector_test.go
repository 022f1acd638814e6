package chapters

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleuser/audiblez/internal/models"
)

type fakePicker struct {
	names  []string
	err    error
	offers []string
}

func (f *fakePicker) Pick(_ context.Context, names []string) ([]string, error) {
	f.offers = names
	return f.names, f.err
}

func textDoc(name string) models.Document {
	return models.Document{Name: name, Kind: models.KindText}
}

func newBook(docs ...models.Document) *models.Book {
	return &models.Book{Title: "T", Author: "A", Documents: docs}
}

func TestIsChapter(t *testing.T) {
	cases := map[string]bool{
		"chapter1.xhtml":       true,
		"Text/CHAPTER_07.html": true,
		"part01.xhtml":         true,
		"ch003.xhtml":          true,
		"book_ch12.xhtml":      true,
		"cover.xhtml":          false,
		"toc.xhtml":            false,
		"partial.xhtml":        false,
		"ch.xhtml":             false,
	}
	for name, want := range cases {
		assert.Equal(t, want, IsChapter(name), name)
	}
}

func TestAutomaticMatchesChapters(t *testing.T) {
	book := newBook(
		textDoc("cover.xhtml"),
		textDoc("chapter1.xhtml"),
		models.Document{Name: "chapter-art.jpg", Kind: models.KindResource},
		textDoc("chapter2.xhtml"),
	)

	sel := Automatic(book)
	assert.Equal(t, StrategyAutomatic, sel.Strategy)
	assert.Equal(t, []string{"chapter1.xhtml", "chapter2.xhtml"}, sel.Names())
}

func TestAutomaticFallsBackToAllText(t *testing.T) {
	book := newBook(
		textDoc("cover.xhtml"),
		textDoc("one.xhtml"),
		models.Document{Name: "style.css", Kind: models.KindResource},
		textDoc("two.xhtml"),
	)

	sel := Automatic(book)
	assert.Equal(t, StrategyFallback, sel.Strategy)
	assert.Equal(t, []string{"cover.xhtml", "one.xhtml", "two.xhtml"}, sel.Names())
}

func TestAutomaticNeverEmptyWithText(t *testing.T) {
	for _, names := range [][]string{{"a"}, {"x", "y"}, {"chapter9", "z"}} {
		var docs []models.Document
		for _, n := range names {
			docs = append(docs, textDoc(n))
		}
		assert.False(t, Automatic(newBook(docs...)).Empty(), names)
	}
	assert.True(t, Automatic(newBook()).Empty())
}

func TestManualKeepsBookOrder(t *testing.T) {
	book := newBook(textDoc("a.xhtml"), textDoc("b.xhtml"), textDoc("c.xhtml"),
		models.Document{Name: "img.png", Kind: models.KindResource})
	picker := &fakePicker{names: []string{"c.xhtml", "a.xhtml"}}

	sel := Select(context.Background(), book, true, picker)
	assert.Equal(t, StrategyManual, sel.Strategy)
	assert.Equal(t, []string{"a.xhtml", "c.xhtml"}, sel.Names())
	assert.Equal(t, []string{"a.xhtml", "b.xhtml", "c.xhtml"}, picker.offers)
}

func TestManualCancelledIsEmpty(t *testing.T) {
	book := newBook(textDoc("a.xhtml"))
	sel := Manual(context.Background(), book, &fakePicker{err: errors.New("user aborted")})
	require.True(t, sel.Empty())
	assert.Equal(t, StrategyManual, sel.Strategy)

	assert.True(t, Manual(context.Background(), book, nil).Empty())
}

package chapters

import (
	"context"
	"regexp"
	"strings"

	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/models"
)

var (
	partRe    = regexp.MustCompile(`part\d{1,3}`)
	chapterRe = regexp.MustCompile(`ch\d{1,3}`)
)

// Strategy tells which rule produced a selection.
type Strategy string

const (
	StrategyAutomatic Strategy = "automatic"
	StrategyFallback  Strategy = "fallback"
	StrategyManual    Strategy = "manual"
)

// Picker lets a person choose chapter documents by name. At least one name
// must be returned; cancellation is reported as an error.
type Picker interface {
	Pick(ctx context.Context, names []string) ([]string, error)
}

// Selection is the ordered list of documents to narrate.
type Selection struct {
	Documents []models.Document
	Strategy  Strategy
}

// Empty reports whether nothing was selected.
func (s Selection) Empty() bool {
	return len(s.Documents) == 0
}

// Names returns the document names in selection order.
func (s Selection) Names() []string {
	names := make([]string, 0, len(s.Documents))
	for _, d := range s.Documents {
		names = append(names, d.Name)
	}
	return names
}

// IsChapter is the filename heuristic: "part" or "ch" followed by 1-3 digits,
// or the word "chapter" anywhere, case-insensitive.
func IsChapter(name string) bool {
	name = strings.ToLower(name)
	return partRe.MatchString(name) || chapterRe.MatchString(name) || strings.Contains(name, "chapter")
}

// Automatic keeps the textual documents whose names look like chapters. When
// nothing matches every textual document is used instead, so the result is
// never empty for a book that has text at all.
func Automatic(book *models.Book) Selection {
	text := book.TextDocuments()

	var docs []models.Document
	for _, d := range text {
		if IsChapter(d.Name) {
			docs = append(docs, d)
		}
	}
	if len(docs) > 0 {
		return Selection{Documents: docs, Strategy: StrategyAutomatic}
	}
	return Selection{Documents: text, Strategy: StrategyFallback}
}

// Manual asks the picker to choose among all textual documents. A failed or
// cancelled pick yields an empty selection, not an error.
func Manual(ctx context.Context, book *models.Book, picker Picker) Selection {
	log := logger.FromContext(ctx)
	text := book.TextDocuments()

	names := make([]string, 0, len(text))
	for _, d := range text {
		names = append(names, d.Name)
	}

	sel := Selection{Strategy: StrategyManual}
	if picker == nil || len(names) == 0 {
		return sel
	}

	picked, err := picker.Pick(ctx, names)
	if err != nil {
		log.Warn("chapter selection cancelled or failed", "error", err)
		return sel
	}

	chosen := make(map[string]struct{}, len(picked))
	for _, n := range picked {
		chosen[n] = struct{}{}
	}
	// Keep book order whatever order the picker returned.
	for _, d := range text {
		if _, ok := chosen[d.Name]; ok {
			sel.Documents = append(sel.Documents, d)
		}
	}
	return sel
}

// Select runs the manual strategy when asked to, the automatic one otherwise.
func Select(ctx context.Context, book *models.Book, manual bool, picker Picker) Selection {
	log := logger.FromContext(ctx)

	var sel Selection
	if manual {
		sel = Manual(ctx, book, picker)
	} else {
		sel = Automatic(book)
		if sel.Strategy == StrategyFallback {
			log.Info("Not easy to find the chapters, defaulting to all available documents.")
		}
	}
	log.Info("selected chapters", "strategy", sel.Strategy, "count", len(sel.Documents), "names", sel.Names())
	return sel
}

package epub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goepub "github.com/taylorskalyo/goreader/epub"

	"github.com/cycleuser/audiblez/internal/logger"
	"github.com/cycleuser/audiblez/internal/models"
)

// ErrLoad matches every error returned by Open.
var ErrLoad = errors.New("cannot load e-book")

const unknownAuthor = "Unknown author"

// LoadError is returned when the source is missing or is not an EPUB container.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// Open reads the container at path and returns its documents in reading order:
// spine items first, then textual manifest items the spine does not reference.
// Broken items are skipped with a debug log line instead of failing the load.
func Open(ctx context.Context, path string) (*models.Book, error) {
	log := logger.FromContext(ctx)

	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	rc, err := goepub.OpenReader(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, &LoadError{Path: path, Err: errors.New("no package document in container")}
	}
	rf := rc.Rootfiles[0]

	book := &models.Book{
		Path:     path,
		Title:    strings.TrimSpace(rf.Title),
		Author:   strings.TrimSpace(rf.Creator),
		Language: strings.TrimSpace(rf.Language),
	}
	if book.Title == "" {
		book.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if book.Author == "" {
		book.Author = unknownAuthor
	}

	seen := make(map[string]struct{})
	add := func(item *goepub.Item) {
		if _, ok := seen[item.ID]; ok {
			return
		}
		seen[item.ID] = struct{}{}

		doc := models.Document{
			ID:        item.ID,
			Name:      item.HREF,
			MediaType: item.MediaType,
			Kind:      kindOf(item.MediaType),
		}
		if doc.IsText() {
			body, err := readItem(item)
			if err != nil {
				log.Debug("skipping unreadable document", "book", book.Title, "document", item.HREF, "error", err)
				return
			}
			doc.Body = body
		}
		book.Documents = append(book.Documents, doc)
	}

	for _, ref := range rf.Spine.Itemrefs {
		if ref.Item == nil {
			log.Debug("spine reference without manifest item", "book", book.Title, "idref", ref.IDREF)
			continue
		}
		add(ref.Item)
	}
	for i := range rf.Manifest.Items {
		add(&rf.Manifest.Items[i])
	}

	return book, nil
}

func kindOf(mediaType string) models.DocumentKind {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "application/xhtml+xml", "text/html":
		return models.KindText
	default:
		return models.KindResource
	}
}

func readItem(item *goepub.Item) ([]byte, error) {
	r, err := item.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

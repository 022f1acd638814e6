package models

import "fmt"

// DocumentKind separates narratable markup from resources (images, styles, fonts).
type DocumentKind int

const (
	KindResource DocumentKind = iota
	KindText
)

// Document is one item of the e-book archive.
type Document struct {
	ID        string
	Name      string
	MediaType string
	Kind      DocumentKind

	// Body is the raw markup. It is only loaded for textual documents.
	Body []byte
}

// IsText reports whether the document carries readable markup.
func (d Document) IsText() bool {
	return d.Kind == KindText
}

// Book is an opened e-book. It is read-only once loaded.
type Book struct {
	Path      string
	Title     string
	Author    string
	Language  string
	Documents []Document
}

// TextDocuments returns the textual documents in book order.
func (b *Book) TextDocuments() []Document {
	var docs []Document
	for _, d := range b.Documents {
		if d.IsText() {
			docs = append(docs, d)
		}
	}
	return docs
}

// Intro is the line read before the first chapter.
func (b *Book) Intro() string {
	return fmt.Sprintf("%s by %s", b.Title, b.Author)
}

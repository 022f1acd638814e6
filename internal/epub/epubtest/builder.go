// Package epubtest builds small EPUB archives for tests.
package epubtest

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Item is one manifest entry. Items with a non-empty Body are written to the
// archive; InSpine puts them in the reading order.
type Item struct {
	Href      string
	MediaType string
	Body      string
	InSpine   bool
}

// Chapter is a shorthand for a spine XHTML item with the given paragraphs.
func Chapter(href string, paragraphs ...string) Item {
	return Item{
		Href:      href,
		MediaType: "application/xhtml+xml",
		Body:      XHTML(paragraphs...),
		InSpine:   true,
	}
}

// XHTML wraps paragraphs into a minimal XHTML document.
func XHTML(paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head><title>ignored</title></head><body>`)
	for _, p := range paragraphs {
		b.WriteString("<p>" + p + "</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// Write creates dir/name and returns its path.
func Write(t *testing.T, dir, name, title, author string, items ...Item) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create epub: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	write := func(name, body string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}

	write("mimetype", "application/epub+zip")
	write("META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`)

	var manifest, spine strings.Builder
	for i, it := range items {
		id := fmt.Sprintf("item%d", i+1)
		fmt.Fprintf(&manifest, `    <item id="%s" href="%s" media-type="%s"/>`+"\n", id, it.Href, it.MediaType)
		if it.InSpine {
			fmt.Fprintf(&spine, `    <itemref idref="%s"/>`+"\n", id)
		}
		if it.Body != "" {
			write("OEBPS/"+it.Href, it.Body)
		}
	}

	write("OEBPS/content.opf", fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>%s</dc:title>
    <dc:creator>%s</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
%s  </manifest>
  <spine>
%s  </spine>
</package>`, title, author, manifest.String(), spine.String()))

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return path
}

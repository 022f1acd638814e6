package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contentTags are the block-level elements that carry narratable prose.
const contentTags = "title, p, h1, h2, h3, h4"

func parse(body io.Reader) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("read HTML: %w", err)
	}

	// Only the body is read; <head><title> is page chrome, not prose.
	root := doc.Find("body").First()
	if root.Length() == 0 {
		root = doc.Selection
	}
	return root, nil
}

// ExtractText returns the trimmed text of every content element in document
// order, one element per line. Empty elements are skipped, so a document
// without prose yields "".
func ExtractText(body io.Reader) (string, error) {
	root, err := parse(body)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	root.Find(contentTags).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteByte('\n')
	})
	return b.String(), nil
}

// ExtractBytes is ExtractText over an in-memory document.
func ExtractBytes(body []byte) (string, error) {
	return ExtractText(bytes.NewReader(body))
}

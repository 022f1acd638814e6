package parser

import (
	"bytes"
	"strings"
)

const maxTitleRunes = 80

// ChapterTitle picks a human-readable title for a chapter document. It is
// best-effort: markup varies a lot between publishers, so the result may be
// empty and callers are expected to fall back to something else.
func ChapterTitle(body []byte) string {
	root, err := parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	for _, sel := range []string{"h1", "h2", "h3", ".chapter-title", "title"} {
		title := normalizeTitle(root.Find(sel).First().Text())
		if title != "" {
			return title
		}
	}
	return ""
}

func normalizeTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return ""
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		title = strings.TrimSpace(string(r[:maxTitleRunes])) + "…"
	}
	return title
}

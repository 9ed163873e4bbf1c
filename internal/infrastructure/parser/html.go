package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fallbackTitleRunes bounds a title synthesised from body text.
const fallbackTitleRunes = 80

// plainText strips markup from an HTML fragment and collapses whitespace.
func plainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// extractTitle makes a best-effort title from HTML content: the first
// heading if there is one, otherwise the leading words of the text.
func extractTitle(content string) string {
	if strings.Contains(content, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			heading := strings.TrimSpace(doc.Find("h1, h2, h3").First().Text())
			if heading != "" {
				return strings.Join(strings.Fields(heading), " ")
			}
		}
	}

	text := []rune(plainText(content))
	if len(text) <= fallbackTitleRunes {
		return string(text)
	}
	cut := string(text[:fallbackTitleRunes])
	if idx := strings.LastIndex(cut, " "); idx > fallbackTitleRunes/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

package enrich

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Normalize prepares raw feedback text for the model calls. Email and
// forum submissions frequently arrive as HTML fragments; those are reduced
// to their visible text. All content gets whitespace collapsed.
func Normalize(content string) string {
	if looksLikeHTML(content) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err == nil {
			doc.Find("script, style").Remove()
			content = doc.Text()
		}
	}
	return strings.Join(strings.Fields(content), " ")
}

func looksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	if open == -1 {
		return false
	}
	return strings.IndexByte(s[open:], '>') > 0
}

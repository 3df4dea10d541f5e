package chat

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

const maxKeywords = 5

// extractKeywords pulls the noun phrases out of a question for the theme
// table lookup. Tagging failures degrade to an empty list; the theme source
// then contributes nothing.
func extractKeywords(question string) []string {
	doc, err := prose.NewDocument(question,
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return nil
	}

	var keywords []string
	seen := make(map[string]bool)
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") {
			continue
		}
		word := strings.ToLower(strings.Trim(tok.Text, ".,!?\"'"))
		if len(word) < 3 || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

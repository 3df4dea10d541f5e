package ai

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/signal-ai/backend/internal/storage/models"
)

// ThemeVocabulary is the closed set of theme tags the classifier may emit.
var ThemeVocabulary = []string{
	"performance",
	"reliability",
	"documentation",
	"pricing",
	"support",
	"feature-request",
	"bug",
	"security",
	"usability",
	"integration",
}

// FallbackTheme is returned whenever classification output cannot be used.
const FallbackTheme = "uncategorized"

// tierUrgencyDefaults are used when the urgency model emits something that
// is not an integer.
var tierUrgencyDefaults = map[models.Tier]int{
	models.TierEnterprise: 7,
	models.TierPro:        5,
	models.TierFree:       3,
}

const defaultUrgency = 5

// SentimentLabelFor maps a score in [-1,1] to its band. The bands are
// checked in this exact order; boundary values land in the band whose
// comparison fails first (-0.5 is concerned, -0.3 annoyed, -0.1 neutral,
// 0.1 and 0.3 positive).
func SentimentLabelFor(score float64) models.SentimentLabel {
	switch {
	case score > 0.3:
		return models.SentimentPositive
	case score < -0.5:
		return models.SentimentFrustrated
	case score < -0.3:
		return models.SentimentConcerned
	case score < -0.1:
		return models.SentimentAnnoyed
	case score < 0.1:
		return models.SentimentNeutral
	default:
		return models.SentimentPositive
	}
}

// ParseThemes extracts a theme list from raw model output. Anything that is
// not a JSON array of known vocabulary tags degrades to ["uncategorized"];
// this never fails.
func ParseThemes(raw string) []string {
	raw = strings.TrimSpace(raw)

	// Models occasionally wrap the array in a markdown fence.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var parsed []string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return []string{FallbackTheme}
	}

	known := make(map[string]bool, len(ThemeVocabulary))
	for _, t := range ThemeVocabulary {
		known[t] = true
	}

	var themes []string
	seen := make(map[string]bool)
	for _, t := range parsed {
		t = strings.ToLower(strings.TrimSpace(t))
		if known[t] && !seen[t] {
			themes = append(themes, t)
			seen[t] = true
		}
	}

	if len(themes) == 0 {
		return []string{FallbackTheme}
	}
	return themes
}

// ParseUrgency extracts an integer urgency from raw model output, clamped
// to [1,10]. Unparseable output falls back to the tier default; this never
// fails.
func ParseUrgency(raw string, tier models.Tier) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultUrgency(tier)
	}
	return clampUrgency(n)
}

// DefaultUrgency returns the static per-tier urgency used when scoring is
// unavailable.
func DefaultUrgency(tier models.Tier) int {
	if d, ok := tierUrgencyDefaults[models.Tier(strings.ToLower(string(tier)))]; ok {
		return d
	}
	return defaultUrgency
}

func clampUrgency(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

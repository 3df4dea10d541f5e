package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signal-ai/backend/internal/storage/models"
)

func TestSentimentLabelFor(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  models.SentimentLabel
	}{
		{"strongly positive", 0.9, models.SentimentPositive},
		{"just above positive threshold", 0.31, models.SentimentPositive},
		{"boundary 0.3 is positive", 0.3, models.SentimentPositive},
		{"boundary 0.1 is positive", 0.1, models.SentimentPositive},
		{"mildly positive is neutral", 0.05, models.SentimentNeutral},
		{"zero is neutral", 0, models.SentimentNeutral},
		{"boundary -0.1 is neutral", -0.1, models.SentimentNeutral},
		{"mildly negative is annoyed", -0.2, models.SentimentAnnoyed},
		{"boundary -0.3 is annoyed", -0.3, models.SentimentAnnoyed},
		{"negative is concerned", -0.4, models.SentimentConcerned},
		{"boundary -0.5 is concerned", -0.5, models.SentimentConcerned},
		{"strongly negative is frustrated", -0.51, models.SentimentFrustrated},
		{"floor is frustrated", -1, models.SentimentFrustrated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SentimentLabelFor(tt.score))
		})
	}
}

func TestParseThemes(t *testing.T) {
	t.Run("valid array", func(t *testing.T) {
		themes := ParseThemes(`["performance", "bug"]`)
		assert.Equal(t, []string{"performance", "bug"}, themes)
	})

	t.Run("markdown fenced array", func(t *testing.T) {
		themes := ParseThemes("```json\n[\"pricing\"]\n```")
		assert.Equal(t, []string{"pricing"}, themes)
	})

	t.Run("mixed case and duplicates", func(t *testing.T) {
		themes := ParseThemes(`["Bug", "bug", " SECURITY "]`)
		assert.Equal(t, []string{"bug", "security"}, themes)
	})

	t.Run("unknown tags are dropped", func(t *testing.T) {
		themes := ParseThemes(`["performance", "made-up-theme"]`)
		assert.Equal(t, []string{"performance"}, themes)
	})

	t.Run("not json falls back", func(t *testing.T) {
		assert.Equal(t, []string{FallbackTheme}, ParseThemes("the themes are performance and bug"))
	})

	t.Run("empty array falls back", func(t *testing.T) {
		assert.Equal(t, []string{FallbackTheme}, ParseThemes("[]"))
	})

	t.Run("all unknown falls back", func(t *testing.T) {
		assert.Equal(t, []string{FallbackTheme}, ParseThemes(`["nonsense"]`))
	})
}

func TestParseUrgency(t *testing.T) {
	t.Run("plain integer", func(t *testing.T) {
		assert.Equal(t, 8, ParseUrgency("8", models.TierFree))
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		assert.Equal(t, 4, ParseUrgency(" 4\n", models.TierFree))
	})

	t.Run("clamped above", func(t *testing.T) {
		assert.Equal(t, 10, ParseUrgency("42", models.TierFree))
	})

	t.Run("clamped below", func(t *testing.T) {
		assert.Equal(t, 1, ParseUrgency("0", models.TierFree))
	})

	t.Run("unparseable uses tier default", func(t *testing.T) {
		assert.Equal(t, 7, ParseUrgency("very urgent", models.TierEnterprise))
		assert.Equal(t, 5, ParseUrgency("very urgent", models.TierPro))
		assert.Equal(t, 3, ParseUrgency("very urgent", models.TierFree))
	})
}

func TestDefaultUrgency(t *testing.T) {
	assert.Equal(t, 7, DefaultUrgency(models.TierEnterprise))
	assert.Equal(t, 5, DefaultUrgency(models.TierPro))
	assert.Equal(t, 3, DefaultUrgency(models.TierFree))
	assert.Equal(t, 5, DefaultUrgency(models.TierUnknown))
	assert.Equal(t, 5, DefaultUrgency(models.Tier("")))
	assert.Equal(t, 7, DefaultUrgency(models.Tier("Enterprise")))
}

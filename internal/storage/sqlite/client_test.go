package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-ai/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })
	return client
}

func sampleFeedback(id string) *models.Feedback {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Feedback{
		ID:             id,
		Content:        "Checkout is slow during peak hours",
		Source:         models.SourceSupport,
		Sentiment:      -0.45,
		SentimentLabel: models.SentimentConcerned,
		Urgency:        7,
		Product:        "checkout",
		Themes:         []string{"performance"},
		CustomerID:     "cust-1",
		CustomerTier:   models.TierEnterprise,
		CustomerARR:    120000,
		Status:         models.StatusNew,
		Metadata:       map[string]string{"region": "eu"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestInsertAndGetFeedback(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	fb := sampleFeedback("fb-1")
	require.NoError(t, client.InsertFeedback(ctx, fb))

	got, err := client.GetFeedback(ctx, "fb-1")
	require.NoError(t, err)
	assert.Equal(t, fb.Content, got.Content)
	assert.Equal(t, fb.Source, got.Source)
	assert.InDelta(t, fb.Sentiment, got.Sentiment, 1e-9)
	assert.Equal(t, fb.SentimentLabel, got.SentimentLabel)
	assert.Equal(t, fb.Themes, got.Themes)
	assert.Equal(t, fb.Metadata, got.Metadata)
	assert.Equal(t, models.StatusNew, got.Status)
}

func TestGetFeedbackNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetFeedback(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFeedbackByIDsPreservesOrder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, client.InsertFeedback(ctx, sampleFeedback(id)))
	}

	rows, err := client.GetFeedbackByIDs(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0].ID)
	assert.Equal(t, "a", rows[1].ID)
}

func TestUpdateFeedback(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.InsertFeedback(ctx, sampleFeedback("fb-1")))

	status := models.StatusInProgress
	assignee := "maria"
	urgency := 9

	got, err := client.UpdateFeedback(ctx, "fb-1", FeedbackUpdate{
		Status:     &status,
		AssignedTo: &assignee,
		Urgency:    &urgency,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, "maria", got.AssignedTo)
	assert.Equal(t, 9, got.Urgency)
	// Enrichment fields are untouched.
	assert.InDelta(t, -0.45, got.Sentiment, 1e-9)

	t.Run("missing id", func(t *testing.T) {
		_, err := client.UpdateFeedback(ctx, "missing", FeedbackUpdate{Status: &status})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteFeedback(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.InsertFeedback(ctx, sampleFeedback("fb-1")))
	require.NoError(t, client.DeleteFeedback(ctx, "fb-1"))

	_, err := client.GetFeedback(ctx, "fb-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, client.DeleteFeedback(ctx, "fb-1"), ErrNotFound)
}

func TestSearchThemes(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	now := time.Now().Unix()
	themes := []struct {
		id       string
		theme    string
		mentions int
	}{
		{"t1", "checkout performance", 40},
		{"t2", "login reliability", 25},
		{"t3", "api performance", 60},
		{"t4", "billing confusion", 5},
	}
	for _, th := range themes {
		_, err := client.db.Exec(
			`INSERT INTO themes (id, theme, mentions, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			th.id, th.theme, th.mentions, now, now,
		)
		require.NoError(t, err)
	}

	got, err := client.SearchThemes(ctx, []string{"performance", "login"}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Most mentioned first.
	assert.Equal(t, "api performance", got[0].Theme)
	assert.Equal(t, "checkout performance", got[1].Theme)
	assert.Equal(t, "login reliability", got[2].Theme)

	t.Run("no terms returns nothing", func(t *testing.T) {
		got, err := client.SearchThemes(ctx, nil, 3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestWeeklyStats(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	recent := sampleFeedback("recent")
	recent.Urgency = 9
	require.NoError(t, client.InsertFeedback(ctx, recent))

	calm := sampleFeedback("calm")
	calm.Urgency = 3
	calm.Sentiment = 0.25
	require.NoError(t, client.InsertFeedback(ctx, calm))

	old := sampleFeedback("old")
	old.CreatedAt = time.Now().AddDate(0, 0, -10)
	require.NoError(t, client.InsertFeedback(ctx, old))

	stats, err := client.WeeklyStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.CriticalCount)
	assert.InDelta(t, (-0.45+0.25)/2, stats.AvgSentiment, 1e-9)
}

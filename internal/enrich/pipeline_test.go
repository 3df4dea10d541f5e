package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-ai/backend/internal/ai"
	"github.com/signal-ai/backend/internal/queue/kafka"
	"github.com/signal-ai/backend/internal/storage/models"
	"github.com/signal-ai/backend/internal/vector/milvus"
)

type fakeAI struct {
	sentiment    *ai.Sentiment
	sentimentErr error
	themes       []string
	urgency      int
	embedding    []float32
	embedErr     error
	lastText     string
}

func (f *fakeAI) AnalyzeSentiment(ctx context.Context, text string) (*ai.Sentiment, error) {
	f.lastText = text
	if f.sentimentErr != nil {
		return nil, f.sentimentErr
	}
	return f.sentiment, nil
}

func (f *fakeAI) ClassifyThemes(ctx context.Context, text string) []string {
	return f.themes
}

func (f *fakeAI) ScoreUrgency(ctx context.Context, text string, tier models.Tier, arr int) int {
	return f.urgency
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedding, nil
}

type fakeFeedbackStore struct {
	inserted []*models.Feedback
	deleted  []string
}

func (f *fakeFeedbackStore) InsertFeedback(ctx context.Context, fb *models.Feedback) error {
	f.inserted = append(f.inserted, fb)
	return nil
}

func (f *fakeFeedbackStore) DeleteFeedback(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeVectorIndex struct {
	upserted []string
	deleted  []string
	err      error
}

func (f *fakeVectorIndex) Upsert(ctx context.Context, id string, vector []float32, meta milvus.Metadata) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, id)
	return nil
}

func (f *fakeVectorIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []kafka.EnrichmentMessage
}

func (f *fakePublisher) PublishEnrichment(ctx context.Context, msg kafka.EnrichmentMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func happyAI() *fakeAI {
	return &fakeAI{
		sentiment: &ai.Sentiment{Score: -0.4, Label: models.SentimentConcerned},
		themes:    []string{"performance"},
		urgency:   6,
		embedding: []float32{0.1, 0.2},
	}
}

func TestProcessSuccess(t *testing.T) {
	aiClient := happyAI()
	store := &fakeFeedbackStore{}
	vectors := &fakeVectorIndex{}
	publisher := &fakePublisher{}

	p := NewPipeline(aiClient, store, vectors, publisher, nil)

	fb, err := p.Process(context.Background(), Submission{
		Content:      "Dashboard takes 30 seconds to load",
		Source:       models.SourceSupport,
		CustomerTier: models.TierEnterprise,
		ARR:          50000,
		Product:      "dashboard",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, fb.ID)
	assert.Equal(t, models.SourceSupport, fb.Source)
	assert.InDelta(t, -0.4, fb.Sentiment, 1e-9)
	assert.Equal(t, models.SentimentConcerned, fb.SentimentLabel)
	assert.Equal(t, []string{"performance"}, fb.Themes)
	assert.Equal(t, 6, fb.Urgency)
	assert.Equal(t, models.StatusNew, fb.Status)

	require.Len(t, store.inserted, 1)
	require.Len(t, vectors.upserted, 1)
	assert.Equal(t, fb.ID, vectors.upserted[0])

	assert.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestProcessValidation(t *testing.T) {
	p := NewPipeline(happyAI(), &fakeFeedbackStore{}, &fakeVectorIndex{}, nil, nil)

	tests := []struct {
		name string
		sub  Submission
	}{
		{"empty content", Submission{Content: "", Source: models.SourceEmail}},
		{"content too long", Submission{Content: strings.Repeat("a", 10001), Source: models.SourceEmail}},
		{"unknown source", Submission{Content: "fine", Source: models.Source("carrier-pigeon")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), tt.sub)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}

	t.Run("length is counted in characters", func(t *testing.T) {
		// 10000 three-byte runes are within the limit despite 30000 bytes.
		_, err := p.Process(context.Background(), Submission{
			Content: strings.Repeat("あ", 10000),
			Source:  models.SourceEmail,
		})
		assert.NoError(t, err)

		_, err = p.Process(context.Background(), Submission{
			Content: strings.Repeat("あ", 10001),
			Source:  models.SourceEmail,
		})
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})
}

func TestProcessSentimentFailureAborts(t *testing.T) {
	aiClient := happyAI()
	aiClient.sentimentErr = errors.New("classifier unavailable")
	store := &fakeFeedbackStore{}
	vectors := &fakeVectorIndex{}

	p := NewPipeline(aiClient, store, vectors, nil, nil)

	_, err := p.Process(context.Background(), Submission{Content: "broken", Source: models.SourceGitHub})
	require.Error(t, err)
	assert.Empty(t, store.inserted)
	assert.Empty(t, vectors.upserted)
}

func TestProcessEmbeddingFailureAborts(t *testing.T) {
	aiClient := happyAI()
	aiClient.embedErr = errors.New("embedding unavailable")
	store := &fakeFeedbackStore{}
	vectors := &fakeVectorIndex{}

	p := NewPipeline(aiClient, store, vectors, nil, nil)

	_, err := p.Process(context.Background(), Submission{Content: "broken", Source: models.SourceGitHub})
	require.Error(t, err)

	// Nothing may be persisted when the embedding cannot be generated.
	assert.Empty(t, store.inserted)
	assert.Empty(t, vectors.upserted)
}

func TestProcessVectorFailureKeepsRow(t *testing.T) {
	store := &fakeFeedbackStore{}
	vectors := &fakeVectorIndex{err: errors.New("index unavailable")}

	p := NewPipeline(happyAI(), store, vectors, nil, nil)

	fb, err := p.Process(context.Background(), Submission{Content: "still stored", Source: models.SourceForum})
	require.NoError(t, err)
	assert.Len(t, store.inserted, 1)
	assert.Equal(t, fb.ID, store.inserted[0].ID)
}

func TestProcessNormalizesBeforeScoring(t *testing.T) {
	aiClient := happyAI()
	store := &fakeFeedbackStore{}

	p := NewPipeline(aiClient, store, &fakeVectorIndex{}, nil, nil)

	raw := "<html><body><p>Login is   broken</p><script>alert(1)</script></body></html>"
	fb, err := p.Process(context.Background(), Submission{Content: raw, Source: models.SourceEmail})
	require.NoError(t, err)

	assert.Equal(t, "Login is broken", aiClient.lastText)
	// The stored record keeps the original content.
	assert.Equal(t, raw, fb.Content)
}

func TestDelete(t *testing.T) {
	store := &fakeFeedbackStore{}
	vectors := &fakeVectorIndex{}

	p := NewPipeline(happyAI(), store, vectors, nil, nil)

	require.NoError(t, p.Delete(context.Background(), "fb-1"))
	assert.Equal(t, []string{"fb-1"}, store.deleted)
	assert.Equal(t, []string{"fb-1"}, vectors.deleted)
}

func TestNormalize(t *testing.T) {
	t.Run("plain text collapses whitespace", func(t *testing.T) {
		assert.Equal(t, "a b c", Normalize("a\n  b\t c"))
	})

	t.Run("html reduced to text", func(t *testing.T) {
		assert.Equal(t, "hello world", Normalize("<div><b>hello</b> world</div>"))
	})

	t.Run("comparison operators are not html", func(t *testing.T) {
		assert.Equal(t, "latency < 100ms is fine", Normalize("latency < 100ms is fine"))
	})
}

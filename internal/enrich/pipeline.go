package enrich

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/ai"
	"github.com/signal-ai/backend/internal/cache/redis"
	"github.com/signal-ai/backend/internal/metrics"
	"github.com/signal-ai/backend/internal/queue/kafka"
	"github.com/signal-ai/backend/internal/storage/models"
	"github.com/signal-ai/backend/internal/vector/milvus"
	"github.com/signal-ai/backend/pkg/logger"
)

const maxContentLength = 10000

// ValidationError marks a submission rejected before any processing ran.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// AI is the slice of the model client the pipeline needs.
type AI interface {
	AnalyzeSentiment(ctx context.Context, text string) (*ai.Sentiment, error)
	ClassifyThemes(ctx context.Context, text string) []string
	ScoreUrgency(ctx context.Context, text string, tier models.Tier, arr int) int
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Store is the persistence surface the pipeline writes through.
type Store interface {
	InsertFeedback(ctx context.Context, fb *models.Feedback) error
	DeleteFeedback(ctx context.Context, id string) error
}

// VectorIndex receives one vector per enriched feedback item.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32, meta milvus.Metadata) error
	DeleteByIDs(ctx context.Context, ids []string) error
}

// Publisher mirrors accepted submissions to the enrichment topic. May be
// nil when the queue is not configured.
type Publisher interface {
	PublishEnrichment(ctx context.Context, msg kafka.EnrichmentMessage) error
}

// EmbeddingCache short-circuits repeat embedding calls. May be nil.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	SetEmbedding(ctx context.Context, text string, embedding []float32) error
}

// Submission is one raw feedback item as received at the API boundary.
type Submission struct {
	Content      string
	Source       models.Source
	CustomerID   string
	CustomerTier models.Tier
	ARR          int
	Product      string
	Metadata     map[string]string
}

// Pipeline runs the enrichment stages for one submission: queue mirror,
// normalization, sentiment, themes, urgency, embedding, then persistence
// and vector indexing. Sentiment and embedding failures abort before the
// row is written; theme and urgency failures degrade to fallbacks.
type Pipeline struct {
	ai        AI
	store     Store
	vectors   VectorIndex
	publisher Publisher
	cache     EmbeddingCache
}

func NewPipeline(aiClient AI, store Store, vectors VectorIndex, publisher Publisher, cache EmbeddingCache) *Pipeline {
	return &Pipeline{
		ai:        aiClient,
		store:     store,
		vectors:   vectors,
		publisher: publisher,
		cache:     cache,
	}
}

// Process validates, enriches and persists one submission, returning the
// stored feedback row.
func (p *Pipeline) Process(ctx context.Context, sub Submission) (*models.Feedback, error) {
	start := time.Now()
	source := string(sub.Source)

	fb, err := p.process(ctx, sub)

	outcome := "success"
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			outcome = "rejected"
		} else {
			outcome = "error"
		}
	}
	metrics.EnrichmentTotal.WithLabelValues(source, outcome).Inc()
	metrics.EnrichmentDuration.WithLabelValues(source, outcome).Observe(time.Since(start).Seconds())

	return fb, err
}

func (p *Pipeline) process(ctx context.Context, sub Submission) (*models.Feedback, error) {
	if err := validate(sub); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	p.mirror(id, sub, now)

	content := Normalize(sub.Content)

	sentiment, err := p.ai.AnalyzeSentiment(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("sentiment analysis failed: %w", err)
	}

	themes := p.ai.ClassifyThemes(ctx, content)
	urgency := p.ai.ScoreUrgency(ctx, content, sub.CustomerTier, sub.ARR)

	embedding, err := p.embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	fb := &models.Feedback{
		ID:             id,
		Content:        sub.Content,
		Source:         sub.Source,
		CustomerID:     sub.CustomerID,
		CustomerTier:   sub.CustomerTier,
		CustomerARR:    sub.ARR,
		Product:        sub.Product,
		Sentiment:      sentiment.Score,
		SentimentLabel: sentiment.Label,
		Themes:         themes,
		Urgency:        urgency,
		Status:         models.StatusNew,
		Metadata:       sub.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := p.store.InsertFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("failed to persist feedback: %w", err)
	}

	if err := p.vectors.Upsert(ctx, id, embedding, milvus.Metadata{
		Source:       string(fb.Source),
		Product:      fb.Product,
		Sentiment:    fb.Sentiment,
		Urgency:      fb.Urgency,
		CustomerTier: string(fb.CustomerTier),
	}); err != nil {
		// The row exists and is queryable; the vector can be backfilled
		// from the queue mirror.
		logger.Error("Vector upsert failed after persistence",
			zap.String("feedback_id", id),
			zap.Error(err),
		)
	}

	logger.Info("Feedback enriched",
		zap.String("feedback_id", id),
		zap.String("source", string(fb.Source)),
		zap.String("sentiment", string(fb.SentimentLabel)),
		zap.Int("urgency", fb.Urgency),
		zap.Strings("themes", fb.Themes),
	)

	return fb, nil
}

// Delete removes a feedback row and its vector.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	if err := p.store.DeleteFeedback(ctx, id); err != nil {
		return err
	}
	if err := p.vectors.DeleteByIDs(ctx, []string{id}); err != nil {
		logger.Error("Vector delete failed", zap.String("feedback_id", id), zap.Error(err))
	}
	return nil
}

// mirror publishes the raw submission to the enrichment topic without
// blocking the request path. Publish failures are logged and dropped.
func (p *Pipeline) mirror(id string, sub Submission, receivedAt time.Time) {
	if p.publisher == nil {
		return
	}

	msg := kafka.EnrichmentMessage{
		FeedbackID: id,
		Content:    sub.Content,
		Source:     string(sub.Source),
		CustomerID: sub.CustomerID,
		Product:    sub.Product,
		Metadata:   sub.Metadata,
		ReceivedAt: receivedAt,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := p.publisher.PublishEnrichment(ctx, msg); err != nil {
			logger.Warn("Queue mirror failed", zap.String("feedback_id", id), zap.Error(err))
		}
	}()
}

func (p *Pipeline) embed(ctx context.Context, content string) ([]float32, error) {
	if p.cache != nil {
		cached, err := p.cache.GetEmbedding(ctx, content)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
	}

	embedding, err := p.ai.GenerateEmbedding(ctx, content)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.SetEmbedding(ctx, content, embedding); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}

	return embedding, nil
}

func validate(sub Submission) error {
	if len(sub.Content) == 0 {
		return &ValidationError{Field: "content", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(sub.Content) > maxContentLength {
		return &ValidationError{
			Field:   "content",
			Message: "must be at most " + strconv.Itoa(maxContentLength) + " characters",
		}
	}
	if !sub.Source.Valid() {
		return &ValidationError{Field: "source", Message: "unknown source " + string(sub.Source)}
	}
	return nil
}

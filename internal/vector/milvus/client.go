package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/pkg/logger"
)

// Client owns the feedback embedding collection. Each vector is keyed by
// the feedback id and carries a metadata sidecar used for filtered
// similarity search. Vectors are written once per feedback item and removed
// when the item is deleted, never updated in place.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// Metadata is the filterable sidecar stored next to each vector.
type Metadata struct {
	Source       string
	Product      string
	Sentiment    float64
	Urgency      int
	CustomerTier string
}

// Filter restricts a similarity search over the metadata sidecar. String
// fields match for equality; the sentiment bounds are inclusive.
type Filter struct {
	Source       string
	Product      string
	CustomerTier string
	MinSentiment *float64
	MaxSentiment *float64
}

// Match is one similarity hit: the feedback id and its relevance score.
type Match struct {
	ID    string
	Score float32
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	cfg := client.Config{Address: endpoint}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}

	c, err := client.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Customer feedback embeddings",
		Fields: []*entity.Field{
			{
				Name:       "feedback_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:       "source",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:       "product",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:     "sentiment",
				DataType: entity.FieldTypeDouble,
			},
			{
				Name:     "urgency",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "customer_tier",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

func (m *Client) Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error {
	if len(vector) != m.vectorDim {
		return fmt.Errorf("vector has %d dimensions, expected %d", len(vector), m.vectorDim)
	}

	_, err := m.client.Upsert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("feedback_id", []string{id}),
		entity.NewColumnFloatVector("embedding", m.vectorDim, [][]float32{vector}),
		entity.NewColumnVarChar("source", []string{meta.Source}),
		entity.NewColumnVarChar("product", []string{meta.Product}),
		entity.NewColumnDouble("sentiment", []float64{meta.Sentiment}),
		entity.NewColumnInt64("urgency", []int64{int64(meta.Urgency)}),
		entity.NewColumnVarChar("customer_tier", []string{meta.CustomerTier}),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}

	logger.Debug("Vector upserted", zap.String("feedback_id", id))
	return nil
}

func (m *Client) Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Match, error) {
	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	expr := buildExpr(filter)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"feedback_id"},
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	matches := make([]Match, 0)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn("feedback_id")
		if idCol == nil {
			continue
		}
		for i := 0; i < sr.ResultCount; i++ {
			id, err := idCol.GetAsString(i)
			if err != nil {
				continue
			}
			matches = append(matches, Match{ID: id, Score: sr.Scores[i]})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("matches", len(matches)),
		zap.String("filter", expr),
	)

	return matches, nil
}

func (m *Client) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := m.client.DeleteByPks(ctx, m.collectionName, "", entity.NewColumnVarChar("feedback_id", ids))
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	logger.Debug("Vectors deleted", zap.Int("count", len(ids)))
	return nil
}

// buildExpr assembles the milvus boolean expression from the typed filter.
// String values are escaped before quoting; numeric bounds come from typed
// floats, so no user text is ever spliced in raw.
func buildExpr(f *Filter) string {
	if f == nil {
		return ""
	}

	var parts []string
	if f.Source != "" {
		parts = append(parts, fmt.Sprintf(`source == %s`, quote(f.Source)))
	}
	if f.Product != "" {
		parts = append(parts, fmt.Sprintf(`product == %s`, quote(f.Product)))
	}
	if f.CustomerTier != "" {
		parts = append(parts, fmt.Sprintf(`customer_tier == %s`, quote(f.CustomerTier)))
	}
	if f.MinSentiment != nil {
		parts = append(parts, fmt.Sprintf(`sentiment >= %g`, *f.MinSentiment))
	}
	if f.MaxSentiment != nil {
		parts = append(parts, fmt.Sprintf(`sentiment <= %g`, *f.MaxSentiment))
	}

	return strings.Join(parts, " && ")
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

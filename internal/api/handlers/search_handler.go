package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/ai"
	"github.com/signal-ai/backend/internal/chat"
	"github.com/signal-ai/backend/internal/storage/models"
	"github.com/signal-ai/backend/internal/storage/sqlite"
	"github.com/signal-ai/backend/internal/vector/milvus"
	"github.com/signal-ai/backend/pkg/logger"
)

const defaultSemanticLimit = 10

// SearchHandler serves semantic search and cluster analysis.
type SearchHandler struct {
	ai      *ai.Client
	vectors *milvus.Client
	store   *sqlite.Client
	engine  *chat.Engine
}

func NewSearchHandler(aiClient *ai.Client, vectors *milvus.Client, store *sqlite.Client, engine *chat.Engine) *SearchHandler {
	return &SearchHandler{ai: aiClient, vectors: vectors, store: store, engine: engine}
}

type semanticSearchRequest struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
	Filters struct {
		Source       string   `json:"source"`
		Product      string   `json:"product"`
		CustomerTier string   `json:"customer_tier"`
		MinSentiment *float64 `json:"min_sentiment"`
		MaxSentiment *float64 `json:"max_sentiment"`
	} `json:"filters"`
}

// Semantic embeds the query and searches the vector index with optional
// metadata filters, hydrating full rows from the store.
func (h *SearchHandler) Semantic(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req semanticSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query must not be empty"})
	}
	if req.Filters.Source != "" && !models.Source(req.Filters.Source).Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown source " + req.Filters.Source})
	}

	limit := req.Limit
	if limit < 1 || limit > 50 {
		limit = defaultSemanticLimit
	}

	embedding, err := h.ai.GenerateEmbedding(ctx, req.Query)
	if err != nil {
		logger.Error("Failed to embed query", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to run search"})
	}

	matches, err := h.vectors.Search(ctx, embedding, limit, &milvus.Filter{
		Source:       req.Filters.Source,
		Product:      req.Filters.Product,
		CustomerTier: req.Filters.CustomerTier,
		MinSentiment: req.Filters.MinSentiment,
		MaxSentiment: req.Filters.MaxSentiment,
	})
	if err != nil {
		logger.Error("Vector search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to run search"})
	}

	ids := make([]string, 0, len(matches))
	scores := make(map[string]float64, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
		scores[m.ID] = float64(m.Score)
	}

	rows, err := h.store.GetFeedbackByIDs(ctx, ids)
	if err != nil {
		logger.Error("Failed to hydrate search results", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to run search"})
	}

	results := make([]similarResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, similarResult{Feedback: row, Score: scores[row.ID]})
	}

	return c.JSON(fiber.Map{"results": results, "count": len(results)})
}

type clusterRequest struct {
	IDs []string `json:"ids"`
}

// Cluster analyzes a group of feedback items as one unit.
func (h *SearchHandler) Cluster(c *fiber.Ctx) error {
	var req clusterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "ids must not be empty"})
	}

	analysis, err := h.engine.AnalyzeCluster(c.UserContext(), req.IDs)
	if err != nil {
		logger.Error("Cluster analysis failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to analyze cluster"})
	}

	return c.JSON(analysis)
}

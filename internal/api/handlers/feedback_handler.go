package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/ai"
	"github.com/signal-ai/backend/internal/enrich"
	"github.com/signal-ai/backend/internal/storage/models"
	"github.com/signal-ai/backend/internal/storage/sqlite"
	"github.com/signal-ai/backend/internal/vector/milvus"
	"github.com/signal-ai/backend/pkg/logger"
)

const defaultSimilarLimit = 5

// FeedbackHandler serves the feedback CRUD surface and similarity lookup.
type FeedbackHandler struct {
	pipeline *enrich.Pipeline
	store    *sqlite.Client
	ai       *ai.Client
	vectors  *milvus.Client
}

func NewFeedbackHandler(pipeline *enrich.Pipeline, store *sqlite.Client, aiClient *ai.Client, vectors *milvus.Client) *FeedbackHandler {
	return &FeedbackHandler{pipeline: pipeline, store: store, ai: aiClient, vectors: vectors}
}

type createFeedbackRequest struct {
	Content      string            `json:"content"`
	Source       string            `json:"source"`
	CustomerID   string            `json:"customer_id"`
	CustomerTier string            `json:"customer_tier"`
	CustomerARR  int               `json:"customer_arr"`
	Product      string            `json:"product"`
	Metadata     map[string]string `json:"metadata"`
}

// Create enriches and stores one feedback submission synchronously,
// returning the full record.
func (h *FeedbackHandler) Create(c *fiber.Ctx) error {
	var req createFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	fb, err := h.pipeline.Process(c.UserContext(), enrich.Submission{
		Content:      req.Content,
		Source:       models.Source(req.Source),
		CustomerID:   req.CustomerID,
		CustomerTier: models.Tier(req.CustomerTier),
		ARR:          req.CustomerARR,
		Product:      req.Product,
		Metadata:     req.Metadata,
	})
	if err != nil {
		var ve *enrich.ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
		}
		logger.Error("Enrichment failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process feedback"})
	}

	return c.Status(fiber.StatusCreated).JSON(fb)
}

func (h *FeedbackHandler) Get(c *fiber.Ctx) error {
	fb, err := h.store.GetFeedback(c.UserContext(), c.Params("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "feedback not found"})
	}
	if err != nil {
		logger.Error("Failed to get feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get feedback"})
	}
	return c.JSON(fb)
}

type updateFeedbackRequest struct {
	Status     *string `json:"status"`
	AssignedTo *string `json:"assigned_to"`
	Product    *string `json:"product"`
	Urgency    *int    `json:"urgency"`
}

// Update mutates the workflow fields of a record. Enrichment-derived
// fields cannot be changed through the API.
func (h *FeedbackHandler) Update(c *fiber.Ctx) error {
	var req updateFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	update := sqlite.FeedbackUpdate{
		AssignedTo: req.AssignedTo,
		Product:    req.Product,
	}
	if req.Status != nil {
		status := models.Status(*req.Status)
		if !status.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown status " + *req.Status})
		}
		update.Status = &status
	}
	if req.Urgency != nil {
		if *req.Urgency < 1 || *req.Urgency > 10 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "urgency must be between 1 and 10"})
		}
		update.Urgency = req.Urgency
	}

	fb, err := h.store.UpdateFeedback(c.UserContext(), c.Params("id"), update)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "feedback not found"})
	}
	if err != nil {
		logger.Error("Failed to update feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update feedback"})
	}
	return c.JSON(fb)
}

func (h *FeedbackHandler) Delete(c *fiber.Ctx) error {
	err := h.pipeline.Delete(c.UserContext(), c.Params("id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "feedback not found"})
	}
	if err != nil {
		logger.Error("Failed to delete feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete feedback"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type similarResult struct {
	Feedback *models.Feedback `json:"feedback"`
	Score    float64          `json:"score"`
}

// Similar finds feedback closest in embedding space to the given item.
func (h *FeedbackHandler) Similar(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")

	fb, err := h.store.GetFeedback(ctx, id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "feedback not found"})
	}
	if err != nil {
		logger.Error("Failed to get feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get feedback"})
	}

	limit := c.QueryInt("limit", defaultSimilarLimit)
	if limit < 1 || limit > 20 {
		limit = defaultSimilarLimit
	}

	embedding, err := h.ai.GenerateEmbedding(ctx, fb.Content)
	if err != nil {
		logger.Error("Failed to embed feedback content", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to find similar feedback"})
	}

	// Ask for one extra so the item itself can be dropped from its own
	// neighborhood.
	matches, err := h.vectors.Search(ctx, embedding, limit+1, nil)
	if err != nil {
		logger.Error("Vector search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to find similar feedback"})
	}

	ids := make([]string, 0, len(matches))
	scores := make(map[string]float64, len(matches))
	for _, m := range matches {
		if m.ID == id {
			continue
		}
		ids = append(ids, m.ID)
		scores[m.ID] = float64(m.Score)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	rows, err := h.store.GetFeedbackByIDs(ctx, ids)
	if err != nil {
		logger.Error("Failed to hydrate similar feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to find similar feedback"})
	}

	results := make([]similarResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, similarResult{Feedback: row, Score: scores[row.ID]})
	}

	return c.JSON(fiber.Map{"results": results})
}

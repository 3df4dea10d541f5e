package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/ai"
	"github.com/signal-ai/backend/internal/chat/session"
	"github.com/signal-ai/backend/internal/metrics"
	"github.com/signal-ai/backend/internal/search"
	"github.com/signal-ai/backend/internal/storage/models"
	"github.com/signal-ai/backend/internal/vector/milvus"
	"github.com/signal-ai/backend/pkg/logger"
)

const (
	maxMessageLength = 1000

	chatMaxTokens      = 1000
	summarizeMaxTokens = 500
	clusterMaxTokens   = 800

	searchTopK = 5
	vectorTopK = 5
	themeTopK  = 3

	defaultVectorRelevance = 0.8
	themeRelevance         = 0.9
)

// ErrInvalidMessage marks a request rejected before any retrieval ran.
var ErrInvalidMessage = errors.New("invalid message")

// ErrSessionNotFound is returned when a session has no stored turns.
var ErrSessionNotFound = errors.New("session not found")

// Completer is the slice of the model client the engine needs.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the similarity search surface.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, topK int, filter *milvus.Filter) ([]milvus.Match, error)
}

// Store is the relational surface the engine hydrates context from.
type Store interface {
	GetFeedbackByIDs(ctx context.Context, ids []string) ([]*models.Feedback, error)
	SearchThemes(ctx context.Context, terms []string, limit int) ([]*models.Theme, error)
	WeeklyStats(ctx context.Context) (*models.WeeklyStats, error)
}

// Searcher is the full-text index. May be nil when not configured.
type Searcher interface {
	Query(ctx context.Context, text string, limit int) ([]search.Document, error)
}

type Request struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Source is one citable context document returned with the answer.
type Source struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Excerpt   string  `json:"excerpt"`
	Relevance float64 `json:"relevance"`
}

type Response struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
}

// ClusterAnalysis is the model read on a set of feedback items plus the
// aggregates computed directly from the rows.
type ClusterAnalysis struct {
	Summary      string         `json:"summary"`
	Total        int            `json:"total"`
	AvgSentiment float64        `json:"avg_sentiment"`
	Sources      map[string]int `json:"sources"`
	Products     map[string]int `json:"products,omitempty"`
}

// Engine answers questions about the feedback corpus by gathering context
// from four independent sources, none of which is load-bearing on its own,
// and generating over the combined context.
type Engine struct {
	completer Completer
	vectors   VectorIndex
	store     Store
	searcher  Searcher
	sessions  session.Store

	maxSources    int
	historyReplay int
}

func NewEngine(completer Completer, vectors VectorIndex, store Store, searcher Searcher, sessions session.Store, maxSources, historyReplay int) *Engine {
	return &Engine{
		completer:     completer,
		vectors:       vectors,
		store:         store,
		searcher:      searcher,
		sessions:      sessions,
		maxSources:    maxSources,
		historyReplay: historyReplay,
	}
}

// Send answers one question. Context lookups run concurrently and are best
// effort; only the final generation call can fail the request. History is
// appended only after a successful answer.
func (e *Engine) Send(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	defer func() {
		metrics.ChatDuration.WithLabelValues("chat").Observe(time.Since(start).Seconds())
	}()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message must not be empty", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return nil, fmt.Errorf("%w: message must be at most %d characters", ErrInvalidMessage, maxMessageLength)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	docs := e.gatherContext(ctx, message)

	history, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		logger.Warn("Failed to load session history", zap.String("session_id", sessionID), zap.Error(err))
		history = nil
	}
	if len(history) > e.historyReplay {
		history = history[len(history)-e.historyReplay:]
	}

	resp, err := e.completer.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: personaPrompt,
		UserPrompt:   buildUserPrompt(docs, history, message),
		MaxTokens:    chatMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	metrics.TokensUsed.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.TokensUsed.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

	now := time.Now().UTC()
	if err := e.sessions.Append(ctx, sessionID,
		session.Turn{Role: "user", Content: message, Timestamp: now},
		session.Turn{Role: "assistant", Content: resp.Content, Timestamp: now},
	); err != nil {
		logger.Warn("Failed to append session turns", zap.String("session_id", sessionID), zap.Error(err))
	}

	sources := make([]Source, 0, len(docs))
	for _, doc := range docs {
		if !doc.Citable {
			continue
		}
		sources = append(sources, Source{
			ID:        doc.ID,
			Type:      doc.Type,
			Excerpt:   excerpt(doc.Content),
			Relevance: doc.Relevance,
		})
	}

	return &Response{SessionID: sessionID, Answer: resp.Content, Sources: sources}, nil
}

// Summarize produces a short summary of the given feedback items.
func (e *Engine) Summarize(ctx context.Context, ids []string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.ChatDuration.WithLabelValues("summarize").Observe(time.Since(start).Seconds())
	}()

	items, err := e.store.GetFeedbackByIDs(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("failed to load feedback: %w", err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("no feedback found for the given ids")
	}

	var b strings.Builder
	for _, fb := range items {
		fmt.Fprintf(&b, "- [%s] %s\n", fb.Source, fb.Content)
	}

	resp, err := e.completer.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: "Summarize the following customer feedback items. Highlight common themes, overall sentiment, and anything urgent.",
		UserPrompt:   b.String(),
		MaxTokens:    summarizeMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize feedback: %w", err)
	}
	return resp.Content, nil
}

// AnalyzeCluster runs the cluster analysis prompt over a set of feedback
// items and returns it with aggregates computed from the rows themselves.
func (e *Engine) AnalyzeCluster(ctx context.Context, ids []string) (*ClusterAnalysis, error) {
	start := time.Now()
	defer func() {
		metrics.ChatDuration.WithLabelValues("cluster").Observe(time.Since(start).Seconds())
	}()

	items, err := e.store.GetFeedbackByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no feedback found for the given ids")
	}

	analysis := &ClusterAnalysis{
		Total:    len(items),
		Sources:  make(map[string]int),
		Products: make(map[string]int),
	}

	var b strings.Builder
	var sentimentSum float64
	for _, fb := range items {
		sentimentSum += fb.Sentiment
		analysis.Sources[string(fb.Source)]++
		if fb.Product != "" {
			analysis.Products[fb.Product]++
		}
		fmt.Fprintf(&b, "- [%s, sentiment %.2f, urgency %d] %s\n", fb.Source, fb.Sentiment, fb.Urgency, fb.Content)
	}
	analysis.AvgSentiment = sentimentSum / float64(len(items))

	resp, err := e.completer.Complete(ctx, ai.CompletionRequest{
		SystemPrompt: "These customer feedback items were grouped together by similarity. Describe what connects them, the underlying problem or request, and a suggested next step for the product team.",
		UserPrompt:   b.String(),
		MaxTokens:    clusterMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze cluster: %w", err)
	}

	analysis.Summary = resp.Content
	return analysis, nil
}

// History returns the stored turns for a session. A session that has never
// been written to is ErrSessionNotFound.
func (e *Engine) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	turns, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, ErrSessionNotFound
	}
	return turns, nil
}

// Clear discards a session.
func (e *Engine) Clear(ctx context.Context, sessionID string) error {
	return e.sessions.Clear(ctx, sessionID)
}

// gatherContext runs the four lookups concurrently. Any lookup failure is
// absorbed as an empty contribution; the answer degrades instead of erroring.
// Citable documents are deduplicated by id, first occurrence winning, in
// stable order search, vector, theme, and capped at maxSources. The
// statistics entry is always last and never cited.
func (e *Engine) gatherContext(ctx context.Context, message string) []contextDoc {
	var (
		wg         sync.WaitGroup
		searchDocs []contextDoc
		vectorDocs []contextDoc
		themeDocs  []contextDoc
		statsDoc   *contextDoc
	)

	wg.Add(4)

	go func() {
		defer wg.Done()
		searchDocs = e.searchContext(ctx, message)
	}()
	go func() {
		defer wg.Done()
		vectorDocs = e.vectorContext(ctx, message)
	}()
	go func() {
		defer wg.Done()
		themeDocs = e.themeContext(ctx, message)
	}()
	go func() {
		defer wg.Done()
		statsDoc = e.statsContext(ctx)
	}()

	wg.Wait()

	metrics.ContextSourceHits.WithLabelValues("search").Add(float64(len(searchDocs)))
	metrics.ContextSourceHits.WithLabelValues("vector").Add(float64(len(vectorDocs)))
	metrics.ContextSourceHits.WithLabelValues("theme").Add(float64(len(themeDocs)))

	seen := make(map[string]bool)
	var docs []contextDoc
	for _, doc := range append(append(searchDocs, vectorDocs...), themeDocs...) {
		if seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true
		docs = append(docs, doc)
		if len(docs) == e.maxSources {
			break
		}
	}

	if statsDoc != nil {
		docs = append(docs, *statsDoc)
	}
	return docs
}

func (e *Engine) searchContext(ctx context.Context, message string) []contextDoc {
	if e.searcher == nil {
		return nil
	}

	results, err := e.searcher.Query(ctx, message, searchTopK)
	if err != nil {
		logger.Warn("Search context lookup failed", zap.Error(err))
		return nil
	}

	docs := make([]contextDoc, 0, len(results))
	for _, r := range results {
		docs = append(docs, contextDoc{
			ID:        r.ID,
			Type:      "search",
			Content:   r.Content,
			Relevance: r.Score,
			Metadata:  r.Metadata,
			Citable:   true,
		})
	}
	return docs
}

func (e *Engine) vectorContext(ctx context.Context, message string) []contextDoc {
	embedding, err := e.completer.GenerateEmbedding(ctx, message)
	if err != nil {
		logger.Warn("Question embedding failed", zap.Error(err))
		return nil
	}

	matches, err := e.vectors.Search(ctx, embedding, vectorTopK, nil)
	if err != nil {
		logger.Warn("Vector context lookup failed", zap.Error(err))
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	ids := make([]string, 0, len(matches))
	scores := make(map[string]float64, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
		scores[m.ID] = float64(m.Score)
	}

	rows, err := e.store.GetFeedbackByIDs(ctx, ids)
	if err != nil {
		logger.Warn("Vector context hydration failed", zap.Error(err))
		return nil
	}

	docs := make([]contextDoc, 0, len(rows))
	for _, fb := range rows {
		relevance := scores[fb.ID]
		if relevance <= 0 {
			relevance = defaultVectorRelevance
		}
		docs = append(docs, contextDoc{
			ID:        fb.ID,
			Type:      "feedback",
			Content:   fb.Content,
			Relevance: relevance,
			Metadata: map[string]string{
				"source":    string(fb.Source),
				"sentiment": string(fb.SentimentLabel),
				"product":   fb.Product,
			},
			Citable: true,
		})
	}
	return docs
}

func (e *Engine) themeContext(ctx context.Context, message string) []contextDoc {
	keywords := extractKeywords(message)
	if len(keywords) == 0 {
		return nil
	}

	themes, err := e.store.SearchThemes(ctx, keywords, themeTopK)
	if err != nil {
		logger.Warn("Theme context lookup failed", zap.Error(err))
		return nil
	}

	docs := make([]contextDoc, 0, len(themes))
	for _, t := range themes {
		content := t.Summary
		if content == "" {
			content = fmt.Sprintf("Theme %q with %d mentions", t.Theme, t.Mentions)
		}
		docs = append(docs, contextDoc{
			ID:        t.ID,
			Type:      "theme",
			Content:   content,
			Relevance: themeRelevance,
			Metadata: map[string]string{
				"theme":    t.Theme,
				"mentions": fmt.Sprintf("%d", t.Mentions),
			},
			Citable: true,
		})
	}
	return docs
}

func (e *Engine) statsContext(ctx context.Context) *contextDoc {
	stats, err := e.store.WeeklyStats(ctx)
	if err != nil {
		logger.Warn("Stats context lookup failed", zap.Error(err))
		return nil
	}
	if stats == nil {
		return nil
	}

	return &contextDoc{
		ID:   "weekly-stats",
		Type: "statistics",
		Content: fmt.Sprintf(
			"Last 7 days: %d feedback items, average sentiment %.2f, %d critical items (urgency 8 or higher).",
			stats.Total, stats.AvgSentiment, stats.CriticalCount,
		),
	}
}

func excerpt(content string) string {
	const maxLen = 200
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}

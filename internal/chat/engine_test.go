package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signal-ai/backend/internal/ai"
	"github.com/signal-ai/backend/internal/chat/session"
	"github.com/signal-ai/backend/internal/search"
	"github.com/signal-ai/backend/internal/storage/models"
	"github.com/signal-ai/backend/internal/vector/milvus"
)

type fakeCompleter struct {
	answer       string
	completeErr  error
	embedErr     error
	lastPrompt   string
	completeCall int
}

func (f *fakeCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	f.completeCall++
	f.lastPrompt = req.UserPrompt
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &ai.CompletionResponse{Content: f.answer}, nil
}

func (f *fakeCompleter) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeVectors struct {
	matches []milvus.Match
	err     error
}

func (f *fakeVectors) Search(ctx context.Context, vector []float32, topK int, filter *milvus.Filter) ([]milvus.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeStore struct {
	feedback  map[string]*models.Feedback
	themes    []*models.Theme
	stats     *models.WeeklyStats
	themesErr error
	statsErr  error
}

func (f *fakeStore) GetFeedbackByIDs(ctx context.Context, ids []string) ([]*models.Feedback, error) {
	var out []*models.Feedback
	for _, id := range ids {
		if fb, ok := f.feedback[id]; ok {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (f *fakeStore) SearchThemes(ctx context.Context, terms []string, limit int) ([]*models.Theme, error) {
	if f.themesErr != nil {
		return nil, f.themesErr
	}
	return f.themes, nil
}

func (f *fakeStore) WeeklyStats(ctx context.Context) (*models.WeeklyStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

type fakeSearcher struct {
	docs []search.Document
	err  error
}

func (f *fakeSearcher) Query(ctx context.Context, text string, limit int) ([]search.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func feedbackRow(id string) *models.Feedback {
	return &models.Feedback{
		ID:      id,
		Content: "feedback " + id,
		Source:  models.SourceGitHub,
	}
}

func newTestEngine(completer *fakeCompleter, vectors *fakeVectors, store *fakeStore, searcher *fakeSearcher) (*Engine, session.Store) {
	sessions := session.NewMemoryStore(50)
	var s Searcher
	if searcher != nil {
		s = searcher
	}
	return NewEngine(completer, vectors, store, s, sessions, 10, 10), sessions
}

func TestSendDedupsSources(t *testing.T) {
	completer := &fakeCompleter{answer: "answer"}
	searcher := &fakeSearcher{docs: []search.Document{
		{ID: "A", Content: "doc A", Score: 0.95},
		{ID: "B", Content: "doc B", Score: 0.9},
	}}
	vectors := &fakeVectors{matches: []milvus.Match{
		{ID: "A", Score: 0.85},
		{ID: "C", Score: 0.8},
	}}
	store := &fakeStore{
		feedback: map[string]*models.Feedback{"A": feedbackRow("A"), "C": feedbackRow("C")},
		stats:    &models.WeeklyStats{Total: 12, AvgSentiment: -0.1, CriticalCount: 2},
	}

	engine, _ := newTestEngine(completer, vectors, store, searcher)

	resp, err := engine.Send(context.Background(), Request{Message: "what are customers complaining about"})
	require.NoError(t, err)

	ids := make([]string, len(resp.Sources))
	for i, s := range resp.Sources {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)

	// First occurrence wins: A came from the search index.
	assert.Equal(t, "search", resp.Sources[0].Type)
}

func TestSendSurvivesLookupFailures(t *testing.T) {
	completer := &fakeCompleter{answer: "answer", embedErr: errors.New("embedding down")}
	searcher := &fakeSearcher{err: errors.New("search index down")}
	store := &fakeStore{
		feedback: map[string]*models.Feedback{},
		stats:    &models.WeeklyStats{Total: 3, AvgSentiment: 0.2},
	}

	engine, _ := newTestEngine(completer, &fakeVectors{}, store, searcher)

	resp, err := engine.Send(context.Background(), Request{Message: "how is sentiment trending"})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestSendStatsAreNotCited(t *testing.T) {
	completer := &fakeCompleter{answer: "answer"}
	store := &fakeStore{
		feedback: map[string]*models.Feedback{},
		stats:    &models.WeeklyStats{Total: 7, AvgSentiment: -0.4, CriticalCount: 1},
	}

	engine, _ := newTestEngine(completer, &fakeVectors{}, store, nil)

	resp, err := engine.Send(context.Background(), Request{Message: "summarize this week"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, completer.lastPrompt, "[STATISTICS]")
	assert.Contains(t, completer.lastPrompt, "7 feedback items")
}

func TestSendWithoutStats(t *testing.T) {
	completer := &fakeCompleter{answer: "answer"}

	// A store with nothing to report for the week contributes no
	// statistics block and must not take the request down.
	engine, _ := newTestEngine(completer, &fakeVectors{}, &fakeStore{}, nil)

	resp, err := engine.Send(context.Background(), Request{Message: "anything new this week"})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Answer)
	assert.NotContains(t, completer.lastPrompt, "[STATISTICS]")
}

func TestSendCapsSources(t *testing.T) {
	completer := &fakeCompleter{answer: "answer"}

	var docs []search.Document
	var matches []milvus.Match
	feedback := make(map[string]*models.Feedback)
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("search-%d", i)
		docs = append(docs, search.Document{ID: id, Content: "doc " + id, Score: 0.9})
	}
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("vector-%d", i)
		matches = append(matches, milvus.Match{ID: id, Score: 0.8})
		feedback[id] = feedbackRow(id)
	}

	engine, _ := newTestEngine(completer, &fakeVectors{matches: matches}, &fakeStore{feedback: feedback}, &fakeSearcher{docs: docs})

	resp, err := engine.Send(context.Background(), Request{Message: "what do customers want"})
	require.NoError(t, err)
	assert.Len(t, resp.Sources, 10)
}

func TestSendValidation(t *testing.T) {
	engine, _ := newTestEngine(&fakeCompleter{answer: "x"}, &fakeVectors{}, &fakeStore{}, nil)

	t.Run("empty message", func(t *testing.T) {
		_, err := engine.Send(context.Background(), Request{Message: "   "})
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})

	t.Run("message too long", func(t *testing.T) {
		_, err := engine.Send(context.Background(), Request{Message: strings.Repeat("a", 1001)})
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})

	t.Run("length is counted in characters", func(t *testing.T) {
		// 1000 three-byte runes stay within the limit.
		_, err := engine.Send(context.Background(), Request{Message: strings.Repeat("あ", 1000)})
		assert.NoError(t, err)

		_, err = engine.Send(context.Background(), Request{Message: strings.Repeat("あ", 1001)})
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	engine, sessions := newTestEngine(&fakeCompleter{answer: "x"}, &fakeVectors{}, &fakeStore{}, nil)

	t.Run("unknown session", func(t *testing.T) {
		_, err := engine.History(ctx, "never-seen")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("existing session", func(t *testing.T) {
		require.NoError(t, sessions.Append(ctx, "s1", session.Turn{Role: "user", Content: "hello"}))

		turns, err := engine.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "hello", turns[0].Content)
	})
}

func TestSendHistoryReplayLimit(t *testing.T) {
	completer := &fakeCompleter{answer: "answer"}
	engine, sessions := newTestEngine(completer, &fakeVectors{}, &fakeStore{}, nil)

	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, sessions.Append(ctx, "s1", session.Turn{
			Role:    "user",
			Content: fmt.Sprintf("earlier message %d", i),
		}))
	}

	_, err := engine.Send(ctx, Request{SessionID: "s1", Message: "latest question"})
	require.NoError(t, err)

	// Only the last 10 turns are replayed, oldest first.
	assert.NotContains(t, completer.lastPrompt, "earlier message 4")
	assert.Contains(t, completer.lastPrompt, "earlier message 5")
	assert.Contains(t, completer.lastPrompt, "earlier message 14")
	assert.Less(t,
		strings.Index(completer.lastPrompt, "earlier message 5"),
		strings.Index(completer.lastPrompt, "earlier message 14"),
	)
}

func TestSendAppendsHistoryOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("success appends both turns", func(t *testing.T) {
		engine, sessions := newTestEngine(&fakeCompleter{answer: "the answer"}, &fakeVectors{}, &fakeStore{}, nil)

		resp, err := engine.Send(ctx, Request{Message: "a question"})
		require.NoError(t, err)
		require.NotEmpty(t, resp.SessionID)

		turns, err := sessions.Get(ctx, resp.SessionID)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, "a question", turns[0].Content)
		assert.Equal(t, "the answer", turns[1].Content)
	})

	t.Run("generation failure appends nothing", func(t *testing.T) {
		engine, sessions := newTestEngine(&fakeCompleter{completeErr: errors.New("model down")}, &fakeVectors{}, &fakeStore{}, nil)

		_, err := engine.Send(ctx, Request{SessionID: "s1", Message: "a question"})
		require.Error(t, err)

		turns, err := sessions.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, turns)
	})
}

func TestSummarize(t *testing.T) {
	completer := &fakeCompleter{answer: "summary text"}
	store := &fakeStore{feedback: map[string]*models.Feedback{
		"A": feedbackRow("A"),
		"B": feedbackRow("B"),
	}}
	engine, _ := newTestEngine(completer, &fakeVectors{}, store, nil)

	summary, err := engine.Summarize(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, "summary text", summary)
	assert.Contains(t, completer.lastPrompt, "- [github] feedback A")

	_, err = engine.Summarize(context.Background(), []string{"missing"})
	assert.Error(t, err)
}

func TestAnalyzeCluster(t *testing.T) {
	completer := &fakeCompleter{answer: "cluster summary"}
	a := feedbackRow("A")
	a.Sentiment = -0.6
	a.Product = "checkout"
	b := feedbackRow("B")
	b.Sentiment = -0.2
	b.Source = models.SourceSupport
	store := &fakeStore{feedback: map[string]*models.Feedback{"A": a, "B": b}}
	engine, _ := newTestEngine(completer, &fakeVectors{}, store, nil)

	analysis, err := engine.AnalyzeCluster(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, "cluster summary", analysis.Summary)
	assert.Equal(t, 2, analysis.Total)
	assert.InDelta(t, -0.4, analysis.AvgSentiment, 1e-9)
	assert.Equal(t, map[string]int{"github": 1, "support": 1}, analysis.Sources)
	assert.Equal(t, map[string]int{"checkout": 1}, analysis.Products)
}

func TestExtractKeywords(t *testing.T) {
	keywords := extractKeywords("What are customers saying about checkout performance?")
	assert.NotEmpty(t, keywords)
	assert.Contains(t, keywords, "performance")
}

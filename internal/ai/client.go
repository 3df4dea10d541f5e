package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/storage/models"
	"github.com/signal-ai/backend/pkg/circuitbreaker"
	"github.com/signal-ai/backend/pkg/logger"
	"github.com/signal-ai/backend/pkg/retry"
)

// Client wraps the model endpoint behind a circuit breaker and bounded
// retries. Every network call goes through both.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// CompletionRequest describes one chat completion. A nil Temperature uses
// the configured default; zero is an explicit request for deterministic
// output.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float32
	MaxTokens    int
}

// Temp is a convenience for building a CompletionRequest temperature.
func Temp(v float32) *float32 {
	return &v
}

func resolveTemperature(requested *float32, fallback float32) float32 {
	if requested != nil {
		return *requested
	}
	return fallback
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Sentiment is the derived score (P(positive) - P(negative)) and its band.
type Sentiment struct {
	Score float64
	Label models.SentimentLabel
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens int) *Client {
	cb := circuitbreaker.New("ai", circuitbreaker.Config{
		MaxRequests:      5,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("AI client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	temperature := resolveTemperature(req.Temperature, c.temperature)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}
			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding response is empty")
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return embedding, nil
}

// AnalyzeSentiment asks the classifier for POSITIVE/NEGATIVE probabilities
// and derives score = P(positive) - P(negative). A response that cannot be
// parsed counts as a failed attempt and is retried; after exhaustion the
// error propagates (sentiment has no static fallback).
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (*Sentiment, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	systemPrompt := `You are a sentiment classifier. Respond with ONLY a JSON object of label probabilities:
{"positive": <0..1>, "negative": <0..1>}
The two probabilities must sum to 1. No other text.`

	var sentiment *Sentiment

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: c.model,
					Messages: []openai.ChatCompletionMessage{
						{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
						{Role: openai.ChatMessageRoleUser, Content: text},
					},
					Temperature: 0,
					MaxTokens:   50,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to classify sentiment: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("sentiment response has no choices")
			}

			var probs struct {
				Positive float64 `json:"positive"`
				Negative float64 `json:"negative"`
			}
			raw := strings.TrimSpace(resp.Choices[0].Message.Content)
			if err := json.Unmarshal([]byte(raw), &probs); err != nil {
				return fmt.Errorf("failed to parse sentiment probabilities: %w", err)
			}

			score := probs.Positive - probs.Negative
			sentiment = &Sentiment{Score: score, Label: SentimentLabelFor(score)}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Sentiment analyzed",
		zap.Float64("score", sentiment.Score),
		zap.String("label", string(sentiment.Label)),
	)

	return sentiment, nil
}

// ClassifyThemes tags feedback with themes from the fixed vocabulary.
// Classification problems degrade to ["uncategorized"]; this never returns
// an error.
func (c *Client) ClassifyThemes(ctx context.Context, text string) []string {
	systemPrompt := `You are a feedback classifier. Analyze and return a JSON array of themes.
Possible: performance, reliability, documentation, pricing, support, feature-request, bug, security, usability, integration.
Return only the JSON array.`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Classify: %s", text),
		Temperature:  Temp(0.2),
		MaxTokens:    100,
	})
	if err != nil {
		logger.Warn("Theme classification failed, using fallback", zap.Error(err))
		return []string{FallbackTheme}
	}

	return ParseThemes(resp.Content)
}

// ScoreUrgency rates urgency 1-10 from content plus customer weight.
// Scoring problems degrade to the per-tier default; this never returns an
// error.
func (c *Client) ScoreUrgency(ctx context.Context, text string, tier models.Tier, arr int) int {
	systemPrompt := "Rate urgency 1-10 based on impact severity, business impact, customer tier/ARR. Return only a number."
	userPrompt := fmt.Sprintf("Content: %s\nTier: %s\nARR: $%d", text, tier, arr)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  Temp(0.2),
		MaxTokens:    10,
	})
	if err != nil {
		logger.Warn("Urgency scoring failed, using tier default",
			zap.Error(err),
			zap.String("tier", string(tier)),
		)
		return DefaultUrgency(tier)
	}

	return ParseUrgency(resp.Content, tier)
}

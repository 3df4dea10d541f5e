package models

import "time"

type Source string

const (
	SourceGitHub  Source = "github"
	SourceDiscord Source = "discord"
	SourceTwitter Source = "twitter"
	SourceSupport Source = "support"
	SourceForum   Source = "forum"
	SourceEmail   Source = "email"
)

func (s Source) Valid() bool {
	switch s {
	case SourceGitHub, SourceDiscord, SourceTwitter, SourceSupport, SourceForum, SourceEmail:
		return true
	}
	return false
}

type SentimentLabel string

const (
	SentimentPositive   SentimentLabel = "positive"
	SentimentNeutral    SentimentLabel = "neutral"
	SentimentAnnoyed    SentimentLabel = "annoyed"
	SentimentConcerned  SentimentLabel = "concerned"
	SentimentFrustrated SentimentLabel = "frustrated"
)

type Tier string

const (
	TierEnterprise Tier = "enterprise"
	TierPro        Tier = "pro"
	TierFree       Tier = "free"
	TierUnknown    Tier = "unknown"
)

type Status string

const (
	StatusNew          Status = "new"
	StatusInReview     Status = "in_review"
	StatusAcknowledged Status = "acknowledged"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
	StatusClosed       Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInReview, StatusAcknowledged, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Feedback is one enriched item of customer feedback. Sentiment, label,
// urgency and themes are assigned once at creation and never re-scored;
// only status, assignment, product and urgency may change afterwards.
type Feedback struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	Source         Source            `json:"source"`
	Sentiment      float64           `json:"sentiment"`
	SentimentLabel SentimentLabel    `json:"sentiment_label"`
	Urgency        int               `json:"urgency"`
	Product        string            `json:"product,omitempty"`
	Themes         []string          `json:"themes"`
	CustomerID     string            `json:"customer_id,omitempty"`
	CustomerName   string            `json:"customer_name,omitempty"`
	CustomerTier   Tier              `json:"customer_tier,omitempty"`
	CustomerARR    int               `json:"customer_arr,omitempty"`
	Status         Status            `json:"status"`
	AssignedTo     string            `json:"assigned_to,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Tier        Tier      `json:"tier"`
	ARR         int       `json:"arr"`
	Products    []string  `json:"products"`
	HealthScore float64   `json:"health_score"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Alert struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	Product      string    `json:"product,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
	FeedbackIDs  []string  `json:"feedback_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

// Theme is a curated row in the themes table, maintained out of band and
// consulted by the chat context gatherer.
type Theme struct {
	ID              string    `json:"id"`
	Theme           string    `json:"theme"`
	Mentions        int       `json:"mentions"`
	Sentiment       string    `json:"sentiment,omitempty"`
	Products        []string  `json:"products"`
	IsNew           bool      `json:"is_new"`
	Summary         string    `json:"summary,omitempty"`
	SuggestedAction string    `json:"suggested_action,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// WeeklyStats is the rolling 7-day aggregate used as synthetic chat context.
type WeeklyStats struct {
	Total         int     `json:"total"`
	AvgSentiment  float64 `json:"avg_sentiment"`
	CriticalCount int     `json:"critical_count"`
}

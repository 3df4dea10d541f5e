package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/storage/models"
	"github.com/signal-ai/backend/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		sentiment REAL NOT NULL DEFAULT 0,
		sentiment_label TEXT,
		urgency INTEGER NOT NULL DEFAULT 5,
		product TEXT,
		themes TEXT,
		customer_id TEXT,
		customer_name TEXT,
		customer_tier TEXT,
		customer_arr INTEGER,
		status TEXT NOT NULL DEFAULT 'new',
		assigned_to TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_source ON feedback(source);
	CREATE INDEX IF NOT EXISTS idx_feedback_product ON feedback(product);
	CREATE INDEX IF NOT EXISTS idx_feedback_status ON feedback(status);
	CREATE INDEX IF NOT EXISTS idx_feedback_urgency ON feedback(urgency);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		arr INTEGER NOT NULL DEFAULT 0,
		products TEXT,
		health_score REAL NOT NULL DEFAULT 0.5,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_customers_tier ON customers(tier);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		product TEXT,
		acknowledged INTEGER NOT NULL DEFAULT 0,
		feedback_ids TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type);
	CREATE INDEX IF NOT EXISTS idx_alerts_ack ON alerts(acknowledged);

	CREATE TABLE IF NOT EXISTS themes (
		id TEXT PRIMARY KEY,
		theme TEXT NOT NULL,
		mentions INTEGER NOT NULL DEFAULT 0,
		sentiment TEXT,
		products TEXT,
		is_new INTEGER NOT NULL DEFAULT 1,
		summary TEXT,
		suggested_action TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_themes_theme ON themes(theme);
	CREATE INDEX IF NOT EXISTS idx_themes_mentions ON themes(mentions);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

const feedbackColumns = `id, content, source, sentiment, sentiment_label, urgency, product, themes,
	customer_id, customer_name, customer_tier, customer_arr, status, assigned_to, metadata,
	created_at, updated_at`

func (c *Client) InsertFeedback(ctx context.Context, fb *models.Feedback) error {
	themesJSON, _ := json.Marshal(fb.Themes)
	metadataJSON, _ := json.Marshal(fb.Metadata)

	query := `
		INSERT INTO feedback (` + feedbackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		fb.ID,
		fb.Content,
		string(fb.Source),
		fb.Sentiment,
		string(fb.SentimentLabel),
		fb.Urgency,
		fb.Product,
		string(themesJSON),
		fb.CustomerID,
		fb.CustomerName,
		string(fb.CustomerTier),
		fb.CustomerARR,
		string(fb.Status),
		fb.AssignedTo,
		string(metadataJSON),
		fb.CreatedAt.Unix(),
		fb.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	logger.Debug("Feedback inserted", zap.String("feedback_id", fb.ID), zap.String("source", string(fb.Source)))
	return nil
}

func (c *Client) GetFeedback(ctx context.Context, id string) (*models.Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback WHERE id = ?`

	fb, err := scanFeedback(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}

	return fb, nil
}

// GetFeedbackByIDs returns the records that exist for the given ids; missing
// ids are silently skipped. Result order follows the input order.
func (c *Client) GetFeedbackByIDs(ctx context.Context, ids []string) ([]*models.Feedback, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	filter := NewFilter().In("id", ids)
	where, params := filter.Where()

	rows, err := c.db.QueryContext(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE `+where, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Feedback, len(ids))
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		byID[fb.ID] = fb
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	ordered := make([]*models.Feedback, 0, len(byID))
	for _, id := range ids {
		if fb, ok := byID[id]; ok {
			ordered = append(ordered, fb)
		}
	}
	return ordered, nil
}

// FeedbackUpdate holds the mutable fields of a feedback record. Nil fields
// are left untouched; enrichment-derived fields never change after insert.
type FeedbackUpdate struct {
	Status     *models.Status
	AssignedTo *string
	Product    *string
	Urgency    *int
}

func (c *Client) UpdateFeedback(ctx context.Context, id string, update FeedbackUpdate) (*models.Feedback, error) {
	set := NewFilter()
	if update.Status != nil {
		set.Add("status = ?", string(*update.Status))
	}
	if update.AssignedTo != nil {
		set.Add("assigned_to = ?", *update.AssignedTo)
	}
	if update.Product != nil {
		set.Add("product = ?", *update.Product)
	}
	if update.Urgency != nil {
		set.Add("urgency = ?", *update.Urgency)
	}
	if set.Empty() {
		return c.GetFeedback(ctx, id)
	}
	set.Add("updated_at = ?", time.Now().Unix())

	clause, params := set.Join(", ")
	query := `UPDATE feedback SET ` + clause + ` WHERE id = ?`
	params = append(params, id)

	res, err := c.db.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to update feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return c.GetFeedback(ctx, id)
}

func (c *Client) DeleteFeedback(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	logger.Info("Feedback deleted", zap.String("feedback_id", id))
	return nil
}

// SearchThemes returns curated themes whose name contains any of the given
// terms, most-mentioned first.
func (c *Client) SearchThemes(ctx context.Context, terms []string, limit int) ([]*models.Theme, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	filter := NewFilter()
	for _, term := range terms {
		filter.Add("theme LIKE ?", "%"+term+"%")
	}
	// Any term may match, not all of them.
	predicates, params := filter.Join(" OR ")
	query := `SELECT id, theme, mentions, sentiment, products, is_new, summary, suggested_action,
		created_at, updated_at
		FROM themes WHERE (` + predicates + `)
		ORDER BY mentions DESC LIMIT ?`
	params = append(params, limit)

	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to search themes: %w", err)
	}
	defer rows.Close()

	var themes []*models.Theme
	for rows.Next() {
		var t models.Theme
		var productsJSON sql.NullString
		var sentiment, summary, action sql.NullString
		var isNew int
		var createdAt, updatedAt int64

		err := rows.Scan(&t.ID, &t.Theme, &t.Mentions, &sentiment, &productsJSON, &isNew,
			&summary, &action, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t.Sentiment = sentiment.String
		t.Summary = summary.String
		t.SuggestedAction = action.String
		t.IsNew = isNew != 0
		if productsJSON.Valid {
			json.Unmarshal([]byte(productsJSON.String), &t.Products)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		t.UpdatedAt = time.Unix(updatedAt, 0)
		themes = append(themes, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return themes, nil
}

// WeeklyStats aggregates the last 7 days of feedback. Urgency >= 8 counts
// as critical.
func (c *Client) WeeklyStats(ctx context.Context) (*models.WeeklyStats, error) {
	cutoff := time.Now().AddDate(0, 0, -7).Unix()

	query := `
		SELECT COUNT(*),
			COALESCE(AVG(sentiment), 0),
			COUNT(CASE WHEN urgency >= 8 THEN 1 END)
		FROM feedback
		WHERE created_at >= ?
	`

	var stats models.WeeklyStats
	err := c.db.QueryRowContext(ctx, query, cutoff).Scan(&stats.Total, &stats.AvgSentiment, &stats.CriticalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to compute weekly stats: %w", err)
	}

	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeedback(row rowScanner) (*models.Feedback, error) {
	var fb models.Feedback
	var themesJSON, metadataJSON sql.NullString
	var product, customerID, customerName, customerTier, assignedTo, label sql.NullString
	var customerARR sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&fb.ID,
		&fb.Content,
		&fb.Source,
		&fb.Sentiment,
		&label,
		&fb.Urgency,
		&product,
		&themesJSON,
		&customerID,
		&customerName,
		&customerTier,
		&customerARR,
		&fb.Status,
		&assignedTo,
		&metadataJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	fb.SentimentLabel = models.SentimentLabel(label.String)
	fb.Product = product.String
	fb.CustomerID = customerID.String
	fb.CustomerName = customerName.String
	fb.CustomerTier = models.Tier(customerTier.String)
	fb.CustomerARR = int(customerARR.Int64)
	fb.AssignedTo = assignedTo.String
	if themesJSON.Valid {
		json.Unmarshal([]byte(themesJSON.String), &fb.Themes)
	}
	if metadataJSON.Valid {
		json.Unmarshal([]byte(metadataJSON.String), &fb.Metadata)
	}
	fb.CreatedAt = time.Unix(createdAt, 0)
	fb.UpdatedAt = time.Unix(updatedAt, 0)

	return &fb, nil
}

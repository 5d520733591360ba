// Package store implements the store (C4): it upserts events and posts by
// natural key, queries unscored items for the analyzer to consume, and
// updates scores atomically. Backed by Postgres via pgx/pgxpool.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsctl/newsctl/internal/config"
	"github.com/newsctl/newsctl/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// Queries method run either directly against the pool or inside a
// transaction opened by RunInTransaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries holds every read/write operation, bound to a querier so the same
// method set works against the pool directly or against an open
// transaction (spec §6 dry-run mode).
type Queries struct {
	q querier
}

// Store wraps a bounded Postgres connection pool.
type Store struct {
	pool *pgxpool.Pool
	*Queries
}

// New opens a pool with MinConns = cfg.PoolSize and MaxConns =
// cfg.PoolSize + cfg.MaxOverflow (5 + 10 = 15 with the built-in defaults;
// 15 when that sum is not positive), then runs Migrate.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=prefer",
		cfg.Host, cfg.Port, cfg.Name, cfg.User, cfg.Password)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	maxConns := cfg.PoolSize + cfg.MaxOverflow
	if maxConns <= 0 {
		maxConns = 15
	}
	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = int32(cfg.PoolSize)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}

	s := &Store{pool: pool, Queries: &Queries{q: pool}}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema if it doesn't already exist (spec §3, §6).
func (s *Store) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS economic_events (
		id SERIAL PRIMARY KEY,
		event_timestamp TIMESTAMPTZ NOT NULL,
		currency VARCHAR(10) NOT NULL,
		event_name VARCHAR(255) NOT NULL,
		impact VARCHAR(20) NOT NULL,
		is_tentative BOOLEAN NOT NULL DEFAULT FALSE,
		actual VARCHAR(50),
		forecast VARCHAR(50),
		previous VARCHAR(50),
		sentiment_score DOUBLE PRECISION,
		raw_response JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_events_natural_key UNIQUE (event_timestamp, event_name, currency)
	);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON economic_events (event_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_events_currency ON economic_events (currency);
	CREATE INDEX IF NOT EXISTS idx_events_impact ON economic_events (impact);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp_currency ON economic_events (event_timestamp, currency);
	CREATE INDEX IF NOT EXISTS idx_events_event_name ON economic_events (event_name);

	CREATE TABLE IF NOT EXISTS forum_posts (
		id SERIAL PRIMARY KEY,
		external_id VARCHAR(20) NOT NULL,
		channel VARCHAR(50) NOT NULL,
		title TEXT NOT NULL,
		body TEXT,
		url TEXT,
		score INTEGER NOT NULL DEFAULT 0,
		num_comments INTEGER NOT NULL DEFAULT 0,
		flair VARCHAR(100),
		post_timestamp TIMESTAMPTZ NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL,
		symbols TEXT[] NOT NULL DEFAULT '{}',
		symbol_sentiments JSONB NOT NULL DEFAULT '{}',
		sentiment_score DOUBLE PRECISION,
		raw_response JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_posts_external_id UNIQUE (external_id)
	);

	CREATE INDEX IF NOT EXISTS idx_posts_channel ON forum_posts (channel);
	CREATE INDEX IF NOT EXISTS idx_posts_timestamp ON forum_posts (post_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_channel_timestamp ON forum_posts (channel, post_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_score ON forum_posts (score DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_symbols_gin ON forum_posts USING GIN (symbols);
	CREATE INDEX IF NOT EXISTS idx_posts_fetched_at ON forum_posts (fetched_at);
	`

	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// RunInTransaction runs fn against a Queries bound to a fresh transaction.
// When dryRun is true the transaction is always rolled back regardless of
// fn's outcome (spec §6 dry-run: "rollback all writes on success");
// otherwise it commits on success and rolls back on error.
func (s *Store) RunInTransaction(ctx context.Context, dryRun bool, fn func(ctx context.Context, q *Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(ctx, &Queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if dryRun {
		return tx.Rollback(ctx)
	}
	return tx.Commit(ctx)
}

// UpsertEvents inserts events, updating mutable fields on natural-key
// conflict (I2, spec §7: "Store integrity ... resolved by ON CONFLICT DO
// UPDATE; not surfaced").
func (q *Queries) UpsertEvents(ctx context.Context, events []model.EconomicEvent) error {
	const stmt = `
		INSERT INTO economic_events
			(event_timestamp, currency, event_name, impact, is_tentative, actual, forecast, previous)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_timestamp, event_name, currency) DO UPDATE SET
			impact = excluded.impact,
			is_tentative = excluded.is_tentative,
			actual = excluded.actual,
			forecast = excluded.forecast,
			previous = excluded.previous,
			updated_at = now()
	`

	for _, e := range events {
		if _, err := q.q.Exec(ctx, stmt,
			e.Timestamp, e.Currency, e.EventName, string(e.Impact), e.IsTentative,
			e.Actual, e.Forecast, e.Previous,
		); err != nil {
			return fmt.Errorf("upserting event %q: %w", e.EventName, err)
		}
	}
	return nil
}

// UpsertPosts inserts posts, updating mutable engagement fields on
// external_id conflict.
func (q *Queries) UpsertPosts(ctx context.Context, posts []model.ForumPost) error {
	const stmt = `
		INSERT INTO forum_posts
			(external_id, channel, title, body, url, score, num_comments, flair, post_timestamp, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_id) DO UPDATE SET
			score = excluded.score,
			num_comments = excluded.num_comments,
			fetched_at = excluded.fetched_at,
			updated_at = now()
	`

	for _, p := range posts {
		if _, err := q.q.Exec(ctx, stmt,
			p.ExternalID, p.Channel, p.Title, p.Body, p.URL,
			p.Score, p.NumComments, p.Flair, p.Timestamp, p.FetchedAt,
		); err != nil {
			return fmt.Errorf("upserting post %q: %w", p.ExternalID, err)
		}
	}
	return nil
}

// UnscoredEvents returns events with sentiment_score IS NULL AND actual IS
// NOT NULL AND impact != 'holiday' (spec §4.4), newest first, bounded by
// limit (0 means unbounded).
func (q *Queries) UnscoredEvents(ctx context.Context, limit int) ([]model.EconomicEvent, error) {
	query := `
		SELECT id, event_timestamp, currency, event_name, impact, is_tentative,
			actual, forecast, previous, sentiment_score, raw_response, created_at, updated_at
		FROM economic_events
		WHERE sentiment_score IS NULL AND actual IS NOT NULL AND impact != 'holiday'
		ORDER BY event_timestamp DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unscored events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// UnscoredPosts returns posts with sentiment_score IS NULL (spec §4.4),
// newest first, bounded by limit (0 means unbounded).
func (q *Queries) UnscoredPosts(ctx context.Context, limit int) ([]model.ForumPost, error) {
	query := `
		SELECT id, external_id, channel, title, body, url, score, num_comments,
			flair, post_timestamp, fetched_at, symbols, symbol_sentiments,
			sentiment_score, raw_response, created_at, updated_at
		FROM forum_posts
		WHERE sentiment_score IS NULL
		ORDER BY fetched_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := q.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unscored posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// UpdateEventScore records the analyzer's result for a single event
// (single-row, transactional per call).
func (q *Queries) UpdateEventScore(ctx context.Context, id int64, score float64, raw []byte) error {
	_, err := q.q.Exec(ctx, `
		UPDATE economic_events SET sentiment_score = $1, raw_response = $2, updated_at = now()
		WHERE id = $3
	`, score, raw, id)
	if err != nil {
		return fmt.Errorf("updating event score for id %d: %w", id, err)
	}
	return nil
}

// UpdatePostScore records the analyzer's result for a single post,
// including the symbols/symbol_sentiments it extracted.
func (q *Queries) UpdatePostScore(ctx context.Context, id int64, score float64, symbols []string, symbolSentiments map[string]float64, raw []byte) error {
	sentimentsJSON, err := json.Marshal(symbolSentiments)
	if err != nil {
		return fmt.Errorf("marshaling symbol sentiments: %w", err)
	}

	_, err = q.q.Exec(ctx, `
		UPDATE forum_posts
		SET sentiment_score = $1, symbols = $2, symbol_sentiments = $3, raw_response = $4, updated_at = now()
		WHERE id = $5
	`, score, symbols, sentimentsJSON, raw, id)
	if err != nil {
		return fmt.Errorf("updating post score for id %d: %w", id, err)
	}
	return nil
}

// EventsForCurrency returns scored events for currency at or after since,
// used by the pair aggregator (C6).
func (q *Queries) EventsForCurrency(ctx context.Context, currency string, since time.Time) ([]model.EconomicEvent, error) {
	rows, err := q.q.Query(ctx, `
		SELECT id, event_timestamp, currency, event_name, impact, is_tentative,
			actual, forecast, previous, sentiment_score, raw_response, created_at, updated_at
		FROM economic_events
		WHERE currency = $1 AND event_timestamp >= $2 AND sentiment_score IS NOT NULL
		ORDER BY event_timestamp DESC
	`, currency, since)
	if err != nil {
		return nil, fmt.Errorf("querying events for currency %s: %w", currency, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]model.EconomicEvent, error) {
	var events []model.EconomicEvent
	for rows.Next() {
		var e model.EconomicEvent
		var impact string
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.Currency, &e.EventName, &impact, &e.IsTentative,
			&e.Actual, &e.Forecast, &e.Previous, &e.SentimentScore, &e.RawResponse,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Impact = model.Impact(impact)
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanPosts(rows pgx.Rows) ([]model.ForumPost, error) {
	var posts []model.ForumPost
	for rows.Next() {
		var p model.ForumPost
		var sentimentsJSON []byte
		if err := rows.Scan(
			&p.ID, &p.ExternalID, &p.Channel, &p.Title, &p.Body, &p.URL,
			&p.Score, &p.NumComments, &p.Flair, &p.Timestamp, &p.FetchedAt,
			&p.Symbols, &sentimentsJSON, &p.SentimentScore, &p.RawResponse,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning post row: %w", err)
		}
		if len(sentimentsJSON) > 0 {
			if err := json.Unmarshal(sentimentsJSON, &p.SymbolSentiments); err != nil {
				return nil, fmt.Errorf("unmarshaling symbol sentiments: %w", err)
			}
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Open connects to Postgres through lib/pq and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// SchemaStatements returns the DDL for the item and run tables, with the
// embedding column sized to dimensions. Every statement is idempotent.
func SchemaStatements(dimensions int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS news_items (
    item_id VARCHAR(64) PRIMARY KEY,
    title TEXT NOT NULL,
    summary TEXT NOT NULL,
    key_points JSONB NOT NULL,
    topics JSONB NOT NULL,
    article_type VARCHAR(20) NOT NULL DEFAULT 'news',
    relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5
        CHECK (relevance_score >= 0 AND relevance_score <= 1),
    original_urls JSONB NOT NULL,
    source_types JSONB NOT NULL,
    published_at TIMESTAMPTZ NOT NULL,
    processed_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    embedding vector(%d)
)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_news_items_published_at ON news_items (published_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_news_items_topics ON news_items USING GIN (topics)`,
		`CREATE INDEX IF NOT EXISTS idx_news_items_article_type ON news_items (article_type)`,
		`CREATE INDEX IF NOT EXISTS idx_news_items_relevance ON news_items (relevance_score)`,
		`CREATE INDEX IF NOT EXISTS idx_news_items_embedding ON news_items
    USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
    run_id VARCHAR(64) PRIMARY KEY,
    run_date TIMESTAMPTZ NOT NULL,
    started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,
    items_collected INT NOT NULL DEFAULT 0,
    items_processed INT NOT NULL DEFAULT 0,
    items_persisted INT NOT NULL DEFAULT 0,
    collection_errors INT NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'running',
    error_message TEXT
)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs (started_at DESC)`,
		`CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS update_news_items_updated_at ON news_items`,
		`CREATE TRIGGER update_news_items_updated_at
    BEFORE UPDATE ON news_items
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column()`,
	}
}

// Migrate applies the schema inside one transaction.
func (r *PostgresRepository) Migrate(ctx context.Context, dimensions int) error {
	if r.db == nil {
		return ErrNoDatabase
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range SchemaStatements(dimensions) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

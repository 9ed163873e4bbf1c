package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

const upsertConflict = `ON CONFLICT (item_id) DO UPDATE SET
    title = EXCLUDED.title,
    summary = EXCLUDED.summary,
    key_points = EXCLUDED.key_points,
    topics = EXCLUDED.topics,
    article_type = EXCLUDED.article_type,
    relevance_score = EXCLUDED.relevance_score,
    original_urls = EXCLUDED.original_urls,
    source_types = EXCLUDED.source_types,
    published_at = LEAST(news_items.published_at, EXCLUDED.published_at),
    processed_at = EXCLUDED.processed_at,
    embedding = EXCLUDED.embedding`

var itemColumns = []string{
	"item_id", "title", "summary", "key_points", "topics", "article_type",
	"relevance_score", "original_urls", "source_types",
	"published_at", "processed_at", "created_at", "updated_at",
}

var runColumns = []string{
	"run_id", "run_date", "status", "started_at", "completed_at",
	"items_collected", "items_processed", "items_persisted", "collection_errors", "error_message",
}

// PostgresRepository persists processed items and run records into Postgres.
type PostgresRepository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

var (
	_ ports.ItemStore  = (*PostgresRepository)(nil)
	_ ports.RunStore   = (*PostgresRepository)(nil)
	_ ports.ItemReader = (*PostgresRepository)(nil)
	_ ports.RunReader  = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// UpsertItems writes all items in one transaction, each inside its own
// savepoint. A failing item is rolled back to its savepoint and reported;
// the others are kept. An error is returned only if the transaction itself
// cannot be opened, continued or committed.
func (r *PostgresRepository) UpsertItems(ctx context.Context, items []domain.ProcessedItem) (ports.WriteReport, error) {
	if r.db == nil {
		return ports.WriteReport{}, ErrNoDatabase
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.WriteReport{}, fmt.Errorf("begin transaction: %w", err)
	}

	var report ports.WriteReport
	for i, item := range items {
		savepoint := fmt.Sprintf("item_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			_ = tx.Rollback()
			return ports.WriteReport{}, fmt.Errorf("savepoint %s: %w", savepoint, err)
		}

		if err := r.upsertItem(ctx, tx, item); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				_ = tx.Rollback()
				return ports.WriteReport{}, fmt.Errorf("rollback to %s: %w", savepoint, rbErr)
			}
			report.Failures = append(report.Failures, ports.ItemWriteFailure{ItemID: item.ItemID, Err: err})
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			_ = tx.Rollback()
			return ports.WriteReport{}, fmt.Errorf("release %s: %w", savepoint, err)
		}
		report.Written++
	}

	if err := tx.Commit(); err != nil {
		return ports.WriteReport{}, fmt.Errorf("commit: %w", err)
	}
	return report, nil
}

func (r *PostgresRepository) upsertItem(ctx context.Context, tx *sql.Tx, item domain.ProcessedItem) error {
	row, err := encodeItem(item)
	if err != nil {
		return err
	}

	query, args, err := r.psql.
		Insert("news_items").
		Columns(
			"item_id", "title", "summary", "key_points", "topics", "article_type",
			"relevance_score", "original_urls", "source_types",
			"published_at", "processed_at", "embedding",
		).
		Values(
			item.ItemID, item.Title, item.Summary, row.keyPoints, row.topics, string(item.ArticleType),
			item.RelevanceScore, row.originalURLs, row.sourceKinds,
			item.PublishedAt.UTC(), item.ProcessedAt.UTC(), row.embedding,
		).
		Suffix(upsertConflict).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("upsert item %s (%s): %w", item.ItemID, pqErr.Code.Name(), err)
		}
		return fmt.Errorf("upsert item %s: %w", item.ItemID, err)
	}
	return nil
}

// CreateRun inserts the run record in the running state.
func (r *PostgresRepository) CreateRun(ctx context.Context, run domain.PipelineRun) error {
	if r.db == nil {
		return ErrNoDatabase
	}

	query, args, err := r.psql.
		Insert("pipeline_runs").
		Columns("run_id", "run_date", "started_at", "status").
		Values(run.RunID, run.RunDate.UTC(), run.StartedAt.UTC(), string(domain.RunStatusRunning)).
		Suffix("ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status, started_at = EXCLUDED.started_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create run: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create run %s: %w", run.RunID, err)
	}
	return nil
}

// FinishRun stores the terminal status and counters of a run.
func (r *PostgresRepository) FinishRun(ctx context.Context, runID string, status domain.RunStatus, counters domain.RunCounters, errMessage string) error {
	if r.db == nil {
		return ErrNoDatabase
	}

	query, args, err := r.psql.
		Update("pipeline_runs").
		Set("completed_at", sq.Expr("NOW()")).
		Set("status", string(status)).
		Set("items_collected", counters.ItemsCollected).
		Set("items_processed", counters.ItemsProcessed).
		Set("items_persisted", counters.ItemsPersisted).
		Set("collection_errors", counters.CollectionErrors).
		Set("error_message", sql.NullString{String: errMessage, Valid: errMessage != ""}).
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish run: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// ListItems returns items matching the filter, newest first.
func (r *PostgresRepository) ListItems(ctx context.Context, filter ports.ItemFilter) ([]domain.ProcessedItem, error) {
	if r.db == nil {
		return nil, ErrNoDatabase
	}
	filter = filter.Normalized()

	query, args, err := r.applyFilter(r.psql.Select(itemColumns...).From("news_items"), filter).
		OrderBy("published_at DESC", "item_id").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.ProcessedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

// CountItems counts items matching the filter, ignoring paging.
func (r *PostgresRepository) CountItems(ctx context.Context, filter ports.ItemFilter) (int, error) {
	if r.db == nil {
		return 0, ErrNoDatabase
	}

	query, args, err := r.applyFilter(r.psql.Select("COUNT(*)").From("news_items"), filter.Normalized()).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count items: %w", err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return total, nil
}

// GetItem loads one item by id.
func (r *PostgresRepository) GetItem(ctx context.Context, itemID string) (domain.ProcessedItem, error) {
	if r.db == nil {
		return domain.ProcessedItem{}, ErrNoDatabase
	}

	query, args, err := r.psql.Select(itemColumns...).From("news_items").Where(sq.Eq{"item_id": itemID}).ToSql()
	if err != nil {
		return domain.ProcessedItem{}, fmt.Errorf("build get item: %w", err)
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProcessedItem{}, domain.ErrItemNotFound
	}
	return item, err
}

// ListRuns returns the most recent runs first.
func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if r.db == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 || limit > ports.MaxItemLimit {
		limit = ports.DefaultItemLimit
	}

	query, args, err := r.psql.Select(runColumns...).
		From("pipeline_runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list runs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		var (
			run       domain.PipelineRun
			status    string
			completed sql.NullTime
			message   sql.NullString
		)
		if err := rows.Scan(
			&run.RunID, &run.RunDate, &status, &run.StartedAt, &completed,
			&run.Counters.ItemsCollected, &run.Counters.ItemsProcessed,
			&run.Counters.ItemsPersisted, &run.Counters.CollectionErrors, &message,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = domain.RunStatus(status)
		if completed.Valid {
			t := completed.Time
			run.CompletedAt = &t
		}
		run.ErrorMessage = message.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}

func (r *PostgresRepository) applyFilter(b sq.SelectBuilder, filter ports.ItemFilter) sq.SelectBuilder {
	b = b.Where(sq.GtOrEq{"relevance_score": filter.MinRelevance})
	if filter.Topic != "" {
		topic, err := json.Marshal([]string{filter.Topic})
		if err == nil {
			b = b.Where(sq.Expr("topics @> ?::jsonb", string(topic)))
		}
	}
	if filter.ArticleType != "" {
		b = b.Where(sq.Eq{"article_type": string(filter.ArticleType)})
	}
	return b
}

type encodedItem struct {
	keyPoints    string
	topics       string
	originalURLs string
	sourceKinds  string
	embedding    sql.NullString
}

// encodeItem checks an item and renders its JSONB and vector columns.
func encodeItem(item domain.ProcessedItem) (encodedItem, error) {
	if err := checkItem(item); err != nil {
		return encodedItem{}, err
	}

	var (
		out  encodedItem
		errs []error
	)
	out.keyPoints, errs = appendJSON(errs, item.KeyPoints)
	out.topics, errs = appendJSON(errs, item.Topics)
	out.originalURLs, errs = appendJSON(errs, item.OriginalURLs)
	out.sourceKinds, errs = appendJSON(errs, item.SourceKinds)
	if err := errors.Join(errs...); err != nil {
		return encodedItem{}, fmt.Errorf("encode item %s: %w", item.ItemID, err)
	}

	if len(item.Embedding) > 0 {
		out.embedding = sql.NullString{String: formatVector(item.Embedding), Valid: true}
	}
	return out, nil
}

func appendJSON(errs []error, v any) (string, []error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", append(errs, err)
	}
	return string(raw), errs
}

// checkItem rejects items that would violate the table constraints.
func checkItem(item domain.ProcessedItem) error {
	switch {
	case strings.TrimSpace(item.ItemID) == "":
		return fmt.Errorf("%w: empty item id", ErrInvalidItem)
	case len(item.OriginalURLs) == 0:
		return fmt.Errorf("%w: item %s has no original urls", ErrInvalidItem, item.ItemID)
	case math.IsNaN(item.RelevanceScore) || item.RelevanceScore < 0 || item.RelevanceScore > 1:
		return fmt.Errorf("%w: item %s relevance %v", ErrInvalidItem, item.ItemID, item.RelevanceScore)
	case item.PublishedAt.IsZero():
		return fmt.Errorf("%w: item %s has no publish time", ErrInvalidItem, item.ItemID)
	}
	for _, v := range item.Embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: item %s embedding is not finite", ErrInvalidItem, item.ItemID)
		}
	}
	return nil
}

// formatVector renders a pgvector text literal.
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.ProcessedItem, error) {
	var (
		item                                        domain.ProcessedItem
		articleType                                 string
		keyPoints, topics, originalURLs, sourceKind []byte
	)
	if err := row.Scan(
		&item.ItemID, &item.Title, &item.Summary, &keyPoints, &topics, &articleType,
		&item.RelevanceScore, &originalURLs, &sourceKind,
		&item.PublishedAt, &item.ProcessedAt, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProcessedItem{}, err
		}
		return domain.ProcessedItem{}, fmt.Errorf("scan item: %w", err)
	}
	item.ArticleType = domain.ArticleType(articleType)

	var kinds []string
	err := errors.Join(
		json.Unmarshal(keyPoints, &item.KeyPoints),
		json.Unmarshal(topics, &item.Topics),
		json.Unmarshal(originalURLs, &item.OriginalURLs),
		json.Unmarshal(sourceKind, &kinds),
	)
	if err != nil {
		return domain.ProcessedItem{}, fmt.Errorf("decode item %s: %w", item.ItemID, err)
	}
	for _, k := range kinds {
		item.SourceKinds = append(item.SourceKinds, domain.SourceKind(k))
	}
	return item, nil
}

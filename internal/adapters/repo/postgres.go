package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.QueueRepo            = (*Postgres)(nil)
	_ domain.ThumbnailRepo        = (*Postgres)(nil)
	_ domain.ArticleRepo          = (*Postgres)(nil)
	_ domain.ReindexJobStatusRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const queueItemColumns = `id, title, excerpt, content, source_id, source_name, source_url, source_item_id,
       synthesis_score, relevance_score, uniqueness_score, status, queued_at, expires_at,
       skip_reason, selection_rank, created_at, updated_at`

func scanQueueItem(row pgx.Row) (domain.QueueItem, error) {
	var (
		item       domain.QueueItem
		content    sql.NullString
		sourceName sql.NullString
		sourceURL  sql.NullString
		skipReason sql.NullString
		rank       sql.NullInt32
	)
	err := row.Scan(&item.ID, &item.Title, &item.Excerpt, &content, &item.SourceID, &sourceName, &sourceURL, &item.SourceItemID,
		&item.SynthesisScore, &item.RelevanceScore, &item.UniquenessScore, &item.Status, &item.QueuedAt, &item.ExpiresAt,
		&skipReason, &rank, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return domain.QueueItem{}, err
	}
	if content.Valid {
		v := content.String
		item.Content = &v
	}
	if sourceName.Valid {
		v := sourceName.String
		item.SourceName = &v
	}
	if sourceURL.Valid {
		v := sourceURL.String
		item.SourceURL = &v
	}
	if skipReason.Valid {
		v := skipReason.String
		item.SkipReason = &v
	}
	if rank.Valid {
		v := int(rank.Int32)
		item.SelectionRank = &v
	}
	return item, nil
}

// InsertItems сохраняет элементы очереди батчем. Дубликаты по source_item_id
// молча пропускаются: дедупликация выполняется на уровне уникального индекса.
func (p *Postgres) InsertItems(ctx context.Context, items []domain.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
INSERT INTO queue_items (id, title, excerpt, content, source_id, source_name, source_url, source_item_id,
                         synthesis_score, relevance_score, uniqueness_score, status, queued_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (source_item_id) DO NOTHING
`, item.ID, item.Title, item.Excerpt, item.Content, item.SourceID, item.SourceName, item.SourceURL, item.SourceItemID,
			item.SynthesisScore, item.RelevanceScore, item.UniquenessScore, item.Status, item.QueuedAt, item.ExpiresAt)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "queue_items_send_batch", "queue_items", start, nil)
	defer br.Close()
	for range items {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "queue_items_batch_exec", "queue_items", start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetItem возвращает элемент очереди по идентификатору.
func (p *Postgres) GetItem(ctx context.Context, id string) (domain.QueueItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+queueItemColumns+` FROM queue_items WHERE id=$1`, id)
	item, err := scanQueueItem(row)
	metrics.ObserveNetworkRequest("postgres", "queue_items_get", "queue_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QueueItem{}, fmt.Errorf("элемент %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.QueueItem{}, err
	}
	return item, nil
}

// ListActive возвращает активный пул: pending и selected элементы.
func (p *Postgres) ListActive(ctx context.Context) ([]domain.QueueItem, error) {
	return p.listByStatuses(ctx, "queue_items_list_active", domain.StatusPending, domain.StatusSelected)
}

// ListPending возвращает pending элементы.
func (p *Postgres) ListPending(ctx context.Context) ([]domain.QueueItem, error) {
	return p.listByStatuses(ctx, "queue_items_list_pending", domain.StatusPending)
}

func (p *Postgres) listByStatuses(ctx context.Context, op string, statuses ...domain.ItemStatus) ([]domain.QueueItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+queueItemColumns+`
FROM queue_items WHERE status = ANY($1)
ORDER BY queued_at, id
`, values)
	metrics.ObserveNetworkRequest("postgres", op, "queue_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

// ListItems возвращает элементы по фильтру админского API.
func (p *Postgres) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.QueueItem, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "title", "excerpt", "content", "source_id", "source_name", "source_url", "source_item_id",
			"synthesis_score", "relevance_score", "uniqueness_score", "status", "queued_at", "expires_at",
			"skip_reason", "selection_rank", "created_at", "updated_at").
		From("queue_items").
		OrderBy("queued_at", "id")

	if len(filter.Statuses) > 0 {
		values := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			values = append(values, string(s))
		}
		builder = builder.Where(sq.Eq{"status": values})
	}
	if filter.SourceID != "" {
		builder = builder.Where(sq.Eq{"source_id": filter.SourceID})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "queue_items_list", "queue_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

func collectQueueItems(rows pgx.Rows) ([]domain.QueueItem, error) {
	var items []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ExistingSourceItemIDs возвращает подмножество внешних идентификаторов,
// уже присутствующих в хранилище.
func (p *Postgres) ExistingSourceItemIDs(ctx context.Context, sourceItemIDs []string) (map[string]bool, error) {
	if len(sourceItemIDs) == 0 {
		return map[string]bool{}, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT source_item_id FROM queue_items WHERE source_item_id = ANY($1)`, sourceItemIDs)
	metrics.ObserveNetworkRequest("postgres", "queue_items_existing_source_ids", "queue_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]bool, len(sourceItemIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// SelectItems переводит pending → selected, назначая selection_rank по порядку
// идентификаторов. Всё или ничего: любой элемент вне pending откатывает
// транзакцию целиком.
func (p *Postgres) SelectItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "queue_items", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var baseRank int
	start = time.Now()
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(selection_rank), 0) FROM queue_items WHERE status=$1`, domain.StatusSelected).Scan(&baseRank)
	metrics.ObserveNetworkRequest("postgres", "queue_items_max_rank", "queue_items", start, err)
	if err != nil {
		return err
	}

	for i, id := range ids {
		start = time.Now()
		res, err := tx.Exec(ctx, `
UPDATE queue_items
SET status=$2, selection_rank=$3, updated_at=now()
WHERE id=$1 AND status=$4
`, id, domain.StatusSelected, baseRank+i+1, domain.StatusPending)
		metrics.ObserveNetworkRequest("postgres", "queue_items_select", "queue_items", start, err)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return p.classifyMiss(ctx, tx, id)
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "queue_items", start, err)
	return err
}

// SkipItems переводит pending → skipped с указанием причины. Всё или ничего.
func (p *Postgres) SkipItems(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "queue_items", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, id := range ids {
		start = time.Now()
		res, err := tx.Exec(ctx, `
UPDATE queue_items
SET status=$2, skip_reason=$3, updated_at=now()
WHERE id=$1 AND status=$4
`, id, domain.StatusSkipped, reason, domain.StatusPending)
		metrics.ObserveNetworkRequest("postgres", "queue_items_skip", "queue_items", start, err)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return p.classifyMiss(ctx, tx, id)
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "queue_items", start, err)
	return err
}

// classifyMiss различает отсутствующий элемент и элемент в неожиданном статусе.
func (p *Postgres) classifyMiss(ctx context.Context, tx pgx.Tx, id string) error {
	var status domain.ItemStatus
	start := time.Now()
	err := tx.QueryRow(ctx, `SELECT status FROM queue_items WHERE id=$1`, id).Scan(&status)
	metrics.ObserveNetworkRequest("postgres", "queue_items_get_status", "queue_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("элемент %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("элемент %s в статусе %s: %w", id, status, domain.ErrConflict)
}

// ResetItem переводит selected → pending и очищает selection_rank.
func (p *Postgres) ResetItem(ctx context.Context, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE queue_items
SET status=$2, selection_rank=NULL, updated_at=now()
WHERE id=$1 AND status=$3
`, id, domain.StatusPending, domain.StatusSelected)
	metrics.ObserveNetworkRequest("postgres", "queue_items_reset", "queue_items", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		var status domain.ItemStatus
		start = time.Now()
		err = p.pool.QueryRow(ctx, `SELECT status FROM queue_items WHERE id=$1`, id).Scan(&status)
		metrics.ObserveNetworkRequest("postgres", "queue_items_get_status", "queue_items", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("элемент %s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("элемент %s в статусе %s: %w", id, status, domain.ErrConflict)
	}
	return nil
}

// ExpireDue переводит просроченные активные элементы в expired. Идемпотентна:
// повторный вызов с тем же now не затрагивает ни одной строки.
func (p *Postgres) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE queue_items
SET status=$1, updated_at=now()
WHERE status = ANY($2) AND expires_at <= $3
`, domain.StatusExpired, []string{string(domain.StatusPending), string(domain.StatusSelected)}, now)
	metrics.ObserveNetworkRequest("postgres", "queue_items_expire_due", "queue_items", start, err)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

// MarkUsed переводит selected → used. Элементы не в selected молча пропускаются.
func (p *Postgres) MarkUsed(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE queue_items
SET status=$1, updated_at=now()
WHERE id = ANY($2) AND status=$3
`, domain.StatusUsed, ids, domain.StatusSelected)
	metrics.ObserveNetworkRequest("postgres", "queue_items_mark_used", "queue_items", start, err)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

// EnsureReindexJob регистрирует попытку обработки задачи сверки.
func (p *Postgres) EnsureReindexJob(jobID string) (bool, int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var (
		delivered sql.NullTime
		attempts  int
	)

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO reindex_job_statuses (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = reindex_job_statuses.attempts + 1,
        updated_at = now()
RETURNING delivered_at, attempts
`, jobID).Scan(&delivered, &attempts)
	metrics.ObserveNetworkRequest("postgres", "reindex_job_statuses_upsert", "reindex_job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}

	return delivered.Valid, attempts, nil
}

// MarkReindexJobDelivered помечает задачу сверки как обработанную.
func (p *Postgres) MarkReindexJobDelivered(jobID string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE reindex_job_statuses
SET delivered_at = COALESCE(delivered_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "reindex_job_statuses_mark_delivered", "reindex_job_statuses", start, err)
	return err
}

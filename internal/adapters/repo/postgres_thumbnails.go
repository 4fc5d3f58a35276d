package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// ListByPost возвращает иллюстрации статьи в порядке позиций.
func (p *Postgres) ListByPost(ctx context.Context, postID string) ([]domain.Thumbnail, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, post_id, article_index, queue_item_id, image_url, created_at, updated_at
FROM thumbnails WHERE post_id=$1
ORDER BY article_index, id
`, postID)
	metrics.ObserveNetworkRequest("postgres", "thumbnails_list_by_post", "thumbnails", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thumbs []domain.Thumbnail
	for rows.Next() {
		var (
			t           domain.Thumbnail
			queueItemID sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.PostID, &t.ArticleIndex, &queueItemID, &t.ImageURL, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if queueItemID.Valid {
			v := queueItemID.String
			t.QueueItemID = &v
		}
		thumbs = append(thumbs, t)
	}
	return thumbs, rows.Err()
}

// UpdateArticleIndex передвигает иллюстрацию на новую позицию.
func (p *Postgres) UpdateArticleIndex(ctx context.Context, id string, index int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE thumbnails SET article_index=$2, updated_at=now() WHERE id=$1`, id, index)
	metrics.ObserveNetworkRequest("postgres", "thumbnails_update_index", "thumbnails", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("иллюстрация %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateLink закрепляет иллюстрацию за элементом очереди и позицией.
// Используется при усыновлении привязок, оставшихся от позиционной схемы.
func (p *Postgres) UpdateLink(ctx context.Context, id string, queueItemID string, index int) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE thumbnails SET queue_item_id=$2, article_index=$3, updated_at=now() WHERE id=$1
`, id, queueItemID, index)
	metrics.ObserveNetworkRequest("postgres", "thumbnails_update_link", "thumbnails", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("иллюстрация %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete удаляет иллюстрацию.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM thumbnails WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "thumbnails_delete", "thumbnails", start, err)
	return err
}

// DeleteByQueueItem удаляет иллюстрации, привязанные к элементу очереди.
func (p *Postgres) DeleteByQueueItem(ctx context.Context, queueItemID string) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `DELETE FROM thumbnails WHERE queue_item_id=$1`, queueItemID)
	metrics.ObserveNetworkRequest("postgres", "thumbnails_delete_by_item", "thumbnails", start, err)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

// GetArticleHTML возвращает авторский HTML статьи. Только чтение:
// содержимым статьи владеет авторская подсистема.
func (p *Postgres) GetArticleHTML(ctx context.Context, postID string) (string, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var html string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT content_html FROM posts WHERE id=$1`, postID).Scan(&html)
	metrics.ObserveNetworkRequest("postgres", "posts_get_html", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("статья %s: %w", postID, domain.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return html, nil
}

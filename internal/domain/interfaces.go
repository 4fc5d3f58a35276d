package domain

import (
	"context"
	"time"
)

// ItemFilter — параметры выборки элементов очереди для админского API.
type ItemFilter struct {
	Statuses []ItemStatus
	SourceID string
	Limit    int
	Offset   int
}

// QueueRepo управляет хранилищем элементов очереди.
// Все мутации статуса выполняются по принципу compare-and-set:
// обновляются только строки в ожидаемом исходном статусе.
type QueueRepo interface {
	InsertItems(ctx context.Context, items []QueueItem) error
	GetItem(ctx context.Context, id string) (QueueItem, error)
	ListActive(ctx context.Context) ([]QueueItem, error)
	ListPending(ctx context.Context) ([]QueueItem, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]QueueItem, error)
	// ExistingSourceItemIDs возвращает подмножество переданных внешних
	// идентификаторов, уже присутствующих в хранилище.
	ExistingSourceItemIDs(ctx context.Context, sourceItemIDs []string) (map[string]bool, error)
	// SelectItems переводит pending → selected, назначая selection_rank по
	// порядку идентификаторов. Всё или ничего: при любом несовпадении
	// исходного статуса транзакция откатывается.
	SelectItems(ctx context.Context, ids []string) error
	// SkipItems переводит pending → skipped с указанием причины. Всё или ничего.
	SkipItems(ctx context.Context, ids []string, reason string) error
	// ResetItem переводит selected → pending и очищает selection_rank.
	ResetItem(ctx context.Context, id string) error
	// ExpireDue переводит просроченные pending и selected элементы в expired
	// и возвращает число затронутых строк. Идемпотентна.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
	// MarkUsed переводит selected → used. Элементы не в selected молча
	// пропускаются; возвращается число помеченных.
	MarkUsed(ctx context.Context, ids []string) (int, error)
}

// ThumbnailRepo управляет иллюстрациями статей.
type ThumbnailRepo interface {
	ListByPost(ctx context.Context, postID string) ([]Thumbnail, error)
	UpdateArticleIndex(ctx context.Context, id string, index int) error
	UpdateLink(ctx context.Context, id string, queueItemID string, index int) error
	Delete(ctx context.Context, id string) error
	// DeleteByQueueItem удаляет иллюстрации, привязанные к элементу очереди.
	// Каскад при отзыве элемента из выпуска.
	DeleteByQueueItem(ctx context.Context, queueItemID string) (int, error)
}

// ArticleRepo читает структуру статьи авторской подсистемы. Только чтение.
type ArticleRepo interface {
	GetArticleHTML(ctx context.Context, postID string) (string, error)
}

// ArticleParser разбирает авторский HTML в упорядоченный список секций.
type ArticleParser interface {
	ParseSections(html string) ([]ArticleSection, error)
}

// RawSource отдаёт сырые собранные материалы за дату.
type RawSource interface {
	FetchRaw(ctx context.Context, date time.Time) ([]RawCandidate, error)
}

// SynthesisSource отдаёт оценённых LLM кандидатов за дату.
type SynthesisSource interface {
	FetchSynthesis(ctx context.Context, date time.Time) ([]SynthesisCandidate, error)
}

// UniquenessScorer возвращает оценку непохожести материала на недавнюю
// историю: 0–10, больше — менее похож. Вызывается при импорте, не при отборе.
type UniquenessScorer interface {
	ScoreUniqueness(ctx context.Context, title, content string) (float64, error)
}

// GenerationNotifier передаёт генератору изображений секции без иллюстраций.
type GenerationNotifier interface {
	RequestThumbnails(ctx context.Context, postID string, missing []MissingArticle) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

package domain

import "time"

// ArticleSection — секция статьи в авторском порядке.
// QueueItemID — стабильный идентификатор, встроенный в заголовок секции;
// порядковый номер Index — одноразовая проекция, пересчитываемая при каждой сверке.
type ArticleSection struct {
	Index       int
	Heading     string
	QueueItemID string
	Synthesis   bool
}

// Thumbnail — сгенерированная иллюстрация секции статьи.
// QueueItemID — якорь стабильности: выживает при перестановке секций,
// в отличие от ArticleIndex.
type Thumbnail struct {
	ID           string
	PostID       string
	ArticleIndex int
	QueueItemID  *string
	ImageURL     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MissingArticle — секция без иллюстрации; передаётся генератору изображений.
type MissingArticle struct {
	Index       int
	Heading     string
	QueueItemID string
}

// ReindexReport — итог сверки иллюстраций со структурой статьи.
type ReindexReport struct {
	Updated int
	Deleted int
	Missing []MissingArticle
}

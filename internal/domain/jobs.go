package domain

import (
	"context"
	"time"
)

// ReindexCause описывает источник запроса на сверку иллюстраций.
type ReindexCause string

const (
	// ReindexCauseManual — сверка запрошена вручную через API.
	ReindexCauseManual ReindexCause = "manual"
	// ReindexCauseArticleSaved — редактор сохранил статью.
	ReindexCauseArticleSaved ReindexCause = "article_saved"
	// ReindexCauseItemReset — элемент очереди отозван из выпуска.
	ReindexCauseItemReset ReindexCause = "item_reset"
)

// ReindexJob содержит информацию о задаче сверки иллюстраций статьи.
type ReindexJob struct {
	ID          string       `json:"job_id,omitempty"`
	PostID      string       `json:"post_id"`
	RequestedAt time.Time    `json:"requested_at"`
	Cause       ReindexCause `json:"cause"`
}

// ReindexQueue описывает очередь задач на сверку.
type ReindexQueue interface {
	Enqueue(ctx context.Context, job ReindexJob) error
	Receive(ctx context.Context) (ReindexJob, ReindexAckFunc, error)
}

// ReindexAckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type ReindexAckFunc func(success bool) error

// ReindexJobStatusRepo отвечает за отслеживание статуса доставки задач сверки.
type ReindexJobStatusRepo interface {
	// EnsureReindexJob регистрирует попытку обработки и возвращает признак
	// завершённой доставки и номер текущей попытки.
	EnsureReindexJob(jobID string) (delivered bool, attempt int, err error)
	// MarkReindexJobDelivered помечает задачу как окончательно обработанную.
	MarkReindexJobDelivered(jobID string) error
}

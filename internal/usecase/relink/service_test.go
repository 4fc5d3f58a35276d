package relink

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"editorial-queue/internal/domain"
)

type stubArticleRepo struct {
	html string
}

func (s *stubArticleRepo) GetArticleHTML(context.Context, string) (string, error) {
	return s.html, nil
}

type stubParser struct {
	sections []domain.ArticleSection
}

func (s *stubParser) ParseSections(string) ([]domain.ArticleSection, error) {
	return s.sections, nil
}

type stubThumbRepo struct {
	thumbs  []domain.Thumbnail
	updated map[string]int
	linked  map[string]string
	deleted []string
}

func newStubThumbRepo(thumbs ...domain.Thumbnail) *stubThumbRepo {
	return &stubThumbRepo{thumbs: thumbs, updated: make(map[string]int), linked: make(map[string]string)}
}

func (s *stubThumbRepo) ListByPost(context.Context, string) ([]domain.Thumbnail, error) {
	return s.thumbs, nil
}
func (s *stubThumbRepo) UpdateArticleIndex(_ context.Context, id string, index int) error {
	s.updated[id] = index
	return nil
}
func (s *stubThumbRepo) UpdateLink(_ context.Context, id, queueItemID string, index int) error {
	s.linked[id] = queueItemID
	s.updated[id] = index
	return nil
}
func (s *stubThumbRepo) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}
func (s *stubThumbRepo) DeleteByQueueItem(context.Context, string) (int, error) { return 0, nil }

func strPtr(v string) *string { return &v }

func section(index int, heading, queueItemID string) domain.ArticleSection {
	return domain.ArticleSection{Index: index, Heading: heading, QueueItemID: queueItemID}
}

func newTestService(parser *stubParser, thumbs *stubThumbRepo) *Service {
	return NewService(&stubArticleRepo{html: "<article/>"}, parser, thumbs, nil, nil, zerolog.Nop())
}

func TestReindexMovesThumbnailWithSection(t *testing.T) {
	// Секция переехала с позиции 2 на позицию 0: иллюстрация следует за ней,
	// без дублей и без удалений.
	parser := &stubParser{sections: []domain.ArticleSection{
		section(0, "Переехавшая", "item-1"),
		section(1, "Другая", "item-2"),
	}}
	thumbs := newStubThumbRepo(
		domain.Thumbnail{ID: "t1", PostID: "p", ArticleIndex: 2, QueueItemID: strPtr("item-1")},
		domain.Thumbnail{ID: "t2", PostID: "p", ArticleIndex: 1, QueueItemID: strPtr("item-2")},
	)
	service := newTestService(parser, thumbs)

	report, err := service.Reindex(context.Background(), "p")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.Updated != 1 || report.Deleted != 0 {
		t.Fatalf("ожидали 1 обновление и 0 удалений: %+v", report)
	}
	if thumbs.updated["t1"] != 0 {
		t.Fatalf("иллюстрация должна переехать на позицию 0, получили %d", thumbs.updated["t1"])
	}
	if len(report.Missing) != 0 {
		t.Fatalf("обе секции покрыты, Missing должен быть пуст: %+v", report.Missing)
	}
}

func TestReindexDeletesOrphanedThumbnail(t *testing.T) {
	parser := &stubParser{sections: []domain.ArticleSection{section(0, "Оставшаяся", "item-1")}}
	thumbs := newStubThumbRepo(
		domain.Thumbnail{ID: "keep", ArticleIndex: 0, QueueItemID: strPtr("item-1")},
		domain.Thumbnail{ID: "orphan", ArticleIndex: 1, QueueItemID: strPtr("removed-item")},
	)
	service := newTestService(parser, thumbs)

	report, err := service.Reindex(context.Background(), "p")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if report.Deleted != 1 {
		t.Fatalf("иллюстрация удалённой секции должна удаляться каскадом: %+v", report)
	}
	if len(thumbs.deleted) != 1 || thumbs.deleted[0] != "orphan" {
		t.Fatalf("удалиться должна именно осиротевшая запись: %v", thumbs.deleted)
	}
}

func TestReindexIdempotent(t *testing.T) {
	parser := &stubParser{sections: []domain.ArticleSection{
		section(0, "A", "item-1"),
		section(1, "B", "item-2"),
	}}
	thumbs := newStubThumbRepo(
		domain.Thumbnail{ID: "t1", ArticleIndex: 1, QueueItemID: strPtr("item-1")},
		domain.Thumbnail{ID: "t2", ArticleIndex: 1, QueueItemID: strPtr("item-2")},
	)
	service := newTestService(parser, thumbs)
	ctx := context.Background()

	first, err := service.Reindex(ctx, "p")
	if err != nil {
		t.Fatalf("первый запуск: %v", err)
	}
	if first.Updated != 1 {
		t.Fatalf("первый запуск должен поправить t1: %+v", first)
	}

	// Применяем эффект первого запуска и повторяем без правок статьи.
	thumbs.thumbs[0].ArticleIndex = 0
	thumbs.updated = map[string]int{}
	second, err := service.Reindex(ctx, "p")
	if err != nil {
		t.Fatalf("второй запуск: %v", err)
	}
	if second.Updated != 0 || second.Deleted != 0 {
		t.Fatalf("повторная сверка без правок обязана быть пустой: %+v", second)
	}
}

func TestReindexReportsMissing(t *testing.T) {
	parser := &stubParser{sections: []domain.ArticleSection{
		section(0, "С иллюстрацией", "item-1"),
		section(1, "Без иллюстрации", "item-2"),
		{Index: 2, Heading: "Авторская колонка", Synthesis: true},
	}}
	thumbs := newStubThumbRepo(domain.Thumbnail{ID: "t1", ArticleIndex: 0, QueueItemID: strPtr("item-1")})
	service := newTestService(parser, thumbs)

	report, err := service.Reindex(context.Background(), "p")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(report.Missing) != 1 {
		t.Fatalf("ожидали одну недостающую секцию: %+v", report.Missing)
	}
	missing := report.Missing[0]
	if missing.Index != 1 || missing.QueueItemID != "item-2" {
		t.Fatalf("недостающая секция определена неверно: %+v", missing)
	}
}

func TestReindexLegacyPositionalFallback(t *testing.T) {
	parser := &stubParser{sections: []domain.ArticleSection{section(0, "Секция", "item-1")}}
	thumbs := newStubThumbRepo(domain.Thumbnail{ID: "legacy", ArticleIndex: 0})
	service := newTestService(parser, thumbs)

	report, err := service.Reindex(context.Background(), "p")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if thumbs.linked["legacy"] != "item-1" {
		t.Fatalf("легаси-запись должна получить стабильный id секции на своей позиции")
	}
	if len(report.Missing) != 0 {
		t.Fatalf("позиция покрыта легаси-записью: %+v", report.Missing)
	}
}

type stubStatuses struct {
	delivered map[string]bool
	attempts  map[string]int
}

func (s *stubStatuses) EnsureReindexJob(jobID string) (bool, int, error) {
	if s.attempts == nil {
		s.attempts = make(map[string]int)
	}
	s.attempts[jobID]++
	return s.delivered[jobID], s.attempts[jobID], nil
}

func (s *stubStatuses) MarkReindexJobDelivered(jobID string) error {
	if s.delivered == nil {
		s.delivered = make(map[string]bool)
	}
	s.delivered[jobID] = true
	return nil
}

type stubNotifier struct {
	requests int
}

func (s *stubNotifier) RequestThumbnails(context.Context, string, []domain.MissingArticle) error {
	s.requests++
	return nil
}

func TestProcessJobSkipsDeliveredAndNotifies(t *testing.T) {
	parser := &stubParser{sections: []domain.ArticleSection{section(0, "Без картинки", "item-1")}}
	thumbs := newStubThumbRepo()
	notifier := &stubNotifier{}
	statuses := &stubStatuses{}
	service := NewService(&stubArticleRepo{}, parser, thumbs, notifier, statuses, zerolog.Nop())
	ctx := context.Background()
	job := domain.ReindexJob{ID: "job-1", PostID: "p", Cause: domain.ReindexCauseArticleSaved}

	if err := service.ProcessJob(ctx, job); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if notifier.requests != 1 {
		t.Fatalf("недостающие секции должны уходить генератору")
	}
	if !statuses.delivered["job-1"] {
		t.Fatalf("задача должна помечаться доставленной")
	}

	if err := service.ProcessJob(ctx, job); err != nil {
		t.Fatalf("повтор: %v", err)
	}
	if notifier.requests != 1 {
		t.Fatalf("повтор доставленной задачи не должен обрабатываться заново")
	}
}

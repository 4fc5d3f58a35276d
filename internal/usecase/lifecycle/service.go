package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// Service применяет переходы жизненного цикла элементов очереди.
// Атомарность батча обеспечивает хранилище: select и skip выполняются по
// принципу «всё или ничего», повторные вызовы expire безопасны.
type Service struct {
	items  domain.QueueRepo
	thumbs domain.ThumbnailRepo
	log    zerolog.Logger
}

// NewService создаёт контроллер жизненного цикла.
func NewService(items domain.QueueRepo, thumbs domain.ThumbnailRepo, logger zerolog.Logger) *Service {
	return &Service{items: items, thumbs: thumbs, log: logger}
}

// Select переводит батч pending → selected, назначая ранги по порядку ids.
// Любой элемент не в pending отменяет весь батч с ошибкой ErrConflict:
// две конкурирующие фиксации одной выборки не могут пройти обе.
func (s *Service) Select(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: пустой список идентификаторов", domain.ErrValidation)
	}
	if err := s.items.SelectItems(ctx, ids); err != nil {
		return fmt.Errorf("фиксация выборки: %w", err)
	}
	metrics.IncLifecycleTransition("select", len(ids))
	return nil
}

// Skip переводит батч pending → skipped с обязательной причиной.
func (s *Service) Skip(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: пустой список идентификаторов", domain.ErrValidation)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: причина пропуска обязательна", domain.ErrValidation)
	}
	if err := s.items.SkipItems(ctx, ids, reason); err != nil {
		return fmt.Errorf("пропуск элементов: %w", err)
	}
	metrics.IncLifecycleTransition("skip", len(ids))
	return nil
}

// ResetItem возвращает элемент selected → pending, очищает selection_rank и
// каскадно удаляет иллюстрации, привязанные к элементу: подложка отзывается,
// изображения без неё не имеют смысла.
func (s *Service) ResetItem(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: пустой идентификатор", domain.ErrValidation)
	}
	if err := s.items.ResetItem(ctx, id); err != nil {
		return fmt.Errorf("возврат элемента: %w", err)
	}
	deleted, err := s.thumbs.DeleteByQueueItem(ctx, id)
	if err != nil {
		return fmt.Errorf("каскадное удаление иллюстраций: %w", err)
	}
	if deleted > 0 {
		s.log.Info().Str("item", id).Int("deleted", deleted).Msg("lifecycle: иллюстрации отозванного элемента удалены")
	}
	metrics.IncLifecycleTransition("reset", 1)
	return nil
}

// Expire переводит просроченные pending и selected элементы в expired.
// Идемпотентная развёртка: безопасно запускать повторно и по расписанию,
// каждая строка переходит не более одного раза.
func (s *Service) Expire(ctx context.Context, now time.Time) (int, error) {
	count, err := s.items.ExpireDue(ctx, now)
	if err != nil {
		return count, fmt.Errorf("развёртка истечения: %w", err)
	}
	if count > 0 {
		metrics.IncLifecycleTransition("expire", count)
		s.log.Info().Int("expired", count).Msg("lifecycle: элементы истекли")
	}
	return count, nil
}

// MarkUsed терминально помечает selected → used при публикации статьи.
// Элементы не в selected молча пропускаются: убранные в ходе правки
// просто не помечаются, это не ошибка.
func (s *Service) MarkUsed(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: пустой список идентификаторов", domain.ErrValidation)
	}
	count, err := s.items.MarkUsed(ctx, ids)
	if err != nil {
		return count, fmt.Errorf("пометка использованных: %w", err)
	}
	if count > 0 {
		metrics.IncLifecycleTransition("mark_used", count)
	}
	return count, nil
}

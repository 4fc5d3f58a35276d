package relink

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// Service сверяет иллюстрации статьи с её текущей структурой.
// Якорь сверки — стабильный идентификатор элемента очереди, встроенный в
// заголовок секции; позиционный индекс — производная величина, пересчитываемая
// при каждом запуске. Чисто индексная привязка молча расклеивает картинки и
// текст после любой правки порядка секций.
type Service struct {
	articles domain.ArticleRepo
	parser   domain.ArticleParser
	thumbs   domain.ThumbnailRepo
	notifier domain.GenerationNotifier
	statuses domain.ReindexJobStatusRepo
	log      zerolog.Logger
}

// NewService создаёт сервис сверки.
func NewService(articles domain.ArticleRepo, parser domain.ArticleParser, thumbs domain.ThumbnailRepo, notifier domain.GenerationNotifier, statuses domain.ReindexJobStatusRepo, logger zerolog.Logger) *Service {
	return &Service{articles: articles, parser: parser, thumbs: thumbs, notifier: notifier, statuses: statuses, log: logger}
}

// Reindex приводит иллюстрации статьи в соответствие её структуре.
// Идемпотентна: повторный запуск без правок статьи не делает ни одного
// обновления и ни одного удаления.
func (s *Service) Reindex(ctx context.Context, postID string) (domain.ReindexReport, error) {
	if strings.TrimSpace(postID) == "" {
		return domain.ReindexReport{}, fmt.Errorf("%w: пустой идентификатор статьи", domain.ErrValidation)
	}

	html, err := s.articles.GetArticleHTML(ctx, postID)
	if err != nil {
		return domain.ReindexReport{}, fmt.Errorf("чтение статьи %s: %w", postID, err)
	}
	sections, err := s.parser.ParseSections(html)
	if err != nil {
		return domain.ReindexReport{}, fmt.Errorf("разбор структуры статьи: %w", err)
	}

	// Текущая проекция: стабильный id → порядковый номер секции.
	// Synthesis-секции не иллюстрируются и в проекцию не входят.
	ordinalByID := make(map[string]int)
	sectionByOrdinal := make(map[int]domain.ArticleSection)
	for _, section := range sections {
		if section.Synthesis {
			continue
		}
		sectionByOrdinal[section.Index] = section
		if section.QueueItemID != "" {
			ordinalByID[section.QueueItemID] = section.Index
		}
	}

	existing, err := s.thumbs.ListByPost(ctx, postID)
	if err != nil {
		return domain.ReindexReport{}, fmt.Errorf("чтение иллюстраций: %w", err)
	}

	report := domain.ReindexReport{}
	covered := make(map[int]bool)
	for _, thumb := range existing {
		switch {
		case thumb.QueueItemID != nil:
			ordinal, found := ordinalByID[*thumb.QueueItemID]
			if !found {
				// Секция удалена из статьи: каскад, а не ошибка.
				if err := s.thumbs.Delete(ctx, thumb.ID); err != nil {
					return report, fmt.Errorf("удаление осиротевшей иллюстрации %s: %w", thumb.ID, err)
				}
				report.Deleted++
				continue
			}
			covered[ordinal] = true
			if ordinal != thumb.ArticleIndex {
				if err := s.thumbs.UpdateArticleIndex(ctx, thumb.ID, ordinal); err != nil {
					return report, fmt.Errorf("обновление позиции иллюстрации %s: %w", thumb.ID, err)
				}
				report.Updated++
			}
		default:
			// Легаси-запись без стабильного id: позиционное сопоставление,
			// лучшее из возможного. Если секция на прежней позиции несёт id,
			// усыновляем его, чтобы следующая сверка была точной.
			section, ok := sectionByOrdinal[thumb.ArticleIndex]
			if !ok {
				if err := s.thumbs.Delete(ctx, thumb.ID); err != nil {
					return report, fmt.Errorf("удаление несопоставимой иллюстрации %s: %w", thumb.ID, err)
				}
				report.Deleted++
				continue
			}
			covered[thumb.ArticleIndex] = true
			if section.QueueItemID != "" {
				s.log.Warn().Str("post", postID).Str("thumb", thumb.ID).Int("index", thumb.ArticleIndex).Msg("relink: легаси-иллюстрация сопоставлена по позиции, привязываю стабильный id")
				if err := s.thumbs.UpdateLink(ctx, thumb.ID, section.QueueItemID, thumb.ArticleIndex); err != nil {
					return report, fmt.Errorf("привязка стабильного id к иллюстрации %s: %w", thumb.ID, err)
				}
				report.Updated++
			}
		}
	}

	for _, section := range sections {
		if section.Synthesis || covered[section.Index] {
			continue
		}
		report.Missing = append(report.Missing, domain.MissingArticle{
			Index:       section.Index,
			Heading:     section.Heading,
			QueueItemID: section.QueueItemID,
		})
	}

	metrics.ObserveReindex(report.Updated, report.Deleted, len(report.Missing))
	return report, nil
}

// ProcessJob обрабатывает задачу сверки из очереди: регистрирует попытку,
// выполняет сверку и передаёт недостающие секции генератору изображений.
// Доставка at-least-once, сама сверка идемпотентна.
func (s *Service) ProcessJob(ctx context.Context, job domain.ReindexJob) error {
	if job.ID != "" && s.statuses != nil {
		delivered, attempt, err := s.statuses.EnsureReindexJob(job.ID)
		if err != nil {
			return fmt.Errorf("регистрация задачи %s: %w", job.ID, err)
		}
		if delivered {
			s.log.Info().Str("job", job.ID).Msg("relink: задача уже обработана, пропускаю повтор")
			return nil
		}
		if attempt > 1 {
			s.log.Warn().Str("job", job.ID).Int("attempt", attempt).Msg("relink: повторная попытка обработки")
		}
	}

	report, err := s.Reindex(ctx, job.PostID)
	if err != nil {
		return err
	}
	if len(report.Missing) > 0 && s.notifier != nil {
		if err := s.notifier.RequestThumbnails(ctx, job.PostID, report.Missing); err != nil {
			return fmt.Errorf("запрос генерации иллюстраций: %w", err)
		}
	}
	if job.ID != "" && s.statuses != nil {
		if err := s.statuses.MarkReindexJobDelivered(job.ID); err != nil {
			return fmt.Errorf("фиксация доставки задачи %s: %w", job.ID, err)
		}
	}
	s.log.Info().Str("post", job.PostID).Str("cause", string(job.Cause)).Int("updated", report.Updated).Int("deleted", report.Deleted).Int("missing", len(report.Missing)).Msg("relink: сверка завершена")
	return nil
}

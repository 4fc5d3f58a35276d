package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// Нейтральная оценка для сырых кандидатов без внешнего скоринга.
const neutralScore = 5.0

// Service пополняет очередь кандидатами из двух внешних источников.
// Оба пути строго аддитивны: существующие элементы не трогаются,
// их статус не меняется. Дедупликация — по внешнему идентификатору
// исходного материала (source_item_id).
type Service struct {
	items      domain.QueueRepo
	raw        domain.RawSource
	synthesis  domain.SynthesisSource
	uniqueness domain.UniquenessScorer
	ttl        time.Duration
	log        zerolog.Logger
}

// NewService создаёт импортёр кандидатов.
func NewService(items domain.QueueRepo, raw domain.RawSource, synthesis domain.SynthesisSource, uniqueness domain.UniquenessScorer, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{items: items, raw: raw, synthesis: synthesis, uniqueness: uniqueness, ttl: ttl, log: logger}
}

// ImportRaw импортирует сырые собранные материалы за дату с нейтральными
// оценками. Уже присутствующие идентификаторы пропускаются.
func (s *Service) ImportRaw(ctx context.Context, date time.Time) (domain.ImportReport, error) {
	candidates, err := s.raw.FetchRaw(ctx, date)
	if err != nil {
		return domain.ImportReport{}, fmt.Errorf("%w: сырые кандидаты: %v", domain.ErrUpstream, err)
	}

	report := domain.ImportReport{}
	fresh, skipped, err := s.filterExisting(ctx, rawIDs(candidates))
	if err != nil {
		return domain.ImportReport{}, err
	}
	report.Skipped = skipped

	now := time.Now().UTC()
	items := make([]domain.QueueItem, 0, len(candidates))
	for _, c := range candidates {
		if !fresh[c.SourceItemID] {
			continue
		}
		items = append(items, s.newItem(c.SourceItemID, c.Title, c.Excerpt, c.Content, c.SourceID, c.SourceName, c.SourceURL, neutralScore, neutralScore, neutralScore, now))
	}
	if err := s.insert(ctx, items); err != nil {
		return domain.ImportReport{}, err
	}
	report.Added = len(items)
	metrics.AddImportedItems("raw", report.Added)
	s.log.Info().Str("date", date.Format("2006-01-02")).Int("added", report.Added).Int("skipped", report.Skipped).Msg("importer: импорт сырых кандидатов завершён")
	return report, nil
}

// ImportSynthesis импортирует оценённых LLM кандидатов. Оценка уникальности
// запрашивается у внешнего сервиса на этапе импорта; при его сбое кандидат
// пропускается в этом запуске и попадает в Failed — нулевая оценка никогда
// не маскирует отсутствующие данные.
func (s *Service) ImportSynthesis(ctx context.Context, date time.Time) (domain.ImportReport, error) {
	candidates, err := s.synthesis.FetchSynthesis(ctx, date)
	if err != nil {
		return domain.ImportReport{}, fmt.Errorf("%w: synthesis-кандидаты: %v", domain.ErrUpstream, err)
	}

	report := domain.ImportReport{}
	fresh, skipped, err := s.filterExisting(ctx, synthesisIDs(candidates))
	if err != nil {
		return domain.ImportReport{}, err
	}
	report.Skipped = skipped

	now := time.Now().UTC()
	items := make([]domain.QueueItem, 0, len(candidates))
	for _, c := range candidates {
		if !fresh[c.SourceItemID] {
			continue
		}
		unique, err := s.uniqueness.ScoreUniqueness(ctx, c.Title, c.Content)
		if err != nil {
			report.Failed = append(report.Failed, c.SourceItemID)
			s.log.Warn().Err(err).Str("source_item", c.SourceItemID).Msg("importer: оценка уникальности недоступна, кандидат отложен до следующего запуска")
			continue
		}
		items = append(items, s.newItem(c.SourceItemID, c.Title, c.Excerpt, c.Content, c.SourceID, c.SourceName, c.SourceURL, c.OriginalityScore, c.RelevanceScore, unique, now))
	}
	if err := s.insert(ctx, items); err != nil {
		return domain.ImportReport{}, err
	}
	report.Added = len(items)
	metrics.AddImportedItems("synthesis", report.Added)
	if len(report.Failed) > 0 {
		metrics.AddImportFailures("synthesis", len(report.Failed))
	}
	s.log.Info().Str("date", date.Format("2006-01-02")).Int("added", report.Added).Int("skipped", report.Skipped).Int("failed", len(report.Failed)).Msg("importer: импорт synthesis-кандидатов завершён")
	return report, nil
}

// filterExisting возвращает множество ещё не импортированных идентификаторов
// и число отсеянных дублей.
func (s *Service) filterExisting(ctx context.Context, ids []string) (map[string]bool, int, error) {
	if len(ids) == 0 {
		return map[string]bool{}, 0, nil
	}
	existing, err := s.items.ExistingSourceItemIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("проверка дублей: %w", err)
	}
	fresh := make(map[string]bool, len(ids))
	skipped := 0
	for _, id := range ids {
		if existing[id] {
			skipped++
			continue
		}
		fresh[id] = true
	}
	return fresh, skipped, nil
}

func (s *Service) newItem(sourceItemID, title, excerpt, content, sourceID, sourceName, sourceURL string, synthesis, relevance, unique float64, now time.Time) domain.QueueItem {
	item := domain.QueueItem{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(title),
		Excerpt:         strings.TrimSpace(excerpt),
		SourceID:        sourceID,
		SourceItemID:    sourceItemID,
		SynthesisScore:  synthesis,
		RelevanceScore:  relevance,
		UniquenessScore: unique,
		Status:          domain.StatusPending,
		QueuedAt:        now,
		ExpiresAt:       now.Add(s.ttl),
	}
	if content != "" {
		item.Content = &content
	}
	if sourceName != "" {
		item.SourceName = &sourceName
	}
	if sourceURL != "" {
		item.SourceURL = &sourceURL
	}
	return item
}

func (s *Service) insert(ctx context.Context, items []domain.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.items.InsertItems(ctx, items); err != nil {
		return fmt.Errorf("сохранение элементов: %w", err)
	}
	return nil
}

func rawIDs(candidates []domain.RawCandidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.SourceItemID)
	}
	return ids
}

func synthesisIDs(candidates []domain.SynthesisCandidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.SourceItemID)
	}
	return ids
}

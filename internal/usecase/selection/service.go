package selection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// Service считает распределение источников и сбалансированную выборку поверх
// хранилища. Оба расчёта только читают пул: результат носит рекомендательный
// характер, фиксация статусов происходит через контроллер жизненного цикла.
type Service struct {
	items domain.QueueRepo
}

// NewService создаёт сервис отбора.
func NewService(items domain.QueueRepo) *Service {
	return &Service{items: items}
}

// Distribution возвращает распределение источников по текущему активному пулу.
func (s *Service) Distribution(ctx context.Context) ([]domain.SourceDistribution, error) {
	pool, err := s.items.ListItems(ctx, domain.ItemFilter{})
	if err != nil {
		return nil, fmt.Errorf("чтение пула: %w", err)
	}
	return Distribution(pool), nil
}

// ListItems возвращает элементы очереди по фильтру.
func (s *Service) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.QueueItem, error) {
	return s.items.ListItems(ctx, filter)
}

// GetItem возвращает элемент очереди по идентификатору.
func (s *Service) GetItem(ctx context.Context, id string) (domain.QueueItem, error) {
	return s.items.GetItem(ctx, id)
}

// Propose возвращает сбалансированный топ-N pending-элементов в порядке ранга.
func (s *Service) Propose(ctx context.Context, maxItems int) ([]domain.QueueItem, error) {
	pool, err := s.items.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение pending-пула: %w", err)
	}
	start := time.Now()
	ids, err := SelectBalanced(pool, maxItems)
	metrics.SelectionBuildSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.QueueItem, len(pool))
	for _, it := range pool {
		byID[it.ID] = it
	}
	result := make([]domain.QueueItem, 0, len(ids))
	for _, id := range ids {
		result = append(result, byID[id])
	}
	return result, nil
}

// Distribution вычисляет долю каждого источника в активном пуле.
// Знаменатель — только pending и selected элементы: исторический объём
// used/expired/skipped не маскирует текущий перекос. Источники без активных
// элементов в результат не попадают. Чистая функция без побочных эффектов.
func Distribution(pool []domain.QueueItem) []domain.SourceDistribution {
	index := make(map[string]*domain.SourceDistribution)
	order := make([]string, 0)
	totalActive := 0

	for _, it := range pool {
		dist, ok := index[it.SourceID]
		if !ok {
			dist = &domain.SourceDistribution{SourceID: it.SourceID}
			index[it.SourceID] = dist
			order = append(order, it.SourceID)
		}
		if dist.SourceName == "" && it.SourceName != nil {
			dist.SourceName = *it.SourceName
		}
		switch it.Status {
		case domain.StatusPending:
			dist.PendingCount++
			dist.ItemCount++
			totalActive++
		case domain.StatusSelected:
			dist.SelectedCount++
			dist.ItemCount++
			totalActive++
		case domain.StatusUsed:
			dist.UsedCount++
		}
	}

	result := make([]domain.SourceDistribution, 0, len(order))
	for _, sourceID := range order {
		dist := index[sourceID]
		if dist.ItemCount == 0 {
			continue
		}
		dist.Percentage = float64(dist.ItemCount) / float64(totalActive)
		dist.OverCap = dist.Percentage > domain.DiversityCap
		result = append(result, *dist)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].ItemCount != result[j].ItemCount {
			return result[i].ItemCount > result[j].ItemCount
		}
		return result[i].SourceID < result[j].SourceID
	})
	return result
}

// SelectBalanced возвращает упорядоченный топ-N идентификаторов pending-элементов
// с ограничением концентрации источников. Жадный проход с квотой:
// список сортируется по итоговой оценке по убыванию (при равенстве побеждает
// более старый элемент — защита от голодания), затем элементы принимаются,
// пока источник не исчерпал квоту max(1, floor(cap*maxItems)). Элемент сверх
// квоты пропускается, только пока дальше по списку остаются другие источники:
// когда альтернатив нет, пропуск не добавляет разнообразия, а лишь опустошает
// выборку, и оставшиеся места заполняются по оценке. Ровно один проход,
// без возвратов; пустой пул — пустой результат, а не ошибка.
func SelectBalanced(pool []domain.QueueItem, maxItems int) ([]string, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("%w: maxItems должен быть положительным", domain.ErrValidation)
	}

	pending := make([]domain.QueueItem, 0, len(pool))
	for _, it := range pool {
		if it.Status == domain.StatusPending {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		return []string{}, nil
	}

	sort.SliceStable(pending, func(i, j int) bool {
		ti, tj := pending[i].TotalScore(), pending[j].TotalScore()
		if ti != tj {
			return ti > tj
		}
		return pending[i].QueuedAt.Before(pending[j].QueuedAt)
	})

	quota := int(math.Floor(domain.DiversityCap * float64(maxItems)))
	if quota < 1 {
		quota = 1
	}

	otherAfter := otherSourcesAfter(pending)
	counts := make(map[string]int)
	result := make([]string, 0, maxItems)
	for i, it := range pending {
		if len(result) == maxItems {
			break
		}
		if counts[it.SourceID] >= quota && otherAfter[i] {
			continue
		}
		counts[it.SourceID]++
		result = append(result, it.ID)
	}
	return result, nil
}

// otherSourcesAfter для каждой позиции сообщает, остались ли дальше по списку
// элементы других источников.
func otherSourcesAfter(items []domain.QueueItem) []bool {
	after := make([]bool, len(items))
	seen := make(map[string]struct{})
	var lastSingle string
	for i := len(items) - 1; i >= 0; i-- {
		switch len(seen) {
		case 0:
			after[i] = false
		case 1:
			after[i] = lastSingle != items[i].SourceID
		default:
			after[i] = true
		}
		if _, ok := seen[items[i].SourceID]; !ok {
			seen[items[i].SourceID] = struct{}{}
			lastSingle = items[i].SourceID
		}
	}
	return after
}

package selection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"editorial-queue/internal/domain"
)

func pendingItem(id, sourceID string, score float64, queuedAt time.Time) domain.QueueItem {
	return domain.QueueItem{
		ID:              id,
		SourceID:        sourceID,
		SynthesisScore:  score,
		RelevanceScore:  score,
		UniquenessScore: score,
		Status:          domain.StatusPending,
		QueuedAt:        queuedAt,
	}
}

func TestSelectBalancedScenario(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var pool []domain.QueueItem
	for i, score := range []float64{9, 8, 7, 6} {
		pool = append(pool, pendingItem(fmt.Sprintf("a%d", i), "source-a", score, base.Add(time.Duration(i)*time.Minute)))
	}
	for i, score := range []float64{5, 4, 3, 2, 1, 0} {
		pool = append(pool, pendingItem(fmt.Sprintf("b%d", i), "source-b", score, base.Add(time.Duration(10+i)*time.Minute)))
	}

	ids, err := SelectBalanced(pool, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []string{"a0", "b0", "b1", "b2", "b3"}
	if len(ids) != len(want) {
		t.Fatalf("ожидали %d элементов, получили %d: %v", len(want), len(ids), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("позиция %d: ожидали %s, получили %s (%v)", i, want[i], ids[i], ids)
		}
	}
}

func TestSelectBalancedDeterministic(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	pool := []domain.QueueItem{
		pendingItem("young", "s1", 5, base.Add(time.Hour)),
		pendingItem("old", "s2", 5, base),
		pendingItem("top", "s3", 9, base),
	}
	first, err := SelectBalanced(pool, 3)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := SelectBalanced(pool, 3)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("результат недетерминирован: %v vs %v", first, again)
			}
		}
	}
	// При равной оценке побеждает более старый элемент.
	if first[0] != "top" || first[1] != "old" || first[2] != "young" {
		t.Fatalf("неверный порядок: %v", first)
	}
}

func TestSelectBalancedEmptyPool(t *testing.T) {
	ids, err := SelectBalanced(nil, 5)
	if err != nil {
		t.Fatalf("пустой пул не должен быть ошибкой: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ожидали пустую выборку")
	}
}

func TestSelectBalancedRejectsNonPositiveMax(t *testing.T) {
	_, err := SelectBalanced([]domain.QueueItem{pendingItem("a", "s", 1, time.Now())}, 0)
	if err == nil {
		t.Fatalf("maxItems=0 обязан отклоняться")
	}
}

func TestSelectBalancedIgnoresNonPending(t *testing.T) {
	base := time.Now()
	selected := pendingItem("sel", "s1", 9, base)
	selected.Status = domain.StatusSelected
	pool := []domain.QueueItem{selected, pendingItem("pen", "s1", 1, base)}
	ids, err := SelectBalanced(pool, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(ids) != 1 || ids[0] != "pen" {
		t.Fatalf("в выборку попадают только pending: %v", ids)
	}
}

func TestSelectBalancedQuotaWithAlternatives(t *testing.T) {
	base := time.Now()
	// Доминирующий источник упирается в квоту, пока есть альтернативы.
	pool := []domain.QueueItem{
		pendingItem("a1", "big", 9, base),
		pendingItem("a2", "big", 8, base),
		pendingItem("a3", "big", 7, base),
		pendingItem("c1", "c", 6, base),
		pendingItem("d1", "d", 5, base),
		pendingItem("e1", "e", 4, base),
		pendingItem("f1", "f", 3, base),
	}
	ids, err := SelectBalanced(pool, 5)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	bigCount := 0
	for _, id := range ids {
		if id == "a1" || id == "a2" || id == "a3" {
			bigCount++
		}
	}
	if bigCount > 1 {
		t.Fatalf("источник big превысил квоту: %v", ids)
	}
	if len(ids) != 5 {
		t.Fatalf("ожидали полную выборку из 5, получили %v", ids)
	}
}

func TestDistributionExcludesTerminal(t *testing.T) {
	now := time.Now()
	used := pendingItem("u", "s1", 1, now)
	used.Status = domain.StatusUsed
	expired := pendingItem("e", "s2", 1, now)
	expired.Status = domain.StatusExpired
	pool := []domain.QueueItem{
		pendingItem("p1", "s1", 1, now),
		pendingItem("p2", "s1", 1, now),
		pendingItem("p3", "s2", 1, now),
		used,
		expired,
	}
	dist := Distribution(pool)
	if len(dist) != 2 {
		t.Fatalf("ожидали 2 источника, получили %d", len(dist))
	}
	if dist[0].SourceID != "s1" || dist[0].ItemCount != 2 {
		t.Fatalf("ожидали s1 с 2 активными: %+v", dist[0])
	}
	if dist[0].Percentage != 2.0/3.0 {
		t.Fatalf("знаменатель — только активные элементы: %v", dist[0].Percentage)
	}
	if !dist[0].OverCap {
		t.Fatalf("s1 с долей 66%% должен быть помечен")
	}
	if !dist[1].OverCap {
		t.Fatalf("s2 с долей 1/3 тоже превышает порог 0.30")
	}
	if dist[0].UsedCount != 1 {
		t.Fatalf("used учитывается в счётчике источника, но не в знаменателе")
	}
}

func TestDistributionRecomputedAfterExpire(t *testing.T) {
	now := time.Now()
	expiring := pendingItem("x", "s2", 1, now)
	pool := []domain.QueueItem{pendingItem("p", "s1", 1, now), expiring}
	before := Distribution(pool)
	if len(before) != 2 {
		t.Fatalf("ожидали два источника до истечения")
	}

	expiring.Status = domain.StatusExpired
	after := Distribution([]domain.QueueItem{pool[0], expiring})
	if len(after) != 1 {
		t.Fatalf("истёкший элемент должен покидать распределение")
	}
	if after[0].Percentage != 1.0 {
		t.Fatalf("оставшийся источник занимает весь знаменатель")
	}
}

type stubQueueRepo struct {
	pending []domain.QueueItem
	all     []domain.QueueItem
}

func (s *stubQueueRepo) InsertItems(context.Context, []domain.QueueItem) error { return nil }
func (s *stubQueueRepo) GetItem(context.Context, string) (domain.QueueItem, error) {
	return domain.QueueItem{}, domain.ErrNotFound
}
func (s *stubQueueRepo) ListActive(context.Context) ([]domain.QueueItem, error) { return s.all, nil }
func (s *stubQueueRepo) ListPending(context.Context) ([]domain.QueueItem, error) {
	return s.pending, nil
}
func (s *stubQueueRepo) ListItems(context.Context, domain.ItemFilter) ([]domain.QueueItem, error) {
	return s.all, nil
}
func (s *stubQueueRepo) ExistingSourceItemIDs(context.Context, []string) (map[string]bool, error) {
	return nil, nil
}
func (s *stubQueueRepo) SelectItems(context.Context, []string) error { return nil }
func (s *stubQueueRepo) SkipItems(context.Context, []string, string) error { return nil }
func (s *stubQueueRepo) ResetItem(context.Context, string) error { return nil }
func (s *stubQueueRepo) ExpireDue(context.Context, time.Time) (int, error) { return 0, nil }
func (s *stubQueueRepo) MarkUsed(context.Context, []string) (int, error) { return 0, nil }

func TestProposeReturnsRankedItems(t *testing.T) {
	base := time.Now()
	repo := &stubQueueRepo{pending: []domain.QueueItem{
		pendingItem("low", "s1", 1, base),
		pendingItem("high", "s2", 9, base),
	}}
	service := NewService(repo)
	items, err := service.Propose(context.Background(), 2)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 2 || items[0].ID != "high" || items[1].ID != "low" {
		t.Fatalf("ожидали порядок по оценке: %+v", items)
	}
}

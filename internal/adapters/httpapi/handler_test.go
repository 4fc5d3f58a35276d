package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/usecase/lifecycle"
	"editorial-queue/internal/usecase/selection"
)

type stubQueueRepo struct {
	items map[string]domain.QueueItem
}

func newStubQueueRepo(items ...domain.QueueItem) *stubQueueRepo {
	repo := &stubQueueRepo{items: make(map[string]domain.QueueItem)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (s *stubQueueRepo) InsertItems(context.Context, []domain.QueueItem) error { return nil }

func (s *stubQueueRepo) GetItem(_ context.Context, id string) (domain.QueueItem, error) {
	item, ok := s.items[id]
	if !ok {
		return domain.QueueItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (s *stubQueueRepo) ListActive(context.Context) ([]domain.QueueItem, error) {
	return s.list(func(i domain.QueueItem) bool { return i.Status.Active() }), nil
}

func (s *stubQueueRepo) ListPending(context.Context) ([]domain.QueueItem, error) {
	return s.list(func(i domain.QueueItem) bool { return i.Status == domain.StatusPending }), nil
}

func (s *stubQueueRepo) ListItems(context.Context, domain.ItemFilter) ([]domain.QueueItem, error) {
	return s.list(func(domain.QueueItem) bool { return true }), nil
}

func (s *stubQueueRepo) list(keep func(domain.QueueItem) bool) []domain.QueueItem {
	var out []domain.QueueItem
	for _, item := range s.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func (s *stubQueueRepo) ExistingSourceItemIDs(context.Context, []string) (map[string]bool, error) {
	return nil, nil
}

func (s *stubQueueRepo) SelectItems(_ context.Context, ids []string) error {
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok {
			return domain.ErrNotFound
		}
		if item.Status != domain.StatusPending {
			return domain.ErrConflict
		}
	}
	for rank, id := range ids {
		item := s.items[id]
		item.Status = domain.StatusSelected
		r := rank + 1
		item.SelectionRank = &r
		s.items[id] = item
	}
	return nil
}

func (s *stubQueueRepo) SkipItems(_ context.Context, ids []string, reason string) error {
	for _, id := range ids {
		item := s.items[id]
		item.Status = domain.StatusSkipped
		item.SkipReason = &reason
		s.items[id] = item
	}
	return nil
}

func (s *stubQueueRepo) ResetItem(_ context.Context, id string) error {
	item, ok := s.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if item.Status != domain.StatusSelected {
		return domain.ErrConflict
	}
	item.Status = domain.StatusPending
	item.SelectionRank = nil
	s.items[id] = item
	return nil
}

func (s *stubQueueRepo) ExpireDue(context.Context, time.Time) (int, error) { return 0, nil }

func (s *stubQueueRepo) MarkUsed(_ context.Context, ids []string) (int, error) {
	count := 0
	for _, id := range ids {
		item, ok := s.items[id]
		if ok && item.Status == domain.StatusSelected {
			item.Status = domain.StatusUsed
			s.items[id] = item
			count++
		}
	}
	return count, nil
}

type stubThumbRepo struct{}

func (stubThumbRepo) ListByPost(context.Context, string) ([]domain.Thumbnail, error) {
	return nil, nil
}
func (stubThumbRepo) UpdateArticleIndex(context.Context, string, int) error { return nil }
func (stubThumbRepo) UpdateLink(context.Context, string, string, int) error { return nil }
func (stubThumbRepo) Delete(context.Context, string) error { return nil }
func (stubThumbRepo) DeleteByQueueItem(context.Context, string) (int, error) {
	return 0, nil
}

type stubJobQueue struct {
	enqueued []domain.ReindexJob
}

func (s *stubJobQueue) Enqueue(_ context.Context, job domain.ReindexJob) error {
	s.enqueued = append(s.enqueued, job)
	return nil
}

func (s *stubJobQueue) Receive(context.Context) (domain.ReindexJob, domain.ReindexAckFunc, error) {
	return domain.ReindexJob{}, nil, context.Canceled
}

func pendingItem(id, sourceID string, score float64) domain.QueueItem {
	return domain.QueueItem{
		ID:             id,
		Title:          "t-" + id,
		SourceID:       sourceID,
		SourceItemID:   "ext-" + id,
		SynthesisScore: score,
		Status:         domain.StatusPending,
		QueuedAt:       time.Now().UTC(),
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
	}
}

func newTestRouter(repo *stubQueueRepo, jobs domain.ReindexQueue) chi.Router {
	sel := selection.NewService(repo)
	lc := lifecycle.NewService(repo, stubThumbRepo{}, zerolog.Nop())
	h := NewHandler(sel, lc, nil, nil, jobs, 10, zerolog.Nop())
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestSelectConflictMapsTo409(t *testing.T) {
	selected := pendingItem("b", "s1", 5)
	selected.Status = domain.StatusSelected
	repo := newStubQueueRepo(pendingItem("a", "s1", 7), selected)
	router := newTestRouter(repo, nil)

	req := httptest.NewRequest(http.MethodPost, "/queue/select", strings.NewReader(`{"ids":["a","b"]}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("ожидали 409, получили %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetItemNotFound(t *testing.T) {
	router := newTestRouter(newStubQueueRepo(), nil)

	req := httptest.NewRequest(http.MethodGet, "/queue/items/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("ожидали 404, получили %d", rec.Code)
	}
}

func TestProposalReturnsRankedItems(t *testing.T) {
	repo := newStubQueueRepo(
		pendingItem("low", "s1", 2),
		pendingItem("high", "s2", 9),
	)
	router := newTestRouter(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/queue/proposal?max_items=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Items []itemResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "high" {
		t.Fatalf("выборка должна идти по убыванию итоговой оценки: %+v", resp.Items)
	}
}

func TestProposalRejectsBadMaxItems(t *testing.T) {
	router := newTestRouter(newStubQueueRepo(), nil)

	req := httptest.NewRequest(http.MethodGet, "/queue/proposal?max_items=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
}

func TestResetEnqueuesReindexJob(t *testing.T) {
	selected := pendingItem("a", "s1", 5)
	selected.Status = domain.StatusSelected
	repo := newStubQueueRepo(selected)
	jobs := &stubJobQueue{}
	router := newTestRouter(repo, jobs)

	req := httptest.NewRequest(http.MethodPost, "/queue/items/a/reset", strings.NewReader(`{"post_id":"post-7"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	if len(jobs.enqueued) != 1 {
		t.Fatalf("отзыв элемента из статьи обязан ставить задачу сверки")
	}
	job := jobs.enqueued[0]
	if job.PostID != "post-7" || job.Cause != domain.ReindexCauseItemReset {
		t.Fatalf("неожиданная задача сверки: %+v", job)
	}
	if job.ID == "" {
		t.Fatalf("задача сверки обязана нести идентификатор для идемпотентной доставки")
	}
}

func TestDistributionEndpoint(t *testing.T) {
	repo := newStubQueueRepo(
		pendingItem("a", "s1", 5),
		pendingItem("b", "s1", 5),
		pendingItem("c", "s2", 5),
	)
	router := newTestRouter(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/queue/distribution", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var resp struct {
		Sources []domain.SourceDistribution `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("разбор ответа: %v", err)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("ожидали 2 источника, получили %d", len(resp.Sources))
	}
	if resp.Sources[0].SourceID != "s1" || !resp.Sources[0].OverCap {
		t.Fatalf("источник с долей 2/3 обязан быть помечен как превышающий порог: %+v", resp.Sources[0])
	}
}

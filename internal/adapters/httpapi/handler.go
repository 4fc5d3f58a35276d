package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/usecase/importer"
	"editorial-queue/internal/usecase/lifecycle"
	"editorial-queue/internal/usecase/relink"
	"editorial-queue/internal/usecase/selection"
)

// Handler — админский HTTP API редакционной очереди.
type Handler struct {
	selection *selection.Service
	lifecycle *lifecycle.Service
	importer  *importer.Service
	relink    *relink.Service
	jobs      domain.ReindexQueue
	maxItems  int
	log       zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(sel *selection.Service, lc *lifecycle.Service, imp *importer.Service, rel *relink.Service, jobs domain.ReindexQueue, maxItems int, logger zerolog.Logger) *Handler {
	return &Handler{selection: sel, lifecycle: lc, importer: imp, relink: rel, jobs: jobs, maxItems: maxItems, log: logger}
}

// Register вешает маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Get("/items", h.listItems)
		r.Get("/items/{id}", h.getItem)
		r.Post("/items/{id}/reset", h.resetItem)
		r.Get("/distribution", h.distribution)
		r.Get("/proposal", h.proposal)
		r.Post("/select", h.selectItems)
		r.Post("/skip", h.skipItems)
		r.Post("/mark-used", h.markUsed)
	})
	r.Route("/import", func(r chi.Router) {
		r.Post("/raw", h.importRaw)
		r.Post("/synthesis", h.importSynthesis)
	})
	r.Post("/posts/{id}/reindex", h.reindexPost)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("api: не удалось записать ответ")
	}
}

// writeError сопоставляет доменные ошибки с HTTP статусами.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

type itemResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Excerpt         string  `json:"excerpt"`
	SourceID        string  `json:"source_id"`
	SourceName      *string `json:"source_name,omitempty"`
	SourceURL       *string `json:"source_url,omitempty"`
	SynthesisScore  float64 `json:"synthesis_score"`
	RelevanceScore  float64 `json:"relevance_score"`
	UniquenessScore float64 `json:"uniqueness_score"`
	TotalScore      float64 `json:"total_score"`
	Status          string  `json:"status"`
	QueuedAt        string  `json:"queued_at"`
	ExpiresAt       string  `json:"expires_at"`
	SkipReason      *string `json:"skip_reason,omitempty"`
	SelectionRank   *int    `json:"selection_rank,omitempty"`
}

func toItemResponse(item domain.QueueItem) itemResponse {
	return itemResponse{
		ID:              item.ID,
		Title:           item.Title,
		Excerpt:         item.Excerpt,
		SourceID:        item.SourceID,
		SourceName:      item.SourceName,
		SourceURL:       item.SourceURL,
		SynthesisScore:  item.SynthesisScore,
		RelevanceScore:  item.RelevanceScore,
		UniquenessScore: item.UniquenessScore,
		TotalScore:      item.TotalScore(),
		Status:          string(item.Status),
		QueuedAt:        item.QueuedAt.UTC().Format(time.RFC3339),
		ExpiresAt:       item.ExpiresAt.UTC().Format(time.RFC3339),
		SkipReason:      item.SkipReason,
		SelectionRank:   item.SelectionRank,
	}
}

func toItemResponses(items []domain.QueueItem) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	return out
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	filter := domain.ItemFilter{SourceID: r.URL.Query().Get("source_id")}
	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		raw = strings.TrimSpace(raw)
		if raw != "" {
			filter.Statuses = append(filter.Statuses, domain.ItemStatus(raw))
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	items, err := h.selection.ListItems(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": toItemResponses(items)})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.selection.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) distribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.selection.Distribution(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sources": dist})
}

func (h *Handler) proposal(w http.ResponseWriter, r *http.Request) {
	maxItems := h.maxItems
	if v := r.URL.Query().Get("max_items"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, domain.ErrValidation)
			return
		}
		maxItems = n
	}
	items, err := h.selection.Propose(r.Context(), maxItems)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": toItemResponses(items)})
}

type idsRequest struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason,omitempty"`
}

func (h *Handler) selectItems(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrValidation)
		return
	}
	if err := h.lifecycle.Select(r.Context(), req.IDs); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"selected": len(req.IDs)})
}

func (h *Handler) skipItems(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrValidation)
		return
	}
	if err := h.lifecycle.Skip(r.Context(), req.IDs, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"skipped": len(req.IDs)})
}

func (h *Handler) markUsed(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrValidation)
		return
	}
	marked, err := h.lifecycle.MarkUsed(r.Context(), req.IDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"marked": marked})
}

type resetRequest struct {
	PostID string `json:"post_id,omitempty"`
}

func (h *Handler) resetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req resetRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := h.lifecycle.ResetItem(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	// Если элемент уже попал в статью, отзыв требует сверки её иллюстраций.
	if req.PostID != "" && h.jobs != nil {
		job := domain.ReindexJob{
			ID:          uuid.NewString(),
			PostID:      req.PostID,
			RequestedAt: time.Now().UTC(),
			Cause:       domain.ReindexCauseItemReset,
		}
		if err := h.jobs.Enqueue(r.Context(), job); err != nil {
			h.log.Error().Err(err).Str("post", req.PostID).Msg("api: не удалось поставить задачу сверки")
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}

type importRequest struct {
	Date string `json:"date"`
}

func (h *Handler) parseImportDate(r *http.Request) (time.Time, error) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return time.Time{}, domain.ErrValidation
	}
	if req.Date == "" {
		return time.Now().UTC(), nil
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return time.Time{}, domain.ErrValidation
	}
	return date, nil
}

func (h *Handler) importRaw(w http.ResponseWriter, r *http.Request) {
	date, err := h.parseImportDate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	report, err := h.importer.ImportRaw(r.Context(), date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) importSynthesis(w http.ResponseWriter, r *http.Request) {
	date, err := h.parseImportDate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	report, err := h.importer.ImportSynthesis(r.Context(), date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// reindexPost ставит задачу сверки в очередь; с ?sync=1 выполняет её сразу
// и возвращает отчёт.
func (h *Handler) reindexPost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")
	if r.URL.Query().Get("sync") == "1" {
		report, err := h.relink.Reindex(r.Context(), postID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, report)
		return
	}

	if h.jobs == nil {
		h.writeError(w, errors.New("очередь задач сверки не настроена"))
		return
	}
	job := domain.ReindexJob{
		ID:          uuid.NewString(),
		PostID:      postID,
		RequestedAt: time.Now().UTC(),
		Cause:       domain.ReindexCauseManual,
	}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

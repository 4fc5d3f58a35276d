package candidates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// SynthesisClient читает оценённых LLM кандидатов из внешнего сервиса синтеза.
type SynthesisClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.SynthesisSource = (*SynthesisClient)(nil)

// NewSynthesisClient создаёт клиент сервиса синтеза.
func NewSynthesisClient(baseURL string, timeout time.Duration) *SynthesisClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SynthesisClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type synthesisItem struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Excerpt          string  `json:"excerpt"`
	Content          string  `json:"content"`
	SourceID         string  `json:"source_id"`
	SourceName       string  `json:"source_name"`
	SourceURL        string  `json:"source_url"`
	OriginalityScore float64 `json:"originality_score"`
	RelevanceScore   float64 `json:"relevance_score"`
	SynthesisType    string  `json:"synthesis_type"`
	Reasoning        string  `json:"reasoning"`
}

// FetchSynthesis возвращает кандидатов за дату.
func (c *SynthesisClient) FetchSynthesis(ctx context.Context, date time.Time) ([]domain.SynthesisCandidate, error) {
	endpoint := fmt.Sprintf("%s/candidates?date=%s", c.baseURL, url.QueryEscape(date.UTC().Format("2006-01-02")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("synthesis", "fetch_candidates", "synthesis", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: synthesis status %d: %s", domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Candidates []synthesisItem `json:"candidates"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candidates := make([]domain.SynthesisCandidate, 0, len(parsed.Candidates))
	for _, item := range parsed.Candidates {
		candidates = append(candidates, domain.SynthesisCandidate{
			SourceItemID:     item.ID,
			Title:            item.Title,
			Excerpt:          item.Excerpt,
			Content:          item.Content,
			SourceID:         item.SourceID,
			SourceName:       item.SourceName,
			SourceURL:        item.SourceURL,
			OriginalityScore: item.OriginalityScore,
			RelevanceScore:   item.RelevanceScore,
			SynthesisType:    item.SynthesisType,
			Reasoning:        item.Reasoning,
		})
	}
	return candidates, nil
}

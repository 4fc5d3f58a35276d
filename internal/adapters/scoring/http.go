package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// UniquenessClient запрашивает у внешнего сервиса оценку непохожести
// материала на недавнюю историю публикаций.
type UniquenessClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.UniquenessScorer = (*UniquenessClient)(nil)

// NewUniquenessClient создаёт клиент сервиса оценки уникальности.
func NewUniquenessClient(baseURL string, timeout time.Duration) *UniquenessClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &UniquenessClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ScoreUniqueness возвращает оценку 0–10; больше — менее похож на историю.
func (c *UniquenessClient) ScoreUniqueness(ctx context.Context, title, content string) (float64, error) {
	body, err := json.Marshal(map[string]string{
		"title":   title,
		"content": content,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("uniqueness", "score", "uniqueness", start, err)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("%w: uniqueness status %d: %s", domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Score < 0 || parsed.Score > 10 {
		return 0, fmt.Errorf("%w: оценка %f вне диапазона 0–10", domain.ErrUpstream, parsed.Score)
	}
	return parsed.Score, nil
}

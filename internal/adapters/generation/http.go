package generation

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

// Notifier передаёт генератору изображений секции статьи без иллюстраций.
type Notifier struct {
	notifyURL  string
	httpClient *http.Client
}

var _ domain.GenerationNotifier = (*Notifier)(nil)

// NewNotifier создаёт клиент генератора изображений.
func NewNotifier(notifyURL string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Notifier{notifyURL: notifyURL, httpClient: &http.Client{Timeout: timeout}}
}

type missingSection struct {
	Index       int    `json:"index"`
	Heading     string `json:"heading"`
	QueueItemID string `json:"queue_item_id,omitempty"`
}

// RequestThumbnails запрашивает генерацию иллюстраций для перечисленных секций.
func (n *Notifier) RequestThumbnails(ctx context.Context, postID string, missing []domain.MissingArticle) error {
	if len(missing) == 0 {
		return nil
	}

	sections := make([]missingSection, 0, len(missing))
	for _, m := range missing {
		sections = append(sections, missingSection{Index: m.Index, Heading: m.Heading, QueueItemID: m.QueueItemID})
	}
	body, err := json.Marshal(map[string]any{
		"post_id":  postID,
		"sections": sections,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.notifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	metrics.ObserveNetworkRequest("generation", "request_thumbnails", "generation", start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: generation status %d: %s", domain.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

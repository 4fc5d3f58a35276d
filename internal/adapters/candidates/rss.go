package candidates

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"editorial-queue/internal/domain"
	"editorial-queue/internal/infra/metrics"
)

// RSSSource собирает сырые материалы из набора RSS/Atom лент.
// Лента — это источник: идентификатор выводится из хоста ленты.
type RSSSource struct {
	feeds  []string
	parser *gofeed.Parser
}

var _ domain.RawSource = (*RSSSource)(nil)

// NewRSSSource создаёт источник по списку адресов лент.
func NewRSSSource(feeds []string) *RSSSource {
	return &RSSSource{feeds: feeds, parser: gofeed.NewParser()}
}

// FetchRaw возвращает материалы всех лент, опубликованные в указанную дату.
// Недоступная лента не срывает запуск: остальные ленты обрабатываются,
// ошибка возвращается только если не удалась ни одна.
func (s *RSSSource) FetchRaw(ctx context.Context, date time.Time) ([]domain.RawCandidate, error) {
	day := date.UTC().Truncate(24 * time.Hour)

	var (
		candidates []domain.RawCandidate
		lastErr    error
		succeeded  int
	)
	for _, feedURL := range s.feeds {
		start := time.Now()
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		metrics.ObserveNetworkRequest("rss", "fetch_feed", feedHost(feedURL), start, err)
		if err != nil {
			lastErr = fmt.Errorf("лента %s: %w", feedURL, err)
			continue
		}
		succeeded++

		sourceID := feedHost(feedURL)
		for _, item := range feed.Items {
			published := itemPublished(item)
			if published.IsZero() || !published.UTC().Truncate(24*time.Hour).Equal(day) {
				continue
			}
			candidates = append(candidates, domain.RawCandidate{
				SourceItemID: itemID(item),
				Title:        strings.TrimSpace(item.Title),
				Excerpt:      strings.TrimSpace(item.Description),
				Content:      strings.TrimSpace(item.Content),
				SourceID:     sourceID,
				SourceName:   feed.Title,
				SourceURL:    item.Link,
			})
		}
	}
	if succeeded == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, lastErr)
	}
	return candidates, nil
}

func itemPublished(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func itemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

func feedHost(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	return u.Host
}

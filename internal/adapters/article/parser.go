package article

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"editorial-queue/internal/domain"
)

// Разметка авторской статьи: каждая секция начинается с h2.
// Стабильный идентификатор элемента очереди встроен в заголовок атрибутом
// data-queue-item-id; авторские колонки помечены data-synthesis и не иллюстрируются.
const (
	headingSelector = "h2"
	queueItemIDAttr = "data-queue-item-id"
	synthesisAttr   = "data-synthesis"
)

// Parser разбирает авторский HTML в упорядоченный список секций.
type Parser struct{}

var _ domain.ArticleParser = (*Parser)(nil)

// NewParser создаёт парсер структуры статьи.
func NewParser() *Parser {
	return &Parser{}
}

// ParseSections возвращает секции статьи в авторском порядке.
// Index — порядковый номер секции в документе, пересчитывается при каждом разборе.
func (p *Parser) ParseSections(html string) ([]domain.ArticleSection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("разбор HTML: %w", err)
	}

	var sections []domain.ArticleSection
	doc.Find(headingSelector).Each(func(i int, sel *goquery.Selection) {
		section := domain.ArticleSection{
			Index:   i,
			Heading: strings.TrimSpace(sel.Text()),
		}
		if id, ok := sel.Attr(queueItemIDAttr); ok {
			section.QueueItemID = strings.TrimSpace(id)
		}
		if flag, ok := sel.Attr(synthesisAttr); ok && flag != "false" {
			section.Synthesis = true
		}
		sections = append(sections, section)
	})
	return sections, nil
}

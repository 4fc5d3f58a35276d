package article

import (
	"testing"
)

func TestParseSectionsOrderAndIDs(t *testing.T) {
	html := `
<article>
  <h2 data-queue-item-id="item-a">Первая секция</h2>
  <p>текст</p>
  <h2 data-queue-item-id="item-b">Вторая секция</h2>
  <p>текст</p>
  <h2 data-synthesis="true">Авторская колонка</h2>
  <p>текст</p>
</article>`

	sections, err := NewParser().ParseSections(html)
	if err != nil {
		t.Fatalf("ParseSections: %v", err)
	}
	if len(sections) != 3 {
		t.Fatalf("ожидал 3 секции, получил %d", len(sections))
	}
	if sections[0].Index != 0 || sections[0].QueueItemID != "item-a" || sections[0].Heading != "Первая секция" {
		t.Fatalf("неожиданная первая секция: %+v", sections[0])
	}
	if sections[1].Index != 1 || sections[1].QueueItemID != "item-b" {
		t.Fatalf("неожиданная вторая секция: %+v", sections[1])
	}
	if !sections[2].Synthesis {
		t.Fatalf("секция с data-synthesis должна быть помечена как авторская")
	}
	if sections[2].QueueItemID != "" {
		t.Fatalf("авторская колонка не несёт идентификатора очереди")
	}
}

func TestParseSectionsWithoutID(t *testing.T) {
	// Легаси-статья без стабильных идентификаторов: секции возвращаются
	// с пустым QueueItemID, сверка сопоставляет их по позиции.
	sections, err := NewParser().ParseSections(`<h2>Старый заголовок</h2>`)
	if err != nil {
		t.Fatalf("ParseSections: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("ожидал 1 секцию, получил %d", len(sections))
	}
	if sections[0].QueueItemID != "" {
		t.Fatalf("ожидал пустой идентификатор, получил %q", sections[0].QueueItemID)
	}
}

func TestParseSectionsEmptyDocument(t *testing.T) {
	sections, err := NewParser().ParseSections("<p>статья без заголовков</p>")
	if err != nil {
		t.Fatalf("ParseSections: %v", err)
	}
	if len(sections) != 0 {
		t.Fatalf("ожидал пустой список, получил %d секций", len(sections))
	}
}

func TestParseSectionsTrimsWhitespace(t *testing.T) {
	sections, err := NewParser().ParseSections(`<h2 data-queue-item-id=" item-x ">  Заголовок  </h2>`)
	if err != nil {
		t.Fatalf("ParseSections: %v", err)
	}
	if sections[0].QueueItemID != "item-x" {
		t.Fatalf("идентификатор не очищен от пробелов: %q", sections[0].QueueItemID)
	}
	if sections[0].Heading != "Заголовок" {
		t.Fatalf("заголовок не очищен от пробелов: %q", sections[0].Heading)
	}
}

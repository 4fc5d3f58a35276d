package domain

import "time"

// ItemStatus описывает состояние элемента очереди.
type ItemStatus string

const (
	// StatusPending — элемент ожидает редакторского решения.
	StatusPending ItemStatus = "pending"
	// StatusSelected — элемент отобран в выпуск, но ещё не опубликован.
	StatusSelected ItemStatus = "selected"
	// StatusUsed — элемент использован в опубликованной статье. Терминальный статус.
	StatusUsed ItemStatus = "used"
	// StatusExpired — элемент истёк по TTL.
	StatusExpired ItemStatus = "expired"
	// StatusSkipped — элемент отклонён редактором с указанием причины.
	StatusSkipped ItemStatus = "skipped"
)

// Active сообщает, входит ли статус в активный пул (знаменатель распределения).
func (s ItemStatus) Active() bool {
	return s == StatusPending || s == StatusSelected
}

// DiversityCap — максимально допустимая доля одного источника
// в активном пуле и в сбалансированной выборке.
const DiversityCap = 0.30

// Веса слагаемых итоговой оценки. Формула нигде не дублируется:
// любой расчёт итоговой оценки проходит через TotalScore.
const (
	weightSynthesis  = 0.4
	weightRelevance  = 0.3
	weightUniqueness = 0.3
)

// TotalScore возвращает итоговую оценку из трёх компонент.
func TotalScore(synthesis, relevance, uniqueness float64) float64 {
	return weightSynthesis*synthesis + weightRelevance*relevance + weightUniqueness*uniqueness
}

// QueueItem — оценённый кандидат, ожидающий редакторского отбора.
type QueueItem struct {
	ID              string
	Title           string
	Excerpt         string
	Content         *string
	SourceID        string
	SourceName      *string
	SourceURL       *string
	SourceItemID    string
	SynthesisScore  float64
	RelevanceScore  float64
	UniquenessScore float64
	Status          ItemStatus
	QueuedAt        time.Time
	ExpiresAt       time.Time
	SkipReason      *string
	SelectionRank   *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TotalScore возвращает итоговую оценку элемента.
func (i QueueItem) TotalScore() float64 {
	return TotalScore(i.SynthesisScore, i.RelevanceScore, i.UniquenessScore)
}

// SourceDistribution — доля источника в активном пуле.
// Производная величина: пересчитывается по запросу и никогда не кэшируется.
type SourceDistribution struct {
	SourceID      string
	SourceName    string
	ItemCount     int
	PendingCount  int
	SelectedCount int
	UsedCount     int
	Percentage    float64
	OverCap       bool
}

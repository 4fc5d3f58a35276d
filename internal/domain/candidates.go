package domain

// RawCandidate — сырой собранный материал внешнего источника за дату.
type RawCandidate struct {
	SourceItemID string
	Title        string
	Excerpt      string
	Content      string
	SourceID     string
	SourceName   string
	SourceURL    string
}

// SynthesisCandidate — кандидат, оценённый внешней LLM.
type SynthesisCandidate struct {
	SourceItemID     string
	Title            string
	Excerpt          string
	Content          string
	SourceID         string
	SourceName       string
	SourceURL        string
	OriginalityScore float64
	RelevanceScore   float64
	SynthesisType    string
	Reasoning        string
}

// ImportReport — результат одного запуска импорта.
// Failed содержит идентификаторы кандидатов, пропущенных из-за сбоев внешних
// сервисов: они не создаются с нулевой оценкой и повторяются на следующем запуске.
type ImportReport struct {
	Added   int
	Skipped int
	Failed  []string
}

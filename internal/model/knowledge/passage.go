package knowledge

import "fmt"

// Passage is a document excerpt returned by the retrieval service.
type Passage struct {
	ChunkID   int     `json:"chunkId"`
	Source    string  `json:"source"`
	Page      int     `json:"page"`
	Text      string  `json:"text"`
	Excerpt   string  `json:"excerpt"`
	Score     float64 `json:"score"`
	CharStart int     `json:"charStart"`
	CharEnd   int     `json:"charEnd"`
}

// Location renders a human readable location hint such as "151.pdf p4".
func (p Passage) Location() string {
	if p.Page > 0 {
		return fmt.Sprintf("%s p%d", p.Source, p.Page)
	}
	return p.Source
}

// Citation points the reader back to a passage that supported a reply.
type Citation struct {
	Source  string  `json:"source"`
	Page    int     `json:"page,omitempty"`
	Excerpt string  `json:"excerpt,omitempty"`
	Score   float64 `json:"score"`
}

// Cite converts a passage into its citation form.
func (p Passage) Cite() Citation {
	return Citation{
		Source:  p.Source,
		Page:    p.Page,
		Excerpt: p.Excerpt,
		Score:   p.Score,
	}
}

// Package extract defines the extraction collaborator: the wire contract
// for pulling text out of rectangular PDF regions, an HTTP client for a
// remote extraction service, and a local in-process extractor.
package extract

import "context"

// Selection is one region to extract, in normalized page space (origin
// bottom-left, Y up). PageWidth/PageHeight are the page's own dimensions
// so the extractor can clamp and flip correctly.
type Selection struct {
	Page       int     `json:"page"`
	X1         float64 `json:"pdf_x1"`
	Y1         float64 `json:"pdf_y1"`
	X2         float64 `json:"pdf_x2"`
	Y2         float64 `json:"pdf_y2"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
	FieldID    string  `json:"field_id,omitempty"`
}

// Options control text post-processing. The per-field-class defaults come
// from OptionsForClass; they are a fixed table, not user-configurable.
type Options struct {
	FixHyphenation bool `json:"fix_hyphenation"`
	StripPrefix    bool `json:"strip_prefix"`
	JoinLines      bool `json:"join_lines"`
	MergeByField   bool `json:"merge_by_field"`
}

// Request is the extraction request payload.
type Request struct {
	PDFFile    string      `json:"pdf_file"`
	Selections []Selection `json:"selections"`
	Options    Options     `json:"options"`
}

// Extracted is the text pulled from one selection, positionally aligned
// with the request's selections.
type Extracted struct {
	FieldID string `json:"field_id,omitempty"`
	Page    int    `json:"page"`
	Text    string `json:"text"`
}

// Response is the extraction response payload.
type Response struct {
	Success   bool              `json:"success"`
	Extracted []Extracted       `json:"extracted"`
	Merged    map[string]string `json:"merged,omitempty"`
}

// Extractor pulls text out of PDF regions. Implementations: Client (remote
// service) and Local (in-process).
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Response, error)
}

// MergeByField concatenates multi-region extractions per field in
// (field, page) order, one region per line. Empty texts are skipped.
func MergeByField(items []Extracted) map[string]string {
	grouped := make(map[string][]Extracted)
	for _, it := range items {
		if it.FieldID == "" || it.Text == "" {
			continue
		}
		grouped[it.FieldID] = append(grouped[it.FieldID], it)
	}

	out := make(map[string]string, len(grouped))
	for field, group := range grouped {
		// Items arrive in request order within a field; order across
		// pages follows the page index.
		sorted := make([]Extracted, len(group))
		copy(sorted, group)
		for i := 1; i < len(sorted); i++ {
			for j := i; j > 0 && sorted[j].Page < sorted[j-1].Page; j-- {
				sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
			}
		}

		text := ""
		for _, it := range sorted {
			if text != "" {
				text += "\n"
			}
			text += it.Text
		}
		out[field] = text
	}
	return out
}

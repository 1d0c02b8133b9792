package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/metabib/pdf-markup/internal/geom"
)

const (
	// Region padding in points: drawn rectangles tend to clip glyph edges.
	localPadX = 5.0
	localPadY = 3.0

	// Fragments within this vertical distance belong to the same line.
	localLineTolerance = 5.0
)

// Local extracts text in-process from positioned page fragments. It is
// used when no remote extraction service is configured.
type Local struct {
	logger *slog.Logger
}

// NewLocal creates the in-process extractor.
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{logger: logger}
}

// Extract pulls text from every selection of the request. The result is
// positionally aligned with the selections; regions that yield nothing
// produce an empty text rather than a hole.
func (l *Local) Extract(ctx context.Context, req Request) (*Response, error) {
	if req.PDFFile == "" {
		return nil, fmt.Errorf("pdf file cannot be empty")
	}
	if len(req.Selections) == 0 {
		return nil, fmt.Errorf("no selections to extract")
	}

	f, reader, err := pdf.Open(req.PDFFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	extracted := make([]Extracted, 0, len(req.Selections))

	for _, sel := range req.Selections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := Extracted{FieldID: sel.FieldID, Page: sel.Page}

		pageNum := sel.Page
		if pageNum < 0 {
			// Negative indices count from the end, -1 being the last page.
			pageNum = total + pageNum
		}
		if pageNum < 0 || pageNum >= total {
			l.logger.Warn("selection page out of range",
				"page", sel.Page, "total_pages", total)
			extracted = append(extracted, item)
			continue
		}

		text := l.regionText(reader.Page(pageNum+1), sel)
		item.Text = Normalize(text, sel.FieldID, req.Options)
		extracted = append(extracted, item)
	}

	resp := &Response{Success: true, Extracted: extracted}
	if req.Options.MergeByField {
		resp.Merged = MergeByField(extracted)
	}
	return resp, nil
}

// regionText assembles the text fragments whose baselines fall inside the
// padded selection rectangle into lines, top to bottom.
func (l *Local) regionText(page pdf.Page, sel Selection) string {
	content := page.Content()
	if len(content.Text) == 0 {
		return ""
	}

	region := geom.Pad(
		geom.NewRect(sel.X1, sel.Y1, sel.X2, sel.Y2),
		localPadX, localPadY,
		sel.PageWidth, sel.PageHeight,
	)

	var inside []pdf.Text
	for _, t := range content.Text {
		if t.Y < region.Y1 || t.Y > region.Y2 {
			continue
		}
		if t.X+t.W < region.X1 || t.X > region.X2 {
			continue
		}
		inside = append(inside, t)
	}
	if len(inside) == 0 {
		return ""
	}

	// Page space is bottom-up: higher Y renders first.
	sort.Slice(inside, func(i, j int) bool {
		if inside[i].Y != inside[j].Y {
			return inside[i].Y > inside[j].Y
		}
		return inside[i].X < inside[j].X
	})

	var lines []string
	var line strings.Builder
	lineY := inside[0].Y
	var prev *pdf.Text

	flush := func() {
		if line.Len() > 0 {
			lines = append(lines, line.String())
			line.Reset()
		}
	}

	for i := range inside {
		t := inside[i]
		if lineY-t.Y > localLineTolerance {
			flush()
			lineY = t.Y
			prev = nil
		}
		if prev != nil {
			gap := t.X - (prev.X + prev.W)
			if gap > wordGap(prev.FontSize) {
				line.WriteByte(' ')
			}
		}
		line.WriteString(t.S)
		prev = &inside[i]
	}
	flush()

	return strings.Join(lines, "\n")
}

// wordGap is the horizontal distance beyond which two fragments on a line
// are separate words.
func wordGap(fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = 12
	}
	return fontSize * 0.25
}

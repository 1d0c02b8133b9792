package markup

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/metabib/pdf-markup/internal/fields"
	"github.com/metabib/pdf-markup/internal/geom"
)

// Mark is one region bound to a field. The rect is kept in normalized
// page space so the mark survives zoom and window changes.
type Mark struct {
	ID           string    `json:"id"`
	FieldID      string    `json:"field_id"`
	Page         int       `json:"page"`
	Rect         geom.Rect `json:"rect"`
	PageWidth    float64   `json:"page_width"`
	PageHeight   float64   `json:"page_height"`
	Text         string    `json:"text,omitempty"`
	FromTemplate bool      `json:"from_template,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
}

// Overlay is a mark projected into render space together with its
// presentation attributes.
type Overlay struct {
	Mark   Mark
	Rect   geom.Rect
	Color  string
	Label  string
	Active bool
}

// SavePayload is the persisted form of a marked-up document.
type SavePayload struct {
	Schema     string `json:"schema"`
	PDFFile    string `json:"pdf_file"`
	TotalPages int    `json:"total_pages"`
	Selections []Mark `json:"selections"`
}

// SavePayloadSchema identifies the current payload layout.
const SavePayloadSchema = "v2"

// Store holds the marks of the current document. All mutations replace
// the backing slice in one step, so readers never observe a partial
// update.
type Store struct {
	mu       sync.RWMutex
	marks    []Mark
	registry *fields.Registry
	logger   *slog.Logger
}

// NewStore creates an empty mark store.
func NewStore(registry *fields.Registry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{registry: registry, logger: logger}
}

// Add appends a mark, assigning an id when the caller left it empty,
// and returns the stored mark.
func (st *Store) Add(mark Mark) Mark {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	next := make([]Mark, len(st.marks), len(st.marks)+1)
	copy(next, st.marks)
	st.marks = append(next, mark)
	return mark
}

// ReplaceField removes every mark of the given field and adds the new
// one. Applied templates use this to keep exactly one mark per field.
func (st *Store) ReplaceField(mark Mark) Mark {
	if mark.ID == "" {
		mark.ID = uuid.NewString()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	next := make([]Mark, 0, len(st.marks)+1)
	for _, m := range st.marks {
		if m.FieldID != mark.FieldID {
			next = append(next, m)
		}
	}
	st.marks = append(next, mark)
	return mark
}

// UpdateText attaches extracted text to a stored mark. Returns false
// when the mark is gone, which callers treat as a stale response.
func (st *Store) UpdateText(id, text string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, m := range st.marks {
		if m.ID == id {
			next := make([]Mark, len(st.marks))
			copy(next, st.marks)
			next[i].Text = text
			st.marks = next
			return true
		}
	}
	return false
}

// Contains reports whether a mark with the given id is still stored
// under the given field.
func (st *Store) Contains(id, fieldID string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, m := range st.marks {
		if m.ID == id && m.FieldID == fieldID {
			return true
		}
	}
	return false
}

// RemoveByPage drops every mark on the given page. Idempotent.
func (st *Store) RemoveByPage(page int) {
	st.remove(func(m Mark) bool { return m.Page == page })
}

// RemoveByField drops every mark of the given field. Idempotent.
func (st *Store) RemoveByField(fieldID string) {
	st.remove(func(m Mark) bool { return m.FieldID == fieldID })
}

// RemoveAll drops every mark.
func (st *Store) RemoveAll() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.marks = nil
}

func (st *Store) remove(drop func(Mark) bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	next := make([]Mark, 0, len(st.marks))
	for _, m := range st.marks {
		if !drop(m) {
			next = append(next, m)
		}
	}
	st.marks = next
}

// Marks returns a copy of all stored marks.
func (st *Store) Marks() []Mark {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Mark, len(st.marks))
	copy(out, st.marks)
	return out
}

// MarksForPage returns a copy of the marks on one page.
func (st *Store) MarksForPage(page int) []Mark {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []Mark
	for _, m := range st.marks {
		if m.Page == page {
			out = append(out, m)
		}
	}
	return out
}

// MarksForField returns a copy of the marks of one field.
func (st *Store) MarksForField(fieldID string) []Mark {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []Mark
	for _, m := range st.marks {
		if m.FieldID == fieldID {
			out = append(out, m)
		}
	}
	return out
}

// Render projects the current page's marks into the surface's render
// space and presents them as a full overlay replacement. A surface
// that is not ready is a no-op. An unsupported viewer rotation skips
// the render with a warning instead of failing.
func (st *Store) Render(surface RenderSurface, activeField string) {
	if !surface.Ready() {
		return
	}
	if _, err := geom.NormalizeRotation(surface.Rotation()); err != nil {
		st.logger.Warn("skipping render on unsupported rotation",
			"rotation", surface.Rotation(), "error", err)
		return
	}

	page := surface.Page()
	targetW, targetH := surface.Size()

	marks := st.MarksForPage(page)
	overlays := make([]Overlay, 0, len(marks))
	for _, m := range marks {
		overlay := Overlay{
			Mark:   m,
			Rect:   geom.ToRenderSpace(m.Rect, m.PageWidth, m.PageHeight, targetW, targetH),
			Active: m.FieldID == activeField,
		}
		if f, ok := st.registry.Get(m.FieldID); ok {
			overlay.Color = f.Color
			overlay.Label = f.Label
		}
		overlays = append(overlays, overlay)
	}
	surface.Present(overlays)
}

// SavePayload builds the persisted form of the current marks.
func (st *Store) SavePayload(pdfFile string, totalPages int) SavePayload {
	return SavePayload{
		Schema:     SavePayloadSchema,
		PDFFile:    pdfFile,
		TotalPages: totalPages,
		Selections: st.Marks(),
	}
}

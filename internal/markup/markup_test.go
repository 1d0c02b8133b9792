package markup

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metabib/pdf-markup/internal/extract"
	"github.com/metabib/pdf-markup/internal/fields"
	"github.com/metabib/pdf-markup/internal/template"
)

// fakeSurface is a controllable render surface for tests. The default
// geometry shows an A4 page at 2x zoom.
type fakeSurface struct {
	mu        sync.Mutex
	ready     bool
	page      int
	width     float64
	height    float64
	pageW     float64
	pageH     float64
	rotation  int
	presented [][]Overlay
	subs      []func()
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		ready:  true,
		width:  1190,
		height: 1684,
		pageW:  595,
		pageH:  842,
	}
}

func (f *fakeSurface) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSurface) Page() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

func (f *fakeSurface) Size() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width, f.height
}

func (f *fakeSurface) PageSize() (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageW, f.pageH
}

func (f *fakeSurface) Rotation() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotation
}

func (f *fakeSurface) Present(overlays []Overlay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presented = append(f.presented, overlays)
}

func (f *fakeSurface) Subscribe(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeSurface) lastPresented() ([]Overlay, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.presented) == 0 {
		return nil, false
	}
	return f.presented[len(f.presented)-1], true
}

func (f *fakeSurface) presentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.presented)
}

// fakeExtractor returns canned responses or errors.
type fakeExtractor struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	onExtract func(req extract.Request)
	requests  []extract.Request
}

func (f *fakeExtractor) Extract(_ context.Context, req extract.Request) (*extract.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	onExtract := f.onExtract
	f.mu.Unlock()

	if onExtract != nil {
		onExtract(req)
	}
	if f.err != nil {
		return nil, f.err
	}

	extracted := make([]extract.Extracted, len(req.Selections))
	for i, sel := range req.Selections {
		text := "extracted text"
		if f.responses != nil {
			if t, ok := f.responses[sel.FieldID]; ok {
				text = t
			}
		}
		extracted[i] = extract.Extracted{FieldID: sel.FieldID, Page: sel.Page, Text: text}
	}
	return &extract.Response{Success: true, Extracted: extracted}, nil
}

func testRegistry(t *testing.T) *fields.Registry {
	t.Helper()
	reg, err := fields.Load()
	require.NoError(t, err)
	return reg
}

func testEngine(t *testing.T) *template.Engine {
	t.Helper()
	store, err := template.OpenStore(filepath.Join(t.TempDir(), "templates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return template.NewEngine(store, 0, 0, nil)
}

package document

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/metabib/pdf-markup/internal/geom"
)

// Default page dimensions when no MediaBox can be found (US Letter).
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// PageInfo describes one page in document coordinates.
type PageInfo struct {
	Number   int     `json:"number"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

// Info describes a PDF document and its pages.
type Info struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	PageCount int        `json:"page_count"`
	Pages     []PageInfo `json:"pages"`
}

// Info resolves the named file and returns its per-page geometry. Pages
// with an unreadable MediaBox fall back to default dimensions rather
// than failing the whole document.
func (s *Service) Info(name string) (*Info, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(path); err != nil {
		return nil, err
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}

	// pdfcpu resolves inherited page attributes itself; when it cannot
	// read the file the per-page fallback below still works.
	dims, err := api.PageDimsFile(path)
	if err != nil {
		s.logger.Warn("pdfcpu page dims unavailable, using per-page fallback",
			"file", name, "error", err)
		dims = nil
	}

	total := reader.NumPage()
	pages := make([]PageInfo, 0, total)
	for n := 1; n <= total; n++ {
		var dim *types.Dim
		if n <= len(dims) {
			dim = &dims[n-1]
		}
		pages = append(pages, s.pageInfo(reader.Page(n), n, dim))
	}

	return &Info{
		Name:      filepath.Base(path),
		Path:      path,
		Size:      stat.Size(),
		PageCount: total,
		Pages:     pages,
	}, nil
}

func (s *Service) pageInfo(page pdf.Page, number int, dim *types.Dim) PageInfo {
	info := PageInfo{
		Number: number,
		Width:  defaultPageWidth,
		Height: defaultPageHeight,
	}

	if dim != nil && dim.Width > 0 && dim.Height > 0 {
		info.Width, info.Height = dim.Width, dim.Height
	} else if w, h, err := mediaBoxSize(page); err == nil {
		info.Width, info.Height = w, h
	} else {
		s.logger.Warn("failed to read page MediaBox, using default size",
			"page", number, "error", err)
	}

	rotation, err := geom.NormalizeRotation(pageRotation(page))
	if err != nil {
		s.logger.Warn("unsupported page rotation, treating as 0",
			"page", number, "error", err)
		rotation = 0
	}
	info.Rotation = rotation

	return info
}

// mediaBoxSize reads the page MediaBox, falling back to values inherited
// from parent nodes of the page tree.
func mediaBoxSize(page pdf.Page) (width, height float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reading MediaBox: %v", r)
		}
	}()

	box := inheritedKey(page, "MediaBox")
	if box.IsNull() {
		return 0, 0, fmt.Errorf("no MediaBox found")
	}
	return parseMediaBox(box)
}

func parseMediaBox(box pdf.Value) (float64, float64, error) {
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return 0, 0, fmt.Errorf("malformed MediaBox")
	}

	coords := make([]float64, 4)
	for i := 0; i < 4; i++ {
		val := box.Index(i)
		switch val.Kind() {
		case pdf.Integer:
			coords[i] = float64(val.Int64())
		case pdf.Real:
			coords[i] = val.Float64()
		default:
			f, err := parseFloatValue(val.Text())
			if err != nil {
				return 0, 0, fmt.Errorf("invalid coordinate at index %d: %w", i, err)
			}
			coords[i] = f
		}
	}

	llx, lly, urx, ury := coords[0], coords[1], coords[2], coords[3]
	if llx > urx {
		llx, urx = urx, llx
	}
	if lly > ury {
		lly, ury = ury, lly
	}
	if urx <= llx || ury <= lly {
		return 0, 0, fmt.Errorf("degenerate MediaBox: [%.2f %.2f %.2f %.2f]", llx, lly, urx, ury)
	}

	return urx - llx, ury - lly, nil
}

// pageRotation reads the page Rotate entry, inherited when absent.
// Returns 0 when no usable entry exists.
func pageRotation(page pdf.Page) (rotation int) {
	defer func() {
		if r := recover(); r != nil {
			rotation = 0
		}
	}()

	rotate := inheritedKey(page, "Rotate")
	if rotate.Kind() == pdf.Integer {
		return int(rotate.Int64())
	}
	return 0
}

// inheritedKey resolves a page dictionary key, walking up the Parent
// chain when the page itself lacks it. Traversal is bounded to guard
// against cyclic page trees.
func inheritedKey(page pdf.Page, key string) pdf.Value {
	current := page.V
	for i := 0; i < 10; i++ {
		if v := current.Key(key); !v.IsNull() {
			return v
		}
		parent := current.Key("Parent")
		if parent.IsNull() {
			break
		}
		current = parent
	}
	return pdf.Value{}
}

// parseFloatValue parses a PDF numeric string, tolerating a trailing
// float suffix some producers emit.
func parseFloatValue(s string) (float64, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "f") || strings.HasSuffix(s, "F") {
		if f, err := strconv.ParseFloat(s[:len(s)-1], 64); err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unable to parse %q as float", s)
}

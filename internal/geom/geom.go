// Package geom provides the coordinate transforms between the three spaces
// a marked region lives in: screen pixels of the rendering surface (origin
// top-left, Y down), normalized page space (origin bottom-left, Y up, the
// persisted space), and the unit square used to compare pages of different
// sizes.
package geom

import (
	"fmt"
	"math"
)

// Rect is an axis-aligned rectangle. Constructors canonicalize so that
// X1 <= X2 and Y1 <= Y2 always holds; rects are never stored un-ordered.
type Rect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// NewRect builds a canonical rectangle from two arbitrary corner points.
func NewRect(x1, y1, x2, y2 float64) Rect {
	return Rect{
		X1: math.Min(x1, x2),
		Y1: math.Min(y1, y2),
		X2: math.Max(x1, x2),
		Y2: math.Max(y1, y2),
	}
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 {
	return r.Y2 - r.Y1
}

// IsZero reports whether the rectangle has zero area.
func (r Rect) IsZero() bool {
	return r.Width() == 0 || r.Height() == 0
}

// UnsupportedRotationError reports a page rotation that is not a multiple
// of 90 degrees. The caller is expected to log it and skip the re-render
// for the affected page; it must never abort the session.
type UnsupportedRotationError struct {
	Rotation int
}

func (e *UnsupportedRotationError) Error() string {
	return fmt.Sprintf("unsupported page rotation: %d (must be a multiple of 90)", e.Rotation)
}

// NormalizeRotation reduces a rotation value to one of 0, 90, 180, 270.
// Values outside that range are normalized modulo 360; non-multiples of 90
// are rejected.
func NormalizeRotation(rotation int) (int, error) {
	r := rotation % 360
	if r < 0 {
		r += 360
	}
	if r%90 != 0 {
		return 0, &UnsupportedRotationError{Rotation: rotation}
	}
	return r, nil
}

// ToNormalized maps a rectangle in screen pixels of the current rendering
// surface into normalized page space. It scales by the ratio of the page's
// intrinsic size to the surface's pixel size and inverts the Y axis
// (surfaces are top-down, pages are bottom-up). Rotation is validated but
// not undone: the page geometry collaborator already reports dimensions
// consistent with the current rotation.
func ToNormalized(r Rect, renderW, renderH, pageW, pageH float64, rotation int) (Rect, error) {
	if _, err := NormalizeRotation(rotation); err != nil {
		return Rect{}, err
	}

	sx := pageW / renderW
	sy := pageH / renderH

	return NewRect(
		r.X1*sx,
		pageH-r.Y2*sy,
		r.X2*sx,
		pageH-r.Y1*sy,
	), nil
}

// ToRenderSpace is the inverse of ToNormalized: it maps a normalized-page
// rectangle onto a rendering surface of the given pixel size, re-applying
// the Y flip and the new scale ratio. Feeding it the output of ToNormalized
// for the same surface size reproduces the original screen rectangle within
// rounding.
func ToRenderSpace(r Rect, pageW, pageH, targetW, targetH float64) Rect {
	sx := targetW / pageW
	sy := targetH / pageH

	return NewRect(
		r.X1*sx,
		(pageH-r.Y2)*sy,
		r.X2*sx,
		(pageH-r.Y1)*sy,
	)
}

// ToUnit rescales a normalized-page rectangle into the unit square so that
// samples captured on differently sized pages become comparable.
func ToUnit(r Rect, pageW, pageH float64) Rect {
	return NewRect(r.X1/pageW, r.Y1/pageH, r.X2/pageW, r.Y2/pageH)
}

// FromUnit rescales a unit-square rectangle to a concrete page size.
func FromUnit(r Rect, pageW, pageH float64) Rect {
	return NewRect(r.X1*pageW, r.Y1*pageH, r.X2*pageW, r.Y2*pageH)
}

// Pad grows the rectangle by the given margins, clamped to the page bounds.
func Pad(r Rect, padX, padY, pageW, pageH float64) Rect {
	return NewRect(
		math.Max(0, r.X1-padX),
		math.Max(0, r.Y1-padY),
		math.Min(pageW, r.X2+padX),
		math.Min(pageH, r.Y2+padY),
	)
}

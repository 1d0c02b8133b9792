package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRect_Canonicalizes(t *testing.T) {
	tests := []struct {
		name           string
		x1, y1, x2, y2 float64
	}{
		{"already ordered", 10, 20, 30, 40},
		{"reversed x", 30, 20, 10, 40},
		{"reversed y", 10, 40, 30, 20},
		{"both reversed", 30, 40, 10, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRect(tt.x1, tt.y1, tt.x2, tt.y2)
			assert.Equal(t, Rect{X1: 10, Y1: 20, X2: 30, Y2: 40}, r)
		})
	}
}

func TestNormalizeRotation(t *testing.T) {
	tests := []struct {
		name      string
		in        int
		want      int
		expectErr bool
	}{
		{"zero", 0, 0, false},
		{"quarter", 90, 90, false},
		{"half", 180, 180, false},
		{"three quarters", 270, 270, false},
		{"full turn", 360, 0, false},
		{"over full turn", 450, 90, false},
		{"negative quarter", -90, 270, false},
		{"diagonal", 45, 0, true},
		{"slight tilt", 91, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRotation(tt.in)
			if tt.expectErr {
				require.Error(t, err)
				var rotErr *UnsupportedRotationError
				require.ErrorAs(t, err, &rotErr)
				assert.Equal(t, tt.in, rotErr.Rotation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToNormalized_ScaleAndFlip(t *testing.T) {
	// Page 595x842 points rendered at 1190x1684 pixels (scale 2).
	// A drag from (100,100) to (300,150) must produce a 100x25 point
	// rectangle with y1=767, y2=792 after the bottom-up flip.
	r := NewRect(100, 100, 300, 150)

	got, err := ToNormalized(r, 1190, 1684, 595, 842, 0)
	require.NoError(t, err)

	assert.InDelta(t, 50, got.X1, 1e-9)
	assert.InDelta(t, 150, got.X2, 1e-9)
	assert.InDelta(t, 100, got.Width(), 1e-9)
	assert.InDelta(t, 25, got.Height(), 1e-9)
	assert.InDelta(t, 767, got.Y1, 1e-9)
	assert.InDelta(t, 792, got.Y2, 1e-9)
}

func TestToNormalized_UnsupportedRotation(t *testing.T) {
	_, err := ToNormalized(NewRect(0, 0, 10, 10), 100, 100, 100, 100, 45)
	var rotErr *UnsupportedRotationError
	require.ErrorAs(t, err, &rotErr)
}

func TestToNormalized_DegenerateAccepted(t *testing.T) {
	got, err := ToNormalized(NewRect(50, 50, 50, 50), 200, 200, 100, 100, 0)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRoundTrip(t *testing.T) {
	surfaces := []struct{ w, h float64 }{
		{595, 842},
		{1190, 1684},
		{893, 1263},
		{300, 424},
	}
	rotations := []int{0, 90, 180, 270}
	rects := []Rect{
		NewRect(0, 0, 595, 842),
		NewRect(100, 100, 300, 150),
		NewRect(12.5, 700.25, 580.75, 820.5),
		NewRect(0.001, 0.001, 0.002, 0.002),
	}

	const pageW, pageH = 595.0, 842.0

	for _, s := range surfaces {
		for _, rot := range rotations {
			for _, r := range rects {
				norm, err := ToNormalized(r, s.w, s.h, pageW, pageH, rot)
				require.NoError(t, err)

				back := ToRenderSpace(norm, pageW, pageH, s.w, s.h)

				assertRelDelta(t, r.X1, back.X1)
				assertRelDelta(t, r.Y1, back.Y1)
				assertRelDelta(t, r.X2, back.X2)
				assertRelDelta(t, r.Y2, back.Y2)
			}
		}
	}
}

// assertRelDelta checks agreement within 1e-6 relative tolerance.
func assertRelDelta(t *testing.T, want, got float64) {
	t.Helper()
	scale := math.Max(math.Abs(want), 1)
	assert.InDelta(t, want, got, 1e-6*scale)
}

func TestToRenderSpace_DifferentZoom(t *testing.T) {
	// A mark stored against a 595x842 page must land correctly on a
	// surface rendered at a different zoom than it was captured at.
	norm := NewRect(50, 767, 150, 792)

	got := ToRenderSpace(norm, 595, 842, 595, 842)
	assert.InDelta(t, 50, got.X1, 1e-9)
	assert.InDelta(t, 50, got.Y1, 1e-9)
	assert.InDelta(t, 150, got.X2, 1e-9)
	assert.InDelta(t, 75, got.Y2, 1e-9)

	zoomed := ToRenderSpace(norm, 595, 842, 1190, 1684)
	assert.InDelta(t, 100, zoomed.X1, 1e-9)
	assert.InDelta(t, 100, zoomed.Y1, 1e-9)
	assert.InDelta(t, 300, zoomed.X2, 1e-9)
	assert.InDelta(t, 150, zoomed.Y2, 1e-9)
}

func TestUnitRescale(t *testing.T) {
	r := NewRect(59.5, 84.2, 119, 168.4)

	unit := ToUnit(r, 595, 842)
	assert.InDelta(t, 0.1, unit.X1, 1e-9)
	assert.InDelta(t, 0.1, unit.Y1, 1e-9)
	assert.InDelta(t, 0.2, unit.X2, 1e-9)
	assert.InDelta(t, 0.2, unit.Y2, 1e-9)

	// Denormalizing to a different page size keeps proportions.
	other := FromUnit(unit, 612, 792)
	assert.InDelta(t, 61.2, other.X1, 1e-9)
	assert.InDelta(t, 79.2, other.Y1, 1e-9)
}

func TestPad_ClampsToPage(t *testing.T) {
	r := NewRect(2, 3, 590, 840)
	padded := Pad(r, 5, 5, 595, 842)

	assert.Equal(t, 0.0, padded.X1)
	assert.Equal(t, 0.0, padded.Y1)
	assert.Equal(t, 595.0, padded.X2)
	assert.Equal(t, 842.0, padded.Y2)
}

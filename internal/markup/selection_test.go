package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, *Session, *Store) {
	t.Helper()
	session := NewSession()
	store := NewStore(testRegistry(t), nil)
	return NewController(session, store), session, store
}

func TestPointerDown_RequiresActiveField(t *testing.T) {
	c, _, store := newTestController(t)

	err := c.PointerDown(Point{X: 10, Y: 10})
	require.ErrorIs(t, err, ErrNoActiveField)
	assert.False(t, c.Dragging())
	assert.Empty(t, store.Marks())
}

func TestPointerDown_IgnoredWhileDragging(t *testing.T) {
	c, session, _ := newTestController(t)
	session.SetActiveField("title")

	require.NoError(t, c.PointerDown(Point{X: 10, Y: 10}))
	require.True(t, c.Dragging())

	// A second pointer-down does not restart the drag.
	require.NoError(t, c.PointerDown(Point{X: 500, Y: 500}))
	c.PointerMove(Point{X: 50, Y: 40})

	preview, active := c.Preview()
	require.True(t, active)
	assert.Equal(t, 10.0, preview.X1)
	assert.Equal(t, 50.0, preview.X2)
}

func TestPointerUp_DiscardsSmallDrags(t *testing.T) {
	c, session, store := newTestController(t)
	session.SetActiveField("title")
	surface := newFakeSurface()

	tests := []struct {
		name     string
		from, to Point
	}{
		{"click", Point{100, 100}, Point{100, 100}},
		{"narrow", Point{100, 100}, Point{103, 200}},
		{"short", Point{100, 100}, Point{200, 103}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.PointerDown(tt.from))
			_, err := c.PointerUp(tt.to, surface)
			require.ErrorIs(t, err, ErrDegenerateSelection)
			assert.False(t, c.Dragging())
			assert.Empty(t, store.Marks())
		})
	}
}

func TestPointerUp_AcceptsMinimumDrag(t *testing.T) {
	c, session, store := newTestController(t)
	session.SetActiveField("title")
	surface := newFakeSurface()

	// Exactly MinDragSize on both axes is a valid selection.
	require.NoError(t, c.PointerDown(Point{X: 100, Y: 100}))
	mark, err := c.PointerUp(Point{X: 104, Y: 104}, surface)
	require.NoError(t, err)

	assert.Equal(t, "title", mark.FieldID)
	require.Len(t, store.Marks(), 1)
	assert.False(t, c.Dragging())
}

func TestPointerUp_StoresNormalizedMark(t *testing.T) {
	c, session, store := newTestController(t)
	session.SetActiveField("title")
	session.SetActivePage(2)
	surface := newFakeSurface()

	require.NoError(t, c.PointerDown(Point{X: 100, Y: 100}))
	c.PointerMove(Point{X: 250, Y: 120})
	mark, err := c.PointerUp(Point{X: 300, Y: 150}, surface)
	require.NoError(t, err)

	assert.NotEmpty(t, mark.ID)
	assert.Equal(t, "title", mark.FieldID)
	assert.Equal(t, 2, mark.Page)
	assert.Equal(t, 595.0, mark.PageWidth)
	assert.Equal(t, 842.0, mark.PageHeight)

	// 2x render surface with a flipped Y axis.
	assert.InDelta(t, 50.0, mark.Rect.X1, 1e-9)
	assert.InDelta(t, 767.0, mark.Rect.Y1, 1e-9)
	assert.InDelta(t, 150.0, mark.Rect.X2, 1e-9)
	assert.InDelta(t, 792.0, mark.Rect.Y2, 1e-9)

	require.Len(t, store.Marks(), 1)
	assert.False(t, c.Dragging())
}

func TestPointerUp_FieldFixedAtPointerDown(t *testing.T) {
	c, session, store := newTestController(t)
	session.SetActiveField("title")
	surface := newFakeSurface()

	require.NoError(t, c.PointerDown(Point{X: 100, Y: 100}))
	// Switching the active field mid-drag does not reassign the drag.
	session.SetActiveField("doi")

	mark, err := c.PointerUp(Point{X: 300, Y: 150}, surface)
	require.NoError(t, err)
	assert.Equal(t, "title", mark.FieldID)
	require.Len(t, store.Marks(), 1)
}

func TestPointerMove_NoDragIsNoop(t *testing.T) {
	c, _, _ := newTestController(t)
	c.PointerMove(Point{X: 10, Y: 10})
	_, active := c.Preview()
	assert.False(t, active)
}

package markup

import (
	"fmt"
	"sync"

	"github.com/metabib/pdf-markup/internal/geom"
)

// MinDragSize is the drag threshold in device pixels. Drags under it in
// either dimension are treated as accidental clicks and discarded.
const MinDragSize = 4.0

// Point is a position in screen space, top-left origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Controller runs the drag state machine that turns pointer input into
// marks. One drag can be in progress at a time.
type Controller struct {
	session *Session
	store   *Store

	mu       sync.Mutex
	dragging bool
	fieldID  string
	page     int
	start    Point
	preview  geom.Rect
}

// NewController creates a selection controller bound to a session and
// a mark store.
func NewController(session *Session, store *Store) *Controller {
	return &Controller{session: session, store: store}
}

// PointerDown starts a drag at pt. Without an active field the drag is
// refused with ErrNoActiveField. A pointer-down during an in-progress
// drag is ignored.
func (c *Controller) PointerDown(pt Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dragging {
		return nil
	}

	fieldID := c.session.ActiveField()
	if fieldID == "" {
		return ErrNoActiveField
	}

	c.dragging = true
	c.fieldID = fieldID
	c.page = c.session.ActivePage()
	c.start = pt
	c.preview = geom.NewRect(pt.X, pt.Y, pt.X, pt.Y)
	return nil
}

// PointerMove updates the live preview rect. Ignored when no drag is
// in progress.
func (c *Controller) PointerMove(pt Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dragging {
		return
	}
	c.preview = geom.NewRect(c.start.X, c.start.Y, pt.X, pt.Y)
}

// Preview returns the in-progress drag rect in screen space. The bool
// is false when no drag is active.
func (c *Controller) Preview() (geom.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview, c.dragging
}

// PointerUp finishes the drag. The screen rect is converted through the
// surface's current geometry into normalized page space and stored as
// a mark attributed to the field active at pointer-down.
func (c *Controller) PointerUp(pt Point, surface RenderSurface) (Mark, error) {
	c.mu.Lock()
	if !c.dragging {
		c.mu.Unlock()
		return Mark{}, ErrDegenerateSelection
	}
	c.dragging = false
	fieldID := c.fieldID
	page := c.page
	screen := geom.NewRect(c.start.X, c.start.Y, pt.X, pt.Y)
	c.mu.Unlock()

	if screen.Width() < MinDragSize || screen.Height() < MinDragSize {
		return Mark{}, ErrDegenerateSelection
	}

	renderW, renderH := surface.Size()
	pageW, pageH := surface.PageSize()

	rect, err := geom.ToNormalized(screen, renderW, renderH, pageW, pageH, surface.Rotation())
	if err != nil {
		return Mark{}, fmt.Errorf("failed to normalize selection: %w", err)
	}

	mark := c.store.Add(Mark{
		FieldID:    fieldID,
		Page:       page,
		Rect:       rect,
		PageWidth:  pageW,
		PageHeight: pageH,
	})
	return mark, nil
}

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

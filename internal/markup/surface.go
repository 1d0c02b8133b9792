package markup

import (
	"context"
	"sync"
	"time"
)

// RenderSurface is the rendering collaborator: an external viewer the
// marks are drawn on. Implementations notify subscribers on page, zoom
// and rotation changes.
type RenderSurface interface {
	// Ready reports whether the viewer finished initializing and its
	// dimensions can be trusted.
	Ready() bool

	// Page returns the zero-based page the surface currently shows.
	Page() int

	// Size returns the rendered page size in device pixels.
	Size() (width, height float64)

	// PageSize returns the page size in document coordinates.
	PageSize() (width, height float64)

	// Rotation returns the viewer rotation in degrees.
	Rotation() int

	// Present replaces all overlays drawn on the surface.
	Present(overlays []Overlay)

	// Subscribe registers a change callback and returns its cancel
	// function.
	Subscribe(fn func()) (cancel func())
}

const (
	awaitReadyAttempts = 50
	awaitReadyInterval = 100 * time.Millisecond
)

// AwaitReady polls the surface until it reports ready. The wait is
// bounded: after the attempt cap it fails with ErrViewerUnavailable.
func AwaitReady(ctx context.Context, surface RenderSurface) error {
	for attempt := 0; attempt < awaitReadyAttempts; attempt++ {
		if surface.Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(awaitReadyInterval):
		}
	}
	return ErrViewerUnavailable
}

// debounce returns a trigger that runs fn once the trigger has been
// quiet for d. Rapid change notifications from the viewer collapse
// into one trailing re-render.
func debounce(d time.Duration, fn func()) func() {
	var mu sync.Mutex
	var timer *time.Timer

	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, fn)
	}
}

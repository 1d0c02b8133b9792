package markup

import "errors"

var (
	// ErrNoActiveField is returned when a drag starts with no field
	// selected in the session.
	ErrNoActiveField = errors.New("no active field selected")

	// ErrDegenerateSelection is returned when a finished drag is below
	// the minimum size in either dimension.
	ErrDegenerateSelection = errors.New("selection below minimum drag size")

	// ErrViewerUnavailable is returned when the render surface does not
	// become ready within the bounded wait.
	ErrViewerUnavailable = errors.New("render surface did not become ready")

	// ErrExtractionFailed wraps extraction collaborator failures. The
	// mark stays in the store when this is returned.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrNoTemplateForField is returned when a template application is
	// requested for a field without a stored suggestion.
	ErrNoTemplateForField = errors.New("no template suggestion for field")
)

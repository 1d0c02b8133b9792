package markup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/metabib/pdf-markup/internal/extract"
	"github.com/metabib/pdf-markup/internal/fields"
	"github.com/metabib/pdf-markup/internal/template"
)

// FieldApplier receives extracted text for a field, typically a form
// binding in the hosting application.
type FieldApplier interface {
	ApplyField(fieldID, text string)
}

// FieldApplierFunc adapts a function to the FieldApplier interface.
type FieldApplierFunc func(fieldID, text string)

// ApplyField calls the wrapped function.
func (f FieldApplierFunc) ApplyField(fieldID, text string) { f(fieldID, text) }

// Delay between template applications when applying all suggestions.
// Pacing for the extraction collaborator, not a correctness concern.
const applyAllDelay = 200 * time.Millisecond

// Orchestrator drives the extraction flow: marks go in, extracted text
// comes back to the field applier, and confirmed geometry feeds the
// template engine.
type Orchestrator struct {
	session   *Session
	store     *Store
	surface   RenderSurface
	extractor extract.Extractor
	engine    *template.Engine
	registry  *fields.Registry
	applier   FieldApplier
	logger    *slog.Logger

	unsubscribe func()
}

// OrchestratorConfig carries the collaborators of an Orchestrator.
// Engine may be nil when template learning is disabled.
type OrchestratorConfig struct {
	Session   *Session
	Store     *Store
	Surface   RenderSurface
	Extractor extract.Extractor
	Engine    *template.Engine
	Registry  *fields.Registry
	Applier   FieldApplier
	Logger    *slog.Logger
}

// NewOrchestrator wires the collaborators together and subscribes to
// surface changes with a debounced re-render.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	switch {
	case cfg.Session == nil:
		return nil, fmt.Errorf("session is required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("store is required")
	case cfg.Surface == nil:
		return nil, fmt.Errorf("surface is required")
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("field registry is required")
	case cfg.Applier == nil:
		return nil, fmt.Errorf("field applier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	o := &Orchestrator{
		session:   cfg.Session,
		store:     cfg.Store,
		surface:   cfg.Surface,
		extractor: cfg.Extractor,
		engine:    cfg.Engine,
		registry:  cfg.Registry,
		applier:   cfg.Applier,
		logger:    cfg.Logger,
	}

	render := debounce(150*time.Millisecond, o.Render)
	o.unsubscribe = cfg.Surface.Subscribe(render)
	return o, nil
}

// Close detaches the orchestrator from the surface.
func (o *Orchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
}

// Render redraws the current page's overlays.
func (o *Orchestrator) Render() {
	o.store.Render(o.surface, o.session.ActiveField())
}

// ExtractAndApply sends the mark's region to the extraction
// collaborator and routes the text to the field applier. The mark is
// already in the store when this runs; extraction failure keeps it
// there and returns a wrapped ErrExtractionFailed. A response arriving
// after the mark was removed or its field reassigned is dropped.
func (o *Orchestrator) ExtractAndApply(ctx context.Context, mark Mark) error {
	doc := o.session.Document()
	if doc == "" {
		return fmt.Errorf("no document open")
	}

	req := extract.Request{
		PDFFile: doc,
		Selections: []extract.Selection{{
			Page:       mark.Page,
			X1:         mark.Rect.X1,
			Y1:         mark.Rect.Y1,
			X2:         mark.Rect.X2,
			Y2:         mark.Rect.Y2,
			PageWidth:  mark.PageWidth,
			PageHeight: mark.PageHeight,
			FieldID:    mark.FieldID,
		}},
		Options: extract.OptionsForClass(o.registry.ClassOf(mark.FieldID)),
	}

	resp, err := o.extractor.Extract(ctx, req)
	if err != nil {
		o.logger.Warn("extraction failed, mark retained",
			"field", mark.FieldID, "page", mark.Page, "error", err)
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(resp.Extracted) == 0 {
		return fmt.Errorf("%w: empty response", ErrExtractionFailed)
	}

	if !o.store.Contains(mark.ID, mark.FieldID) {
		o.logger.Debug("discarding stale extraction response",
			"field", mark.FieldID, "mark", mark.ID)
		return nil
	}

	text := resp.Extracted[0].Text
	o.store.UpdateText(mark.ID, text)
	o.applier.ApplyField(mark.FieldID, text)

	o.recordSample(ctx, mark)
	return nil
}

// recordSample feeds confirmed geometry to the template engine. Marks
// applied from a template are not fed back, so suggestions do not
// reinforce themselves.
func (o *Orchestrator) recordSample(ctx context.Context, mark Mark) {
	if o.engine == nil || mark.FromTemplate {
		return
	}
	key, name := o.session.Publication()
	if key == "" {
		return
	}

	err := o.engine.AddSample(ctx, key, name, mark.FieldID, template.Sample{
		Page:       mark.Page,
		Rect:       mark.Rect,
		PageWidth:  mark.PageWidth,
		PageHeight: mark.PageHeight,
	})
	if err != nil {
		o.logger.Warn("failed to record template sample",
			"publication", key, "field", mark.FieldID, "error", err)
	}
}

// ApplySuggestion turns the engine's suggestion for a field into a
// template mark, replacing any existing marks of the field, and runs
// the extraction path on it.
func (o *Orchestrator) ApplySuggestion(ctx context.Context, fieldID string) (Mark, error) {
	if o.engine == nil {
		return Mark{}, ErrNoTemplateForField
	}
	key, _ := o.session.Publication()
	if key == "" {
		return Mark{}, ErrNoTemplateForField
	}

	pageW, pageH := o.surface.PageSize()
	suggestion, err := o.engine.Suggest(ctx, key, fieldID, pageW, pageH)
	if err != nil {
		return Mark{}, fmt.Errorf("failed to look up template: %w", err)
	}
	if suggestion == nil {
		return Mark{}, ErrNoTemplateForField
	}

	mark := o.store.ReplaceField(Mark{
		FieldID:      fieldID,
		Page:         suggestion.Page,
		Rect:         suggestion.Rect,
		PageWidth:    pageW,
		PageHeight:   pageH,
		FromTemplate: true,
		Confidence:   suggestion.Confidence,
	})
	o.Render()

	if err := o.ExtractAndApply(ctx, mark); err != nil {
		return mark, err
	}
	return mark, nil
}

// ApplyAllSuggestions applies every suggestion above the engine's
// confidence floor, pacing calls with a fixed delay. Returns the marks
// that were applied; per-field extraction failures are logged and
// skipped rather than aborting the sweep.
func (o *Orchestrator) ApplyAllSuggestions(ctx context.Context) ([]Mark, error) {
	if o.engine == nil {
		return nil, nil
	}
	key, _ := o.session.Publication()
	if key == "" {
		return nil, nil
	}

	pageW, pageH := o.surface.PageSize()
	suggestions, err := o.engine.SuggestAll(ctx, key, pageW, pageH)
	if err != nil {
		return nil, fmt.Errorf("failed to look up templates: %w", err)
	}

	fieldIDs := make([]string, 0, len(suggestions))
	for fieldID := range suggestions {
		fieldIDs = append(fieldIDs, fieldID)
	}
	sort.Strings(fieldIDs)

	var applied []Mark
	for i, fieldID := range fieldIDs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return applied, ctx.Err()
			case <-time.After(applyAllDelay):
			}
		}

		mark, err := o.ApplySuggestion(ctx, fieldID)
		if err != nil {
			o.logger.Warn("skipping template application",
				"field", fieldID, "error", err)
			continue
		}
		applied = append(applied, mark)
	}
	return applied, nil
}

// FinishDrag stores the drag result and starts extraction for it. The
// mark is visible on the surface before the extraction response
// arrives.
func (o *Orchestrator) FinishDrag(ctx context.Context, controller *Controller, pt Point) (Mark, error) {
	mark, err := controller.PointerUp(pt, o.surface)
	if err != nil {
		return Mark{}, err
	}
	o.Render()
	if err := o.ExtractAndApply(ctx, mark); err != nil {
		return mark, err
	}
	return mark, nil
}

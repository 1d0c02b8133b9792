package template

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/metabib/pdf-markup/internal/geom"
)

const (
	// DefaultRetention is how many samples are kept per (key, field) pair;
	// older samples are dropped first.
	DefaultRetention = 20

	// DefaultMinConfidence is the floor below which SuggestAll omits a
	// field's suggestion.
	DefaultMinConfidence = 0.3

	// countSaturation is the k in count/(count+k): evidence increases
	// confidence with diminishing returns.
	countSaturation = 2.0

	// spreadPenalty scales how hard positional disagreement between
	// samples pulls confidence down.
	spreadPenalty = 10.0
)

// Sample is one observed mark geometry: the rectangle in normalized page
// space plus the page dimensions at capture time, so that samples from
// differently sized pages can be rescaled against each other.
type Sample struct {
	Page       int
	Rect       geom.Rect
	PageWidth  float64
	PageHeight float64
}

// Suggestion is the derived template for one field: the element-wise mean
// rectangle of the retained samples, rescaled to the page size being
// viewed, plus a confidence score in [0,1].
type Suggestion struct {
	Page        int       `json:"page"`
	Rect        geom.Rect `json:"rect"`
	Confidence  float64   `json:"confidence"`
	SampleCount int       `json:"sample_count"`
}

// Engine accumulates geometry samples per (publication key, field id) and
// derives suggestions. All lookups are exact-key; there is no fuzzy
// matching across publications.
type Engine struct {
	store         *Store
	retention     int
	minConfidence float64
	logger        *slog.Logger
}

// NewEngine creates a template engine over the given store. Zero values
// for retention and minConfidence select the defaults.
func NewEngine(store *Store, retention int, minConfidence float64, logger *slog.Logger) *Engine {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:         store,
		retention:     retention,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// AddSample appends a sample for the pair and lets the retention cap drop
// the oldest ones. Geometry is stored in unit space.
func (e *Engine) AddSample(ctx context.Context, key, publicationName, fieldID string, s Sample) error {
	if key == "" {
		return fmt.Errorf("publication key cannot be empty")
	}
	if fieldID == "" {
		return fmt.Errorf("field id cannot be empty")
	}
	if s.PageWidth <= 0 || s.PageHeight <= 0 {
		return fmt.Errorf("sample page size must be positive, got %gx%g", s.PageWidth, s.PageHeight)
	}

	unit := geom.ToUnit(s.Rect, s.PageWidth, s.PageHeight)
	err := e.store.insertSample(ctx, key, publicationName, fieldID, storedSample{
		Page: s.Page,
		X1:   unit.X1,
		Y1:   unit.Y1,
		X2:   unit.X2,
		Y2:   unit.Y2,
	}, e.retention)
	if err != nil {
		return fmt.Errorf("failed to store template sample: %w", err)
	}

	e.logger.Debug("template sample stored",
		"key", key, "field", fieldID, "page", s.Page)
	return nil
}

// Suggest derives the suggestion for one field, rescaled to the target
// page size. Returns nil when the pair has no samples.
func (e *Engine) Suggest(ctx context.Context, key, fieldID string, targetW, targetH float64) (*Suggestion, error) {
	samples, err := e.store.samples(ctx, key, fieldID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	page, pageSamples := dominantPage(samples)
	mean := meanRect(pageSamples)

	return &Suggestion{
		Page:        page,
		Rect:        geom.FromUnit(mean, targetW, targetH),
		Confidence:  confidence(samples),
		SampleCount: len(samples),
	}, nil
}

// SuggestAll derives suggestions for every field of the publication that
// clears the minimum confidence.
func (e *Engine) SuggestAll(ctx context.Context, key string, targetW, targetH float64) (map[string]Suggestion, error) {
	ids, err := e.store.fieldIDs(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list template fields: %w", err)
	}

	out := make(map[string]Suggestion, len(ids))
	for _, id := range ids {
		sg, err := e.Suggest(ctx, key, id, targetW, targetH)
		if err != nil {
			return nil, err
		}
		if sg == nil || sg.Confidence < e.minConfidence {
			continue
		}
		out[id] = *sg
	}
	return out, nil
}

// ResetField discards all samples for the (key, field) pair. Subsequent
// Suggest calls return nil. Reports whether anything was discarded.
func (e *Engine) ResetField(ctx context.Context, key, fieldID string) (bool, error) {
	return e.store.deleteField(ctx, key, fieldID)
}

// ResetAll discards every field's samples for the publication key.
func (e *Engine) ResetAll(ctx context.Context, key string) (bool, error) {
	return e.store.deletePublication(ctx, key)
}

// Publication returns the stored publication record for the key, or nil.
func (e *Engine) Publication(ctx context.Context, key string) (*Publication, error) {
	return e.store.publication(ctx, key)
}

// List returns the known publications, most processed first.
func (e *Engine) List(ctx context.Context) ([]Publication, error) {
	return e.store.listPublications(ctx)
}

// IncrementProcessed bumps the processed-article counter for the key.
func (e *Engine) IncrementProcessed(ctx context.Context, key string) error {
	return e.store.incrementProcessed(ctx, key)
}

// dominantPage groups samples by page index and returns the most frequent
// page with its samples. Ties resolve to the lowest page index.
func dominantPage(samples []storedSample) (int, []storedSample) {
	byPage := make(map[int][]storedSample)
	for _, s := range samples {
		byPage[s.Page] = append(byPage[s.Page], s)
	}

	best := samples[0].Page
	for page, group := range byPage {
		if len(group) > len(byPage[best]) || (len(group) == len(byPage[best]) && page < best) {
			best = page
		}
	}
	return best, byPage[best]
}

// meanRect is the element-wise mean of unit-space sample rectangles.
func meanRect(samples []storedSample) geom.Rect {
	var x1, y1, x2, y2 float64
	for _, s := range samples {
		x1 += s.X1
		y1 += s.Y1
		x2 += s.X2
		y2 += s.Y2
	}
	n := float64(len(samples))
	return geom.NewRect(x1/n, y1/n, x2/n, y2/n)
}

// confidence scores the sample set: evidence count saturates via
// count/(count+k) and positional spread between samples reduces the score
// multiplicatively. Always within [0,1].
func confidence(samples []storedSample) float64 {
	n := float64(len(samples))
	countConf := n / (n + countSaturation)

	avgStd := (stddev(samples, func(s storedSample) float64 { return s.X1 }) +
		stddev(samples, func(s storedSample) float64 { return s.Y1 }) +
		stddev(samples, func(s storedSample) float64 { return s.X2 }) +
		stddev(samples, func(s storedSample) float64 { return s.Y2 })) / 4

	agreement := math.Max(0, 1-spreadPenalty*avgStd)

	return math.Min(1, math.Max(0, countConf*agreement))
}

// stddev is the sample standard deviation of one corner coordinate; zero
// for fewer than two samples.
func stddev(samples []storedSample, pick func(storedSample) float64) float64 {
	if len(samples) < 2 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += pick(s)
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, s := range samples {
		d := pick(s) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(samples)-1))
}

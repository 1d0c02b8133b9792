package markup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metabib/pdf-markup/internal/extract"
	"github.com/metabib/pdf-markup/internal/template"
)

type recordingApplier struct {
	mu      sync.Mutex
	applied map[string]string
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{applied: map[string]string{}}
}

func (a *recordingApplier) ApplyField(fieldID, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied[fieldID] = text
}

func (a *recordingApplier) get(fieldID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	text, ok := a.applied[fieldID]
	return text, ok
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	session      *Session
	store        *Store
	surface      *fakeSurface
	extractor    *fakeExtractor
	engine       *template.Engine
	applier      *recordingApplier
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	fx := &orchestratorFixture{
		session:   NewSession(),
		surface:   newFakeSurface(),
		extractor: &fakeExtractor{},
		engine:    testEngine(t),
		applier:   newRecordingApplier(),
	}
	fx.store = NewStore(testRegistry(t), nil)
	fx.session.SetDocument("article.pdf")
	fx.session.SetPublication("1234-5678", "Вестник почвоведения")

	o, err := NewOrchestrator(OrchestratorConfig{
		Session:   fx.session,
		Store:     fx.store,
		Surface:   fx.surface,
		Extractor: fx.extractor,
		Engine:    fx.engine,
		Registry:  testRegistry(t),
		Applier:   fx.applier,
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	fx.orchestrator = o
	return fx
}

func TestExtractAndApply(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.extractor.responses = map[string]string{"title": "The Title"}

	mark := fx.store.Add(titleMark())
	require.NoError(t, fx.orchestrator.ExtractAndApply(context.Background(), mark))

	text, ok := fx.applier.get("title")
	require.True(t, ok)
	assert.Equal(t, "The Title", text)
	assert.Equal(t, "The Title", fx.store.Marks()[0].Text)

	// The confirmed geometry became a template sample.
	suggestion, err := fx.engine.Suggest(context.Background(), "1234-5678", "title", 595, 842)
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	assert.Equal(t, 1, suggestion.SampleCount)
}

func TestExtractAndApply_SendsFieldClassOptions(t *testing.T) {
	fx := newOrchestratorFixture(t)

	refs := titleMark()
	refs.FieldID = "references_ru"
	mark := fx.store.Add(refs)
	require.NoError(t, fx.orchestrator.ExtractAndApply(context.Background(), mark))

	require.Len(t, fx.extractor.requests, 1)
	opts := fx.extractor.requests[0].Options
	assert.False(t, opts.JoinLines)
	assert.False(t, opts.StripPrefix)
	assert.True(t, opts.FixHyphenation)
}

func TestExtractAndApply_FailureRetainsMark(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.extractor.err = errors.New("service down")

	mark := fx.store.Add(titleMark())
	err := fx.orchestrator.ExtractAndApply(context.Background(), mark)
	require.ErrorIs(t, err, ErrExtractionFailed)

	assert.Len(t, fx.store.Marks(), 1, "mark stays after extraction failure")
	_, ok := fx.applier.get("title")
	assert.False(t, ok)
}

func TestExtractAndApply_DiscardsStaleResponse(t *testing.T) {
	fx := newOrchestratorFixture(t)
	// The mark disappears while the extraction request is in flight.
	fx.extractor.onExtract = func(extract.Request) {
		fx.store.RemoveByField("title")
	}

	mark := fx.store.Add(titleMark())
	require.NoError(t, fx.orchestrator.ExtractAndApply(context.Background(), mark))

	_, ok := fx.applier.get("title")
	assert.False(t, ok, "stale response must not populate the field")
	assert.Empty(t, fx.store.Marks())
}

func TestExtractAndApply_NoSampleWithoutPublication(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.session.SetPublication("", "")

	mark := fx.store.Add(titleMark())
	require.NoError(t, fx.orchestrator.ExtractAndApply(context.Background(), mark))

	publications, err := fx.engine.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, publications)
}

func TestApplySuggestion(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := fx.orchestrator.ApplySuggestion(ctx, "title")
	require.ErrorIs(t, err, ErrNoTemplateForField)

	// Learn from one manual mark, then clear the document state.
	mark := fx.store.Add(titleMark())
	require.NoError(t, fx.orchestrator.ExtractAndApply(ctx, mark))
	fx.store.RemoveAll()

	applied, err := fx.orchestrator.ApplySuggestion(ctx, "title")
	require.NoError(t, err)
	assert.True(t, applied.FromTemplate)
	assert.Greater(t, applied.Confidence, 0.0)

	marks := fx.store.MarksForField("title")
	require.Len(t, marks, 1, "template application keeps one mark per field")

	// Template marks do not feed back into the engine.
	suggestion, err := fx.engine.Suggest(ctx, "1234-5678", "title", 595, 842)
	require.NoError(t, err)
	assert.Equal(t, 1, suggestion.SampleCount)
}

func TestApplyAllSuggestions(t *testing.T) {
	fx := newOrchestratorFixture(t)
	ctx := context.Background()

	// Two fields with strong templates: several identical samples each.
	for i := 0; i < 3; i++ {
		titleSample := fx.store.Add(titleMark())
		require.NoError(t, fx.orchestrator.ExtractAndApply(ctx, titleSample))

		doi := titleMark()
		doi.FieldID = "doi"
		doiSample := fx.store.Add(doi)
		require.NoError(t, fx.orchestrator.ExtractAndApply(ctx, doiSample))

		fx.store.RemoveAll()
	}

	applied, err := fx.orchestrator.ApplyAllSuggestions(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)

	appliedFields := map[string]bool{}
	for _, m := range applied {
		assert.True(t, m.FromTemplate)
		appliedFields[m.FieldID] = true
	}
	assert.True(t, appliedFields["title"])
	assert.True(t, appliedFields["doi"])
}

func TestFinishDrag(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.session.SetActiveField("title")
	controller := NewController(fx.session, fx.store)

	require.NoError(t, controller.PointerDown(Point{X: 100, Y: 100}))
	mark, err := fx.orchestrator.FinishDrag(context.Background(), controller, Point{X: 300, Y: 150})
	require.NoError(t, err)

	assert.Equal(t, "title", mark.FieldID)
	assert.Positive(t, fx.surface.presentCount(), "mark renders before text arrives")
	_, ok := fx.applier.get("title")
	assert.True(t, ok)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorConfig{})
	require.Error(t, err)
}

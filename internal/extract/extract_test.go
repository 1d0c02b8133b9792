package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metabib/pdf-markup/internal/fields"
)

func TestOptionsForClass(t *testing.T) {
	refs := OptionsForClass(fields.ClassReferences)
	assert.False(t, refs.JoinLines, "references must keep one source per line")
	assert.False(t, refs.StripPrefix, "references must keep numbering prefixes")
	assert.True(t, refs.FixHyphenation)

	text := OptionsForClass(fields.ClassText)
	assert.True(t, text.JoinLines)
	assert.True(t, text.StripPrefix)
	assert.True(t, text.FixHyphenation)
}

func TestNormalize_Hyphenation(t *testing.T) {
	opts := Options{FixHyphenation: true}

	assert.Equal(t, "science", Normalize("sci-\nence", "title", opts))
	assert.Equal(t, "science", Normalize("sci- ence", "title", opts))
	// A hyphen before an uppercase letter is a real compound, not a break.
	assert.Equal(t, "Saint-\nPetersburg", Normalize("Saint-\nPetersburg", "title", opts))
}

func TestNormalize_StripPrefix(t *testing.T) {
	opts := Options{StripPrefix: true}

	tests := []struct {
		fieldID string
		in      string
		want    string
	}{
		{"annotation", "Аннотация: Изучено влияние удобрений.", "Изучено влияние удобрений."},
		{"annotation_en", "Abstract: The effect was studied.", "The effect was studied."},
		{"keywords", "Ключевые слова: почва, азот", "почва, азот"},
		{"keywords_en", "Keywords - soil, nitrogen", "soil, nitrogen"},
		// Prefixes are only stripped for their own fields.
		{"title", "Abstract: not a title prefix", "Abstract: not a title prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.fieldID, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, tt.fieldID, opts))
		})
	}
}

func TestNormalize_JoinLines(t *testing.T) {
	joined := Normalize("line one\nline two", "title", Options{JoinLines: true})
	assert.Equal(t, "line one line two", joined)

	kept := Normalize("1. First source\n2. Second source", "references_ru", Options{JoinLines: false})
	assert.Equal(t, "1. First source\n2. Second source", kept)
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b", Normalize("  a \t  b  ", "title", Options{}))
	assert.Equal(t, "", Normalize("", "title", Options{JoinLines: true}))
}

func TestStripRepeatedLines(t *testing.T) {
	text := "Journal of Soil Science\nActual content here\nJournal of Soil Science\nMore content\nJournal of Soil Science"

	got := StripRepeatedLines(text, 3)
	assert.Equal(t, "Actual content here\nMore content", got)

	// Below the repeat threshold nothing is removed.
	assert.Equal(t, text, StripRepeatedLines(text, 4))
}

func TestMergeByField(t *testing.T) {
	items := []Extracted{
		{FieldID: "references_ru", Page: 9, Text: "10. Last source"},
		{FieldID: "references_ru", Page: 8, Text: "1. First source"},
		{FieldID: "title", Page: 0, Text: "The Title"},
		{FieldID: "", Page: 0, Text: "orphan"},
		{FieldID: "doi", Page: 0, Text: ""},
	}

	merged := MergeByField(items)

	assert.Equal(t, "1. First source\n10. Last source", merged["references_ru"])
	assert.Equal(t, "The Title", merged["title"])
	assert.NotContains(t, merged, "doi")
	assert.NotContains(t, merged, "")
}

func TestClient_Extract(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/pdf-extract-text", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(Response{
			Success:   true,
			Extracted: []Extracted{{FieldID: "title", Page: 0, Text: "The Title"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	resp, err := client.Extract(context.Background(), Request{
		PDFFile: "article.pdf",
		Selections: []Selection{{
			Page: 0, X1: 50, Y1: 700, X2: 545, Y2: 800,
			PageWidth: 595, PageHeight: 842, FieldID: "title",
		}},
		Options: OptionsForClass(fields.ClassText),
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.Len(t, resp.Extracted, 1)
	assert.Equal(t, "The Title", resp.Extracted[0].Text)

	// The wire request carries normalized-space geometry and the page size.
	require.Len(t, gotReq.Selections, 1)
	assert.Equal(t, 595.0, gotReq.Selections[0].PageWidth)
	assert.True(t, gotReq.Options.JoinLines)
}

func TestClient_ExtractErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.Extract(context.Background(), Request{PDFFile: "x.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestLocal_Validation(t *testing.T) {
	l := NewLocal(nil)

	_, err := l.Extract(context.Background(), Request{})
	require.Error(t, err)

	_, err = l.Extract(context.Background(), Request{PDFFile: "x.pdf"})
	require.Error(t, err)
}

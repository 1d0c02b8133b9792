package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedRegistry(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	all := reg.All()
	require.NotEmpty(t, all)

	title, ok := reg.Get("title")
	require.True(t, ok)
	assert.Equal(t, ClassText, title.Class)
	assert.NotEmpty(t, title.Label)
	assert.NotEmpty(t, title.Color)

	refs, ok := reg.Get("references_ru")
	require.True(t, ok)
	assert.Equal(t, ClassReferences, refs.Class)

	refsEn, ok := reg.Get("references_en")
	require.True(t, ok)
	assert.Equal(t, ClassReferences, refsEn.Class)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty registry",
			yaml:    "fields: []",
			wantErr: "empty",
		},
		{
			name:    "missing id",
			yaml:    "fields:\n  - label: X",
			wantErr: "without id",
		},
		{
			name:    "duplicate id",
			yaml:    "fields:\n  - id: a\n  - id: a",
			wantErr: "duplicate",
		},
		{
			name:    "unknown class",
			yaml:    "fields:\n  - id: a\n    class: picture",
			wantErr: "unknown class",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_DefaultsClassToText(t *testing.T) {
	reg, err := Parse([]byte("fields:\n  - id: custom\n    label: Custom"))
	require.NoError(t, err)

	f, ok := reg.Get("custom")
	require.True(t, ok)
	assert.Equal(t, ClassText, f.Class)
}

func TestClassOf_UnknownFallsBack(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ClassText, reg.ClassOf("no_such_field"))
	assert.Equal(t, ClassReferences, reg.ClassOf("references_en"))
}

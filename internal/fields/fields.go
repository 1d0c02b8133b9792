// Package fields defines the metadata field registry: every field an
// operator can bind a region to, with its display label, overlay color and
// extraction class. The registry ships embedded in the binary; deployments
// do not edit it at runtime.
package fields

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Class groups fields by how their extracted text is post-processed.
type Class string

const (
	// ClassText fields get hyphenation repair, prefix stripping and line
	// joining: the region is expected to hold one logical run of text.
	ClassText Class = "text"

	// ClassReferences fields keep each source on its own line with its
	// numbering intact; line joining and prefix stripping are disabled.
	ClassReferences Class = "references"
)

// Field describes one metadata field an operator can mark regions for.
type Field struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Class Class  `yaml:"class"`
	Color string `yaml:"color"`
}

//go:embed fields.yaml
var registryYAML []byte

// Registry holds the known fields in declaration order.
type Registry struct {
	fields []Field
	byID   map[string]Field
}

// Load parses the embedded registry.
func Load() (*Registry, error) {
	return Parse(registryYAML)
}

// Parse builds a registry from YAML data.
func Parse(data []byte) (*Registry, error) {
	var doc struct {
		Fields []Field `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse field registry: %w", err)
	}
	if len(doc.Fields) == 0 {
		return nil, fmt.Errorf("field registry is empty")
	}

	byID := make(map[string]Field, len(doc.Fields))
	for _, f := range doc.Fields {
		if f.ID == "" {
			return nil, fmt.Errorf("field registry entry without id")
		}
		if _, dup := byID[f.ID]; dup {
			return nil, fmt.Errorf("duplicate field id: %s", f.ID)
		}
		if f.Class == "" {
			f.Class = ClassText
		}
		if f.Class != ClassText && f.Class != ClassReferences {
			return nil, fmt.Errorf("field %s: unknown class %q", f.ID, f.Class)
		}
		byID[f.ID] = f
	}

	fields := make([]Field, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		fields = append(fields, byID[f.ID])
	}

	return &Registry{fields: fields, byID: byID}, nil
}

// All returns every field in declaration order.
func (r *Registry) All() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Get looks a field up by id.
func (r *Registry) Get(id string) (Field, bool) {
	f, ok := r.byID[id]
	return f, ok
}

// ClassOf returns the extraction class for a field id; unknown ids fall
// back to ClassText.
func (r *Registry) ClassOf(id string) Class {
	if f, ok := r.byID[id]; ok {
		return f.Class
	}
	return ClassText
}

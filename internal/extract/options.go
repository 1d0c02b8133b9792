package extract

import "github.com/metabib/pdf-markup/internal/fields"

// OptionsForClass returns the fixed post-processing options for a field
// class. Reference lists keep each source on its own line with numbering
// preserved; everything else is treated as one logical run of text.
func OptionsForClass(class fields.Class) Options {
	if class == fields.ClassReferences {
		return Options{
			FixHyphenation: true,
			StripPrefix:    false,
			JoinLines:      false,
		}
	}
	return Options{
		FixHyphenation: true,
		StripPrefix:    true,
		JoinLines:      true,
	}
}

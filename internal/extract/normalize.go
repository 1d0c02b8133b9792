package extract

import (
	"regexp"
	"strings"
)

var (
	// "sci-\nence" and "sci- ence": a hyphen split across a line break or
	// followed by stray whitespace, continued by a lowercase letter.
	hyphenBreakRe = regexp.MustCompile(`([A-Za-zА-Яа-яЁё])[-‑–—]\s*\n\s*([a-zа-яё])`)
	hyphenSpaceRe = regexp.MustCompile(`([A-Za-zА-Яа-яЁё])[-‑–—][ \t]+([a-zа-яё])`)

	abstractPrefixRe = regexp.MustCompile(`(?i)^(аннотация|abstract)\s*[:\-]\s*`)
	keywordsPrefixRe = regexp.MustCompile(`(?i)^(ключевые слова|keywords)\s*[:\-]\s*`)

	lineBreakRe = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	spaceRunRe  = regexp.MustCompile(`[ \t]+`)
)

// abstractFields and keywordFields name the fields whose regions commonly
// start with a printed label that should not end up in the metadata.
var (
	abstractFields = map[string]bool{"annotation": true, "annotation_en": true}
	keywordFields  = map[string]bool{"keywords": true, "keywords_en": true}
)

// Normalize post-processes extracted text according to the options:
// hyphenation repair, field-label prefix stripping, line joining and
// whitespace collapse. The input is returned unchanged when empty.
func Normalize(text, fieldID string, opts Options) string {
	if text == "" {
		return text
	}

	cleaned := strings.ReplaceAll(text, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")

	if opts.FixHyphenation {
		cleaned = hyphenBreakRe.ReplaceAllString(cleaned, "$1$2")
		cleaned = hyphenSpaceRe.ReplaceAllString(cleaned, "$1$2")
	}

	if opts.StripPrefix {
		if abstractFields[fieldID] {
			cleaned = abstractPrefixRe.ReplaceAllString(cleaned, "")
		}
		if keywordFields[fieldID] {
			cleaned = keywordsPrefixRe.ReplaceAllString(cleaned, "")
		}
	}

	if opts.JoinLines {
		cleaned = lineBreakRe.ReplaceAllString(cleaned, " ")
	}

	cleaned = spaceRunRe.ReplaceAllString(cleaned, " ")

	// Trim surrounding whitespace per line but keep the line structure
	// when lines were not joined.
	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// StripRepeatedLines removes running headers and footers: any line of at
// least three characters that repeats minRepeats times or more across the
// text is dropped everywhere.
func StripRepeatedLines(text string, minRepeats int) string {
	if text == "" || minRepeats <= 0 {
		return text
	}

	lines := strings.Split(text, "\n")
	counts := make(map[string]int)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			counts[trimmed]++
		}
	}

	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len([]rune(trimmed)) >= 3 && counts[trimmed] >= minRepeats {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

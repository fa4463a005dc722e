package schema

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// InferKind infers a column's semantic kind from its name and free-text
// description. Suffix conventions in the export are strong signals
// (_ID, _C_NAME, _YN, _DTTM, _REAL, LINE); the description only breaks ties.
//
// The result is a hint for tooling. Relationship classification never reads
// it: a _CSN_ID column is an identifier here regardless of whether the
// registry later calls it membership, provenance, or a cross-reference.
func InferKind(name, description string) ColumnKind {
	n := strings.ToUpper(strings.TrimSpace(name))
	desc := normalizeDescription(description)

	switch {
	case n == "LINE", strings.HasSuffix(n, "_LINE"), strings.HasSuffix(n, "_LN"):
		return KindLineNumber
	case strings.HasSuffix(n, "_YN"):
		return KindYesNoFlag
	case strings.HasSuffix(n, "_C_NAME"):
		return KindCategoryName
	case strings.HasSuffix(n, "_REAL"):
		return KindInternalDateReal
	case strings.HasSuffix(n, "_DTTM"), strings.HasSuffix(n, "_DATE"),
		strings.HasSuffix(n, "_TIME"), strings.HasSuffix(n, "_INSTANT"):
		return KindDatetime
	case strings.HasSuffix(n, "_ID"), strings.HasSuffix(n, "_CSN"):
		return KindIdentifier
	case strings.HasSuffix(n, "_C"):
		return KindCategoryCode
	case strings.HasSuffix(n, "_NAME"):
		return KindDenormalizedName
	}

	// Description tie-breakers for columns that escape the suffix
	// conventions. These phrases recur across the vendor documentation.
	switch {
	case strings.Contains(desc, "category number"), strings.Contains(desc, "category id"):
		return KindCategoryCode
	case strings.Contains(desc, "unique identifier"), strings.Contains(desc, "internal id"):
		return KindIdentifier
	case strings.Contains(desc, "date and time"), strings.Contains(desc, "the date when"):
		return KindDatetime
	case strings.Contains(desc, "line number"), strings.Contains(desc, "line count"):
		return KindLineNumber
	case strings.Contains(desc, "the name of"):
		return KindDenormalizedName
	}
	return KindOther
}

// descTransformer strips combining marks so accented text in descriptions
// compares equal to its ASCII form. Vendor docs occasionally carry
// mis-encoded or accented fragments.
var descTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// normalizeDescription lower-cases a description, strips diacritics, and
// collapses runs of whitespace to single spaces.
func normalizeDescription(s string) string {
	if s == "" {
		return ""
	}
	if out, _, err := transform.String(descTransformer, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

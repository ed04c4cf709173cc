package card

import (
	"slices"
	"strings"
)

// Record is a normalized card. Records are values; callers must not share
// and mutate the slices.
type Record struct {
	Identity Identity

	Layout          string // Source layout, e.g. "normal", "transform", "saga"
	Class           LayoutClass
	Name            string
	ManaCost        string
	TypeLine        string
	OracleText      string
	FlavorText      string
	Power           string
	Toughness       string
	Loyalty         string
	Artist          string
	Watermark       string
	Rarity          string
	Set             string
	CollectorNumber string
	Lang            string
	ArtworkURI      string
	Keywords        []string
	FrameEffects    []string
	Colors          []string

	// Printed text when the record is in a language other than English.
	PrintedName     string
	PrintedTypeLine string
	PrintedText     string

	// Faces holds both sides of double-faced cards. Front is true when the
	// requested name matched the first face.
	Faces []Face
	Front bool

	// Warnings are non-fatal notes gathered while fetching, such as a
	// language fallback.
	Warnings []string
}

// Face is one side of a multi-faced card.
type Face struct {
	Name       string
	ManaCost   string
	TypeLine   string
	OracleText string
	FlavorText string
	Power      string
	Toughness  string
	Loyalty    string
	ArtworkURI string
}

// WithWarning returns a copy of r with msg appended to its warnings.
func (r Record) WithWarning(msg string) Record {
	r.Warnings = append(slices.Clone(r.Warnings), msg)
	return r
}

// DisplayName is the name to show operators and to use in output files.
func (r Record) DisplayName() string {
	if r.Class == ClassToken && !strings.HasSuffix(r.Name, " Token") {
		return r.Name + " Token"
	}
	return r.Name
}

// IsType reports whether the type line contains t.
func (r Record) IsType(t string) bool {
	return strings.Contains(r.TypeLine, t)
}

// HasKeyword reports whether the card has keyword k.
func (r Record) HasKeyword(k string) bool {
	return slices.Contains(r.Keywords, k)
}

// HasFrameEffect reports whether the card has frame effect e.
func (r Record) HasFrameEffect(e string) bool {
	return slices.Contains(r.FrameEffects, e)
}

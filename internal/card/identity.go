// Package card holds the card data model: identities parsed from art file
// names, normalized card records and the layout classes templates are
// selected by.
package card

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// DefaultLanguage is the language every card has a printing in.
const DefaultLanguage = "en"

// Identity names one card printing to look up.
type Identity struct {
	Name     string
	Set      string // Optional set code, upper case
	Number   string // Optional collector number; only honoured with Set
	Language string
}

// Lang returns the identity's language, defaulting to English.
func (id Identity) Lang() string {
	if id.Language == "" {
		return DefaultLanguage
	}
	return id.Language
}

// WithLanguage returns a copy of id in lang.
func (id Identity) WithLanguage(lang string) Identity {
	id.Language = lang
	return id
}

// Key is the cache key for id: normalized name, set code and language,
// plus the collector number when one is pinned.
func (id Identity) Key() string {
	key := NormalizeName(id.Name) + "|" + strings.ToUpper(id.Set) + "|" + id.Lang()
	if id.Number != "" && id.Set != "" {
		key += "|" + id.Number
	}
	return key
}

func (id Identity) String() string {
	var b strings.Builder
	b.WriteString(id.Name)
	if id.Set != "" {
		fmt.Fprintf(&b, " [%s]", id.Set)
	}
	if id.Number != "" && id.Set != "" {
		fmt.Fprintf(&b, " {%s}", id.Number)
	}
	if id.Lang() != DefaultLanguage {
		fmt.Fprintf(&b, " <%s>", id.Lang())
	}
	return b.String()
}

// NormalizeName lower-cases name and drops everything but letters and
// digits, so "Snow-Covered Island" and "snowcovered island" compare equal.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ArtFile is an art image with the card details encoded in its name:
//
//	Name (Artist) [SET] {NUMBER}$Creator.ext
//
// Every tag is optional.
type ArtFile struct {
	Path    string
	Name    string
	Artist  string
	Set     string
	Number  string
	Creator string
}

var (
	reArtist = regexp.MustCompile(`\(+(.*?)\)`)
	reSet    = regexp.MustCompile(`\[(.*?)]`)
	reNumber = regexp.MustCompile(`\{(.*?)}`)
	reSplit  = regexp.MustCompile(` \[| \(| \{|\$`)
)

// ParseArtFilename extracts card details from an art file path.
func ParseArtFilename(path string) (ArtFile, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	parts := reSplit.Split(stem, -1)
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return ArtFile{}, fmt.Errorf("art file %q has no card name", base)
	}

	af := ArtFile{Path: path, Name: name}
	if m := reArtist.FindStringSubmatch(stem); m != nil {
		af.Artist = strings.TrimSpace(m[1])
	}
	if m := reSet.FindStringSubmatch(stem); m != nil {
		af.Set = strings.ToUpper(strings.TrimSpace(m[1]))
	}
	if m := reNumber.FindStringSubmatch(stem); m != nil && af.Set != "" {
		af.Number = strings.TrimSpace(m[1])
	}
	if i := strings.LastIndex(stem, "$"); i >= 0 {
		af.Creator = strings.TrimSpace(stem[i+1:])
	}
	return af, nil
}

// Identity returns the lookup identity for the art file in lang.
func (a ArtFile) Identity(lang string) Identity {
	return Identity{Name: a.Name, Set: a.Set, Number: a.Number, Language: lang}
}

package card

import (
	"slices"
	"strings"
)

var basicLandNames = []string{
	"plains", "island", "swamp", "mountain", "forest", "wastes",
	"snowcoveredplains", "snowcoveredisland", "snowcoveredswamp",
	"snowcoveredmountain", "snowcoveredforest",
}

// IsBasicLand reports whether name is a basic land.
func IsBasicLand(name string) bool {
	return slices.Contains(basicLandNames, NormalizeName(name))
}

// SyntheticBasicLand builds a record for a basic land without a lookup.
// The artist comes from the art file since there is no printing to read.
func SyntheticBasicLand(art ArtFile) Record {
	set := strings.ToUpper(art.Set)
	if set == "" {
		set = "MTG"
	}
	artist := art.Artist
	if artist == "" {
		artist = "Unknown"
	}
	typeLine := "Basic Land — " + art.Name
	if strings.HasPrefix(NormalizeName(art.Name), "snowcovered") {
		typeLine = "Basic Snow Land — " + strings.TrimPrefix(art.Name, "Snow-Covered ")
	}
	return Record{
		Identity: art.Identity(DefaultLanguage),
		Layout:   "basic",
		Class:    ClassBasic,
		Name:     art.Name,
		TypeLine: typeLine,
		Artist:   artist,
		Rarity:   "common",
		Set:      set,
		Lang:     DefaultLanguage,
		Front:    true,
	}
}

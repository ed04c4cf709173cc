// Package testutil provides fakes and fixtures shared by package tests:
// card JSON builders, a scripted data source, an instrumented editor and a
// recording operator.
package testutil

import (
	"strings"

	"github.com/tidwall/sjson"
)

// CardOption sets one field on a card object.
type CardOption func(raw []byte) []byte

func set(path string, value any) CardOption {
	return func(raw []byte) []byte {
		out, err := sjson.SetBytes(raw, path, value)
		if err != nil {
			panic(err)
		}
		return out
	}
}

// Field sets an arbitrary card object field.
func Field(path string, value any) CardOption { return set(path, value) }

// Layout sets the source layout, e.g. "transform".
func Layout(l string) CardOption { return set("layout", l) }

// TypeLine sets the type line.
func TypeLine(t string) CardOption { return set("type_line", t) }

// ManaCost sets the mana cost.
func ManaCost(c string) CardOption { return set("mana_cost", c) }

// OracleText sets the rules text.
func OracleText(t string) CardOption { return set("oracle_text", t) }

// Flavor sets the flavor text.
func Flavor(t string) CardOption { return set("flavor_text", t) }

// Artist sets the artist.
func Artist(a string) CardOption { return set("artist", a) }

// Watermark sets the watermark name.
func Watermark(w string) CardOption { return set("watermark", w) }

// Set sets the set code.
func Set(code string) CardOption { return set("set", strings.ToLower(code)) }

// Number sets the collector number.
func Number(n string) CardOption { return set("collector_number", n) }

// Lang sets the printing language.
func Lang(l string) CardOption { return set("lang", l) }

// PT sets power and toughness.
func PT(power, toughness string) CardOption {
	return func(raw []byte) []byte {
		return set("toughness", toughness)(set("power", power)(raw))
	}
}

// Loyalty sets starting loyalty.
func Loyalty(l string) CardOption { return set("loyalty", l) }

// Colors sets the color identity letters.
func Colors(c ...string) CardOption { return set("colors", c) }

// Keywords sets the keyword list.
func Keywords(k ...string) CardOption { return set("keywords", k) }

// FrameEffects sets the frame effects.
func FrameEffects(e ...string) CardOption { return set("frame_effects", e) }

// Face appends a card face.
func Face(name, typeLine string, opts ...CardOption) CardOption {
	return func(raw []byte) []byte {
		face := []byte(`{"object":"card_face"}`)
		face = set("name", name)(face)
		face = set("type_line", typeLine)(face)
		for _, opt := range opts {
			face = opt(face)
		}
		out, err := sjson.SetRawBytes(raw, "card_faces.-1", face)
		if err != nil {
			panic(err)
		}
		return out
	}
}

// CardJSON builds a playable Scryfall card object. Defaults describe a
// common English instant from set TST.
func CardJSON(name string, opts ...CardOption) []byte {
	raw := []byte(`{"object":"card","layout":"normal","lang":"en","set":"tst","set_type":"expansion",` +
		`"collector_number":"1","type_line":"Instant","rarity":"common","artist":"Test Artist","colors":["U"]}`)
	raw = set("name", name)(raw)
	for _, opt := range opts {
		raw = opt(raw)
	}
	return raw
}

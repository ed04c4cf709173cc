package scryfall

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/zjrosen/cardsmith/internal/card"
)

// Playable reports whether a card object is a real game piece. Minigame
// inserts and art series cards are not.
func Playable(obj gjson.Result) bool {
	if obj.Get("set_type").String() == "minigame" {
		return false
	}
	return obj.Get("layout").String() != "art_series"
}

// Normalize converts a card object into a Record. When the card has
// several faces the face whose name matches id becomes the primary one.
func Normalize(raw []byte, id card.Identity) (card.Record, error) {
	if !gjson.ValidBytes(raw) {
		return card.Record{}, fmt.Errorf("%w: malformed JSON", errInvalid)
	}
	obj := gjson.ParseBytes(raw)
	name := obj.Get("name").String()
	if name == "" {
		return card.Record{}, fmt.Errorf("%w: missing name", errInvalid)
	}

	rec := card.Record{
		Identity:        id,
		Layout:          obj.Get("layout").String(),
		Name:            name,
		ManaCost:        obj.Get("mana_cost").String(),
		TypeLine:        obj.Get("type_line").String(),
		OracleText:      obj.Get("oracle_text").String(),
		FlavorText:      obj.Get("flavor_text").String(),
		Power:           obj.Get("power").String(),
		Toughness:       obj.Get("toughness").String(),
		Loyalty:         obj.Get("loyalty").String(),
		Artist:          obj.Get("artist").String(),
		Watermark:       obj.Get("watermark").String(),
		Rarity:          obj.Get("rarity").String(),
		Set:             strings.ToUpper(obj.Get("set").String()),
		CollectorNumber: obj.Get("collector_number").String(),
		Lang:            obj.Get("lang").String(),
		ArtworkURI:      obj.Get("image_uris.art_crop").String(),
		Keywords:        stringArray(obj.Get("keywords")),
		FrameEffects:    stringArray(obj.Get("frame_effects")),
		Colors:          stringArray(obj.Get("colors")),
		PrintedName:     obj.Get("printed_name").String(),
		PrintedTypeLine: obj.Get("printed_type_line").String(),
		PrintedText:     obj.Get("printed_text").String(),
		Front:           true,
	}
	if rec.Lang == "" {
		rec.Lang = id.Lang()
	}

	faces := obj.Get("card_faces").Array()
	if len(faces) == 0 {
		return rec, nil
	}
	for _, f := range faces {
		rec.Faces = append(rec.Faces, card.Face{
			Name:       f.Get("name").String(),
			ManaCost:   f.Get("mana_cost").String(),
			TypeLine:   f.Get("type_line").String(),
			OracleText: f.Get("oracle_text").String(),
			FlavorText: f.Get("flavor_text").String(),
			Power:      f.Get("power").String(),
			Toughness:  f.Get("toughness").String(),
			Loyalty:    f.Get("loyalty").String(),
			ArtworkURI: f.Get("image_uris.art_crop").String(),
		})
	}

	// Adventure and split cards keep both halves on one face; only true
	// double-faced layouts switch the primary face.
	if !doubleFaced(rec.Layout) {
		return rec, nil
	}
	idx := 0
	want := card.NormalizeName(id.Name)
	for i, f := range rec.Faces {
		if card.NormalizeName(f.Name) == want {
			idx = i
			break
		}
	}
	face := rec.Faces[idx]
	rec.Front = idx == 0
	rec.Name = face.Name
	rec.ManaCost = face.ManaCost
	rec.TypeLine = face.TypeLine
	rec.OracleText = face.OracleText
	rec.FlavorText = face.FlavorText
	rec.Power = face.Power
	rec.Toughness = face.Toughness
	rec.Loyalty = face.Loyalty
	if face.ArtworkURI != "" {
		rec.ArtworkURI = face.ArtworkURI
	}
	return rec, nil
}

func doubleFaced(layout string) bool {
	switch layout {
	case "transform", "modal_dfc", "meld", "double_faced_token", "reversible_card":
		return true
	}
	return false
}

func stringArray(r gjson.Result) []string {
	arr := r.Array()
	if len(arr) == 0 {
		return nil
	}
	out := make([]string, len(arr))
	for i, v := range arr {
		out[i] = v.String()
	}
	return out
}

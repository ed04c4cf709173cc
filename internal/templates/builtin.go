package templates

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/settings"
)

// NormalID is the built-in fallback template.
const NormalID = "normal"

type entry struct {
	desc *Descriptor
	tmpl Template
}

func builtins() []entry {
	return []entry{
		builtin(NormalID, "Normal", TemplateFunc(drawNormal),
			card.ClassNormal, card.ClassTransformFront, card.ClassTransformBack,
			card.ClassMDFCFront, card.ClassMDFCBack, card.ClassIxalan, card.ClassMutate,
			card.ClassAdventure, card.ClassLeveler, card.ClassClass, card.ClassMiracle,
			card.ClassSnow, card.ClassPrototype, card.ClassToken),
		builtin("basic-land", "Basic Land", TemplateFunc(drawBasicLand), card.ClassBasic),
		builtin("saga", "Saga", TemplateFunc(drawSaga), card.ClassSaga),
		builtin("planeswalker", "Planeswalker", TemplateFunc(drawPlaneswalker),
			card.ClassPlaneswalker, card.ClassPWTFFront, card.ClassPWTFBack,
			card.ClassPWMDFCFront, card.ClassPWMDFCBack),
	}
}

func builtin(id, name string, t Template, layouts ...card.LayoutClass) entry {
	return entry{
		desc: &Descriptor{
			ID:          id,
			Name:        name,
			Layouts:     layouts,
			Description: builtinDescription(id),
		},
		tmpl: t,
	}
}

// Canvas geometry for the default 1500x2100 document.
var (
	rectFull    = editor.Rect{X: 0, Y: 0, W: 1500, H: 2100}
	rectFrame   = editor.Rect{X: 57, Y: 57, W: 1386, H: 1986}
	rectArt     = editor.Rect{X: 114, Y: 234, W: 1272, H: 930}
	rectSagaArt = editor.Rect{X: 750, Y: 234, W: 636, H: 1500}
)

var borderColors = map[string]string{
	"black":  "#171717",
	"white":  "#fcfcfc",
	"silver": "#a5a5a5",
	"gold":   "#c5a65a",
}

var frameColors = map[string]string{
	"W": "#f8f6d8",
	"U": "#0e68ab",
	"B": "#3b3a36",
	"R": "#d3202a",
	"G": "#00733e",
}

// Expansion symbol modes.
const (
	symbolFont = "font"
	symbolSVG  = "svg"
	symbolNone = "none"
)

// textOptions are the settings every built-in reads.
type textOptions struct {
	noFlavor      bool
	noReminder    bool
	divider       bool
	trueInfo      bool
	border        string // #rrggbb
	symbolMode    string
	defaultSymbol string
	forceDefault  bool
	symbolStroke  int
	watermark     bool
}

// optionReader reads settings and keeps the first error.
type optionReader struct {
	cfg *settings.EffectiveConfig
	err error
}

func (r *optionReader) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *optionReader) bool(k settings.Key) bool {
	v, err := r.cfg.Bool(k)
	r.keep(err)
	return v
}

func (r *optionReader) str(k settings.Key) string {
	v, err := r.cfg.String(k)
	r.keep(err)
	return v
}

func (r *optionReader) number(k settings.Key) float64 {
	v, err := r.cfg.Number(k)
	r.keep(err)
	return v
}

// oneOf reads k and checks it against a table the template knows.
func (r *optionReader) oneOf(k settings.Key, known func(string) bool) string {
	v := r.str(k)
	if r.err == nil && !known(v) {
		r.keep(&settings.ConfigError{Key: k, Err: fmt.Errorf("unsupported value %q", v)})
	}
	return v
}

func readOptions(cfg *settings.EffectiveConfig) (textOptions, error) {
	r := &optionReader{cfg: cfg}
	o := textOptions{
		noFlavor:      r.bool(settings.KeyNoFlavorText),
		noReminder:    r.bool(settings.KeyNoReminderText),
		divider:       r.bool(settings.KeyFlavorDivider),
		trueInfo:      r.bool(settings.KeyTrueCollectorInfo),
		defaultSymbol: r.str(settings.KeyDefaultSymbol),
		forceDefault:  r.bool(settings.KeyForceDefaultSymbol),
		symbolStroke:  int(r.number(settings.KeySymbolStroke)),
		watermark:     r.bool(settings.KeyEnableWatermark),
	}
	border := r.oneOf(settings.KeyBorderColor, func(v string) bool {
		_, ok := borderColors[v]
		return ok
	})
	o.border = borderColors[border]
	o.symbolMode = r.oneOf(settings.KeySymbolMode, func(v string) bool {
		return v == symbolFont || v == symbolSVG || v == symbolNone
	})
	if r.err != nil {
		return textOptions{}, r.err
	}
	return o, nil
}

var reminderRe = regexp.MustCompile(`\s*\([^()]*\)`)

// StripReminder removes parenthesized reminder text and drops lines left
// empty.
func StripReminder(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(reminderRe.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// printed returns localized text when the record is not English.
func printed(r card.Record, localized, english string) string {
	if r.Lang != "" && r.Lang != card.DefaultLanguage && localized != "" {
		return localized
	}
	return english
}

func frameColor(r card.Record) string {
	switch {
	case r.IsType("Land"):
		return "#a49a8d"
	case len(r.Colors) == 0:
		return "#b9b5ad"
	case len(r.Colors) > 1:
		return "#c9b15f"
	default:
		if c, ok := frameColors[r.Colors[0]]; ok {
			return c
		}
		return "#b9b5ad"
	}
}

func collectorInfo(r card.Record, trueInfo bool) string {
	lang := strings.ToUpper(r.Lang)
	if lang == "" {
		lang = strings.ToUpper(card.DefaultLanguage)
	}
	if trueInfo && r.CollectorNumber != "" {
		rarity := ""
		if r.Rarity != "" {
			rarity = strings.ToUpper(r.Rarity[:1])
		}
		return strings.TrimSpace(fmt.Sprintf("%s %s", r.CollectorNumber, rarity)) + "\n" + r.Set + " • " + lang
	}
	return r.Set + " • " + lang
}

func text(name, value string) editor.LayerSpec {
	return editor.LayerSpec{Name: name, Kind: editor.LayerText, Text: value, Visible: value != ""}
}

func visible(name string, on bool) editor.LayerSpec {
	return editor.LayerSpec{Name: name, Kind: editor.LayerVisibility, Visible: on}
}

func fill(name, color string, r editor.Rect) editor.LayerSpec {
	return editor.LayerSpec{Name: name, Kind: editor.LayerFill, Color: color, Rect: r, Visible: true}
}

func art(path string, r editor.Rect) []editor.LayerSpec {
	if path == "" {
		return nil
	}
	return []editor.LayerSpec{{Name: "Art Frame", Kind: editor.LayerImage, Source: path, Rect: r, Visible: true}}
}

func border(o textOptions) editor.LayerSpec {
	return fill("Border", o.border, rectFull)
}

// symbol is the expansion symbol layer. The set code picks the symbol
// unless the default is forced or the card has no set.
func symbol(r card.Record, o textOptions) editor.LayerSpec {
	if o.symbolMode == symbolNone {
		return visible("Expansion Symbol", false)
	}
	code := r.Set
	if o.forceDefault || code == "" {
		code = o.defaultSymbol
	}
	name := "Expansion Symbol"
	if o.symbolMode == symbolSVG {
		name += " SVG"
	}
	s := text(name, code)
	s.Stroke = o.symbolStroke
	return s
}

func watermark(r card.Record, o textOptions) editor.LayerSpec {
	if !o.watermark {
		return visible("Watermark", false)
	}
	return text("Watermark", r.Watermark)
}

func drawAll(ctx context.Context, c Canvas, specs []editor.LayerSpec) error {
	for _, s := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Draw(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// rulesText combines oracle and flavor text under the text options.
func rulesText(r card.Record, o textOptions) (string, bool) {
	oracle := printed(r, r.PrintedText, r.OracleText)
	if o.noReminder {
		oracle = StripReminder(oracle)
	}
	flavor := r.FlavorText
	if o.noFlavor {
		flavor = ""
	}
	switch {
	case oracle == "":
		return flavor, false
	case flavor == "":
		return oracle, false
	default:
		return oracle + "\n\n" + flavor, o.divider
	}
}

func drawNormal(ctx context.Context, c Canvas, in DrawInput) error {
	r := in.Record
	o, err := readOptions(in.Config)
	if err != nil {
		return err
	}
	rules, divider := rulesText(r, o)
	pt := ""
	if r.Power != "" || r.Toughness != "" {
		pt = r.Power + "/" + r.Toughness
	}

	specs := []editor.LayerSpec{border(o), fill("Frame", frameColor(r), rectFrame)}
	specs = append(specs, art(in.ArtPath, rectArt)...)
	specs = append(specs,
		text("Name", printed(r, r.PrintedName, r.DisplayName())),
		text("Mana Cost", r.ManaCost),
		text("Type Line", printed(r, r.PrintedTypeLine, r.TypeLine)),
		symbol(r, o),
		text("Rules Text", rules),
		visible("Flavor Divider", divider),
		watermark(r, o),
		text("Power Toughness", pt),
		visible("Transform Icon", r.Class == card.ClassTransformFront || r.Class == card.ClassTransformBack),
		text("Artist", r.Artist),
		text("Collector Info", collectorInfo(r, o.trueInfo)),
	)
	return drawAll(ctx, c, specs)
}

func drawBasicLand(ctx context.Context, c Canvas, in DrawInput) error {
	r := in.Record
	o, err := readOptions(in.Config)
	if err != nil {
		return err
	}
	specs := []editor.LayerSpec{border(o)}
	specs = append(specs, art(in.ArtPath, rectFrame)...)
	specs = append(specs,
		text("Name", r.Name),
		visible("Basic Land Symbol", true),
		text("Artist", r.Artist),
		text("Collector Info", collectorInfo(r, o.trueInfo)),
	)
	return drawAll(ctx, c, specs)
}

func drawSaga(ctx context.Context, c Canvas, in DrawInput) error {
	r := in.Record
	o, err := readOptions(in.Config)
	if err != nil {
		return err
	}
	// Reminder text on sagas is the chapter rules line; chapters follow it.
	chapters := strings.Split(StripReminder(printed(r, r.PrintedText, r.OracleText)), "\n")

	specs := []editor.LayerSpec{border(o), fill("Frame", frameColor(r), rectFrame)}
	specs = append(specs, art(in.ArtPath, rectSagaArt)...)
	specs = append(specs,
		text("Name", printed(r, r.PrintedName, r.Name)),
		text("Mana Cost", r.ManaCost),
		text("Type Line", printed(r, r.PrintedTypeLine, r.TypeLine)),
		symbol(r, o),
	)
	for i, ch := range chapters {
		if ch == "" {
			continue
		}
		specs = append(specs, text(fmt.Sprintf("Chapter %d", i+1), ch))
	}
	specs = append(specs,
		text("Artist", r.Artist),
		text("Collector Info", collectorInfo(r, o.trueInfo)),
	)
	return drawAll(ctx, c, specs)
}

// maxAbilities is the number of ability boxes on the planeswalker frame.
const maxAbilities = 4

func drawPlaneswalker(ctx context.Context, c Canvas, in DrawInput) error {
	r := in.Record
	o, err := readOptions(in.Config)
	if err != nil {
		return err
	}
	oracle := printed(r, r.PrintedText, r.OracleText)
	if o.noReminder {
		oracle = StripReminder(oracle)
	}
	abilities := strings.Split(oracle, "\n")
	if len(abilities) > maxAbilities {
		extra := strings.Join(abilities[maxAbilities-1:], "\n")
		abilities = append(abilities[:maxAbilities-1], extra)
	}

	specs := []editor.LayerSpec{border(o)}
	specs = append(specs, art(in.ArtPath, rectFrame)...)
	specs = append(specs,
		text("Name", printed(r, r.PrintedName, r.Name)),
		text("Mana Cost", r.ManaCost),
		text("Type Line", printed(r, r.PrintedTypeLine, r.TypeLine)),
		symbol(r, o),
	)
	for i := 0; i < maxAbilities; i++ {
		name := fmt.Sprintf("Ability %d", i+1)
		if i < len(abilities) && abilities[i] != "" {
			specs = append(specs, text(name, abilities[i]))
		} else {
			specs = append(specs, visible(name, false))
		}
	}
	specs = append(specs,
		text("Loyalty", r.Loyalty),
		text("Artist", r.Artist),
		text("Collector Info", collectorInfo(r, o.trueInfo)),
	)
	return drawAll(ctx, c, specs)
}

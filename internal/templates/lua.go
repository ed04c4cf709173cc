package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/zjrosen/cardsmith/internal/card"
	"github.com/zjrosen/cardsmith/internal/editor"
	"github.com/zjrosen/cardsmith/internal/settings"
)

// loadCheckTimeout bounds the top-level run of a script at load time.
const loadCheckTimeout = 2 * time.Second

// ScriptError is a Lua error raised while drawing.
type ScriptError struct {
	Template string
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("template %s script: %v", e.Template, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// LuaTemplate runs a plugin script's draw(doc, card, cfg) function. Every
// Draw gets a fresh sandboxed interpreter, so scripts cannot carry state
// from one card to the next.
type LuaTemplate struct {
	id    string
	proto *lua.FunctionProto
}

// CompileLua parses and compiles a draw script and checks that it defines
// a global draw function. Syntax errors are reported here, not per job.
func CompileLua(id, name, source string) (*LuaTemplate, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadCheckTimeout)
	defer cancel()
	L, err := newSandbox(ctx, proto)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	defer L.Close()
	if _, ok := L.GetGlobal("draw").(*lua.LFunction); !ok {
		return nil, fmt.Errorf("%s does not define a draw function", name)
	}
	return &LuaTemplate{id: id, proto: proto}, nil
}

// newSandbox creates an interpreter with only the base, table, string and
// math libraries and runs the compiled chunk in it.
func newSandbox(ctx context.Context, proto *lua.FunctionProto) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, err
		}
	}
	// The base library can still reach the file system.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetContext(ctx)
	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

// Draw runs the script's draw function against c.
func (t *LuaTemplate) Draw(ctx context.Context, c Canvas, in DrawInput) error {
	L, err := newSandbox(ctx, t.proto)
	if err != nil {
		return &ScriptError{Template: t.id, Err: err}
	}
	defer L.Close()

	// Canvas and settings errors are kept so callers can match their types.
	var drawErr error
	keep := func(err error) {
		if drawErr == nil {
			drawErr = err
		}
	}
	emit := func(L *lua.LState, spec editor.LayerSpec) int {
		if err := c.Draw(ctx, spec); err != nil {
			keep(err)
			L.RaiseError("%s", err.Error())
		}
		return 0
	}

	doc := L.NewTable()
	L.SetField(doc, "image", L.NewFunction(func(L *lua.LState) int {
		if in.ArtPath == "" {
			return 0
		}
		return emit(L, editor.LayerSpec{Name: L.CheckString(2), Kind: editor.LayerImage, Source: in.ArtPath, Rect: checkRect(L, 3), Visible: true})
	}))
	L.SetField(doc, "fill", L.NewFunction(func(L *lua.LState) int {
		return emit(L, editor.LayerSpec{Name: L.CheckString(2), Kind: editor.LayerFill, Color: L.CheckString(3), Rect: checkRect(L, 4), Visible: true})
	}))
	L.SetField(doc, "text", L.NewFunction(func(L *lua.LState) int {
		value := L.OptString(3, "")
		return emit(L, editor.LayerSpec{Name: L.CheckString(2), Kind: editor.LayerText, Text: value, Visible: value != ""})
	}))
	L.SetField(doc, "visible", L.NewFunction(func(L *lua.LState) int {
		return emit(L, editor.LayerSpec{Name: L.CheckString(2), Kind: editor.LayerVisibility, Visible: L.OptBool(3, true)})
	}))

	err = L.CallByParam(lua.P{Fn: L.GetGlobal("draw"), NRet: 0, Protect: true},
		doc, cardTable(L, in.Record), configTable(L, in.Config, keep))
	switch {
	case drawErr != nil:
		return drawErr
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return &ScriptError{Template: t.id, Err: err}
	}
	return nil
}

func checkRect(L *lua.LState, n int) editor.Rect {
	return editor.Rect{
		X: int(L.CheckNumber(n)),
		Y: int(L.CheckNumber(n + 1)),
		W: int(L.CheckNumber(n + 2)),
		H: int(L.CheckNumber(n + 3)),
	}
}

func cardTable(L *lua.LState, r card.Record) *lua.LTable {
	t := L.NewTable()
	for k, v := range map[string]string{
		"name":        r.Name,
		"display":     printed(r, r.PrintedName, r.DisplayName()),
		"mana_cost":   r.ManaCost,
		"type_line":   printed(r, r.PrintedTypeLine, r.TypeLine),
		"oracle_text": printed(r, r.PrintedText, r.OracleText),
		"flavor_text": r.FlavorText,
		"power":       r.Power,
		"toughness":   r.Toughness,
		"loyalty":     r.Loyalty,
		"artist":      r.Artist,
		"rarity":      r.Rarity,
		"set":         r.Set,
		"number":      r.CollectorNumber,
		"lang":        r.Lang,
		"layout":      r.Layout,
		"class":       string(r.Class),
		"frame_color": frameColor(r),
	} {
		L.SetField(t, k, lua.LString(v))
	}
	L.SetField(t, "front", lua.LBool(r.Front))
	L.SetField(t, "keywords", stringList(L, r.Keywords))
	L.SetField(t, "colors", stringList(L, r.Colors))
	return t
}

func stringList(L *lua.LState, items []string) *lua.LTable {
	t := L.CreateTable(len(items), 0)
	for _, s := range items {
		t.Append(lua.LString(s))
	}
	return t
}

// configTable exposes the effective config as cfg["SECTION"]["Key"].
// Reading a key the config does not define raises a *settings.ConfigError,
// which is handed to missing before the script unwinds.
func configTable(L *lua.LState, cfg *settings.EffectiveConfig, missing func(error)) *lua.LTable {
	newSection := func(name string) *lua.LTable {
		t := L.NewTable()
		meta := L.NewTable()
		L.SetField(meta, "__index", L.NewFunction(func(L *lua.LState) int {
			err := &settings.ConfigError{Key: settings.K(name, L.CheckString(2)), Err: settings.ErrMissingKey}
			missing(err)
			L.RaiseError("%s", err.Error())
			return 0
		}))
		L.SetMetatable(t, meta)
		return t
	}

	root := L.NewTable()
	sections := map[string]*lua.LTable{}
	for _, k := range cfg.Keys() {
		v, _ := cfg.Get(k)
		section, ok := sections[k.Section]
		if !ok {
			section = newSection(k.Section)
			sections[k.Section] = section
			L.SetField(root, k.Section, section)
		}
		L.SetField(section, k.Name, toLua(v))
	}

	// Unknown sections read as empty so the error names the full key.
	meta := L.NewTable()
	L.SetField(meta, "__index", L.NewFunction(func(L *lua.LState) int {
		L.Push(newSection(L.CheckString(2)))
		return 1
	}))
	L.SetMetatable(root, meta)
	return root
}

func toLua(v any) lua.LValue {
	switch x := v.(type) {
	case bool:
		return lua.LBool(x)
	case float64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// IsScriptError reports whether err came from a template script.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}

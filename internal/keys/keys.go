// Package keys contains keybinding definitions.
package keys

import "github.com/charmbracelet/bubbles/key"

// ProgressKeyMap holds the bindings of the render progress view.
type ProgressKeyMap struct {
	// Prompt answers
	Continue key.Binding
	Skip     key.Binding
	Abort    key.Binding

	// Log tail
	ScrollUp   key.Binding
	ScrollDown key.Binding
	ToggleLog  key.Binding

	// General
	Cancel key.Binding
	Quit   key.Binding
}

// Progress is the default progress view keymap.
var Progress = ProgressKeyMap{
	Continue: key.NewBinding(
		key.WithKeys("c", "enter"),
		key.WithHelp("c", "continue"),
	),
	Skip: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "skip card"),
	),
	Abort: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "abort batch"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "scroll log up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "scroll log down"),
	),
	ToggleLog: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "toggle log"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "cancel batch"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

// PromptHelp lists the bindings shown while a prompt is open.
func (k ProgressKeyMap) PromptHelp() []key.Binding {
	return []key.Binding{k.Continue, k.Skip, k.Abort}
}

// ShortHelp lists the bindings shown in the footer.
func (k ProgressKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cancel, k.ToggleLog, k.ScrollUp, k.ScrollDown, k.Quit}
}

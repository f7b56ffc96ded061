package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds every binding of the application. Bindings are checked in the
// context of the active screen, so the same key may mean different things.
type keyMap struct {
	Quit       key.Binding
	SignOut    key.Binding
	Submit     key.Binding
	Cancel     key.Binding
	Next       key.Binding
	Prev       key.Binding
	Up         key.Binding
	Down       key.Binding
	ToggleAuth key.Binding
	Forgot     key.Binding
	Search     key.Binding
	New        key.Binding
	Edit       key.Binding
	Delete     key.Binding
	SortName   key.Binding
	SortDate   key.Binding
	Yes        key.Binding
	No         key.Binding
	ListQuit   key.Binding
}

var keys = keyMap{
	Quit:       key.NewBinding(key.WithKeys("ctrl+c")),
	SignOut:    key.NewBinding(key.WithKeys("ctrl+o")),
	Submit:     key.NewBinding(key.WithKeys("enter")),
	Cancel:     key.NewBinding(key.WithKeys("esc")),
	Next:       key.NewBinding(key.WithKeys("tab", "down")),
	Prev:       key.NewBinding(key.WithKeys("shift+tab", "up")),
	Up:         key.NewBinding(key.WithKeys("up", "k")),
	Down:       key.NewBinding(key.WithKeys("down", "j")),
	ToggleAuth: key.NewBinding(key.WithKeys("ctrl+n")),
	Forgot:     key.NewBinding(key.WithKeys("ctrl+r")),
	Search:     key.NewBinding(key.WithKeys("/")),
	New:        key.NewBinding(key.WithKeys("n")),
	Edit:       key.NewBinding(key.WithKeys("e", "enter")),
	Delete:     key.NewBinding(key.WithKeys("d")),
	SortName:   key.NewBinding(key.WithKeys("s")),
	SortDate:   key.NewBinding(key.WithKeys("f")),
	Yes:        key.NewBinding(key.WithKeys("y")),
	No:         key.NewBinding(key.WithKeys("n", "esc")),
	ListQuit:   key.NewBinding(key.WithKeys("q")),
}

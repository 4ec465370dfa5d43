package tui

import (
	"strings"
	"unicode"

	"charm.land/bubbles/v2/key"
)

// keyMap represents key map data used by this package.
type keyMap struct {
	quit         key.Binding
	reload       key.Binding
	toggleHelp   key.Binding
	nextActivity key.Binding
	prevActivity key.Binding
	moveLeft     key.Binding
	moveRight    key.Binding
	moveUp       key.Binding
	moveDown     key.Binding
	editStage    key.Binding
	events       key.Binding
	checkLimit   key.Binding
	toggleBrief  key.Binding
}

// KeyConfig overrides selected bindings. Blank fields keep the defaults.
type KeyConfig struct {
	EditStage  string
	Events     string
	CheckLimit string
	Brief      string
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:         key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		nextActivity: key.NewBinding(key.WithKeys("tab", "]"), key.WithHelp("tab/]", "next activity")),
		prevActivity: key.NewBinding(key.WithKeys("shift+tab", "["), key.WithHelp("shift+tab/[", "previous activity")),
		moveLeft:     key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "stage left")),
		moveRight:    key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "stage right")),
		moveUp:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "assignment up")),
		moveDown:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "assignment down")),
		editStage:    key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e/enter", "set stage value")),
		events:       key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "progress log")),
		checkLimit:   key.NewBinding(key.WithKeys("L", "shift+l"), key.WithHelp("L", "check honor limit")),
		toggleBrief:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "activity brief")),
	}
}

// applyConfig applies configured key overrides.
func (k *keyMap) applyConfig(cfg KeyConfig) {
	configureBinding(&k.editStage, cfg.EditStage, "e", "set stage value")
	configureBinding(&k.events, cfg.Events, "v", "progress log")
	configureBinding(&k.checkLimit, cfg.CheckLimit, "L", "check honor limit")
	configureBinding(&k.toggleBrief, cfg.Brief, "i", "activity brief")
}

// configureBinding replaces keys and help text when raw is set.
func configureBinding(b *key.Binding, raw, fallback, desc string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	keys, help := parseBindingKeys(raw, fallback)
	b.SetKeys(keys...)
	b.SetHelp(help, desc)
}

// parseBindingKeys converts one configured key into matcher keys and help text.
func parseBindingKeys(raw, fallback string) ([]string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	if strings.EqualFold(raw, "space") || raw == " " {
		return []string{" ", "space"}, "space"
	}
	runes := []rune(raw)
	if len(runes) == 1 {
		r := runes[0]
		if unicode.IsUpper(r) {
			return []string{raw, "shift+" + string(unicode.ToLower(r))}, raw
		}
		return []string{raw}, raw
	}
	return []string{strings.ToLower(raw)}, raw
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.nextActivity, k.editStage, k.events, k.checkLimit, k.toggleBrief, k.toggleHelp, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.nextActivity, k.prevActivity, k.moveUp, k.moveDown, k.moveLeft, k.moveRight},
		{k.editStage, k.events, k.checkLimit, k.toggleBrief},
		{k.reload, k.toggleHelp, k.quit},
	}
}

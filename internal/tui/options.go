package tui

import (
	"strings"

	"github.com/hylla/fieldwork/internal/app"
)

type Option func(*Model)

// defaultEventLimit bounds the progress log overlay.
const defaultEventLimit = 20

// WithActor attributes stage edits made in the TUI.
func WithActor(actor app.Actor) Option {
	return func(m *Model) {
		if strings.TrimSpace(actor.ID) == "" {
			return
		}
		m.actor = actor
	}
}

func WithKeyConfig(cfg KeyConfig) Option {
	return func(m *Model) {
		m.keys.applyConfig(cfg)
	}
}

func WithEventLimit(limit int) Option {
	return func(m *Model) {
		if limit > 0 {
			m.eventLimit = limit
		}
	}
}

// WithCurrency sets the label printed beside honor amounts.
func WithCurrency(currency string) Option {
	return func(m *Model) {
		if currency = strings.TrimSpace(currency); currency != "" {
			m.currency = currency
		}
	}
}

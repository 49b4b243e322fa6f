package tui

import (
	"context"

	"github.com/Veraticus/chargemap/internal/engine"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/tui/themes"
)

// ReviewStore is the part of the rule store the review queue drives.
type ReviewStore interface {
	PendingRules(ctx context.Context, customer string) ([]model.Rule, error)
	ApproveRule(ctx context.Context, id int64) error
	RejectRule(ctx context.Context, id int64) error
}

// Previewer computes the effect of approving a stored pending rule.
type Previewer interface {
	PreviewRule(ctx context.Context, id int64) (*engine.PreviewReport, error)
}

// Config holds TUI configuration.
type Config struct {
	Theme     themes.Theme
	Store     ReviewStore
	Previewer Previewer
	// Customer limits the queue to one customer; empty shows everyone.
	Customer string
	Width    int
	Height   int
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Theme:  themes.Default,
		Width:  100,
		Height: 30,
	}
}

// WithStore sets the rule store.
func WithStore(s ReviewStore) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithPreviewer enables rule previews.
func WithPreviewer(p Previewer) Option {
	return func(c *Config) {
		c.Previewer = p
	}
}

// WithCustomer limits the queue to one customer.
func WithCustomer(customer string) Option {
	return func(c *Config) {
		c.Customer = customer
	}
}

// WithTheme sets the color theme.
func WithTheme(t themes.Theme) Option {
	return func(c *Config) {
		c.Theme = t
	}
}

// WithSize sets the initial terminal size.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}

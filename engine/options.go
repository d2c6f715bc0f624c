package engine

import "maps"

// ============================================================================
// ENGINE OPTIONS: Functional options for Compute()
// ============================================================================

// Option configures engine behavior via functional options pattern.
type Option func(*config)

type config struct {
	StatusColors  map[string]string // claim status → display color
	DefaultColor  string            // color for statuses not in StatusColors
	MakeLimit     int               // rows kept in the make breakdown, 0 = all
	MakeCorrLimit int               // rows kept in the make correlation, 0 = all
}

// DefaultStatusColors returns the built-in claim status palette.
func DefaultStatusColors() map[string]string {
	return map[string]string{
		"Approved": "#10b981",
		"Rejected": "#ef4444",
		"Reversed": "#f59e0b",
		"Pending":  "#3b82f6",
	}
}

// DefaultStatusColor is used for statuses outside the palette.
const DefaultStatusColor = "#64748b"

// WithStatusColors merges colors over the default palette.
func WithStatusColors(colors map[string]string) Option {
	return func(c *config) {
		maps.Copy(c.StatusColors, colors)
	}
}

// WithDefaultStatusColor sets the color of unknown statuses.
func WithDefaultStatusColor(color string) Option {
	return func(c *config) {
		if color != "" {
			c.DefaultColor = color
		}
	}
}

// WithMakeLimit caps the vehicle-make breakdown (default 20).
func WithMakeLimit(n int) Option {
	return func(c *config) {
		c.MakeLimit = n
	}
}

// WithMakeCorrelationLimit caps the make correlation table (default 15).
func WithMakeCorrelationLimit(n int) Option {
	return func(c *config) {
		c.MakeCorrLimit = n
	}
}

// applyOptions creates a config from functional options.
func applyOptions(opts []Option) *config {
	cfg := &config{
		StatusColors:  DefaultStatusColors(),
		DefaultColor:  DefaultStatusColor,
		MakeLimit:     20,
		MakeCorrLimit: 15,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// StatusColor returns the display color of a claim status.
func (c *config) StatusColor(status string) string {
	if color, ok := c.StatusColors[status]; ok {
		return color
	}
	return c.DefaultColor
}

// Package worker provides background jobs for the city catalog.
package worker

import (
	"time"
)

// PopulateConfig holds configuration for the catalog populate job.
type PopulateConfig struct {
	// Country whose states and cities are listed.
	// Default: Brazil
	Country string

	// StateDelay is the pause before each state's city listing.
	// Default: 60 seconds
	StateDelay time.Duration

	// MaxRetries is the number of attempts per listing call.
	// Default: 5
	MaxRetries int

	// RetryDelay is the constant pause between attempts.
	// Default: 60 seconds
	RetryDelay time.Duration

	// Force repopulates even when the catalog already has records.
	Force bool
}

// DefaultPopulateConfig returns the default populate configuration.
func DefaultPopulateConfig() PopulateConfig {
	return PopulateConfig{
		Country:    "Brazil",
		StateDelay: 60 * time.Second,
		MaxRetries: 5,
		RetryDelay: 60 * time.Second,
	}
}

func (c PopulateConfig) withDefaults() PopulateConfig {
	d := DefaultPopulateConfig()
	if c.Country == "" {
		c.Country = d.Country
	}
	if c.StateDelay < 0 {
		c.StateDelay = 0
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

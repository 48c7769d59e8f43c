// config.go: Configuration management for the Mnemosyne state engine
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

// Config configures the StateManager behavior.
type Config struct {
	// MaxSnapshots limits the number of retained snapshots; the oldest
	// snapshot is evicted (strict FIFO) when the limit is exceeded.
	// Default: 100
	MaxSnapshots int

	// RetentionDays is the default retention window used by callers that
	// run periodic cleanup without choosing their own window.
	// Default: 30
	RetentionDays int

	// InitialState seeds the live state cell. Deep cloned at construction
	// so the caller's map never aliases the engine's state.
	InitialState map[string]interface{}

	// Audit configures the built-in audit trail subscriber. The engine
	// emits lifecycle events either way; enabling audit wires the bundled
	// logger to them.
	// Default: disabled
	Audit AuditConfig
}

// WithDefaults applies sensible defaults to the configuration.
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.MaxSnapshots <= 0 {
		config.MaxSnapshots = 100
	}

	if config.RetentionDays <= 0 {
		config.RetentionDays = 30
	}

	// An enabled audit config without tuning gets the secure defaults.
	if config.Audit.Enabled && config.Audit.BufferSize <= 0 {
		defaults := DefaultAuditConfig()
		defaults.OutputFile = config.Audit.OutputFile
		defaults.MinLevel = config.Audit.MinLevel
		config.Audit = defaults
	}

	return &config
}

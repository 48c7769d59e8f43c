// env_config.go: Environment variable support for Mnemosyne configuration
//
// Container deployments configure the engine through MNEMOSYNE_* variables,
// with the usual precedence: environment over file over defaults.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Environment variable names recognized by LoadConfigFromEnv.
const (
	EnvMaxSnapshots       = "MNEMOSYNE_MAX_SNAPSHOTS"
	EnvRetentionDays      = "MNEMOSYNE_RETENTION_DAYS"
	EnvAuditEnabled       = "MNEMOSYNE_AUDIT_ENABLED"
	EnvAuditOutputFile    = "MNEMOSYNE_AUDIT_OUTPUT_FILE"
	EnvAuditMinLevel      = "MNEMOSYNE_AUDIT_MIN_LEVEL"
	EnvAuditBufferSize    = "MNEMOSYNE_AUDIT_BUFFER_SIZE"
	EnvAuditFlushInterval = "MNEMOSYNE_AUDIT_FLUSH_INTERVAL"
)

// LoadConfigFromEnv builds an engine configuration from MNEMOSYNE_*
// environment variables, applying defaults for anything unset.
func LoadConfigFromEnv() (*Config, error) {
	config := &Config{}
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config.WithDefaults(), nil
}

// LoadConfigMultiSource loads configuration with precedence:
//  1. Environment variables (highest priority)
//  2. File configuration (JSON or YAML)
//  3. Default values (lowest priority)
func LoadConfigMultiSource(configFile string) (*Config, error) {
	config := &Config{}

	if configFile != "" {
		tree, err := LoadStateFile(configFile)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to load configuration file").
				WithContext("path", configFile)
		}
		applyConfigTree(config, tree)
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config.WithDefaults(), nil
}

// applyConfigTree maps a parsed configuration document onto Config.
// Unknown keys are ignored so config files can carry application settings
// alongside engine settings.
func applyConfigTree(config *Config, tree map[string]interface{}) {
	if v, ok := intFromTree(tree, "max_snapshots"); ok {
		config.MaxSnapshots = v
	}
	if v, ok := intFromTree(tree, "retention_days"); ok {
		config.RetentionDays = v
	}
	audit, ok := tree["audit"].(map[string]interface{})
	if !ok {
		return
	}
	if v, ok := audit["enabled"].(bool); ok {
		config.Audit.Enabled = v
	}
	if v, ok := audit["output_file"].(string); ok {
		config.Audit.OutputFile = v
	}
	if v, ok := audit["min_level"].(string); ok {
		config.Audit.MinLevel = parseAuditLevel(v)
	}
	if v, ok := intFromTree(audit, "buffer_size"); ok {
		config.Audit.BufferSize = v
	}
	if v, ok := audit["flush_interval"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil {
			config.Audit.FlushInterval = d
		}
	}
}

func intFromTree(tree map[string]interface{}, key string) (int, bool) {
	switch v := tree[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// applyEnvOverrides reads MNEMOSYNE_* variables into the config.
func applyEnvOverrides(config *Config) error {
	if raw := os.Getenv(EnvMaxSnapshots); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid max snapshots value").
				WithContext("value", raw)
		}
		config.MaxSnapshots = value
	}

	if raw := os.Getenv(EnvRetentionDays); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid retention days value").
				WithContext("value", raw)
		}
		config.RetentionDays = value
	}

	if raw := os.Getenv(EnvAuditEnabled); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidAuditConfig, "invalid audit enabled value").
				WithContext("value", raw)
		}
		config.Audit.Enabled = value
	}

	if raw := os.Getenv(EnvAuditOutputFile); raw != "" {
		config.Audit.OutputFile = raw
	}

	if raw := os.Getenv(EnvAuditMinLevel); raw != "" {
		config.Audit.MinLevel = parseAuditLevel(raw)
	}

	if raw := os.Getenv(EnvAuditBufferSize); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidAuditConfig, "invalid audit buffer size").
				WithContext("value", raw)
		}
		config.Audit.BufferSize = value
	}

	if raw := os.Getenv(EnvAuditFlushInterval); raw != "" {
		value, err := time.ParseDuration(raw)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidAuditConfig, "invalid audit flush interval").
				WithContext("value", raw)
		}
		config.Audit.FlushInterval = value
	}

	return nil
}

// parseAuditLevel maps level names to AuditLevel; unknown names default
// to AuditInfo rather than failing startup.
func parseAuditLevel(raw string) AuditLevel {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "WARN", "WARNING":
		return AuditWarn
	case "CRITICAL":
		return AuditCritical
	case "SECURITY":
		return AuditSecurity
	default:
		return AuditInfo
	}
}

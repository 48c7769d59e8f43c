// env_config_test.go: Environment and multi-source configuration tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	config, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if config.MaxSnapshots != 100 || config.RetentionDays != 30 {
		t.Errorf("unset environment should yield defaults, got %+v", config)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv(EnvMaxSnapshots, "25")
	t.Setenv(EnvRetentionDays, "7")
	t.Setenv(EnvAuditEnabled, "true")
	t.Setenv(EnvAuditOutputFile, "/tmp/test-audit.jsonl")
	t.Setenv(EnvAuditMinLevel, "critical")
	t.Setenv(EnvAuditBufferSize, "500")
	t.Setenv(EnvAuditFlushInterval, "10s")

	config, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if config.MaxSnapshots != 25 {
		t.Errorf("expected MaxSnapshots 25, got %d", config.MaxSnapshots)
	}
	if config.RetentionDays != 7 {
		t.Errorf("expected RetentionDays 7, got %d", config.RetentionDays)
	}
	if !config.Audit.Enabled {
		t.Error("expected audit enabled")
	}
	if config.Audit.OutputFile != "/tmp/test-audit.jsonl" {
		t.Errorf("unexpected audit output file: %s", config.Audit.OutputFile)
	}
	if config.Audit.MinLevel != AuditCritical {
		t.Errorf("expected CRITICAL min level, got %s", config.Audit.MinLevel)
	}
	if config.Audit.BufferSize != 500 {
		t.Errorf("expected buffer size 500, got %d", config.Audit.BufferSize)
	}
	if config.Audit.FlushInterval != 10*time.Second {
		t.Errorf("expected flush interval 10s, got %s", config.Audit.FlushInterval)
	}
}

func TestLoadConfigFromEnvInvalidValues(t *testing.T) {
	t.Setenv(EnvMaxSnapshots, "not-a-number")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Error("invalid max snapshots should fail")
	}

	t.Setenv(EnvMaxSnapshots, "10")
	t.Setenv(EnvAuditEnabled, "not-a-bool")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Error("invalid audit enabled should fail")
	}

	t.Setenv(EnvAuditEnabled, "true")
	t.Setenv(EnvAuditFlushInterval, "not-a-duration")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Error("invalid flush interval should fail")
	}
}

func TestLoadConfigMultiSource(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"max_snapshots": 42,
		"retention_days": 14,
		"audit": {
			"enabled": true,
			"output_file": "from-file.jsonl",
			"min_level": "warn",
			"buffer_size": 200,
			"flush_interval": "3s"
		},
		"unrelated_app_setting": true
	}`
	if err := os.WriteFile(configFile, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadConfigMultiSource(configFile)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if config.MaxSnapshots != 42 || config.RetentionDays != 14 {
		t.Errorf("file values not applied: %+v", config)
	}
	if !config.Audit.Enabled || config.Audit.OutputFile != "from-file.jsonl" {
		t.Errorf("audit file values not applied: %+v", config.Audit)
	}
	if config.Audit.MinLevel != AuditWarn {
		t.Errorf("expected WARN min level, got %s", config.Audit.MinLevel)
	}
	if config.Audit.BufferSize != 200 || config.Audit.FlushInterval != 3*time.Second {
		t.Errorf("audit tuning not applied: %+v", config.Audit)
	}
}

func TestLoadConfigMultiSourceEnvWins(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := "max_snapshots: 42\nretention_days: 14\n"
	if err := os.WriteFile(configFile, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv(EnvMaxSnapshots, "99")

	config, err := LoadConfigMultiSource(configFile)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if config.MaxSnapshots != 99 {
		t.Errorf("environment must override file, got %d", config.MaxSnapshots)
	}
	if config.RetentionDays != 14 {
		t.Errorf("file value should survive where env is unset, got %d", config.RetentionDays)
	}
}

func TestLoadConfigMultiSourceMissingFile(t *testing.T) {
	if _, err := LoadConfigMultiSource(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing config file should fail")
	}

	// Empty path means env-plus-defaults only.
	config, err := LoadConfigMultiSource("")
	if err != nil {
		t.Fatalf("empty path should succeed: %v", err)
	}
	if config.MaxSnapshots != 100 {
		t.Errorf("expected defaults with empty path, got %+v", config)
	}
}

func TestParseAuditLevel(t *testing.T) {
	cases := map[string]AuditLevel{
		"info":     AuditInfo,
		"WARN":     AuditWarn,
		"warning":  AuditWarn,
		"Critical": AuditCritical,
		"SECURITY": AuditSecurity,
		"garbage":  AuditInfo,
		"":         AuditInfo,
	}
	for raw, want := range cases {
		if got := parseAuditLevel(raw); got != want {
			t.Errorf("parseAuditLevel(%q) = %s, want %s", raw, got, want)
		}
	}
}

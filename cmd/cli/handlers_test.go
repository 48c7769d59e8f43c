// handlers_test.go: CLI command handler tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agilira/mnemosyne"
)

func writeTempState(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestStateDiffCommand(t *testing.T) {
	dir := t.TempDir()
	before := writeTempState(t, dir, "before.json", `{"value": 1}`)
	after := writeTempState(t, dir, "after.json", `{"value": 2}`)

	manager := NewManager()
	if err := manager.Run([]string{"state", "diff", before, after}); err != nil {
		t.Errorf("state diff failed: %v", err)
	}
	if err := manager.Run([]string{"state", "diff", before, after, "--json"}); err != nil {
		t.Errorf("state diff --json failed: %v", err)
	}
	if err := manager.Run([]string{"state", "diff", before, before}); err != nil {
		t.Errorf("diff of identical documents failed: %v", err)
	}
}

func TestStateDiffCommandErrors(t *testing.T) {
	manager := NewManager()

	if err := manager.Run([]string{"state", "diff"}); err == nil {
		t.Error("missing arguments should fail")
	}
	if err := manager.Run([]string{"state", "diff", "missing-a.json", "missing-b.json"}); err == nil {
		t.Error("missing input files should fail")
	}
}

func TestStateApplyCommand(t *testing.T) {
	dir := t.TempDir()
	statePath := writeTempState(t, dir, "state.json", `{"keep": "me", "value": 1}`)
	changesPath := writeTempState(t, dir, "changes.json", `{"value": 2, "added": true}`)
	outPath := filepath.Join(dir, "result.json")

	manager := NewManager()
	err := manager.Run([]string{"state", "apply", statePath, changesPath,
		"--control=cli-test", "--out=" + outPath})
	if err != nil {
		t.Fatalf("state apply failed: %v", err)
	}

	result, err := mnemosyne.LoadStateFile(outPath)
	if err != nil {
		t.Fatalf("failed to load result: %v", err)
	}
	if result["keep"] != "me" {
		t.Error("untouched key lost during apply")
	}
	if result["value"] != float64(2) {
		t.Errorf("changed key not applied: %v", result["value"])
	}
	if result["added"] != true {
		t.Error("new key not applied")
	}

	// The input document stays untouched when --out points elsewhere.
	original, err := mnemosyne.LoadStateFile(statePath)
	if err != nil {
		t.Fatalf("failed to reload input: %v", err)
	}
	if original["value"] != float64(1) {
		t.Error("input document mutated despite --out")
	}
}

func TestStateValidateCommand(t *testing.T) {
	dir := t.TempDir()
	valid := writeTempState(t, dir, "valid.yaml", "a: 1\n")
	invalid := writeTempState(t, dir, "invalid.json", `{broken`)

	manager := NewManager()
	if err := manager.Run([]string{"state", "validate", valid}); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}
	if err := manager.Run([]string{"state", "validate", invalid}); err == nil {
		t.Error("malformed document accepted")
	}
}

func TestStateConvertCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeTempState(t, dir, "input.json", `{"nested": {"v": 1}}`)
	output := filepath.Join(dir, "output.yaml")

	manager := NewManager()
	if err := manager.Run([]string{"state", "convert", input, output}); err != nil {
		t.Fatalf("convert failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read converted file: %v", err)
	}
	if !strings.Contains(string(data), "nested:") {
		t.Errorf("converted output does not look like YAML:\n%s", data)
	}

	converted, err := mnemosyne.LoadStateFile(output)
	if err != nil {
		t.Fatalf("failed to load converted file: %v", err)
	}
	if converted["nested"].(map[string]interface{})["v"] != 1 {
		t.Errorf("value lost in conversion: %v", converted)
	}
}

func TestAuditStatsCommand(t *testing.T) {
	auditFile := filepath.Join(t.TempDir(), "cli-audit.jsonl")

	config := mnemosyne.DefaultAuditConfig()
	config.OutputFile = auditFile
	logger, err := mnemosyne.NewAuditLogger(config)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}
	logger.Log(mnemosyne.AuditInfo, "seed_event", "", "", nil, nil, nil)
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	manager := NewManager()
	if err := manager.Run([]string{"audit", "stats", "--file=" + auditFile}); err != nil {
		t.Errorf("audit stats failed: %v", err)
	}
	if err := manager.Run([]string{"audit", "maintain", "--file=" + auditFile}); err != nil {
		t.Errorf("audit maintain failed: %v", err)
	}
}

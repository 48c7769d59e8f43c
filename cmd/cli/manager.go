// Package cli provides the command-line interface for Mnemosyne state management.
//
// This package implements the CLI using the Orpheus framework, exposing the
// engine's diff, apply and audit capabilities for offline state documents.
//
// Architecture:
// - Manager: Core CLI orchestration and command routing
// - Handlers: Individual command implementations
// - Utils: Shared utilities for state loading and diff rendering
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"github.com/agilira/mnemosyne"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Manager provides CLI operations for Mnemosyne state management.
// Built on top of the Orpheus framework for fast command routing.
type Manager struct {
	app         *orpheus.App
	auditLogger *mnemosyne.AuditLogger // Optional audit integration
}

// NewManager creates a new CLI manager powered by Orpheus.
// Provides git-style subcommands with optional audit integration.
func NewManager() *Manager {
	app := orpheus.New("mnemosyne").
		SetDescription("State snapshot, diff and rollback tooling").
		SetVersion("1.0.0")

	manager := &Manager{
		app: app,
	}

	manager.setupStateCommands()
	manager.setupAuditCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithAudit enables audit logging for all CLI operations.
func (m *Manager) WithAudit(auditLogger *mnemosyne.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// Run executes the CLI application with the provided arguments.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// Command Setup Methods

// setupStateCommands configures the 'state' command group for state
// document operations: diff, apply, validate and conversion.
func (m *Manager) setupStateCommands() {
	stateCmd := orpheus.NewCommand("state", "State document operations")

	// state diff <before> <after> [--json]
	diffCmd := stateCmd.Subcommand("diff", "Diff two state documents", m.handleStateDiff)
	diffCmd.AddBoolFlag("json", "j", false, "Emit diff records as JSON")

	// state apply <state-file> <changes-file> --control=<id> [--out=]
	applyCmd := stateCmd.Subcommand("apply", "Apply control changes to a state document", m.handleStateApply)
	applyCmd.AddFlag("control", "c", "", "Control identifier recorded for the change")
	applyCmd.AddFlag("out", "o", "", "Output file (defaults to the input state file)")
	applyCmd.AddBoolFlag("json", "j", false, "Emit the resulting diff as JSON")

	// state validate <file>
	stateCmd.Subcommand("validate", "Validate a state document", m.handleStateValidate)

	// state convert <input> <output>
	stateCmd.Subcommand("convert", "Convert a state document between formats", m.handleStateConvert)

	m.app.AddCommand(stateCmd)
}

// setupAuditCommands configures the 'audit' command group for inspecting
// and maintaining the unified audit database.
func (m *Manager) setupAuditCommands() {
	auditCmd := orpheus.NewCommand("audit", "Audit trail management")

	// audit stats [--file=]
	statsCmd := auditCmd.Subcommand("stats", "Show audit storage statistics", m.handleAuditStats)
	statsCmd.AddFlag("file", "f", "", "Audit output file (empty selects the unified database)")

	// audit maintain [--file=]
	maintainCmd := auditCmd.Subcommand("maintain", "Run audit retention and optimization", m.handleAuditMaintain)
	maintainCmd.AddFlag("file", "f", "", "Audit output file (empty selects the unified database)")

	m.app.AddCommand(auditCmd)
}

// setupUtilityCommands configures diagnostic commands.
func (m *Manager) setupUtilityCommands() {
	infoCmd := orpheus.NewCommand("info", "Engine information and defaults")
	infoCmd.SetHandler(m.handleInfo)
	infoCmd.AddBoolFlag("verbose", "v", false, "Include environment variable reference")
	m.app.AddCommand(infoCmd)
}

// Command handlers for the Mnemosyne CLI
//
// This file contains all command handler implementations for the
// Orpheus-powered CLI. Handlers operate on state documents through the
// engine so CLI behavior matches in-process behavior exactly.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"runtime"

	"github.com/agilira/go-errors"
	"github.com/agilira/mnemosyne"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Command Handlers

// handleStateDiff computes structural differences between two state documents.
func (m *Manager) handleStateDiff(ctx *orpheus.Context) error {
	beforePath := ctx.GetArg(0)
	afterPath := ctx.GetArg(1)
	if beforePath == "" || afterPath == "" {
		return errors.New(mnemosyne.ErrCodeStateFileError, "usage: state diff <before-file> <after-file>")
	}

	if m.auditLogger != nil {
		m.auditLogger.Log(mnemosyne.AuditInfo, "cli_state_diff", "", "", beforePath, afterPath, nil)
	}

	before, err := mnemosyne.LoadStateFile(beforePath)
	if err != nil {
		return err
	}
	after, err := mnemosyne.LoadStateFile(afterPath)
	if err != nil {
		return err
	}

	diffs := mnemosyne.CalculateDiff(before, after)
	return printDiffs(diffs, ctx.GetFlagBool("json"))
}

// handleStateApply applies a control's produced changes to a state document
// through a throwaway engine, so merge and clone semantics match production.
func (m *Manager) handleStateApply(ctx *orpheus.Context) error {
	statePath := ctx.GetArg(0)
	changesPath := ctx.GetArg(1)
	if statePath == "" || changesPath == "" {
		return errors.New(mnemosyne.ErrCodeStateFileError, "usage: state apply <state-file> <changes-file> --control=<id>")
	}

	controlID := ctx.GetFlagString("control")
	if controlID == "" {
		controlID = "cli"
	}
	outPath := ctx.GetFlagString("out")
	if outPath == "" {
		outPath = statePath
	}

	if m.auditLogger != nil {
		m.auditLogger.Log(mnemosyne.AuditCritical, "cli_state_apply", controlID, "", statePath, changesPath, nil)
	}

	state, err := mnemosyne.LoadStateFile(statePath)
	if err != nil {
		return err
	}
	changes, err := mnemosyne.LoadStateFile(changesPath)
	if err != nil {
		return err
	}

	engine := mnemosyne.New(mnemosyne.Config{InitialState: state})
	defer func() { _ = engine.Close() }()

	change, err := engine.ApplyDiscChanges(controlID, changes)
	if err != nil {
		return err
	}

	if err := mnemosyne.SaveStateFile(outPath, engine.CurrentState()); err != nil {
		return err
	}

	fmt.Printf("Applied control '%s' to %s\n", controlID, outPath)
	return printDiffs(mnemosyne.CalculateDiff(change.Before, change.After), ctx.GetFlagBool("json"))
}

// handleStateValidate parses a state document and reports success.
func (m *Manager) handleStateValidate(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		return errors.New(mnemosyne.ErrCodeStateFileError, "usage: state validate <file>")
	}

	state, err := mnemosyne.LoadStateFile(path)
	if err != nil {
		return err
	}

	fmt.Printf("%s is valid (%d top-level keys, %s)\n",
		path, len(state), mnemosyne.DetectStateFormat(path))
	return nil
}

// handleStateConvert rewrites a state document in the format implied by the
// output file extension.
func (m *Manager) handleStateConvert(ctx *orpheus.Context) error {
	inputPath := ctx.GetArg(0)
	outputPath := ctx.GetArg(1)
	if inputPath == "" || outputPath == "" {
		return errors.New(mnemosyne.ErrCodeStateFileError, "usage: state convert <input> <output>")
	}

	state, err := mnemosyne.LoadStateFile(inputPath)
	if err != nil {
		return err
	}
	if err := mnemosyne.SaveStateFile(outputPath, state); err != nil {
		return err
	}

	fmt.Printf("Converted %s (%s) to %s (%s)\n",
		inputPath, mnemosyne.DetectStateFormat(inputPath),
		outputPath, mnemosyne.DetectStateFormat(outputPath))
	return nil
}

// handleAuditStats prints storage statistics from the audit backend.
func (m *Manager) handleAuditStats(ctx *orpheus.Context) error {
	logger, owned, err := m.openAuditLogger(ctx.GetFlagString("file"))
	if err != nil {
		return err
	}
	if owned {
		defer func() { _ = logger.Close() }()
	}

	stats, err := logger.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Total events:  %d\n", stats.TotalEvents)
	fmt.Printf("Storage size:  %d bytes\n", stats.StorageSize)
	if stats.OldestEvent != nil {
		fmt.Printf("Oldest event:  %s\n", stats.OldestEvent.Format("2006-01-02 15:04:05"))
	}
	if stats.NewestEvent != nil {
		fmt.Printf("Newest event:  %s\n", stats.NewestEvent.Format("2006-01-02 15:04:05"))
	}
	for level, count := range stats.EventsByLevel {
		fmt.Printf("  %-10s %d\n", level, count)
	}
	for controlID, count := range stats.EventsByControl {
		fmt.Printf("  control %-20s %d\n", controlID, count)
	}
	return nil
}

// handleAuditMaintain runs retention cleanup and storage optimization.
func (m *Manager) handleAuditMaintain(ctx *orpheus.Context) error {
	logger, owned, err := m.openAuditLogger(ctx.GetFlagString("file"))
	if err != nil {
		return err
	}
	if owned {
		defer func() { _ = logger.Close() }()
	}

	if err := logger.Maintenance(); err != nil {
		return err
	}
	fmt.Println("Audit maintenance completed")
	return nil
}

// handleInfo prints engine defaults and build information.
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	defaults := (&mnemosyne.Config{}).WithDefaults()
	auditDefaults := mnemosyne.DefaultAuditConfig()

	fmt.Println("Mnemosyne State Management")
	fmt.Printf("Go Runtime:       %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Printf("Max Snapshots:    %d\n", defaults.MaxSnapshots)
	fmt.Printf("Retention Days:   %d\n", defaults.RetentionDays)
	fmt.Printf("Audit Buffer:     %d events\n", auditDefaults.BufferSize)
	fmt.Printf("Audit Flush:      %s\n", auditDefaults.FlushInterval)

	if ctx.GetFlagBool("verbose") {
		fmt.Println("\nEnvironment variables:")
		fmt.Printf("  %s\n", mnemosyne.EnvMaxSnapshots)
		fmt.Printf("  %s\n", mnemosyne.EnvRetentionDays)
		fmt.Printf("  %s\n", mnemosyne.EnvAuditEnabled)
		fmt.Printf("  %s\n", mnemosyne.EnvAuditOutputFile)
		fmt.Printf("  %s\n", mnemosyne.EnvAuditMinLevel)
		fmt.Printf("  %s\n", mnemosyne.EnvAuditBufferSize)
		fmt.Printf("  %s\n", mnemosyne.EnvAuditFlushInterval)
	}
	return nil
}

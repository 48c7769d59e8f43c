// Utility functions for the Mnemosyne CLI
//
// Helpers for audit logger construction and diff rendering shared by the
// command handlers.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agilira/mnemosyne"
)

// openAuditLogger returns the manager's attached audit logger, or builds a
// standalone one against the given output file. The second return reports
// whether the caller owns the logger and must close it.
func (m *Manager) openAuditLogger(outputFile string) (*mnemosyne.AuditLogger, bool, error) {
	if m.auditLogger != nil && outputFile == "" {
		return m.auditLogger, false, nil
	}

	config := mnemosyne.DefaultAuditConfig()
	config.OutputFile = outputFile
	logger, err := mnemosyne.NewAuditLogger(config)
	return logger, true, err
}

// printDiffs renders diff records either as aligned text or as a JSON array.
func printDiffs(diffs []mnemosyne.ChangeDiff, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(diffs)
	}

	if len(diffs) == 0 {
		fmt.Println("No differences")
		return nil
	}

	for _, d := range diffs {
		switch d.Type {
		case mnemosyne.ChangeAdded:
			fmt.Printf("+ %s = %v\n", d.Path, d.NewValue)
		case mnemosyne.ChangeRemoved:
			fmt.Printf("- %s = %v\n", d.Path, d.OldValue)
		default:
			fmt.Printf("~ %s: %v -> %v\n", d.Path, d.OldValue, d.NewValue)
		}
	}
	fmt.Printf("%d change(s)\n", len(diffs))
	return nil
}

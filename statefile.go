// statefile.go: State tree file IO for Mnemosyne tooling
//
// The engine itself is purely in-process; the CLI and tests move state
// trees in and out through JSON and YAML documents. Format detection
// follows the file extension.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// StateFormat identifies a supported state document format.
type StateFormat int

const (
	FormatUnknown StateFormat = iota
	FormatJSON
	FormatYAML
)

func (f StateFormat) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// DetectStateFormat determines the document format from a file extension.
func DetectStateFormat(path string) StateFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yml", ".yaml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// ParseState decodes a state document into a state tree. YAML documents
// are normalized so that every nested map is string-keyed, matching the
// engine's internal representation.
func ParseState(data []byte, format StateFormat) (map[string]interface{}, error) {
	var tree map[string]interface{}

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, errors.Wrap(err, ErrCodeStateFileError, "failed to parse JSON state document")
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, errors.Wrap(err, ErrCodeStateFileError, "failed to parse YAML state document")
		}
	default:
		return nil, errors.New(ErrCodeStateFileError, "unsupported state document format")
	}

	if tree == nil {
		tree = make(map[string]interface{})
	}
	return normalizeTree(tree), nil
}

// LoadStateFile reads and parses a state document from disk.
func LoadStateFile(path string) (map[string]interface{}, error) {
	format := DetectStateFormat(path)
	if format == FormatUnknown {
		return nil, errors.New(ErrCodeStateFileError, fmt.Sprintf("unsupported state file format: %s", path))
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is user-provided intentionally
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeStateFileError, "failed to read state file").
			WithContext("path", path)
	}
	return ParseState(data, format)
}

// SaveStateFile serializes a state tree to disk in the format implied by
// the file extension. JSON output is indented for readability.
func SaveStateFile(path string, state map[string]interface{}) error {
	var data []byte
	var err error

	switch DetectStateFormat(path) {
	case FormatJSON:
		data, err = json.MarshalIndent(state, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case FormatYAML:
		data, err = yaml.Marshal(state)
	default:
		return errors.New(ErrCodeStateFileError, fmt.Sprintf("unsupported state file format: %s", path))
	}
	if err != nil {
		return errors.Wrap(err, ErrCodeStateFileError, "failed to serialize state tree").
			WithContext("path", path)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, ErrCodeStateFileError, "failed to write state file").
			WithContext("path", path)
	}
	return nil
}

// normalizeTree rewrites any legacy interface-keyed maps (produced by
// older YAML decoders) into string-keyed maps, recursively.
func normalizeTree(tree map[string]interface{}) map[string]interface{} {
	for key, value := range tree {
		tree[key] = normalizeValue(value)
	}
	return tree
}

func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return normalizeTree(v)
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			result[fmt.Sprintf("%v", key)] = normalizeValue(val)
		}
		return result
	case []interface{}:
		for i, item := range v {
			v[i] = normalizeValue(item)
		}
		return v
	default:
		return value
	}
}

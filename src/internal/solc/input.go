package solc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// StandardInput is the solc standard-json input document.
type StandardInput struct {
	Language string                 `json:"language"`
	Sources  map[string]SourceFile  `json:"sources"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

type SourceFile struct {
	Content string `json:"content"`
}

// IsJSONSource reports whether an explorer source string is a multi-file document.
func IsJSONSource(source string) bool {
	trimmed := strings.TrimSpace(source)
	return strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, "\"content\"")
}

// normalizeJSONSource strips the extra braces explorers wrap standard-json input in.
func normalizeJSONSource(jsonStr string) string {
	trimmed := strings.TrimSpace(jsonStr)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		return trimmed[1 : len(trimmed)-1]
	}
	return trimmed
}

// ParseSourceCode accepts the three shapes explorers return source code in: a single
// flattened file, a JSON map of files, or a full standard-json input wrapped in {{ }}.
func ParseSourceCode(source, contractName string) (*StandardInput, error) {
	if !IsJSONSource(source) {
		name := contractName
		if name == "" {
			name = "Contract"
		}
		return &StandardInput{
			Language: "Solidity",
			Sources:  map[string]SourceFile{name + ".sol": {Content: source}},
		}, nil
	}

	normalized := normalizeJSONSource(source)
	var input StandardInput
	if err := json.Unmarshal([]byte(normalized), &input); err == nil && len(input.Sources) > 0 {
		if input.Language == "" {
			input.Language = "Solidity"
		}
		return &input, nil
	}

	var files map[string]SourceFile
	if err := json.Unmarshal([]byte(normalized), &files); err != nil {
		return nil, fmt.Errorf("failed to decode multi-file source: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("multi-file source contains no files")
	}
	return &StandardInput{Language: "Solidity", Sources: files}, nil
}

// Paths returns the source paths in sorted order.
func (in *StandardInput) Paths() []string {
	paths := make([]string, 0, len(in.Sources))
	for p := range in.Sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Contents returns path -> content.
func (in *StandardInput) Contents() map[string]string {
	out := make(map[string]string, len(in.Sources))
	for p, f := range in.Sources {
		out[p] = f.Content
	}
	return out
}

// Version returns the highest pragma version across all sources.
func (in *StandardInput) Version() string {
	var versions []string
	for _, f := range in.Sources {
		if v := ExtractPragmaVersion(f.Content); v != "" {
			versions = append(versions, v)
		}
	}
	return highest(versions)
}

// Prepare requests the AST and the storage layout and merges extra remappings.
// Explorer supplied optimizer, evmVersion and viaIR settings are kept.
func (in *StandardInput) Prepare(remappings []string) {
	if in.Settings == nil {
		in.Settings = make(map[string]interface{})
	}
	delete(in.Settings, "compilationTarget")
	delete(in.Settings, "libraries")
	in.Settings["outputSelection"] = map[string]interface{}{
		"*": map[string]interface{}{
			"*": []string{"storageLayout"},
			"":  []string{"ast"},
		},
	}

	existing := make(map[string]bool)
	var merged []interface{}
	if current, ok := in.Settings["remappings"].([]interface{}); ok {
		for _, r := range current {
			if s, ok := r.(string); ok && !existing[s] {
				existing[s] = true
				merged = append(merged, s)
			}
		}
	}
	for _, r := range remappings {
		if !existing[r] {
			existing[r] = true
			merged = append(merged, r)
		}
	}
	if len(merged) > 0 {
		in.Settings["remappings"] = merged
	}
}

// Compile runs solc --standard-json and returns its raw output.
func (m *SolcManager) Compile(ctx context.Context, version string, in *StandardInput) ([]byte, error) {
	if version == "" {
		version = in.Version()
	}
	solcPath, err := m.GetSolcPath(ctx, version)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode solc input: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, solcPath, "--standard-json")
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("solc execution failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

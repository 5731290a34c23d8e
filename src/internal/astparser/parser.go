package astparser

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// CompilerError is one entry of the "errors" array of solc standard-json output.
type CompilerError struct {
	Severity         string `json:"severity"`
	Type             string `json:"type"`
	Component        string `json:"component"`
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
}

type StorageEntry struct {
	AstID    int    `json:"astId"`
	Contract string `json:"contract"`
	Label    string `json:"label"`
	Offset   int    `json:"offset"`
	Slot     string `json:"slot"`
	Type     string `json:"type"`
}

type StorageType struct {
	Encoding      string         `json:"encoding"`
	Label         string         `json:"label"`
	NumberOfBytes string         `json:"numberOfBytes"`
	Base          string         `json:"base,omitempty"`
	Key           string         `json:"key,omitempty"`
	Value         string         `json:"value,omitempty"`
	Members       []StorageEntry `json:"members,omitempty"`
}

type StorageLayout struct {
	Storage []StorageEntry         `json:"storage"`
	Types   map[string]StorageType `json:"types"`
}

type contractOutput struct {
	StorageLayout *StorageLayout `json:"storageLayout"`
}

type sourceOutput struct {
	ID  int   `json:"id"`
	AST *Node `json:"ast"`
}

// StandardOutput is the subset of solc standard-json output the adapter reads.
type StandardOutput struct {
	Errors    []CompilerError                      `json:"errors"`
	Sources   map[string]sourceOutput              `json:"sources"`
	Contracts map[string]map[string]contractOutput `json:"contracts"`
}

// CompileError carries the fatal diagnostics of a failed compilation.
type CompileError struct {
	Diagnostics []CompilerError
}

func (e *CompileError) Error() string {
	msgs := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		msg := strings.TrimSpace(d.FormattedMessage)
		if msg == "" {
			msg = d.Type + ": " + d.Message
		}
		msgs = append(msgs, msg)
	}
	return fmt.Sprintf("solc reported %d error(s): %s", len(e.Diagnostics), strings.Join(msgs, "; "))
}

// ParsedSource is a compiled program: the source units and their text.
type ParsedSource struct {
	Output     *StandardOutput
	SourceCode map[string]string

	paths []string
	files map[int]string
}

// ParseOutput decodes solc standard-json output. sources maps every path of the
// compiler input to its content.
func ParseOutput(output []byte, sources map[string]string) (*ParsedSource, error) {
	jsonStart := strings.Index(string(output), "{")
	if jsonStart == -1 {
		return nil, fmt.Errorf("no JSON found in solc output")
	}

	var out StandardOutput
	if err := json.Unmarshal(output[jsonStart:], &out); err != nil {
		return nil, fmt.Errorf("failed to decode solc output: %w", err)
	}

	var fatal []CompilerError
	for _, e := range out.Errors {
		if e.Severity == "error" {
			fatal = append(fatal, e)
		}
	}
	if len(fatal) > 0 {
		return nil, &CompileError{Diagnostics: fatal}
	}
	if len(out.Sources) == 0 {
		return nil, fmt.Errorf("solc output contains no sources")
	}

	ps := &ParsedSource{
		Output:     &out,
		SourceCode: sources,
		files:      make(map[int]string),
	}
	for path, src := range out.Sources {
		ps.paths = append(ps.paths, path)
		ps.files[src.ID] = path
	}
	sort.Strings(ps.paths)
	return ps, nil
}

// Units returns the source unit roots sorted by path.
func (ps *ParsedSource) Units() []*Node {
	units := make([]*Node, 0, len(ps.paths))
	for _, path := range ps.paths {
		if ast := ps.Output.Sources[path].AST; ast != nil {
			units = append(units, ast)
		}
	}
	return units
}

// Layout returns the storage layout solc emitted for the contract, or nil.
func (ps *ParsedSource) Layout(path, contract string) *StorageLayout {
	if byName, ok := ps.Output.Contracts[path]; ok {
		return byName[contract].StorageLayout
	}
	return nil
}

// GetSourceRange returns the source text a "start:length:file" location points at.
func (ps *ParsedSource) GetSourceRange(src string) string {
	start, length, file := parseSrc(src)
	if start < 0 {
		return ""
	}
	code, ok := ps.SourceCode[ps.files[file]]
	if !ok {
		return ""
	}
	if start >= len(code) || start+length > len(code) {
		return ""
	}
	return code[start : start+length]
}

// Text returns the source text of n with surrounding whitespace removed.
func (ps *ParsedSource) Text(n *Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(ps.GetSourceRange(n.Src))
}

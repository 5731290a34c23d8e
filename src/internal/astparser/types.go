package astparser

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

type TypeDescriptions struct {
	TypeIdentifier string `json:"typeIdentifier"`
	TypeString     string `json:"typeString"`
}

// Node is a solc compact AST node. Scalar attributes are decoded into fields, every
// attribute holding nodes is kept as a child list under its JSON key.
type Node struct {
	ID                      int              `json:"id"`
	NodeType                string           `json:"nodeType"`
	Src                     string           `json:"src"`
	Name                    string           `json:"name,omitempty"`
	AbsolutePath            string           `json:"absolutePath,omitempty"`
	Kind                    string           `json:"kind,omitempty"`
	ContractKind            string           `json:"contractKind,omitempty"`
	Abstract                bool             `json:"abstract,omitempty"`
	Visibility              string           `json:"visibility,omitempty"`
	Implemented             bool             `json:"implemented,omitempty"`
	Virtual                 bool             `json:"virtual,omitempty"`
	StateVariable           bool             `json:"stateVariable,omitempty"`
	Constant                bool             `json:"constant,omitempty"`
	Mutability              string           `json:"mutability,omitempty"`
	Operator                string           `json:"operator,omitempty"`
	Prefix                  bool             `json:"prefix,omitempty"`
	MemberName              string           `json:"memberName,omitempty"`
	ReferencedDeclaration   int              `json:"referencedDeclaration,omitempty"`
	LinearizedBaseContracts []int            `json:"linearizedBaseContracts,omitempty"`
	TypeDescriptions        TypeDescriptions `json:"typeDescriptions"`

	start    int
	length   int
	file     int
	children map[string][]*Node
	ordered  []*Node
}

// attributes that never hold AST nodes
var scalarKeys = map[string]bool{
	"typeDescriptions":        true,
	"exportedSymbols":         true,
	"externalReferences":      true,
	"linearizedBaseContracts": true,
	"contractDependencies":    true,
	"usedErrors":              true,
	"usedEvents":              true,
	"overloadedDeclarations":  true,
	"functionSelector":        true,
	"value":                   true,
}

func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Node(p)
	n.start, n.length, n.file = parseSrc(n.Src)

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if !scalarKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		kids, err := decodeChildren(raw[k])
		if err != nil {
			return err
		}
		if len(kids) == 0 {
			continue
		}
		if n.children == nil {
			n.children = make(map[string][]*Node)
		}
		n.children[k] = kids
		n.ordered = append(n.ordered, kids...)
	}
	sort.SliceStable(n.ordered, func(i, j int) bool {
		return n.ordered[i].start < n.ordered[j].start
	})
	return nil
}

func decodeChildren(value json.RawMessage) ([]*Node, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return nil, nil
	}
	switch value[0] {
	case '{':
		var c Node
		if err := json.Unmarshal(value, &c); err != nil {
			return nil, err
		}
		if c.NodeType == "" {
			return nil, nil
		}
		return []*Node{&c}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			return nil, err
		}
		var out []*Node
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '{' {
				continue
			}
			var c Node
			if err := json.Unmarshal(item, &c); err != nil {
				return nil, err
			}
			if c.NodeType != "" {
				out = append(out, &c)
			}
		}
		return out, nil
	}
	return nil, nil
}

// parseSrc splits a "start:length:fileIndex" location.
func parseSrc(src string) (start, length, file int) {
	parts := strings.Split(src, ":")
	if len(parts) < 2 {
		return -1, 0, -1
	}
	var err error
	if start, err = strconv.Atoi(parts[0]); err != nil {
		return -1, 0, -1
	}
	if length, err = strconv.Atoi(parts[1]); err != nil {
		return -1, 0, -1
	}
	file = -1
	if len(parts) > 2 {
		if f, err := strconv.Atoi(parts[2]); err == nil {
			file = f
		}
	}
	return start, length, file
}

// Child returns the first node stored under key, or nil.
func (n *Node) Child(key string) *Node {
	if n == nil {
		return nil
	}
	if kids := n.children[key]; len(kids) > 0 {
		return kids[0]
	}
	return nil
}

func (n *Node) ChildList(key string) []*Node {
	if n == nil {
		return nil
	}
	return n.children[key]
}

// Children returns all child nodes in source order.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	return n.ordered
}

// Walk visits n and its descendants depth first in source order. Returning false
// from visit skips the subtree of that node.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, c := range n.ordered {
		c.Walk(visit)
	}
}

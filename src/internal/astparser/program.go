package astparser

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/VectorBits/permscan/src/internal/model"
)

type contractInfo struct {
	node  *Node
	path  string
	model *model.Contract
	// linearized, self first
	bases    []*contractInfo
	winners  map[string]*Node
	vars     map[int]*model.StateVariable
	declared []*Node
}

func (c *contractInfo) isLibrary() bool {
	return c != nil && c.node.ContractKind == "library"
}

type declInfo struct {
	node  *Node
	owner *contractInfo // nil for free functions
}

type instanceKey struct {
	ctx  int
	decl int
}

// instance is a function or modifier as seen from one contract. The same
// declaration inherited by two contracts yields two instances.
type instance struct {
	fn        *model.Function
	decl      *Node
	ctx       *contractInfo
	owner     *contractInfo
	modifiers []*instance
	edges     []edge
	reads     []*model.StateVariable
	writes    []*model.StateVariable
}

type edge struct {
	kind   model.CallKind
	target *instance
}

type programBuilder struct {
	ps        *ParsedSource
	contracts map[int]*contractInfo
	order     []*contractInfo
	decls     map[int]*declInfo
	instances map[instanceKey]*instance
	queue     []*instance
}

// BuildProgram turns a compiled source set into the program model.
func (ps *ParsedSource) BuildProgram(target string) (*model.Program, error) {
	b := &programBuilder{
		ps:        ps,
		contracts: make(map[int]*contractInfo),
		decls:     make(map[int]*declInfo),
		instances: make(map[instanceKey]*instance),
	}
	b.collect()
	if len(b.order) == 0 {
		return nil, fmt.Errorf("no contract definitions found")
	}
	b.link()

	prog := &model.Program{Target: target}
	for _, c := range b.order {
		b.populate(c)
		prog.Contracts = append(prog.Contracts, c.model)
	}
	for i := 0; i < len(b.queue); i++ {
		b.fill(b.queue[i])
	}
	for _, in := range b.queue {
		b.finalize(in)
	}
	return prog, nil
}

func (b *programBuilder) collect() {
	for _, path := range b.ps.paths {
		unit := b.ps.Output.Sources[path].AST
		for _, top := range unit.ChildList("nodes") {
			switch top.NodeType {
			case "ContractDefinition":
				info := &contractInfo{
					node:    top,
					path:    path,
					winners: make(map[string]*Node),
					vars:    make(map[int]*model.StateVariable),
				}
				b.contracts[top.ID] = info
				b.order = append(b.order, info)
				for _, member := range top.ChildList("nodes") {
					switch member.NodeType {
					case "FunctionDefinition", "ModifierDefinition":
						b.decls[member.ID] = &declInfo{node: member, owner: info}
						info.declared = append(info.declared, member)
					}
				}
			case "FunctionDefinition":
				b.decls[top.ID] = &declInfo{node: top}
			}
		}
	}
}

func (b *programBuilder) link() {
	inherited := make(map[int]bool)
	for _, c := range b.order {
		c.bases = append(c.bases, c)
		for i, id := range c.node.LinearizedBaseContracts {
			if i == 0 && id == c.node.ID {
				continue
			}
			if base, ok := b.contracts[id]; ok && base != c {
				c.bases = append(c.bases, base)
				inherited[id] = true
			}
		}
	}
	for _, c := range b.order {
		c.model = &model.Contract{Name: c.node.Name, Kind: contractKind(c.node)}
		c.model.SetDerived(!inherited[c.node.ID])
		for _, base := range c.bases[1:] {
			c.model.Inherits = append(c.model.Inherits, base.node.Name)
		}
		for _, base := range c.bases {
			for _, d := range base.declared {
				key := declKey(d)
				if _, ok := c.winners[key]; !ok {
					c.winners[key] = d
				}
			}
		}
	}
}

func contractKind(n *Node) model.ContractKind {
	switch {
	case n.ContractKind == "library":
		return model.KindLibrary
	case n.ContractKind == "interface":
		return model.KindInterface
	case n.Abstract:
		return model.KindAbstract
	default:
		return model.KindContract
	}
}

// populate fills the variables and the visible functions and modifiers of c.
func (b *programBuilder) populate(c *contractInfo) {
	layout := b.ps.Layout(c.path, c.node.Name)
	placed := make(map[int]StorageEntry)
	if layout != nil {
		for _, e := range layout.Storage {
			placed[e.AstID] = e
		}
	}

	ordinal := 0
	for i := len(c.bases) - 1; i >= 0; i-- {
		base := c.bases[i]
		for _, member := range base.node.ChildList("nodes") {
			if member.NodeType != "VariableDeclaration" || !member.StateVariable {
				continue
			}
			v := &model.StateVariable{
				Name:     member.Name,
				Type:     member.TypeDescriptions.TypeString,
				Declarer: base.node.Name,
				IsStored: isStored(member),
				Ordinal:  ordinal,
			}
			ordinal++
			if e, ok := placed[member.ID]; ok && v.IsStored {
				applyPlacement(v, e, layout.Types[e.Type])
			}
			c.vars[member.ID] = v
			c.model.Variables = append(c.model.Variables, v)
		}
	}

	for i := len(c.bases) - 1; i >= 0; i-- {
		for _, d := range c.bases[i].declared {
			if c.winners[declKey(d)] != d {
				continue
			}
			in := b.instance(c, d)
			if d.NodeType == "ModifierDefinition" {
				c.model.Modifiers = append(c.model.Modifiers, in.fn)
			} else {
				c.model.Functions = append(c.model.Functions, in.fn)
			}
		}
	}
}

func applyPlacement(v *model.StateVariable, e StorageEntry, t StorageType) {
	slot, ok := new(big.Int).SetString(e.Slot, 10)
	if !ok {
		return
	}
	v.Slot = slot
	v.Offset = e.Offset
	v.Size, _ = strconv.Atoi(t.NumberOfBytes)
	v.Encoding = t.Encoding
}

// instance returns the memoized instance of decl seen from ctx.
func (b *programBuilder) instance(ctx *contractInfo, decl *Node) *instance {
	key := instanceKey{decl: decl.ID}
	if ctx != nil {
		key.ctx = ctx.node.ID
	}
	if in, ok := b.instances[key]; ok {
		return in
	}
	owner := b.decls[decl.ID].owner
	fn := &model.Function{
		Name:       functionName(decl),
		Kind:       functionKind(decl),
		Visibility: decl.Visibility,
	}
	if ctx != nil {
		fn.Contract = ctx.node.Name
	}
	if owner != nil {
		fn.Declarer = owner.node.Name
	}
	in := &instance{fn: fn, decl: decl, ctx: ctx, owner: owner}
	b.instances[key] = in
	b.queue = append(b.queue, in)
	return in
}

func functionName(decl *Node) string {
	if decl.Name != "" {
		return decl.Name
	}
	return decl.Kind
}

func functionKind(decl *Node) model.FunctionKind {
	if decl.NodeType == "ModifierDefinition" {
		return model.FunctionModifier
	}
	switch decl.Kind {
	case "constructor":
		return model.FunctionConstructor
	case "fallback":
		return model.FunctionFallback
	case "receive":
		return model.FunctionReceive
	default:
		return model.FunctionRegular
	}
}

// declKey identifies the override slot a declaration occupies.
func declKey(d *Node) string {
	if d.NodeType == "ModifierDefinition" {
		return "modifier " + d.Name
	}
	switch d.Kind {
	case "constructor":
		return "constructor#" + strconv.Itoa(d.ID)
	case "fallback", "receive":
		return d.Kind
	}
	var params []string
	for _, p := range d.Child("parameters").ChildList("parameters") {
		params = append(params, normalizeType(p.TypeDescriptions.TypeString))
	}
	return d.Name + "(" + strings.Join(params, ",") + ")"
}

func normalizeType(t string) string {
	var kept []string
	for _, f := range strings.Fields(t) {
		switch f {
		case "memory", "calldata", "storage", "pointer", "ref":
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// isStored reports whether a state variable occupies persistent storage. Constants
// and immutables live in bytecode, transient variables in transient storage.
func isStored(decl *Node) bool {
	if decl.Constant {
		return false
	}
	switch decl.Mutability {
	case "constant", "immutable", "transient":
		return false
	}
	return true
}

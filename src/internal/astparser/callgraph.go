package astparser

import (
	"strings"

	"github.com/VectorBits/permscan/src/internal/model"
)

// builtin identifiers whose members are reported as reads, e.g. msg.sender
var magicBases = map[string]bool{"msg": true, "tx": true, "block": true}

// fill analyzes the body and modifier invocations of one instance.
func (b *programBuilder) fill(in *instance) {
	w := &bodyWalker{b: b, in: in}

	for _, inv := range in.decl.ChildList("modifiers") {
		for _, arg := range inv.ChildList("arguments") {
			w.expression(arg)
		}
		ref := inv.Child("modifierName")
		if ref == nil {
			continue
		}
		d := b.decls[ref.ReferencedDeclaration]
		if d == nil || d.node.NodeType != "ModifierDefinition" {
			// base constructor arguments
			continue
		}
		m := b.instance(in.ctx, b.virtual(in.ctx, d))
		in.modifiers = append(in.modifiers, m)
		in.fn.Modifiers = append(in.fn.Modifiers, m.fn)
	}

	w.statement(in.decl.Child("body"))
	in.reads = w.reads.list
	in.writes = w.writes.list
}

// virtual resolves d to the declaration that overrides it in ctx.
func (b *programBuilder) virtual(ctx *contractInfo, d *declInfo) *Node {
	if ctx == nil || d.owner == nil {
		return d.node
	}
	if winner, ok := ctx.winners[declKey(d.node)]; ok {
		return winner
	}
	return d.node
}

// super resolves a super.f() call made from code declared in from.
func (b *programBuilder) super(ctx, from *contractInfo, d *declInfo) *Node {
	if ctx == nil || from == nil {
		return d.node
	}
	key := declKey(d.node)
	after := false
	for _, base := range ctx.bases {
		if base == from {
			after = true
			continue
		}
		if !after {
			continue
		}
		for _, decl := range base.declared {
			if declKey(decl) == key {
				return decl
			}
		}
	}
	return d.node
}

func (b *programBuilder) inLinearization(ctx *contractInfo, contractID int) bool {
	if ctx == nil {
		return false
	}
	for _, base := range ctx.bases {
		if base.node.ID == contractID {
			return true
		}
	}
	return false
}

// finalize extends calls, reads and writes with everything reachable through
// internal calls, library calls and modifiers.
func (b *programBuilder) finalize(in *instance) {
	explored := map[*instance]bool{in: true}
	order := []*instance{in}
	visit := func(t *instance) {
		if !explored[t] {
			explored[t] = true
			order = append(order, t)
		}
	}

	var internal, library []*instance
	seenInternal := make(map[*instance]bool)
	seenLibrary := make(map[*instance]bool)
	for i := 0; i < len(order); i++ {
		f := order[i]
		for _, e := range f.edges {
			switch e.kind {
			case model.CallInternal:
				if !seenInternal[e.target] {
					seenInternal[e.target] = true
					internal = append(internal, e.target)
				}
				visit(e.target)
			case model.CallLibrary:
				if !seenLibrary[e.target] {
					seenLibrary[e.target] = true
					library = append(library, e.target)
				}
				visit(e.target)
			}
		}
		for _, m := range f.modifiers {
			visit(m)
		}
	}

	fn := in.fn
	for _, e := range in.edges {
		if e.kind == model.CallDirect {
			fn.Calls = append(fn.Calls, model.CallEdge{Kind: model.CallDirect, Target: e.target.fn})
		}
	}
	for _, t := range internal {
		fn.Calls = append(fn.Calls, model.CallEdge{Kind: model.CallInternal, Target: t.fn})
	}
	for _, t := range library {
		fn.Calls = append(fn.Calls, model.CallEdge{Kind: model.CallLibrary, Target: t.fn})
	}

	var reads, writes varSet
	for _, f := range order {
		reads.add(f.reads...)
		writes.add(f.writes...)
	}
	fn.Reads = reads.list
	fn.Writes = writes.list
}

type varSet struct {
	list []*model.StateVariable
	seen map[*model.StateVariable]bool
}

func (s *varSet) add(vars ...*model.StateVariable) {
	if s.seen == nil {
		s.seen = make(map[*model.StateVariable]bool)
	}
	for _, v := range vars {
		if v != nil && !s.seen[v] {
			s.seen[v] = true
			s.list = append(s.list, v)
		}
	}
}

type bodyWalker struct {
	b      *programBuilder
	in     *instance
	reads  varSet
	writes varSet
}

func (w *bodyWalker) statement(s *Node) {
	if s == nil {
		return
	}
	switch s.NodeType {
	case "Block", "UncheckedBlock":
		for _, st := range s.ChildList("statements") {
			w.statement(st)
		}
	case "IfStatement":
		w.condition(s.Child("condition"))
		w.statement(s.Child("trueBody"))
		w.statement(s.Child("falseBody"))
	case "WhileStatement", "DoWhileStatement":
		w.condition(s.Child("condition"))
		w.statement(s.Child("body"))
	case "ForStatement":
		w.statement(s.Child("initializationExpression"))
		if c := s.Child("condition"); c != nil {
			w.condition(c)
		}
		w.statement(s.Child("body"))
		w.statement(s.Child("loopExpression"))
	case "TryStatement":
		w.simple(s.Child("externalCall"))
		for _, clause := range s.ChildList("clauses") {
			w.statement(clause.Child("block"))
		}
	case "ExpressionStatement":
		w.simple(s.Child("expression"))
	case "PlaceholderStatement", "Break", "Continue":
	default:
		w.simple(s)
	}
}

func (w *bodyWalker) condition(c *Node) {
	if c == nil {
		return
	}
	reads := w.expression(c)
	w.emit(&model.Node{Conditional: true, Expression: w.b.ps.Text(c), Reads: reads})
}

func (w *bodyWalker) simple(e *Node) {
	if e == nil {
		return
	}
	reads := w.expression(e)
	w.emit(&model.Node{
		Conditional: containsRequireOrAssert(e),
		Expression:  strings.TrimSuffix(w.b.ps.Text(e), ";"),
		Reads:       reads,
	})
}

func (w *bodyWalker) emit(n *model.Node) {
	w.in.fn.Nodes = append(w.in.fn.Nodes, n)
}

func containsRequireOrAssert(e *Node) bool {
	found := false
	e.Walk(func(n *Node) bool {
		if found {
			return false
		}
		if n.NodeType == "FunctionCall" {
			callee := n.Child("expression")
			if callee != nil && callee.NodeType == "Identifier" && callee.ReferencedDeclaration < 0 &&
				(callee.Name == "require" || callee.Name == "assert") {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// expression records the state accesses and calls of e and returns the identifiers it reads.
func (w *bodyWalker) expression(e *Node) []string {
	var names []string
	assigned := make(map[*Node]bool)
	e.Walk(func(n *Node) bool {
		switch n.NodeType {
		case "Assignment":
			for _, base := range baseIdentifiers(n.Child("leftHandSide")) {
				w.write(base)
				if n.Operator == "=" {
					assigned[base] = true
				}
			}
		case "UnaryOperation":
			if n.Operator == "++" || n.Operator == "--" || n.Operator == "delete" {
				for _, base := range baseIdentifiers(n.Child("subExpression")) {
					w.write(base)
					if n.Operator == "delete" {
						assigned[base] = true
					}
				}
			}
		case "FunctionCall":
			w.call(n)
		case "Identifier":
			names = append(names, n.Name)
			if !assigned[n] {
				w.read(n)
			}
		case "MemberAccess":
			if base := n.Child("expression"); base != nil && base.NodeType == "Identifier" &&
				base.ReferencedDeclaration < 0 && magicBases[base.Name] {
				names = append(names, base.Name+"."+n.MemberName)
			}
		}
		return true
	})
	return names
}

// baseIdentifiers returns the identifiers whose storage an lvalue expression targets.
func baseIdentifiers(e *Node) []*Node {
	if e == nil {
		return nil
	}
	switch e.NodeType {
	case "Identifier":
		return []*Node{e}
	case "IndexAccess", "IndexRangeAccess":
		return baseIdentifiers(e.Child("baseExpression"))
	case "MemberAccess":
		return baseIdentifiers(e.Child("expression"))
	case "TupleExpression":
		var out []*Node
		for _, c := range e.ChildList("components") {
			out = append(out, baseIdentifiers(c)...)
		}
		return out
	}
	return nil
}

func (w *bodyWalker) stateVariable(id *Node) *model.StateVariable {
	if w.in.ctx == nil {
		return nil
	}
	return w.in.ctx.vars[id.ReferencedDeclaration]
}

func (w *bodyWalker) read(id *Node) {
	if v := w.stateVariable(id); v != nil {
		w.reads.add(v)
	}
}

func (w *bodyWalker) write(id *Node) {
	if v := w.stateVariable(id); v != nil {
		w.writes.add(v)
	}
}

func (w *bodyWalker) edge(kind model.CallKind, target *instance) {
	for _, e := range w.in.edges {
		if e.kind == kind && e.target == target {
			return
		}
	}
	w.in.edges = append(w.in.edges, edge{kind: kind, target: target})
}

// call classifies a call expression. Calls to functions declared in a library are
// library calls, plain and super/Base-qualified calls are internal, everything else
// reaching a known function is direct.
func (w *bodyWalker) call(n *Node) {
	if n.Kind == "typeConversion" || n.Kind == "structConstructorCall" {
		return
	}
	callee := n.Child("expression")
	for callee != nil && callee.NodeType == "FunctionCallOptions" {
		callee = callee.Child("expression")
	}
	if callee == nil {
		return
	}
	b := w.b

	switch callee.NodeType {
	case "Identifier":
		d := b.decls[callee.ReferencedDeclaration]
		if d == nil {
			return
		}
		if d.owner.isLibrary() {
			w.edge(model.CallLibrary, b.instance(d.owner, d.node))
			return
		}
		w.edge(model.CallInternal, b.instance(w.in.ctx, b.virtual(w.in.ctx, d)))

	case "MemberAccess":
		base := callee.Child("expression")
		d := b.decls[callee.ReferencedDeclaration]
		if d == nil {
			if callee.MemberName == "push" || callee.MemberName == "pop" {
				for _, id := range baseIdentifiers(base) {
					w.write(id)
				}
			}
			return
		}
		if d.owner.isLibrary() {
			w.edge(model.CallLibrary, b.instance(d.owner, d.node))
			return
		}
		if base != nil && base.NodeType == "Identifier" {
			if base.Name == "super" && base.ReferencedDeclaration < 0 {
				w.edge(model.CallInternal, b.instance(w.in.ctx, b.super(w.in.ctx, w.in.owner, d)))
				return
			}
			if _, isContract := b.contracts[base.ReferencedDeclaration]; isContract && b.inLinearization(w.in.ctx, base.ReferencedDeclaration) {
				w.edge(model.CallInternal, b.instance(w.in.ctx, d.node))
				return
			}
		}
		ctx := d.owner
		if ctx == nil {
			ctx = w.in.ctx
		}
		w.edge(model.CallDirect, b.instance(ctx, d.node))
	}
}

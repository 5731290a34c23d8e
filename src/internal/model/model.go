package model

import "math/big"

// SenderSentinel is how the adapter spells the caller identity inside node reads.
const SenderSentinel = "msg.sender"

type ContractKind string

const (
	KindContract  ContractKind = "contract"
	KindLibrary   ContractKind = "library"
	KindInterface ContractKind = "interface"
	KindAbstract  ContractKind = "abstract"
)

type FunctionKind string

const (
	FunctionRegular     FunctionKind = "function"
	FunctionModifier    FunctionKind = "modifier"
	FunctionConstructor FunctionKind = "constructor"
	FunctionFallback    FunctionKind = "fallback"
	FunctionReceive     FunctionKind = "receive"
)

// CallKind tags a CallEdge. Only Internal and Library edges carry guard logic.
type CallKind int

const (
	CallDirect CallKind = iota
	CallInternal
	CallLibrary
)

func (k CallKind) String() string {
	switch k {
	case CallInternal:
		return "internal"
	case CallLibrary:
		return "library"
	default:
		return "direct"
	}
}

type CallEdge struct {
	Kind   CallKind
	Target *Function
}

// Program is everything one adapter invocation produced.
type Program struct {
	Target    string
	Contracts []*Contract
}

// Contract is an analyzed contract together with everything it inherits.
type Contract struct {
	Name      string
	Kind      ContractKind
	Inherits  []string // linearized ancestors, most derived first, self excluded
	Variables []*StateVariable
	Functions []*Function
	Modifiers []*Function

	derived bool
}

type StateVariable struct {
	Name     string
	Type     string
	Declarer string
	IsStored bool
	Ordinal  int

	// Placement from the compiler's storage layout, nil when unknown.
	Slot     *big.Int
	Offset   int
	Size     int
	Encoding string
}

type Function struct {
	Name       string
	Contract   string
	Declarer   string
	Kind       FunctionKind
	Visibility string
	Nodes      []*Node
	Modifiers  []*Function
	Calls      []CallEdge
	Reads      []*StateVariable
	Writes     []*StateVariable
}

// Node is a single control-flow step of a function body.
type Node struct {
	Conditional bool
	Expression  string
	Reads       []string
}

func (f *Function) IsModifier() bool {
	return f.Kind == FunctionModifier
}

// CallsOf returns the targets of the edges of the given kind in edge order.
func (f *Function) CallsOf(kind CallKind) []*Function {
	var out []*Function
	for _, e := range f.Calls {
		if e.Kind == kind && e.Target != nil {
			out = append(out, e.Target)
		}
	}
	return out
}

func (n *Node) ReadsIdentifier(name string) bool {
	for _, r := range n.Reads {
		if r == name {
			return true
		}
	}
	return false
}

// SetDerived marks a contract that no other contract of the program inherits from.
func (c *Contract) SetDerived(v bool) {
	c.derived = v
}

func (c *Contract) IsDerived() bool {
	return c.derived
}

func (c *Contract) Variable(name string) *StateVariable {
	for _, v := range c.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

func (c *Contract) Function(name string) *Function {
	for _, f := range c.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ContractsNamed returns every contract with the given name, in program order.
func (p *Program) ContractsNamed(name string) []*Contract {
	var out []*Contract
	for _, c := range p.Contracts {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Derived returns the contracts not inherited by any other contract in the program.
func (p *Program) Derived() []*Contract {
	var out []*Contract
	for _, c := range p.Contracts {
		if c.derived {
			out = append(out, c)
		}
	}
	return out
}

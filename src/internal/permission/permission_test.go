package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VectorBits/permscan/src/internal/model"
)

func senderNode(expr string) *model.Node {
	return &model.Node{Conditional: true, Expression: expr, Reads: []string{model.SenderSentinel}}
}

func modifier(name string, reads []*model.StateVariable, nodes ...*model.Node) *model.Function {
	return &model.Function{Name: name, Contract: "Vault", Kind: model.FunctionModifier, Nodes: nodes, Reads: reads}
}

func TestWithdrawOnlyOwner(t *testing.T) {
	owner := &model.StateVariable{Name: "owner", Type: "address", IsStored: true}
	balance := &model.StateVariable{Name: "balance", Type: "uint256", IsStored: true}
	onlyOwner := modifier("onlyOwner", []*model.StateVariable{owner}, senderNode("require(bool,string)(msg.sender == owner,not owner)"))
	withdraw := &model.Function{
		Name:      "withdraw",
		Contract:  "Vault",
		Modifiers: []*model.Function{onlyOwner},
		Writes:    []*model.StateVariable{balance},
	}
	deposit := &model.Function{Name: "deposit", Contract: "Vault", Writes: []*model.StateVariable{balance}}
	c := &model.Contract{Name: "Vault", Functions: []*model.Function{deposit, withdraw}, Modifiers: []*model.Function{onlyOwner}}

	acc := NewTargetAccumulator()
	rec := NewBuilder(acc).Contract(c)

	require.Len(t, rec.Functions, 1)
	f := rec.Functions[0]
	assert.Equal(t, "withdraw", f.Function)
	assert.Equal(t, []string{"onlyOwner"}, f.Modifiers)
	assert.Equal(t, []string{"require(bool,string)(msg.sender == owner,not owner)"}, f.SenderConditions)
	assert.Equal(t, []string{"owner"}, f.ReadInsideModifiers)
	assert.Equal(t, []string{"balance"}, f.Written)
	assert.Equal(t, []string{"owner"}, acc.Names())
}

func TestUnguardedFunctionSkipped(t *testing.T) {
	fn := &model.Function{
		Name:  "setX",
		Nodes: []*model.Node{{Conditional: true, Expression: "require(bool)(x > 0)", Reads: []string{"x"}}},
	}
	assert.Nil(t, NewBuilder(NewTargetAccumulator()).Function(fn))
	assert.Empty(t, SenderConditions(BuildClosure(fn)))
}

func TestInlineSenderCheckWithoutModifier(t *testing.T) {
	fn := &model.Function{
		Name: "pause",
		Nodes: []*model.Node{
			{Conditional: false, Expression: "paused = true", Reads: []string{model.SenderSentinel}},
			senderNode("msg.sender == admin"),
		},
	}
	r := NewBuilder(nil).Function(fn)
	require.NotNil(t, r)
	assert.Empty(t, r.Modifiers)
	assert.Equal(t, []string{"msg.sender == admin"}, r.SenderConditions)
	assert.Empty(t, r.ReadInsideModifiers)
}

func TestClosureIsOneLevelDeep(t *testing.T) {
	deep := modifier("deep", nil, senderNode("msg.sender == deep"))
	// a modifier whose own callee carries another modifier
	inner := &model.Function{Name: "check", Modifiers: []*model.Function{deep}}
	outer := modifier("outer", nil)
	outer.Calls = []model.CallEdge{{Kind: model.CallInternal, Target: inner}}

	helper := &model.Function{Name: "_helper", Modifiers: []*model.Function{outer}}
	fn := &model.Function{Name: "f", Calls: []model.CallEdge{{Kind: model.CallInternal, Target: helper}}}

	c := BuildClosure(fn)
	assert.True(t, c.Contains(helper))
	assert.True(t, c.Contains(outer))
	assert.False(t, c.Contains(inner))
	assert.False(t, c.Contains(deep))
	assert.Empty(t, SenderConditions(c))

	r := NewBuilder(nil).Function(fn)
	require.NotNil(t, r)
	assert.Equal(t, []string{"outer"}, r.Modifiers)
}

func TestClosureOrderAndDirectCallsIgnored(t *testing.T) {
	libMod := modifier("libGuard", nil, senderNode("lib"))
	lib := &model.Function{Name: "libCheck", Modifiers: []*model.Function{libMod}, Nodes: []*model.Node{senderNode("libBody")}}
	intMod := modifier("intGuard", nil, senderNode("intMod"))
	internal := &model.Function{Name: "_auth", Modifiers: []*model.Function{intMod}, Nodes: []*model.Node{senderNode("intBody")}}
	own := modifier("own", nil, senderNode("own"))
	external := &model.Function{Name: "remote", Nodes: []*model.Node{senderNode("remote")}}
	fn := &model.Function{
		Name:      "f",
		Modifiers: []*model.Function{own},
		Nodes:     []*model.Node{senderNode("body")},
		Calls: []model.CallEdge{
			{Kind: model.CallDirect, Target: external},
			{Kind: model.CallLibrary, Target: lib},
			{Kind: model.CallInternal, Target: internal},
		},
	}

	c := BuildClosure(fn)
	assert.Equal(t, []*model.Function{internal, intMod, fn, own, lib, libMod}, c.Functions())
	assert.Equal(t, []string{"intBody", "intMod", "body", "own", "libBody", "lib"}, SenderConditions(c))

	r := NewBuilder(nil).Function(fn)
	assert.Equal(t, []string{"intGuard", "libGuard", "own"}, r.Modifiers)
}

func TestClosureSizeOne(t *testing.T) {
	fn := &model.Function{Name: "f"}
	c := BuildClosure(fn)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(fn))
}

func TestSameNameDistinctFunctionsKept(t *testing.T) {
	a := &model.Function{Name: "check", Contract: "A", Nodes: []*model.Node{senderNode("msg.sender == a")}}
	b := &model.Function{Name: "check", Contract: "B", Nodes: []*model.Node{senderNode("msg.sender == a")}}
	fn := &model.Function{Name: "f", Calls: []model.CallEdge{
		{Kind: model.CallInternal, Target: a},
		{Kind: model.CallInternal, Target: b},
		{Kind: model.CallInternal, Target: a},
	}}

	c := BuildClosure(fn)
	assert.Equal(t, 3, c.Len())
	// duplicates across call paths are reported twice
	assert.Equal(t, []string{"msg.sender == a", "msg.sender == a"}, SenderConditions(c))
}

func TestModifierNamesSortedAndReadsDeduped(t *testing.T) {
	owner := &model.StateVariable{Name: "owner"}
	paused := &model.StateVariable{Name: "paused"}
	whenNotPaused := modifier("whenNotPaused", []*model.StateVariable{paused})
	onlyOwner := modifier("onlyOwner", []*model.StateVariable{owner, paused})
	helper := &model.Function{Name: "_h", Modifiers: []*model.Function{onlyOwner}}
	fn := &model.Function{
		Name:      "f",
		Modifiers: []*model.Function{whenNotPaused, onlyOwner},
		Calls:     []model.CallEdge{{Kind: model.CallInternal, Target: helper}},
	}

	acc := NewTargetAccumulator()
	acc.Add("owner")
	r := NewBuilder(acc).Function(fn)
	assert.Equal(t, []string{"onlyOwner", "whenNotPaused"}, r.Modifiers)
	assert.Equal(t, []string{"paused", "owner"}, r.ReadInsideModifiers)
	assert.Equal(t, []string{"owner", "paused"}, acc.Names())
	assert.Equal(t, []string{}, r.Written)
}

func TestAccumulator(t *testing.T) {
	acc := NewTargetAccumulator()
	acc.Add("a", "", "b", "a")
	assert.Equal(t, 2, acc.Len())
	assert.True(t, acc.Contains("b"))
	assert.False(t, acc.Contains(""))
	names := acc.Names()
	names[0] = "z"
	assert.Equal(t, []string{"a", "b"}, acc.Names())
}

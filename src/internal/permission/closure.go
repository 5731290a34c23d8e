package permission

import "github.com/VectorBits/permscan/src/internal/model"

// GuardClosure is the ordered set of functions whose logic can gate a function.
type GuardClosure struct {
	functions []*model.Function
	seen      map[*model.Function]bool
}

func newClosure() *GuardClosure {
	return &GuardClosure{seen: make(map[*model.Function]bool)}
}

func (c *GuardClosure) add(fns ...*model.Function) {
	for _, f := range fns {
		if f == nil || c.seen[f] {
			continue
		}
		c.seen[f] = true
		c.functions = append(c.functions, f)
	}
}

func (c *GuardClosure) Functions() []*model.Function {
	return c.functions
}

func (c *GuardClosure) Len() int {
	return len(c.functions)
}

func (c *GuardClosure) Contains(f *model.Function) bool {
	return c.seen[f]
}

// BuildClosure collects fn, its internal and library call targets and the modifiers
// attached to each of them. Modifiers are not followed any further.
func BuildClosure(fn *model.Function) *GuardClosure {
	c := newClosure()
	internal := fn.CallsOf(model.CallInternal)
	library := fn.CallsOf(model.CallLibrary)

	c.add(internal...)
	for _, t := range internal {
		c.add(t.Modifiers...)
	}
	c.add(fn)
	c.add(fn.Modifiers...)
	c.add(library...)
	for _, t := range library {
		c.add(t.Modifiers...)
	}
	return c
}

// ModifierSet returns the modifiers guarding fn: its own and those of its internal
// and library call targets, in that order, without duplicates.
func ModifierSet(fn *model.Function) []*model.Function {
	c := newClosure()
	c.add(fn.Modifiers...)
	for _, t := range fn.CallsOf(model.CallInternal) {
		c.add(t.Modifiers...)
	}
	for _, t := range fn.CallsOf(model.CallLibrary) {
		c.add(t.Modifiers...)
	}
	return c.functions
}

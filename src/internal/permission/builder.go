package permission

import (
	"sort"

	"github.com/VectorBits/permscan/src/internal/logger"
	"github.com/VectorBits/permscan/src/internal/model"
	"github.com/VectorBits/permscan/src/internal/report"
)

// Builder turns analyzed contracts into permission records and feeds the run's
// target accumulator.
type Builder struct {
	targets *TargetAccumulator
}

func NewBuilder(targets *TargetAccumulator) *Builder {
	return &Builder{targets: targets}
}

// Contract builds the record of c. Functions without modifiers and without
// msg.sender conditions are left out.
func (b *Builder) Contract(c *model.Contract) *report.ContractRecord {
	rec := &report.ContractRecord{Name: c.Name, Functions: []*report.FunctionRecord{}}
	for _, fn := range c.Functions {
		if r := b.Function(fn); r != nil {
			rec.Functions = append(rec.Functions, r)
		}
	}
	logger.Debug("%s: %d of %d functions guarded", c.Name, len(rec.Functions), len(c.Functions))
	return rec
}

// Function returns nil when fn carries no detectable permission.
func (b *Builder) Function(fn *model.Function) *report.FunctionRecord {
	modifiers := ModifierSet(fn)
	conditions := SenderConditions(BuildClosure(fn))
	if len(modifiers) == 0 && len(conditions) == 0 {
		return nil
	}

	read := ReadInsideModifiers(modifiers)
	if b.targets != nil {
		b.targets.Add(read...)
	}

	return &report.FunctionRecord{
		Function:            fn.Name,
		Modifiers:           modifierNames(modifiers),
		SenderConditions:    conditions,
		ReadInsideModifiers: read,
		Written:             variableNames(fn.Writes),
	}
}

// ReadInsideModifiers returns the state variables read by the given modifiers,
// including through their callees, without duplicates.
func ReadInsideModifiers(modifiers []*model.Function) []string {
	var all []*model.StateVariable
	for _, m := range modifiers {
		all = append(all, m.Reads...)
	}
	return variableNames(all)
}

func modifierNames(modifiers []*model.Function) []string {
	seen := make(map[string]bool, len(modifiers))
	names := make([]string, 0, len(modifiers))
	for _, m := range modifiers {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

func variableNames(vars []*model.StateVariable) []string {
	seen := make(map[string]bool, len(vars))
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		if v == nil || v.Name == "" || seen[v.Name] {
			continue
		}
		seen[v.Name] = true
		names = append(names, v.Name)
	}
	return names
}

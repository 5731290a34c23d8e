package storage

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VectorBits/permscan/src/internal/model"
	"github.com/VectorBits/permscan/src/internal/report"
)

// Reconciler merges live storage into the records of one address entry.
type Reconciler struct {
	reader StorageReader
	block  *big.Int
}

func NewReconciler(reader StorageReader, block *big.Int) *Reconciler {
	return &Reconciler{reader: reader, block: block}
}

// MarkNonStored lists constants and immutables read by guards on the records that
// read them.
func MarkNonStored(entry *report.Entry, contracts []*model.Contract) {
	for _, c := range contracts {
		for _, v := range c.Variables {
			if v.IsStored {
				continue
			}
			for _, rec := range entry.Records() {
				if rec.ReadsInsideModifiers(v.Name) {
					rec.AddNonStored(v.Name)
				}
			}
		}
	}
}

// Reconcile reads the target variables of contracts from address and stores them
// on the entry. Entry values are left untouched when the read fails.
func (r *Reconciler) Reconcile(ctx context.Context, entry *report.Entry, contracts []*model.Contract, targets Targets, address string) ([]Value, error) {
	slots := ComputeSlots(contracts, targets)
	MarkNonStored(entry, contracts)

	values, err := ReadValues(ctx, r.reader, common.HexToAddress(address), slots, r.block)
	if err != nil {
		return nil, err
	}
	Apply(entry, values)
	return values, nil
}

// Apply copies values into the entry's storage_values and onto every record whose
// guards read the variable.
func Apply(entry *report.Entry, values []Value) {
	if len(values) == 0 {
		return
	}
	if entry.StorageValues == nil {
		entry.StorageValues = make(map[string]any, len(values))
	}
	records := entry.Records()
	for _, v := range values {
		entry.StorageValues[v.Name] = v.Value
		for _, rec := range records {
			if rec.ReadsInsideModifiers(v.Name) {
				rec.SetValue(v.Name, v.Value)
			}
		}
	}
}

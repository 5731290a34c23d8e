// Package storage places state variables in contract storage, reads their words
// over RPC and merges the decoded values into permission records.
package storage

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/VectorBits/permscan/src/internal/model"
)

const wordSize = 32

// SlotInfo locates one target variable.
type SlotInfo struct {
	Contract string
	Name     string
	Type     string
	Slot     *big.Int
	Offset   int
	Size     int
}

// Key identifies the variable as Contract.Name.
func (s SlotInfo) Key() string {
	return s.Contract + "." + s.Name
}

// Targets reports whether a variable name is wanted.
type Targets interface {
	Contains(name string) bool
}

// ComputeSlots returns the placement of every stored variable of contracts whose
// name is in targets, in contract then declaration order. Placement comes from the
// compiler layout when present, otherwise from the packing rules.
func ComputeSlots(contracts []*model.Contract, targets Targets) []SlotInfo {
	var out []SlotInfo
	for _, c := range contracts {
		packed := Pack(c.Variables)
		for _, v := range c.Variables {
			if !v.IsStored || !targets.Contains(v.Name) {
				continue
			}
			info := SlotInfo{Contract: c.Name, Name: v.Name, Type: v.Type}
			if v.Slot != nil {
				info.Slot, info.Offset, info.Size = new(big.Int).Set(v.Slot), v.Offset, v.Size
			} else if p, ok := packed[v]; ok {
				info.Slot, info.Offset, info.Size = p.Slot, p.Offset, p.Size
			} else {
				continue
			}
			if info.Size <= 0 || info.Size > wordSize {
				info.Size = wordSize
			}
			out = append(out, info)
		}
	}
	return out
}

type Placement struct {
	Slot   *big.Int
	Offset int
	Size   int
}

// Pack assigns slots to the stored variables in order. Value types share a slot
// while they fit. Every other type starts a new slot and the variable after it
// starts another one.
func Pack(vars []*model.StateVariable) map[*model.StateVariable]Placement {
	out := make(map[*model.StateVariable]Placement)
	slot := new(big.Int)
	offset := 0
	for _, v := range vars {
		if !v.IsStored {
			continue
		}
		size, slots := footprint(v.Type)
		if slots == 0 {
			if offset+size > wordSize {
				slot.Add(slot, big.NewInt(1))
				offset = 0
			}
			out[v] = Placement{Slot: new(big.Int).Set(slot), Offset: offset, Size: size}
			offset += size
			continue
		}
		if offset > 0 {
			slot.Add(slot, big.NewInt(1))
			offset = 0
		}
		out[v] = Placement{Slot: new(big.Int).Set(slot), Size: wordSize}
		slot.Add(slot, big.NewInt(int64(slots)))
	}
	return out
}

var (
	sizedRe = regexp.MustCompile(`^(u?int|bytes)(\d+)$`)
	arrayRe = regexp.MustCompile(`^(.+)\[(\d+)\]$`)
)

// footprint returns the byte size of a value type with slots == 0, or the number of
// whole slots a non-value type takes.
func footprint(typ string) (size, slots int) {
	t := baseType(typ)
	if n, ok := valueSize(t); ok {
		return n, 0
	}
	if m := arrayRe.FindStringSubmatch(t); m != nil {
		length, _ := strconv.Atoi(m[2])
		if n, ok := valueSize(baseType(m[1])); ok {
			perSlot := wordSize / n
			return wordSize, max(1, (length+perSlot-1)/perSlot)
		}
		_, inner := footprint(m[1])
		return wordSize, max(1, length*max(1, inner))
	}
	// mappings, dynamic arrays, string, bytes, structs
	return wordSize, 1
}

func valueSize(t string) (int, bool) {
	switch {
	case t == "address", strings.HasPrefix(t, "contract "):
		return 20, true
	case t == "bool", strings.HasPrefix(t, "enum "):
		return 1, true
	case t == "uint", t == "int":
		return wordSize, true
	case strings.HasPrefix(t, "function "):
		if strings.Contains(t, " external") {
			return 24, true
		}
		return 8, true
	}
	if m := sizedRe.FindStringSubmatch(t); m != nil {
		bits, _ := strconv.Atoi(m[2])
		if m[1] == "bytes" {
			return bits, bits >= 1 && bits <= wordSize
		}
		return bits / 8, bits >= 8 && bits <= 256 && bits%8 == 0
	}
	return 0, false
}

// baseType strips data location and payable qualifiers from a type string.
func baseType(typ string) string {
	t := strings.TrimSpace(typ)
	for _, suffix := range []string{" storage ref", " storage pointer", " memory", " calldata"} {
		t = strings.TrimSuffix(t, suffix)
	}
	return strings.TrimSpace(strings.ReplaceAll(t, "address payable", "address"))
}

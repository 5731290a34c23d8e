package storage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VectorBits/permscan/src/internal/logger"
)

type StorageReader interface {
	StorageAt(ctx context.Context, account common.Address, slot common.Hash, block *big.Int) ([]byte, error)
}

// Value is a decoded target variable.
type Value struct {
	SlotInfo
	Value any
}

// ReadValues fetches the words of slots at address and decodes each variable.
// Packed variables share one read. The first failure aborts the whole read.
func ReadValues(ctx context.Context, reader StorageReader, address common.Address, slots []SlotInfo, block *big.Int) ([]Value, error) {
	words := make(map[common.Hash][]byte)
	out := make([]Value, 0, len(slots))
	for _, s := range slots {
		key := common.BigToHash(s.Slot)
		word, ok := words[key]
		if !ok {
			var err error
			word, err = reader.StorageAt(ctx, address, key, block)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s at slot %s: %w", s.Key(), key.Hex(), err)
			}
			words[key] = word
		}
		v := Decode(word, s.Type, s.Offset, s.Size)
		logger.Debug("%s %s = %v", address.Hex(), s.Key(), v)
		out = append(out, Value{SlotInfo: s, Value: v})
	}
	return out, nil
}

// Package proxy detects upgradeable proxies and swaps in the logic contract
// behind the ERC-1967 implementation slot.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VectorBits/permscan/src/internal/logger"
	"github.com/VectorBits/permscan/src/internal/model"
)

// ImplementationSlot is bytes32(uint256(keccak256("eip1967.proxy.implementation")) - 1).
var ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

// Markers are the ancestor names that identify a proxy.
var Markers = []string{"Proxy", "ERC1967Proxy", "ERC1967", "UUPS", "UpgradeableProxy"}

// ErrNoImplementationName is returned for a proxy configured without implementation_name.
var ErrNoImplementationName = errors.New("proxy contract needs an implementation name")

// ReadError reports a failed read of the implementation slot.
type ReadError struct {
	Proxy string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read implementation slot of %s: %v", e.Proxy, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// LoadError reports that the implementation could not be turned into a program model.
type LoadError struct {
	Target string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load implementation %s: %v", e.Target, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type StorageReader interface {
	StorageAt(ctx context.Context, account common.Address, slot common.Hash, block *big.Int) ([]byte, error)
}

type ModelLoader interface {
	Load(ctx context.Context, target string) (*model.Program, error)
}

// Link ties a proxy address to the implementation it currently points at.
type Link struct {
	Proxy          string
	Implementation string
}

type Resolver struct {
	reader StorageReader
	loader ModelLoader
	chain  string
	block  *big.Int
}

func NewResolver(reader StorageReader, loader ModelLoader, chain string, block *big.Int) *Resolver {
	return &Resolver{reader: reader, loader: loader, chain: chain, block: block}
}

// Detect returns the first ancestor of c that marks it as a proxy.
func Detect(c *model.Contract) (string, bool) {
	for _, name := range c.Inherits {
		for _, m := range Markers {
			if name == m {
				return name, true
			}
		}
	}
	return "", false
}

// Resolve extends targets with the implementation contracts named implName when
// the first target is a proxy. It returns a nil Link for non-proxies.
func (r *Resolver) Resolve(ctx context.Context, targets []*model.Contract, address, implName string) ([]*model.Contract, *Link, error) {
	if len(targets) == 0 {
		return targets, nil, nil
	}
	marker, ok := Detect(targets[0])
	if !ok {
		return targets, nil, nil
	}
	if strings.TrimSpace(implName) == "" {
		return nil, nil, fmt.Errorf("%w: %s at %s inherits %s", ErrNoImplementationName, targets[0].Name, address, marker)
	}

	word, err := r.reader.StorageAt(ctx, common.HexToAddress(address), ImplementationSlot, r.block)
	if err != nil {
		return nil, nil, &ReadError{Proxy: address, Err: err}
	}
	implementation := common.BytesToAddress(word).Hex()
	if implementation == (common.Address{}).Hex() {
		return nil, nil, &LoadError{Target: address, Err: errors.New("implementation slot is empty")}
	}

	target := r.chain + ":" + implementation
	program, err := r.loader.Load(ctx, target)
	if err != nil {
		return nil, nil, &LoadError{Target: target, Err: err}
	}

	merged := append([]*model.Contract(nil), targets...)
	found := 0
	for _, c := range program.Derived() {
		if c.Name == implName {
			merged = append(merged, c)
			found++
		}
	}
	if found == 0 {
		logger.Warn("No contract named %s found at implementation %s of proxy %s, analyzing the proxy alone", implName, implementation, address)
	} else {
		logger.Info("Proxy %s resolved to %s (%s)", address, implementation, implName)
	}

	return merged, &Link{Proxy: address, Implementation: implementation}, nil
}

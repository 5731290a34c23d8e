package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/VectorBits/permscan/src/internal/download"
	"github.com/VectorBits/permscan/src/internal/proxy"
)

var (
	// ErrConfiguration aborts the run: bad input files, unknown chains, or a proxy
	// without an implementation name.
	ErrConfiguration = errors.New("configuration error")
	// ErrMatch aborts the run: the configured contract name is not in the source.
	ErrMatch = errors.New("contract name not found")
	// ErrCompilation skips the address.
	ErrCompilation = errors.New("compilation failed")
	// ErrNetwork skips the address.
	ErrNetwork = errors.New("network failure")
)

// IsFatal reports whether err must stop the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrMatch) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// classify attaches one of the sentinels to an error of a lower layer.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrConfiguration, ErrMatch, ErrCompilation, ErrNetwork} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var (
		requestErr *download.RequestError
		readErr    *proxy.ReadError
		loadErr    *proxy.LoadError
	)
	switch {
	case errors.Is(err, proxy.ErrNoImplementationName):
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	case errors.As(err, &loadErr):
		return fmt.Errorf("%w: %w", ErrCompilation, err)
	case errors.As(err, &readErr):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	case errors.As(err, &requestErr):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	// solc diagnostics, unverified sources and malformed explorer payloads
	return fmt.Errorf("%w: %w", ErrCompilation, err)
}

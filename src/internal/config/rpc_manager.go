package config

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/VectorBits/permscan/src/internal"
	"github.com/VectorBits/permscan/src/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// StorageClient is the subset of ethclient.Client used for storage reads.
type StorageClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	Close()
}

const storageAttempts = 3

type RPCManager struct {
	chainName         string
	urls              []string
	clients           []StorageClient
	current           int
	mutex             sync.RWMutex
	timeout           time.Duration
	healthCacheWindow time.Duration
	lastHealthyAt     []time.Time
	sleep             func(ctx context.Context, d time.Duration) error
}

func dialEthClient(rawURL string, timeout time.Duration, proxy string) (*ethclient.Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("empty rpc url")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		httpClient, err := internal.CreateProxyHTTPClient(proxy, timeout)
		if err != nil {
			return nil, err
		}
		rpcClient, err := rpc.DialHTTPWithClient(rawURL, httpClient)
		if err != nil {
			return nil, err
		}
		return ethclient.NewClient(rpcClient), nil
	default:
		return ethclient.Dial(rawURL)
	}
}

func NewRPCManager(chainName string, urls []string, timeout time.Duration, proxy string) (*RPCManager, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}

	clients := make([]StorageClient, len(urls))
	connected := 0
	for i, u := range urls {
		client, err := dialEthClient(u, timeout, proxy)
		if err != nil {
			logger.Warn("Failed to connect to RPC [%s]: %v", u, err)
			continue
		}
		clients[i] = client
		connected++
	}
	if connected == 0 {
		return nil, fmt.Errorf("failed to connect to any RPC URL for chain %s", chainName)
	}

	manager := newRPCManager(chainName, urls, clients, timeout)
	manager.current = rand.Intn(len(manager.clients))
	return manager, nil
}

// NewRPCManagerWithClients builds a manager over already connected clients, in order.
func NewRPCManagerWithClients(chainName string, urls []string, clients []StorageClient, timeout time.Duration) (*RPCManager, error) {
	if len(clients) == 0 || len(clients) != len(urls) {
		return nil, fmt.Errorf("one client per RPC URL is required")
	}
	return newRPCManager(chainName, urls, clients, timeout), nil
}

func newRPCManager(chainName string, urls []string, clients []StorageClient, timeout time.Duration) *RPCManager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCManager{
		chainName:         chainName,
		urls:              urls,
		clients:           clients,
		timeout:           timeout,
		healthCacheWindow: 5 * time.Second,
		lastHealthyAt:     make([]time.Time, len(urls)),
		sleep:             sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetSleep replaces the backoff sleep, for tests.
func (r *RPCManager) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	r.sleep = sleep
}

// GetClient returns the current client when it answers a health probe, otherwise
// the next healthy one.
func (r *RPCManager) GetClient(ctx context.Context) (StorageClient, error) {
	r.mutex.RLock()
	current := r.current
	cacheWindow := r.healthCacheWindow
	var client StorageClient
	var lastHealthy time.Time
	if current >= 0 && current < len(r.clients) {
		client = r.clients[current]
		lastHealthy = r.lastHealthyAt[current]
	}
	r.mutex.RUnlock()

	if client != nil {
		if !lastHealthy.IsZero() && time.Since(lastHealthy) < cacheWindow {
			return client, nil
		}
		if r.probe(ctx, client) == nil {
			r.markHealthy(current)
			return client, nil
		}
	}

	return r.switchToNextClient(ctx)
}

func (r *RPCManager) probe(ctx context.Context, client StorageClient) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := client.BlockNumber(ctx)
	return err
}

func (r *RPCManager) markHealthy(idx int) {
	r.mutex.Lock()
	if idx >= 0 && idx < len(r.lastHealthyAt) {
		r.lastHealthyAt[idx] = time.Now()
	}
	r.mutex.Unlock()
}

func (r *RPCManager) switchToNextClient(ctx context.Context) (StorageClient, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := 0; i < len(r.clients); i++ {
		nextIndex := (r.current + 1 + i) % len(r.clients)
		client := r.clients[nextIndex]
		if client == nil {
			continue
		}
		if err := r.probe(ctx, client); err != nil {
			r.lastHealthyAt[nextIndex] = time.Time{}
			continue
		}
		if nextIndex != r.current {
			logger.Info("Switched to RPC: %s", r.urls[nextIndex])
		}
		r.current = nextIndex
		r.lastHealthyAt[nextIndex] = time.Now()
		return client, nil
	}

	return nil, fmt.Errorf("all RPC nodes are unavailable")
}

func (r *RPCManager) invalidateCurrent() {
	r.mutex.Lock()
	if r.current >= 0 && r.current < len(r.lastHealthyAt) {
		r.lastHealthyAt[r.current] = time.Time{}
	}
	r.current = (r.current + 1) % len(r.clients)
	r.mutex.Unlock()
}

// StorageAt reads one storage word. A nil block reads at latest. Failed attempts
// move to the next endpoint and back off attempt*500ms.
func (r *RPCManager) StorageAt(ctx context.Context, account common.Address, slot common.Hash, block *big.Int) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= storageAttempts; attempt++ {
		client, err := r.GetClient(ctx)
		if err == nil {
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			var word []byte
			word, err = client.StorageAt(callCtx, account, slot, block)
			cancel()
			if err == nil {
				return word, nil
			}
			r.invalidateCurrent()
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == storageAttempts {
			break
		}
		logger.Debug("storage read %s[%s] failed (attempt %d/%d): %v", account.Hex(), slot.Hex(), attempt, storageAttempts, err)
		if err := r.sleep(ctx, time.Duration(attempt)*500*time.Millisecond); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("storage read %s[%s] failed after %d attempts: %w", account.Hex(), slot.Hex(), storageAttempts, lastErr)
}

func (r *RPCManager) GetCurrentURL() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.current >= 0 && r.current < len(r.urls) {
		return r.urls[r.current]
	}
	return ""
}

func (r *RPCManager) GetChainName() string {
	return r.chainName
}

func (r *RPCManager) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, client := range r.clients {
		if client != nil {
			client.Close()
		}
	}
}

package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VectorBits/permscan/src/internal"
	"github.com/VectorBits/permscan/src/internal/logger"
)

// ErrNotVerified means the explorer has no verified source for the address.
var ErrNotVerified = errors.New("contract source not verified")

// RequestError is a transport level failure talking to the explorer.
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("explorer request failed: %v (url=%s)", e.Err, e.URL)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// KeyProvider hands out explorer API keys.
type KeyProvider interface {
	GetRandomKey() string
	HasKeys() bool
}

type EtherscanConfig struct {
	APIKey        string
	APIKeyManager KeyProvider
	BaseURL       string
	Proxy         string
	ChainID       int
	Timeout       time.Duration
	// RequestsPerSecond limits calls made through one Client, zero disables limiting.
	RequestsPerSecond int
}

type EtherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type EtherscanContractInfo struct {
	SourceCode       string `json:"SourceCode"`
	ABI              string `json:"ABI"`
	ContractName     string `json:"ContractName"`
	CompilerVersion  string `json:"CompilerVersion"`
	OptimizationUsed string `json:"OptimizationUsed"`
	Runs             string `json:"Runs"`
	EVMVersion       string `json:"EVMVersion"`
	LicenseType      string `json:"LicenseType"`
	Proxy            string `json:"Proxy"`
	Implementation   string `json:"Implementation"`
}

// Client fetches verified sources from an Etherscan compatible explorer.
type Client struct {
	config  EtherscanConfig
	http    *http.Client
	limiter *RateLimiter
	sleep   func(time.Duration)
}

func NewClient(config EtherscanConfig) (*Client, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("explorer base URL is empty")
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	client, err := internal.CreateProxyHTTPClient(config.Proxy, config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create Etherscan HTTP client: %w", err)
	}
	c := &Client{config: config, http: client, sleep: time.Sleep}
	if config.RequestsPerSecond > 0 {
		c.limiter = NewRateLimiter(config.RequestsPerSecond)
	}
	return c, nil
}

func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
}

func (c *Client) apiKey() string {
	if c.config.APIKeyManager != nil && c.config.APIKeyManager.HasKeys() {
		if key := c.config.APIKeyManager.GetRandomKey(); key != "" {
			return key
		}
	}
	return c.config.APIKey
}

func (c *Client) sourceURL(address string) (string, error) {
	base := strings.TrimRight(c.config.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse Etherscan BaseURL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/api") {
		u.Path = strings.TrimRight(u.Path, "/") + "/api"
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", strings.TrimSpace(c.apiKey()))
	if c.config.ChainID > 0 {
		q.Set("chainid", fmt.Sprintf("%d", c.config.ChainID))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetContractDetails returns the verified source entry of address. Transport
// failures are retried up to three times with a growing pause.
func (c *Client) GetContractDetails(ctx context.Context, address string) (*EtherscanContractInfo, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("empty address passed to GetContractDetails")
	}
	finalURL, err := c.sourceURL(address)
	if err != nil {
		return nil, err
	}

	var lastErr error
	maxAttempts := 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, status, err := c.get(ctx, finalURL)
		if err != nil {
			lastErr = err
			if ctx.Err() == nil && isTemporaryNetErr(err) && attempt < maxAttempts {
				c.sleep(time.Duration(attempt) * 500 * time.Millisecond)
				continue
			}
			return nil, &RequestError{URL: redact(finalURL), Err: err}
		}

		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = fmt.Errorf("status %d", status)
			if attempt < maxAttempts {
				c.sleep(time.Duration(attempt) * 500 * time.Millisecond)
				continue
			}
			return nil, &RequestError{URL: redact(finalURL), Err: lastErr}
		}
		if status != http.StatusOK {
			return nil, &RequestError{URL: redact(finalURL), Err: fmt.Errorf("non-200 status: %d, body: %s", status, snippet(body))}
		}

		var resp EtherscanResponse
		if jerr := json.Unmarshal(body, &resp); jerr != nil {
			lastErr = jerr
			if attempt < maxAttempts {
				c.sleep(time.Duration(attempt) * 300 * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("failed to parse Etherscan JSON: %w (url=%s)", jerr, redact(finalURL))
		}
		if resp.Status != "1" && strings.Contains(strings.ToLower(string(resp.Result)), "rate limit") && attempt < maxAttempts {
			lastErr = fmt.Errorf("rate limited: %s", resp.Result)
			c.sleep(time.Duration(attempt) * 500 * time.Millisecond)
			continue
		}
		return decodeSourceResult(address, resp)
	}

	return nil, &RequestError{URL: redact(finalURL), Err: lastErr}
}

func decodeSourceResult(address string, resp EtherscanResponse) (*EtherscanContractInfo, error) {
	if resp.Status != "1" {
		var msg string
		_ = json.Unmarshal(resp.Result, &msg)
		logger.Warn("Explorer returned error for %s: %s - %s", address, resp.Message, msg)
		return nil, fmt.Errorf("%w: %s: %s", ErrNotVerified, resp.Message, msg)
	}

	var infos []EtherscanContractInfo
	if err := json.Unmarshal(resp.Result, &infos); err != nil {
		return nil, fmt.Errorf("unexpected explorer result format: %w", err)
	}
	if len(infos) == 0 || strings.TrimSpace(infos[0].SourceCode) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotVerified, address)
	}
	return &infos[0], nil
}

func (c *Client) get(ctx context.Context, finalURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "permscan/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func snippet(body []byte) string {
	s := string(body)
	if len(s) > 1024 {
		s = s[:1024]
	}
	return s
}

// redact hides the api key in URLs that end up in logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("apikey") != "" {
		q.Set("apikey", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func isTemporaryNetErr(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

type RateLimiter struct {
	ticker *time.Ticker
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	interval := time.Second / time.Duration(requestsPerSecond)
	return &RateLimiter{
		ticker: time.NewTicker(interval),
	}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-r.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RateLimiter) Stop() {
	r.ticker.Stop()
}

package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	httpClientCacheMu sync.Mutex
	httpClientCache   = map[string]*http.Client{}
)

// ValidateProxyURL accepts an empty string (no proxy) or an http, https or socks5 URL.
func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}
	return nil
}

// CreateProxyTransport returns a transport that routes through proxyURL when set.
func CreateProxyTransport(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
	}
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return transport, nil
	}
	if err := ValidateProxyURL(proxyURL); err != nil {
		return nil, err
	}
	u, _ := url.Parse(proxyURL)
	transport.Proxy = http.ProxyURL(u)
	return transport, nil
}

// CreateProxyHTTPClient returns a cached client per (proxy, timeout) pair. Explorer
// requests and RPC dials share it.
func CreateProxyHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	key := strings.TrimSpace(proxyURL) + "|" + timeout.String()
	httpClientCacheMu.Lock()
	defer httpClientCacheMu.Unlock()
	if cached := httpClientCache[key]; cached != nil {
		return cached, nil
	}

	transport, err := CreateProxyTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: timeout, Transport: transport}

	if len(httpClientCache) >= 32 {
		httpClientCache = map[string]*http.Client{}
	}
	httpClientCache[key] = client
	return client, nil
}

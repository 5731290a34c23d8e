package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

type staticKeys struct{ key string }

func (s staticKeys) GetRandomKey() string { return s.key }
func (s staticKeys) HasKeys() bool        { return s.key != "" }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(EtherscanConfig{BaseURL: srv.URL, ChainID: 1, APIKeyManager: staticKeys{"k1"}, APIKey: "fallback"})
	require.NoError(t, err)
	c.sleep = func(time.Duration) {}
	return c, &calls
}

func sourceResponse(source string) string {
	return fmt.Sprintf(`{"status":"1","message":"OK","result":[{"SourceCode":%q,"ContractName":"Vault","CompilerVersion":"v0.8.20+commit.a1b79de6"}]}`, source)
}

func TestFetchSourcePlain(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "getsourcecode", r.URL.Query().Get("action"))
		assert.Equal(t, "1", r.URL.Query().Get("chainid"))
		assert.Equal(t, "k1", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, sourceResponse("pragma solidity ^0.8.20; contract Vault {}"))
	})

	src, err := c.FetchSource(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "Vault", src.Name)
	assert.Equal(t, "0.8.20", src.Compiler)
	assert.Equal(t, []string{"Vault.sol"}, src.Input.Paths())
}

func TestFetchSourceStandardInput(t *testing.T) {
	std := `{{"language":"Solidity","sources":{"src/Vault.sol":{"content":"contract Vault {}"}},"settings":{"optimizer":{"enabled":true}}}}`
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sourceResponse(std))
	})

	src, err := c.FetchSource(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Vault.sol"}, src.Input.Paths())
	assert.Contains(t, src.Input.Settings, "optimizer")
}

func TestNotVerified(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"1","message":"OK","result":[{"SourceCode":"","ContractName":""}]}`)
	})
	_, err := c.FetchSource(context.Background(), "0xabc")
	assert.ErrorIs(t, err, ErrNotVerified)

	c, _ = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Invalid Address format"}`)
	})
	_, err = c.FetchSource(context.Background(), "0xabc")
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestRetriesServerErrors(t *testing.T) {
	var attempts int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, sourceResponse("contract Vault {}"))
	})

	_, err := c.FetchSource(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestGivesUpAfterThreeAttempts(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchSource(context.Background(), "0xabc")
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Contains(t, reqErr.URL, "apikey=%2A%2A%2A")
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestClientErrorNotRetried(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.FetchSource(context.Background(), "0xabc")
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestRateLimiterHonoursContext(t *testing.T) {
	r := NewRateLimiter(1)
	defer r.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestExport(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sourceResponse(`{"contracts/A.sol":{"content":"contract A {}"},"../B.sol":{"content":"contract B {}"}}`))
	})
	ctx := context.Background()
	src, err := c.FetchSource(ctx, "0xABC")
	require.NoError(t, err)

	dir, err := NewExporter("mem://localhost/results/demo").Export(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "mem://localhost/results/demo/0xabc", dir)

	data, err := afs.New().DownloadWithURL(ctx, dir+"/contracts/A.sol")
	require.NoError(t, err)
	assert.Equal(t, "contract A {}", string(data))
	data, err = afs.New().DownloadWithURL(ctx, dir+"/B.sol")
	require.NoError(t, err)
	assert.Equal(t, "contract B {}", string(data))
}

package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProxyURL(t *testing.T) {
	assert.NoError(t, ValidateProxyURL(""))
	assert.NoError(t, ValidateProxyURL("http://127.0.0.1:7897"))
	assert.Error(t, ValidateProxyURL("ftp://127.0.0.1"))
	assert.Error(t, ValidateProxyURL("http://"))
}

func TestCreateProxyHTTPClientCaches(t *testing.T) {
	a, err := CreateProxyHTTPClient("", 5*time.Second)
	require.NoError(t, err)
	b, err := CreateProxyHTTPClient(" ", 5*time.Second)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := CreateProxyHTTPClient("", 6*time.Second)
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	_, err = CreateProxyHTTPClient("socks4://x", time.Second)
	assert.Error(t, err)
}

package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClientDirect(t *testing.T) {
	c, err := NewHTTPClient("", 0)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, c.Timeout)
}

func TestNewHTTPClientWithProxy(t *testing.T) {
	c, err := NewHTTPClient("127.0.0.1:9050", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.Timeout)
}

package network

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// NewHTTPClient returns the client used to reach the TTS server. With a
// non-empty proxyAddr every connection goes through that SOCKS5 proxy.
func NewHTTPClient(proxyAddr string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	proxyAddr = strings.TrimSpace(proxyAddr)
	if proxyAddr != "" {
		dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("SOCKS5 proxy %s: %w", proxyAddr, err)
		}
		ctxDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 proxy %s: dialer does not support contexts", proxyAddr)
		}
		transport.DialContext = ctxDialer.DialContext
	}

	// A whole chapter is synthesized in one request, so the timeout is long.
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

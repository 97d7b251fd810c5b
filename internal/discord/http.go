package discord

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// NewHTTPClient creates an HTTP client for Discord requests, optionally
// routed through the given proxy URL. Per-request deadlines come from the
// caller's context; timeout is an upper bound for the whole exchange.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	proxy := http.ProxyFromEnvironment
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}

		proxy = http.ProxyURL(parsed)
	}

	transport := &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

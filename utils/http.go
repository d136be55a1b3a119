package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/proxy"

	"sharefetch/internal"
)

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	Timeout   time.Duration // 0 means no client-side timeout
	ProxyURL  string
	UserAgent string
	Jar       http.CookieJar
}

// HTTPClient wraps http.Client with request logging, request IDs and a
// fixed user agent. Every call is attempted exactly once.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	mutex     sync.RWMutex
}

const defaultUserAgent = "sharefetch/1.0"

// NewHTTPClient creates a new HTTP client with default configuration
func NewHTTPClient() *HTTPClient {
	c, _ := NewHTTPClientWithConfig(&HTTPClientConfig{})
	return c
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration
func NewHTTPClientWithConfig(config *HTTPClientConfig) (*HTTPClient, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			return nil, internal.NewValidationErrorWithValue("proxy", err.Error(), config.ProxyURL).
				WithSuggestion("Use an http://, https:// or socks5:// proxy URL")
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		Jar:       config.Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	ua := config.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &HTTPClient{
		client:    client,
		userAgent: ua,
	}, nil
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// Do sends req once. Status codes are not interpreted; callers classify them.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mutex.RLock()
	req.Header.Set("User-Agent", c.userAgent)
	c.mutex.RUnlock()

	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, */*")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	logger := internal.GetLogger()
	logger.LogHTTPRequest(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Debug("HTTP %s %s failed after %v: %v", req.Method, req.URL.String(), time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}
	logger.LogHTTPResponse(resp)
	return resp, nil
}

// GetWithContext performs a GET request with custom headers
func (c *HTTPClient) GetWithContext(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.Do(req)
}

// PostFormWithContext performs a POST with an urlencoded form body
func (c *HTTPClient) PostFormWithContext(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(req)
}

// GetCurrentUserAgent returns the current user agent string
func (c *HTTPClient) GetCurrentUserAgent() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.userAgent
}

// SetUserAgent sets a custom user agent string
func (c *HTTPClient) SetUserAgent(userAgent string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.userAgent = userAgent
}

// Jar returns the cookie jar attached to the client, if any
func (c *HTTPClient) Jar() http.CookieJar {
	return c.client.Jar
}

// SetCookieJar replaces the cookie jar used for outgoing requests
func (c *HTTPClient) SetCookieJar(jar http.CookieJar) {
	c.client.Jar = jar
}

// CloseIdleConnections closes keep-alive connections held by the transport
func (c *HTTPClient) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

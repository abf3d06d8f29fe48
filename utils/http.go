package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"crunchy-cli/internal"
)

// DefaultUserAgent is sent when no custom user agent is configured
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"

// ClientOptions contains the per traffic class settings of an HTTP client
type ClientOptions struct {
	Proxy     *url.URL
	UserAgent string
	Trust     TrustSource
	Timeout   time.Duration
}

// DefaultClientOptions returns the options shared by every client
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Trust:   DefaultTrustSource,
		Timeout: 30 * time.Second,
	}
}

// defaultHeaders are set on every request unless the caller set them already
var defaultHeaders = map[string]string{
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en-US,en;q=0.9",
}

// NewHTTPClient builds a client for one traffic class. Both the API and the
// transfer client come from here so they share redirect policy, timeouts and
// default headers while keeping their own proxy.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	rootCAs, err := loadTrustRoots(opts.Trust)
	if err != nil {
		return nil, fmt.Errorf("failed to load trust roots: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			RootCAs:    rootCAs,
			MinVersion: tls.VersionTLS12,
		},
	}

	if opts.Proxy != nil {
		if err := configureProxy(transport, opts.Proxy); err != nil {
			return nil, err
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &http.Client{
		Transport: &headerTransport{
			base:      transport,
			userAgent: userAgent,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}, nil
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL *url.URL) error {
	switch proxyURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return internal.NewValidationErrorWithValue("proxy", fmt.Sprintf("unsupported proxy scheme: %s", proxyURL.Scheme), proxyURL.String())
	}

	return nil
}

// headerTransport applies the default headers and logs traffic in verbose mode
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for key, value := range defaultHeaders {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	logger := internal.GetLogger()
	logger.LogHTTPRequest(req)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	logger.LogHTTPResponse(resp)
	return resp, nil
}

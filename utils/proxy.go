package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"crunchy-cli/internal"
)

// ProxySpec holds the proxy of each traffic class. A nil side means a direct connection.
type ProxySpec struct {
	API      *url.URL
	Transfer *url.URL
}

// schemePrefix matches the start of a URL so the separator ':' can be told apart
// from the ':' inside a scheme, a port or user info
var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// ParseProxySpec parses the --proxy value.
//
//	URL        both classes use URL
//	A:         API uses A, transfers are direct
//	:B         API is direct, transfers use B
//	A:B        API uses A, transfers use B
func ParseProxySpec(spec string) (ProxySpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ProxySpec{}, nil
	}

	apiRaw, transferRaw, split := splitProxySpec(spec)
	if !split {
		proxyURL, err := parseProxyURL(spec)
		if err != nil {
			return ProxySpec{}, err
		}
		return ProxySpec{API: proxyURL, Transfer: proxyURL}, nil
	}

	var result ProxySpec
	var err error
	if apiRaw != "" {
		if result.API, err = parseProxyURL(apiRaw); err != nil {
			return ProxySpec{}, err
		}
	}
	if transferRaw != "" {
		if result.Transfer, err = parseProxyURL(transferRaw); err != nil {
			return ProxySpec{}, err
		}
	}
	return result, nil
}

func splitProxySpec(spec string) (string, string, bool) {
	if strings.HasPrefix(spec, ":") {
		return "", spec[1:], true
	}
	if strings.HasSuffix(spec, ":") && !strings.HasSuffix(spec, "://") {
		return spec[:len(spec)-1], "", true
	}
	for i := 1; i < len(spec)-1; i++ {
		if spec[i] == ':' && schemePrefix.MatchString(spec[i+1:]) {
			return spec[:i], spec[i+1:], true
		}
	}
	return "", "", false
}

func parseProxyURL(raw string) (*url.URL, error) {
	proxyURL, err := url.Parse(raw)
	if err != nil {
		return nil, internal.NewValidationErrorWithValue("proxy", fmt.Sprintf("invalid proxy url: %v", err), raw)
	}

	switch strings.ToLower(proxyURL.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, internal.NewValidationErrorWithValue("proxy", fmt.Sprintf("'%s' is not a valid proxy url", raw), raw).
			WithSuggestion("Use a http, https, socks5 or socks5h url, e.g. socks5://127.0.0.1:1080")
	}

	if proxyURL.Host == "" {
		return nil, internal.NewValidationErrorWithValue("proxy", fmt.Sprintf("'%s' has no host", raw), raw)
	}

	proxyURL.Scheme = strings.ToLower(proxyURL.Scheme)
	return proxyURL, nil
}

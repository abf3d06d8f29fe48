package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"crunchy-cli/internal"
)

// URLKind identifies what a Crunchyroll URL points to
type URLKind int

const (
	URLUnknown URLKind = iota
	URLSeries
	URLWatch
)

func (k URLKind) String() string {
	switch k {
	case URLSeries:
		return "series"
	case URLWatch:
		return "watch"
	default:
		return "unknown"
	}
}

// URLInfo contains parsed information from a Crunchyroll URL
type URLInfo struct {
	OriginalURL string
	Domain      string
	Kind        URLKind
	ID          string
	Locale      string
}

// URLValidator handles URL validation and parsing for Crunchyroll links
type URLValidator struct {
	allowedDomains []string
	urlPatterns    map[URLKind]*regexp.Regexp
}

// NewURLValidator creates a new URL validator with predefined patterns
func NewURLValidator() *URLValidator {
	allowedDomains := []string{
		"crunchyroll.com",
		"www.crunchyroll.com",
		"beta.crunchyroll.com",
	}

	// Paths may carry a locale prefix: /de/series/GY8VEQ95Y/darling-in-the-franxx
	patterns := map[URLKind]*regexp.Regexp{
		URLSeries: regexp.MustCompile(`^/(?:([a-z]{2}(?:-[a-z0-9]{2,3})?)/)?series/([A-Z0-9]+)(?:/[^/]*)?/?$`),
		URLWatch:  regexp.MustCompile(`^/(?:([a-z]{2}(?:-[a-z0-9]{2,3})?)/)?watch/([A-Z0-9]+)(?:/[^/]*)?/?$`),
	}

	return &URLValidator{
		allowedDomains: allowedDomains,
		urlPatterns:    patterns,
	}
}

// ValidateURL validates if the URL is from an allowed domain
func (v *URLValidator) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return internal.NewValidationError("url", "URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return internal.NewValidationError("url", fmt.Sprintf("invalid URL format: %v", err))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return internal.NewValidationError("url", "URL must use http or https protocol")
	}

	host := strings.ToLower(parsedURL.Hostname())
	for _, allowedDomain := range v.allowedDomains {
		if host == allowedDomain {
			return nil
		}
	}

	return internal.NewValidationErrorWithValue("url", fmt.Sprintf("URL must be from crunchyroll.com, got: %s", host), rawURL)
}

// ParseURL extracts the kind, the content id and the optional locale prefix of a Crunchyroll URL
func (v *URLValidator) ParseURL(rawURL string) (*URLInfo, error) {
	if err := v.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, internal.NewValidationError("url", fmt.Sprintf("failed to parse URL: %v", err))
	}

	for _, kind := range []URLKind{URLSeries, URLWatch} {
		matches := v.urlPatterns[kind].FindStringSubmatch(parsedURL.Path)
		if len(matches) == 3 {
			return &URLInfo{
				OriginalURL: rawURL,
				Domain:      strings.ToLower(parsedURL.Hostname()),
				Kind:        kind,
				ID:          matches[2],
				Locale:      matches[1],
			}, nil
		}
	}

	return nil, internal.NewValidationErrorWithValue("url", "unable to extract a series or episode id from URL", rawURL).
		WithSuggestion("Use a url like https://www.crunchyroll.com/series/<id> or https://www.crunchyroll.com/watch/<id>")
}

// String returns a string representation of the URLInfo
func (urlInfo *URLInfo) String() string {
	return fmt.Sprintf("URLInfo{Domain: %s, Kind: %s, ID: %s, Locale: %s}",
		urlInfo.Domain, urlInfo.Kind, urlInfo.ID, urlInfo.Locale)
}

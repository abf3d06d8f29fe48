package crunchyroll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"crunchy-cli/internal"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// checkResponse turns a non 2xx response into an *internal.CrunchyError.
// The body is consumed on error.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var requestURL string
	if resp.Request != nil && resp.Request.URL != nil {
		requestURL = resp.Request.URL.String()
	}

	if isBlocked(resp, body) {
		return internal.NewBlockedError(resp.StatusCode, requestURL, "the request was blocked by Cloudflare")
	}

	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil {
		// OAuth style errors, e.g. {"error":"invalid_grant"}
		if payload.Error != "" {
			message := payload.Error
			if payload.Description != "" {
				message += ": " + payload.Description
			}
			return internal.NewCrunchyError(resp.StatusCode, message, internal.ErrRequest).WithURL(requestURL)
		}
		if payload.Code != "" || payload.Message != "" {
			message := strings.Trim(payload.Code+" - "+payload.Message, " -")
			return internal.NewCrunchyError(resp.StatusCode, message, typeForStatus(resp.StatusCode)).WithURL(requestURL)
		}
	}

	if resp.StatusCode == http.StatusNotFound {
		return internal.NewNotFoundError(requestURL)
	}
	return internal.NewCrunchyError(resp.StatusCode, fmt.Sprintf("unexpected response status %s", resp.Status),
		typeForStatus(resp.StatusCode)).WithURL(requestURL)
}

func typeForStatus(status int) internal.ErrorType {
	switch {
	case status == http.StatusUnauthorized:
		return internal.ErrAuthentication
	case status == http.StatusNotFound:
		return internal.ErrNotFound
	case status == http.StatusTooManyRequests:
		return internal.ErrRateLimit
	default:
		return internal.ErrRequest
	}
}

// isBlocked detects the Cloudflare challenge page served instead of an API response
func isBlocked(resp *http.Response, body []byte) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	if strings.EqualFold(resp.Header.Get("cf-mitigated"), "challenge") {
		return true
	}

	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("<title>just a moment...</title>")) ||
		bytes.Contains(lower, []byte("cf-chl")) ||
		(bytes.Contains(lower, []byte("cloudflare")) && bytes.Contains(lower, []byte("attention required")))
}

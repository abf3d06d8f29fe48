package internal

import (
	"errors"
	"fmt"
	"strings"
)

// BlockedMessage replaces the remote message of a blocked request before it is shown to the user
const BlockedMessage = "Triggered Cloudflare bot protection. Try again later or use a VPN or proxy to spoof your location"

// ErrorType represents the different failures reported by the remote API
type ErrorType int

const (
	ErrRequest ErrorType = iota
	ErrBlocked
	ErrAuthentication
	ErrDecode
	ErrNetwork
	ErrNotFound
	ErrRateLimit
	ErrInternal
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// ErrorKind is the closed set of error categories the command layer distinguishes
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindAuthentication
	KindRemote
	KindBlocked
	KindFatal
)

// CrunchyError represents a failure surfaced by the remote API or the network below it
type CrunchyError struct {
	Code       int                    `json:"code"`
	Message    string                 `json:"message"`
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	URL        string                 `json:"url,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *CrunchyError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("crunchyroll error (code: %d, type: %s)", e.Code, e.Type.String()))

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// Unwrap returns the underlying transport error, if any
func (e *CrunchyError) Unwrap() error {
	return e.Err
}

// DetailedError returns a detailed error message with all available information
func (e *CrunchyError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("Code: %d", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}

	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrRequest:
		return "Request"
	case ErrBlocked:
		return "Blocked"
	case ErrAuthentication:
		return "Authentication"
	case ErrDecode:
		return "Decode"
	case ErrNetwork:
		return "Network"
	case ErrNotFound:
		return "NotFound"
	case ErrRateLimit:
		return "RateLimit"
	case ErrInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindRemote:
		return "remote"
	case KindBlocked:
		return "blocked"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// NewCrunchyError creates a new CrunchyError with default severity and suggestion
func NewCrunchyError(code int, message string, errorType ErrorType) *CrunchyError {
	return &CrunchyError{
		Code:       code,
		Message:    message,
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Suggestion: getDefaultSuggestion(errorType),
		Context:    make(map[string]interface{}),
	}
}

// WithSuggestion adds a custom suggestion to the error
func (e *CrunchyError) WithSuggestion(suggestion string) *CrunchyError {
	e.Suggestion = suggestion
	return e
}

// WithURL adds URL context to the error (will be redacted in logs)
func (e *CrunchyError) WithURL(url string) *CrunchyError {
	e.URL = url
	return e
}

// WithContext adds context information to the error
func (e *CrunchyError) WithContext(key string, value interface{}) *CrunchyError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause records the transport error that caused this one
func (e *CrunchyError) WithCause(err error) *CrunchyError {
	e.Err = err
	return e
}

// IsRetryable returns true if repeating the same request may succeed
func (e *CrunchyError) IsRetryable() bool {
	switch e.Type {
	case ErrNetwork, ErrRateLimit:
		return true
	case ErrRequest:
		return e.Code >= 500
	default:
		return false
	}
}

// IsInvalidGrant reports whether the remote rejected a token grant as expired or invalid
func (e *CrunchyError) IsInvalidGrant() bool {
	return e.Type == ErrRequest && strings.HasPrefix(e.Message, "invalid_grant")
}

// ValidationError represents a configuration problem detected before any network access
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// AuthFailure enumerates why no session could be established
type AuthFailure int

const (
	AuthNoMethod AuthFailure = iota
	AuthMultipleMethods
	AuthInvalidCredentials
	AuthStoredExpired
	AuthStoredUnsupported
	AuthStoredUnreadable
	AuthNotSavable
)

// AuthError is returned when the login method selection or a stored session is unusable
type AuthError struct {
	Reason  AuthFailure
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates an AuthError
func NewAuthError(reason AuthFailure, message string) *AuthError {
	return &AuthError{Reason: reason, Message: message}
}

// FatalError marks failures of process-wide setup the command cannot run without
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// KindOf classifies err into the closed ErrorKind set
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var crunchyErr *CrunchyError
	if errors.As(err, &crunchyErr) {
		if crunchyErr.Type == ErrBlocked {
			return KindBlocked
		}
		return KindRemote
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return KindAuthentication
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindConfiguration
	}

	var fatalErr *FatalError
	if errors.As(err, &fatalErr) {
		return KindFatal
	}

	return KindUnknown
}

// TranslateError returns the message that is shown to the user for err.
// Remote errors are reported without the wrapping added on the way up;
// blocked requests get a message pointing at the usual workarounds.
func TranslateError(err error) string {
	var crunchyErr *CrunchyError
	if !errors.As(err, &crunchyErr) {
		return err.Error()
	}

	if KindOf(err) == KindBlocked {
		translated := *crunchyErr
		translated.Message = BlockedMessage
		translated.Suggestion = ""
		return translated.Error()
	}

	return crunchyErr.Error()
}

// getDefaultSuggestion returns a default suggestion based on error type
func getDefaultSuggestion(errorType ErrorType) string {
	switch errorType {
	case ErrAuthentication:
		return "Please login again using '--credentials' or '--anonymous'"
	case ErrRateLimit:
		return "Please wait before retrying. Consider using --speed-limit to reduce the request rate"
	case ErrNetwork:
		return "Check your internet connection and try again. Consider using --proxy if needed"
	case ErrNotFound:
		return "Verify the url is still valid and the content is available in your region"
	default:
		return ""
	}
}

// getDefaultSeverity returns the default severity for an error type
func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrRateLimit, ErrNetwork:
		return SeverityWarning
	case ErrBlocked, ErrInternal:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL redacts sensitive information from URLs
func redactSensitiveURL(url string) string {
	if strings.Contains(url, "?") {
		parts := strings.Split(url, "?")
		return parts[0] + "?[REDACTED]"
	}
	return url
}

// NewBlockedError creates an error for requests stopped by the bot protection in front of the API
func NewBlockedError(code int, url string, message string) *CrunchyError {
	return NewCrunchyError(code, message, ErrBlocked).
		WithURL(url)
}

// NewNetworkError wraps a transport failure
func NewNetworkError(operation string, err error) *CrunchyError {
	return NewCrunchyError(0, fmt.Sprintf("network error during %s: %v", operation, err), ErrNetwork).
		WithCause(err)
}

// NewNotFoundError creates an error for missing remote content
func NewNotFoundError(url string) *CrunchyError {
	return NewCrunchyError(404, "Content not found", ErrNotFound).
		WithURL(url)
}

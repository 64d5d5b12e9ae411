package luminote

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrStreamCancelled indicates the caller cancelled the stream (context done).
	ErrStreamCancelled = errors.New("luminote: stream cancelled by user")

	// ErrUnexpectedContentType indicates a 2xx response that is not an event stream.
	// Usually a proxy or server misconfiguration, never transient.
	ErrUnexpectedContentType = errors.New("luminote: unexpected response content type")

	// ErrNoResponseBody indicates a 2xx response without a readable body.
	ErrNoResponseBody = errors.New("luminote: response body is not readable")

	// ErrInvalidRequest indicates the request parameters are invalid.
	ErrInvalidRequest = errors.New("luminote: invalid request")

	// ErrInvalidAPIKey indicates the API key is missing, malformed, or unauthorized.
	ErrInvalidAPIKey = errors.New("luminote: invalid API key")

	// ErrRateLimited indicates the provider's rate limit has been exceeded.
	ErrRateLimited = errors.New("luminote: rate limit exceeded")

	// ErrUnsupportedProvider indicates the provider is not registered.
	ErrUnsupportedProvider = errors.New("luminote: unsupported provider")

	// ErrProviderUnavailable indicates the provider service is down or unreachable.
	ErrProviderUnavailable = errors.New("luminote: provider unavailable")
)

// StreamConnectionError is the only error returned by Client.StreamTranslation.
// It represents a failure that kept the stream from running to completion.
type StreamConnectionError struct {
	Message    string // Human-readable message (server message when available)
	StatusCode int    // HTTP status code, 0 when no response was received
	Cause      error  // Wrapped cause (sentinel or transport error)

	// fatal marks errors that must never be retried regardless of status
	// (content type mismatch, unreadable body, cancellation).
	fatal bool
}

func (e *StreamConnectionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("stream connection error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("stream connection error: %s", e.Message)
}

func (e *StreamConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether another attempt may succeed.
// Absent status (network failure) and 5xx are retryable; 4xx are not.
func (e *StreamConnectionError) IsRetryable() bool {
	if e.fatal {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode >= 500
}

func newHTTPStatusError(statusCode int, message string) *StreamConnectionError {
	if message == "" {
		message = http.StatusText(statusCode)
	}
	return &StreamConnectionError{Message: message, StatusCode: statusCode}
}

func newFatalStreamError(message string, cause error) *StreamConnectionError {
	return &StreamConnectionError{Message: message, Cause: cause, fatal: true}
}

func newCancelledError(cause error) *StreamConnectionError {
	if cause == nil {
		cause = ErrStreamCancelled
	} else {
		cause = fmt.Errorf("%w: %w", ErrStreamCancelled, cause)
	}
	return &StreamConnectionError{Message: "Stream cancelled by user", Cause: cause, fatal: true}
}

// asStreamConnectionError returns err unchanged if it already is a
// StreamConnectionError, otherwise wraps it as a generic connection error.
func asStreamConnectionError(err error) *StreamConnectionError {
	var sce *StreamConnectionError
	if errors.As(err, &sce) {
		return sce
	}
	return &StreamConnectionError{Message: fmt.Sprintf("connection failed: %v", err), Cause: err}
}

// IsRetryable checks if an error is potentially retryable.
// Returns true for network failures, 5xx responses, rate limits and
// temporary provider unavailability.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var sce *StreamConnectionError
	if errors.As(err, &sce) {
		return sce.IsRetryable()
	}

	var te *TranslationError
	if errors.As(err, &te) {
		return te.Retryable
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}

	return errors.Is(err, ErrProviderUnavailable)
}

// IsCancelled checks if an error was caused by the caller cancelling the stream.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrStreamCancelled)
}

// IsInvalidRequest checks if an error indicates invalid request parameters.
// These errors are not retryable and require request changes.
func IsInvalidRequest(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidRequest) {
		return true
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsAuthError checks if an error is related to authentication.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return true
	}

	var sce *StreamConnectionError
	if errors.As(err, &sce) {
		return sce.StatusCode == http.StatusUnauthorized || sce.StatusCode == http.StatusForbidden
	}

	return false
}

// ErrorCode is a machine-readable error identifier shared by the HTTP API
// and stream error frames.
type ErrorCode string

// Error codes
const (
	ErrorCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrorCodeUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
	ErrorCodeInvalidAPIKey       ErrorCode = "INVALID_API_KEY"
	ErrorCodeRateLimited         ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorCodeTranslation         ErrorCode = "TRANSLATION_ERROR"
	ErrorCodeTimeout             ErrorCode = "TIMEOUT"
	ErrorCodeInternal            ErrorCode = "INTERNAL_ERROR"
	ErrorCodeExternalService     ErrorCode = "EXTERNAL_SERVICE_ERROR"

	ErrorCodeInvalidURL ErrorCode = "INVALID_URL"
	ErrorCodeURLFetch   ErrorCode = "URL_FETCH_ERROR"
	ErrorCodeExtraction ErrorCode = "EXTRACTION_ERROR"

	ErrorCodeTemplateNotFound      ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrorCodeInvalidTemplateSyntax ErrorCode = "INVALID_TEMPLATE_SYNTAX"
	ErrorCodeUndefinedTemplateVar  ErrorCode = "UNDEFINED_TEMPLATE_VARIABLE"
	ErrorCodeTemplateRendering     ErrorCode = "TEMPLATE_RENDERING_FAILED"
	ErrorCodeCannotDeleteBuiltIn   ErrorCode = "CANNOT_DELETE_BUILT_IN_TEMPLATE"
	ErrorCodeVersionNotFound       ErrorCode = "VERSION_NOT_FOUND"
)

// TranslationError is a failure produced on the serving side: a provider
// call that failed, an unsupported provider, an invalid request, a page that
// could not be extracted or a template that could not be rendered.
// Its Code and Message are what clients see in error frames and error bodies.
type TranslationError struct {
	Code       ErrorCode      // Machine-readable code
	Message    string         // Human-readable message
	StatusCode int            // HTTP status to respond with
	Details    map[string]any // Additional context
	Retryable  bool           // Whether this error is potentially retryable
	Err        error          // Wrapped sentinel or provider error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// NewAPIKeyError reports a missing, malformed or rejected provider key.
func NewAPIKeyError(provider ProviderID, reason string) *TranslationError {
	return &TranslationError{
		Code:       ErrorCodeInvalidAPIKey,
		Message:    fmt.Sprintf("Invalid API key for provider '%s': %s", provider, reason),
		StatusCode: http.StatusUnauthorized,
		Details:    map[string]any{"provider": provider.String(), "reason": reason},
		Err:        ErrInvalidAPIKey,
	}
}

// NewRateLimitError reports a provider rate limit. retryAfter is in seconds.
func NewRateLimitError(provider ProviderID, retryAfter int) *TranslationError {
	return &TranslationError{
		Code:       ErrorCodeRateLimited,
		Message:    fmt.Sprintf("Rate limit exceeded for provider '%s'. Retry after %d seconds", provider, retryAfter),
		StatusCode: http.StatusTooManyRequests,
		Details:    map[string]any{"provider": provider.String(), "retry_after": retryAfter},
		Retryable:  true,
		Err:        ErrRateLimited,
	}
}

// NewProviderFailure reports a failed translation call.
// Server-side provider failures (5xx) are retryable.
func NewProviderFailure(provider ProviderID, model, reason string, retryable bool, cause error) *TranslationError {
	if cause == nil && retryable {
		cause = ErrProviderUnavailable
	}
	return &TranslationError{
		Code:       ErrorCodeTranslation,
		Message:    fmt.Sprintf("Translation failed with provider '%s': %s", provider, reason),
		StatusCode: http.StatusBadGateway,
		Details:    map[string]any{"provider": provider.String(), "model": model, "reason": reason},
		Retryable:  retryable,
		Err:        cause,
	}
}

// NewUnsupportedProviderError reports a provider that is not registered.
func NewUnsupportedProviderError(provider string, supported []string) *TranslationError {
	return &TranslationError{
		Code:       ErrorCodeUnsupportedProvider,
		Message:    fmt.Sprintf("Unsupported provider: %s. Supported providers: %s", provider, strings.Join(supported, ", ")),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]any{"provider": provider, "supported_providers": supported},
		Err:        ErrUnsupportedProvider,
	}
}

// ValidationError represents an error in request validation.
type ValidationError struct {
	Field  string // The field that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable explanation
	Err    error  // Wrapped error (usually ErrInvalidRequest)
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// APIError is the JSON error body returned by the Luminote HTTP API for
// non-2xx responses.
type APIError struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// DefaultRetryAfter is used when a 429 response carries no usable Retry-After.
const DefaultRetryAfter = 60

// NewProviderHTTPError maps a provider's HTTP failure onto the error taxonomy:
// 401 and 403 are key errors, 429 a rate limit, 5xx a retryable provider
// failure and anything else a plain provider failure.
func NewProviderHTTPError(provider ProviderID, model string, statusCode int, header http.Header, cause error) *TranslationError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		te := NewAPIKeyError(provider, "Authentication failed")
		te.Err = wrapSentinel(ErrInvalidAPIKey, cause)
		return te
	case statusCode == http.StatusTooManyRequests:
		te := NewRateLimitError(provider, parseRetryAfter(header))
		te.Err = wrapSentinel(ErrRateLimited, cause)
		return te
	case statusCode >= 500:
		return NewProviderFailure(provider, model, fmt.Sprintf("API error: HTTP %d", statusCode), true,
			wrapSentinel(ErrProviderUnavailable, cause))
	default:
		return NewProviderFailure(provider, model, fmt.Sprintf("API error: HTTP %d", statusCode), false, cause)
	}
}

func wrapSentinel(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

func parseRetryAfter(header http.Header) int {
	if header == nil {
		return DefaultRetryAfter
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return DefaultRetryAfter
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return DefaultRetryAfter
	}
	return seconds
}

package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"
)

// APIError is a provider failure reduced to status, code and message.
// Both runtimes produce it before classification.
type APIError struct {
	Provider   string         `json:"-"`
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	parts := []string{fmt.Sprintf("status=%d", e.StatusCode)}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.RequestID != "" {
		parts = append(parts, "request_id="+e.RequestID)
	}
	if e.Message != "" {
		parts = append(parts, "message="+e.Message)
	}
	prefix := "api error"
	if e.Provider != "" {
		prefix = e.Provider + " error"
	}
	return prefix + ": " + strings.Join(parts, " ")
}

// AuthError means the key was rejected (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string { return "authentication failed: " + e.APIError.Error() }
func (e *AuthError) Unwrap() error { return e.APIError }

// RateLimitError means the provider throttled us (429).
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry in %ds: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return "rate limited: " + e.APIError.Error()
}
func (e *RateLimitError) Unwrap() error { return e.APIError }

// ModelNotFoundError means the configured model does not exist for the provider.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string { return "model not found: " + e.APIError.Error() }
func (e *ModelNotFoundError) Unwrap() error { return e.APIError }

// BadRequestError means the provider refused the payload (400).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return "bad request: " + e.APIError.Error() }
func (e *BadRequestError) Unwrap() error { return e.APIError }

// QuotaExceededError means billing or quota is exhausted.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string { return "quota exceeded: " + e.APIError.Error() }
func (e *QuotaExceededError) Unwrap() error { return e.APIError }

// ServerError is any 5xx from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return "provider error: " + e.APIError.Error() }
func (e *ServerError) Unwrap() error { return e.APIError }

// UnreachableError wraps transport failures before any response arrived.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// classify maps an APIError onto the typed errors above. retryAfter is only
// used for 429s.
func classify(apiErr *APIError, retryAfter time.Duration) error {
	sc := apiErr.StatusCode
	switch {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case sc == http.StatusTooManyRequests:
		if apiErr.Code == "RESOURCE_EXHAUSTED" && containsAnyFold(apiErr.Message, "quota", "billing") {
			return &QuotaExceededError{APIError: apiErr}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: retryAfter}
	case sc == http.StatusNotFound:
		if apiErr.Code == "model_not_found" || containsAllFold(apiErr.Message, "model", "not", "found") ||
			containsFold(apiErr.Message, "is not found for API version") {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return apiErr
	case sc == http.StatusBadRequest:
		if containsFold(apiErr.Message, "API key not valid") {
			return &AuthError{APIError: apiErr}
		}
		return &BadRequestError{APIError: apiErr}
	case apiErr.Code == "quota_exceeded" || containsAnyFold(apiErr.Message, "quota", "billing", "limit exceeded"):
		return &QuotaExceededError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

// fromGeminiError converts a genai.APIError into the shared hierarchy.
// Anything else passes through wrapped.
func fromGeminiError(err error) error {
	var ge genai.APIError
	if !errors.As(err, &ge) {
		return fmt.Errorf("gemini generate: %w", err)
	}
	apiErr := &APIError{
		Provider:   "gemini",
		StatusCode: ge.Code,
		Code:       ge.Status,
		Message:    ge.Message,
	}
	return classify(apiErr, geminiRetryDelay(ge.Details))
}

// geminiRetryDelay reads the RetryInfo detail Google attaches to 429s,
// e.g. {"@type": "...RetryInfo", "retryDelay": "17s"}.
func geminiRetryDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		t, _ := d["@type"].(string)
		if !strings.HasSuffix(t, "RetryInfo") {
			continue
		}
		v, _ := d["retryDelay"].(string)
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			return dur
		}
		if secs, err := strconv.Atoi(strings.TrimSuffix(v, "s")); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// IsRetryable reports whether err is transient, as opposed to a
// configuration problem the user has to fix.
func IsRetryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	var ue *UnreachableError
	return errors.As(err, &rl) || errors.As(err, &se) || errors.As(err, &ue)
}

// HTTPStatus picks the status an API front end should answer with when a
// model call fails.
func HTTPStatus(err error) int {
	var rl *RateLimitError
	var qe *QuotaExceededError
	switch {
	case errors.As(err, &rl), errors.As(err, &qe):
		return http.StatusTooManyRequests
	case IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

package ai

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		in     *APIError
		target any
	}{
		{"unauthorized", &APIError{StatusCode: 401}, new(*AuthError)},
		{"invalid key as 400", &APIError{StatusCode: 400, Message: "API key not valid. Please pass a valid API key."}, new(*AuthError)},
		{"throttled", &APIError{StatusCode: 429}, new(*RateLimitError)},
		{"quota as 429", &APIError{StatusCode: 429, Code: "RESOURCE_EXHAUSTED", Message: "You exceeded your current quota"}, new(*QuotaExceededError)},
		{"model missing", &APIError{StatusCode: 404, Message: "models/foo is not found for API version v1beta"}, new(*ModelNotFoundError)},
		{"bad payload", &APIError{StatusCode: 400, Message: "invalid tools"}, new(*BadRequestError)},
		{"billing", &APIError{StatusCode: 402, Message: "billing required"}, new(*QuotaExceededError)},
		{"upstream", &APIError{StatusCode: 503}, new(*ServerError)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.in, 0)
			assert.True(t, errors.As(err, tc.target), "got %T", err)
		})
	}

	plain := &APIError{StatusCode: 404, Message: "route missing"}
	assert.Same(t, plain, classify(plain, 0))
}

func TestFromGeminiError(t *testing.T) {
	ge := genai.APIError{
		Code:    429,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "Resource has been exhausted",
		Details: []map[string]any{
			{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "17s"},
		},
	}
	err := fromGeminiError(fmt.Errorf("call: %w", ge))
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 17*time.Second, rl.RetryAfter)
	assert.Equal(t, "gemini", rl.Provider)
	assert.True(t, IsRetryable(err))

	other := fromGeminiError(errors.New("dial tcp: refused"))
	assert.Contains(t, other.Error(), "gemini generate")
	assert.False(t, IsRetryable(other))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(&RateLimitError{APIError: &APIError{}}))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(&QuotaExceededError{APIError: &APIError{}}))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(fmt.Errorf("x: %w", &ServerError{APIError: &APIError{}})))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(&UnreachableError{Err: errors.New("boom")}))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(&AuthError{APIError: &APIError{}}))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(errors.New("anything")))
}

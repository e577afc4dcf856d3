package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ipv4Server struct {
	URL string
	srv *http.Server
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	s := &ipv4Server{URL: "http://" + ln.Addr().String(), srv: srv}
	t.Cleanup(s.Close)
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func okCompletion(content string, calls ...wireToolCall) map[string]any {
	msg := map[string]any{"role": "assistant", "content": content}
	if len(calls) > 0 {
		msg["tool_calls"] = calls
	}
	return map[string]any{
		"id":      "gen-1",
		"choices": []any{map[string]any{"message": msg, "finish_reason": "stop"}},
		"usage":   map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
	}
}

func testServerSequence(t *testing.T, statuses []int, headers []http.Header, bodyOK any) (*ipv4Server, *int32) {
	t.Helper()
	var idx int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		if headers != nil && i < len(headers) {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		w.WriteHeader(statuses[i])
		if statuses[i] >= 200 && statuses[i] < 300 {
			_ = json.NewEncoder(w).Encode(bodyOK)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	}))
	return srv, &idx
}

func chatReq() ChatRequest {
	return ChatRequest{Model: "test-model", Messages: []Message{{Role: RoleUser, Content: "oi"}}, MaxTokens: 1}
}

func TestChatRetriesOn429(t *testing.T) {
	srv, hits := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"0"}}, {}}, okCompletion("ok"))
	c := NewClientWithBaseURL("test", 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Chat(ctx, chatReq())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.EqualValues(t, 2, atomic.LoadInt32(hits))
}

func TestRetryAfterHonored(t *testing.T) {
	srv, _ := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"1"}}, {}}, okCompletion("ok"))
	c := NewClientWithBaseURL("test", 5*time.Second, 3, 0, 0, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.Chat(ctx, chatReq())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestRetriesExhaustedReturnsTypedError(t *testing.T) {
	srv, hits := testServerSequence(t, []int{503}, nil, nil)
	c := NewClientWithBaseURL("test", 2*time.Second, 2, time.Millisecond, 5*time.Millisecond, srv.URL)

	_, err := c.Chat(context.Background(), chatReq())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.True(t, IsRetryable(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(hits))
}

func TestErrorIncludesRequestID(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad req", "code": "bad_request"}})
	}))
	c := NewClientWithBaseURL("test", 2*time.Second, 1, 10*time.Millisecond, 50*time.Millisecond, srv.URL)

	_, err := c.Chat(context.Background(), chatReq())
	var br *BadRequestError
	require.ErrorAs(t, err, &br)
	assert.Contains(t, err.Error(), "req_test_123")
	assert.False(t, IsRetryable(err))
}

func TestChatSendsToolsAndParsesToolCalls(t *testing.T) {
	var got chatCompletionRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(okCompletion("", wireToolCall{
			ID:       "call_1",
			Type:     "function",
			Function: wireFunctionCall{Name: "count_responses", Arguments: `{"table_name":"FATO_AVCURSOS","n":3}`},
		}))
	}))
	c := NewClientWithBaseURL("test", 2*time.Second, 1, 0, 0, srv.URL)

	req := ChatRequest{
		Model:  "m",
		System: "sistema",
		Messages: []Message{
			{Role: RoleUser, Content: "quantas respostas?"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Name: "get_table_schema", Args: map[string]any{}}}},
			{Role: RoleTool, ToolCallID: "call_0", Name: "get_table_schema", Content: "schema"},
		},
		Tools: []ToolSpec{{
			Name:     "count_responses",
			Required: []string{"table_name"},
			Params:   map[string]Param{"table_name": {Type: "string"}},
		}},
	}
	resp, err := c.Chat(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "count_responses", resp.ToolCalls[0].Name)
	assert.Equal(t, "FATO_AVCURSOS", resp.ToolCalls[0].Args["table_name"])
	assert.Equal(t, 3.0, resp.ToolCalls[0].Args["n"])

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "call_0", got.Messages[3].ToolCallID)
	require.Len(t, got.Messages[2].ToolCalls, 1)
	assert.Equal(t, "{}", got.Messages[2].ToolCalls[0].Function.Arguments)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "auto", got.ToolChoice)
	assert.Equal(t, "object", got.Tools[0].Function.Parameters["type"])
}

func TestChatRequiresKeyAndModel(t *testing.T) {
	_, err := NewClient("", 0, 0, 0, 0).Chat(context.Background(), chatReq())
	assert.ErrorContains(t, err, "OPENROUTER_API_KEY")

	_, err = NewClient("k", 0, 0, 0, 0).Chat(context.Background(), ChatRequest{})
	assert.ErrorContains(t, err, "model")
}

func TestUnreachableEndpoint(t *testing.T) {
	c := NewClientWithBaseURL("test", 500*time.Millisecond, 1, 0, 0, "http://127.0.0.1:1")
	_, err := c.Chat(context.Background(), chatReq())
	var ue *UnreachableError
	require.ErrorAs(t, err, &ue)
	assert.True(t, strings.Contains(err.Error(), "127.0.0.1:1"))
}

func TestRuntimeRegistry(t *testing.T) {
	assert.Equal(t, []string{ProviderGemini, ProviderOpenRouter}, Providers())
	rt, ok := GetRuntime(ProviderOpenRouter, RuntimeConfig{APIKey: "k"})
	require.True(t, ok)
	assert.IsType(t, &Client{}, rt)
	_, ok = GetRuntime("ollama", RuntimeConfig{})
	assert.False(t, ok)
}

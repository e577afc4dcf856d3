package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/avalia-cli/internal/agent"
	"github.com/KaramelBytes/avalia-cli/internal/ai"
	"github.com/KaramelBytes/avalia-cli/internal/app"
	cfgpkg "github.com/KaramelBytes/avalia-cli/internal/config"
)

const facts = "ID_QUESTIONARIO,ID_PERGUNTA,RESPOSTA,COD_CURSO\n" +
	"1,P1,Concordo,C1\n2,P1,Concordo,C1\n3,P1,Discordo,C2\n4,P1,Desconheço,C2\n"

type echoRuntime struct{}

func (echoRuntime) Chat(_ context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	return &ai.ChatResponse{Text: "eco: " + req.Messages[len(req.Messages)-1].Content}, nil
}

func newTestServer(t *testing.T, withHistory bool) (*Server, *app.App) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "FATO_AVCURSOS.csv"), []byte(facts), 0o644))
	cfg := &cfgpkg.Global{DataDir: dir, Provider: "gemini", MaxIterations: 3}
	if withHistory {
		cfg.HistoryDB = filepath.Join(t.TempDir(), "h.db")
	}
	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	s := New(a,
		WithCORSOrigins([]string{"*"}),
		WithAgentFactory(func() (*agent.Agent, error) { return a.NewAgentWithRuntime(echoRuntime{}), nil }))
	return s, a
}

func do(t *testing.T, s *Server, method, path string, body any) (int, APIResponse) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestTablesAndSchema(t *testing.T) {
	s, _ := newTestServer(t, false)

	code, resp := do(t, s, http.MethodGet, "/api/tables", nil)
	require.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, []any{"FATO_AVCURSOS"}, data["available"])

	code, resp = do(t, s, http.MethodGet, "/api/schema/DIM_CURSOS", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, resp.Data.(map[string]any)["info"], "COD_CURSO")

	code, resp = do(t, s, http.MethodGet, "/api/schema/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", resp.Status)
}

func TestPreviewAndStats(t *testing.T) {
	s, _ := newTestServer(t, false)

	code, resp := do(t, s, http.MethodGet, "/api/tables/FATO_AVCURSOS/preview?n=2", nil)
	require.Equal(t, http.StatusOK, code)
	rows := resp.Data.(map[string]any)["rows"].([]any)
	assert.Len(t, rows, 2)

	code, _ = do(t, s, http.MethodGet, "/api/tables/FATO_AVCURSOS/preview?n=x", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, s, http.MethodGet, "/api/tables/DIM_CURSOS/stats", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = do(t, s, http.MethodGet, "/api/tables/FATO_AVCURSOS/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 4, resp.Data.(map[string]any)["num_rows"])
}

func TestRunToolAndHistory(t *testing.T) {
	s, _ := newTestServer(t, true)

	code, resp := do(t, s, http.MethodPost, "/api/tools/count_responses",
		map[string]any{"table_name": "FATO_AVCURSOS", "group_by": "COD_CURSO"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, resp.Data.(map[string]any)["result"], "Resultados")

	code, resp = do(t, s, http.MethodPost, "/api/tools/drop_tables", map[string]any{})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, resp.Data.(map[string]any)["result"], "ferramenta desconhecida")

	code, resp = do(t, s, http.MethodGet, "/api/history?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data.([]any), 1)
}

func TestHistoryDisabled(t *testing.T) {
	s, _ := newTestServer(t, false)
	code, _ := do(t, s, http.MethodGet, "/api/history", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestChatKeepsSession(t *testing.T) {
	s, _ := newTestServer(t, false)

	code, resp := do(t, s, http.MethodPost, "/api/chat", map[string]any{"question": "oi"})
	require.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "eco: oi", data["text"])
	id := data["session_id"].(string)
	require.NotEmpty(t, id)

	code, resp = do(t, s, http.MethodPost, "/api/chat", map[string]any{"question": "de novo", "session_id": id})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, resp.Data.(map[string]any)["session_id"])

	code, _ = do(t, s, http.MethodPost, "/api/chat", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReload(t *testing.T) {
	s, a := newTestServer(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(a.Config().DataDir, "DIM_CURSOS.csv"),
		[]byte("COD_CURSO,CURSO\nC1,Direito\n"), 0o644))

	code, resp := do(t, s, http.MethodPost, "/api/reload", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data.(map[string]any)["tables"], 2)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/api/tables", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	_, a := newTestServer(t, false)
	_, err := a.Analyzer().Stats("NOPE")
	assert.Equal(t, http.StatusNotFound, statusFor(err))
	_, err = a.Analyzer().TopN("FATO_AVCURSOS", "satisfacao", 0, "COD_CURSO", false, nil)
	assert.Equal(t, http.StatusBadRequest, statusFor(err))
}

type throttledRuntime struct{}

func (throttledRuntime) Chat(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
	return nil, &ai.RateLimitError{APIError: &ai.APIError{StatusCode: http.StatusTooManyRequests}}
}

func TestChatProviderThrottled(t *testing.T) {
	_, a := newTestServer(t, false)
	s := New(a, WithAgentFactory(func() (*agent.Agent, error) { return a.NewAgentWithRuntime(throttledRuntime{}), nil }))

	code, resp := do(t, s, http.MethodPost, "/api/chat", map[string]any{"question": "oi"})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "error", resp.Status)
	assert.Empty(t, s.sessions, "a session whose first question failed is not kept")
}

// tick returns a clock that advances by step on every call.
func tick(step time.Duration) func() time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func chatSession(t *testing.T, s *Server, id string) string {
	t.Helper()
	body := map[string]any{"question": "oi"}
	if id != "" {
		body["session_id"] = id
	}
	code, resp := do(t, s, http.MethodPost, "/api/chat", body)
	require.Equal(t, http.StatusOK, code)
	return resp.Data.(map[string]any)["session_id"].(string)
}

func TestChatSessions_EvictLeastRecentlyUsed(t *testing.T) {
	_, a := newTestServer(t, false)
	s := New(a,
		WithSessionLimits(3, time.Hour),
		WithAgentFactory(func() (*agent.Agent, error) { return a.NewAgentWithRuntime(echoRuntime{}), nil }))
	s.now = tick(time.Second)

	first := chatSession(t, s, "")
	for i := 0; i < 20; i++ {
		chatSession(t, s, "")
		chatSession(t, s, first)
	}
	assert.Len(t, s.sessions, 3)
	assert.Contains(t, s.sessions, first)
}

func TestChatSessions_ExpireWhenIdle(t *testing.T) {
	_, a := newTestServer(t, false)
	s := New(a,
		WithSessionLimits(100, time.Minute),
		WithAgentFactory(func() (*agent.Agent, error) { return a.NewAgentWithRuntime(echoRuntime{}), nil }))
	s.now = tick(40 * time.Second)

	old := chatSession(t, s, "")
	chatSession(t, s, "")
	chatSession(t, s, "")
	assert.Len(t, s.sessions, 2)
	assert.NotContains(t, s.sessions, old)

	again := chatSession(t, s, old)
	assert.NotEqual(t, old, again, "an expired id starts a new conversation")
}

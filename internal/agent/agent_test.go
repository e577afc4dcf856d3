package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/KaramelBytes/avalia-cli/internal/ai"
	"github.com/KaramelBytes/avalia-cli/internal/analysis"
	"github.com/KaramelBytes/avalia-cli/internal/schema"
	"github.com/KaramelBytes/avalia-cli/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted replays canned responses and records every request.
type scripted struct {
	mu        sync.Mutex
	responses []*ai.ChatResponse
	requests  []ai.ChatRequest
	err       error
}

func (s *scripted) Chat(_ context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &ai.ChatResponse{ToolCalls: []ai.ToolCall{{Name: tools.NameSchema}}}, nil
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func newAdapter(t *testing.T) *tools.Adapter {
	t.Helper()
	dir := t.TempDir()
	csv := "ID_QUESTIONARIO,ID_PERGUNTA,RESPOSTA,COD_CURSO\n" +
		"1,P1,Concordo,C1\n2,P1,Concordo,C1\n3,P1,Discordo,C1\n4,P1,Desconheço,C2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "FATO_AVCURSOS.csv"), []byte(csv), 0o644))
	a, err := analysis.New(context.Background(), dir)
	require.NoError(t, err)
	return tools.NewAdapter(tools.Static(a))
}

func TestAsk_RunsToolsThenAnswers(t *testing.T) {
	rt := &scripted{responses: []*ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{
			{ID: "a", Name: tools.NameSatisfaction, Args: map[string]any{"table_name": "FATO_AVCURSOS"}},
			{Name: tools.NameCount, Args: map[string]any{"table_name": "FATO_AVCURSOS", "response_type": "Concordo"}},
		}, Usage: ai.Usage{TotalTokens: 10}},
		{Text: "  A satisfação geral é 66.67%.  ", Usage: ai.Usage{TotalTokens: 5}},
	}}
	ag := New(rt, newAdapter(t), schema.Default(), Options{Model: "m"})
	s := ag.NewSession()

	ans, err := ag.Ask(context.Background(), s, "Qual a satisfação?", "")
	require.NoError(t, err)
	assert.Equal(t, "A satisfação geral é 66.67%.", ans.Text)
	assert.Equal(t, 2, ans.Iterations)
	assert.Equal(t, 15, ans.Usage.TotalTokens)
	require.Len(t, ans.Steps, 2)
	assert.Contains(t, ans.Steps[0].Result, "66.67")
	assert.Contains(t, ans.Steps[1].Result, "2")

	require.Len(t, rt.requests, 2)
	first := rt.requests[0]
	assert.Equal(t, "m", first.Model)
	assert.Contains(t, first.System, "FATO_AVCURSOS")
	assert.Len(t, first.Tools, len(tools.Definitions()))

	second := rt.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, ai.RoleAssistant, second[1].Role)
	assert.Equal(t, ai.RoleTool, second[2].Role)
	assert.Equal(t, "a", second[2].ToolCallID)
	assert.NotEmpty(t, second[3].ToolCallID, "missing ids are generated")
	assert.Equal(t, second[1].ToolCalls[1].ID, second[3].ToolCallID)

	transcript := s.Transcript()
	require.Len(t, transcript, 5)
	assert.Equal(t, "Qual a satisfação?", transcript[0].Content)
	assert.Equal(t, ans.Text, transcript[4].Content)
}

func TestAsk_ScreenContextOnlyInCurrentTurn(t *testing.T) {
	rt := &scripted{responses: []*ai.ChatResponse{{Text: "ok"}, {Text: "ok again"}}}
	ag := New(rt, newAdapter(t), schema.Default(), Options{})
	s := ag.NewSession()

	_, err := ag.Ask(context.Background(), s, "o que é isso?", "Índice de didática: 80%")
	require.NoError(t, err)
	sent := rt.requests[0].Messages[0].Content
	assert.True(t, strings.HasPrefix(sent, "\n\n--- Contexto da Tela Atual ---\nÍndice de didática: 80%"))
	assert.True(t, strings.HasSuffix(sent, "o que é isso?"))

	_, err = ag.Ask(context.Background(), s, "e agora?", "")
	require.NoError(t, err)
	msgs := rt.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "o que é isso?", msgs[0].Content)
	assert.Equal(t, "e agora?", msgs[2].Content)
}

func TestAsk_MaxIterations(t *testing.T) {
	rt := &scripted{}
	ag := New(rt, newAdapter(t), schema.Default(), Options{MaxIterations: 3})
	s := ag.NewSession()

	_, err := ag.Ask(context.Background(), s, "loop", "")
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.Len(t, rt.requests, 3)
	assert.Empty(t, s.Transcript(), "failed turns are not kept")
}

func TestAsk_Errors(t *testing.T) {
	boom := errors.New("boom")
	ag := New(&scripted{err: boom}, newAdapter(t), schema.Default(), Options{})
	s := ag.NewSession()

	_, err := ag.Ask(context.Background(), s, "   ", "")
	assert.Error(t, err)

	_, err = ag.Ask(context.Background(), s, "oi", "")
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	paced := New(&scripted{}, newAdapter(t), schema.Default(), Options{RequestsPerMinute: 1})
	_, err = paced.Ask(ctx, paced.NewSession(), "oi", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToolResultsAreTruncated(t *testing.T) {
	rt := &scripted{responses: []*ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{{Name: tools.NameSchema}}},
		{Text: "fim"},
	}}
	ag := New(rt, newAdapter(t), schema.Default(), Options{ToolResultTokens: 10})
	ans, err := ag.Ask(context.Background(), ag.NewSession(), "schema?", "")
	require.NoError(t, err)

	fed := rt.requests[1].Messages[2].Content
	assert.True(t, strings.HasSuffix(fed, truncatedNote))
	assert.Len(t, []rune(strings.TrimSuffix(fed, truncatedNote)), 40)
	assert.Greater(t, len(ans.Steps[0].Result), len(fed), "steps keep the full result")
}

func TestTokenBudget(t *testing.T) {
	assert.Equal(t, 0, CountTokens(""))
	assert.Equal(t, 1, CountTokens("abc"))
	assert.Equal(t, 2, CountTokens("çãoéàüñ!"))
	assert.Equal(t, "abc", TruncateToTokenLimit("abc", 0))
	assert.Equal(t, "abcd", TruncateToTokenLimit("abcd", 1))
	assert.Equal(t, "abcd"+truncatedNote, TruncateToTokenLimit("abcdef", 1))
}

func TestToolSpecs(t *testing.T) {
	specs := ToolSpecs(tools.Definitions())
	require.Len(t, specs, 5)
	for _, s := range specs {
		for _, r := range s.Required {
			assert.Contains(t, s.Params, r, s.Name)
		}
	}
}

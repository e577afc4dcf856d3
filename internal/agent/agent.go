// Package agent runs the tool-calling conversation loop between a chat
// runtime and the survey analysis tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/avalia-cli/internal/ai"
	"github.com/KaramelBytes/avalia-cli/internal/schema"
	"github.com/KaramelBytes/avalia-cli/internal/tools"
)

// DefaultMaxIterations bounds model round trips per question.
const DefaultMaxIterations = 10

// ErrMaxIterations is returned when the model keeps calling tools past the
// iteration limit.
var ErrMaxIterations = errors.New("agent: max iterations reached without a final answer")

// Options tune the loop.
type Options struct {
	Model             string
	MaxTokens         int
	Temperature       float64
	MaxIterations     int
	RequestsPerMinute float64 // <= 0 disables pacing
	ToolResultTokens  int     // <= 0 disables truncation
	Logger            *zap.Logger
}

// Agent answers questions by letting the model call analysis tools.
type Agent struct {
	rt      ai.Runtime
	adapter *tools.Adapter
	system  string
	specs   []ai.ToolSpec
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New wires an agent. reg supplies the schema summary for the system prompt.
func New(rt ai.Runtime, adapter *tools.Adapter, reg *schema.Registry, opts Options) *Agent {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		rt:      rt,
		adapter: adapter,
		system:  SystemPrompt(reg),
		specs:   ToolSpecs(tools.Definitions()),
		opts:    opts,
		limiter: newLimiter(opts.RequestsPerMinute),
		logger:  logger,
	}
}

func newLimiter(perMinute float64) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(math.Max(1, math.Floor(perMinute/60)))
	return rate.NewLimiter(rate.Limit(perMinute/60), burst)
}

// Session is one conversation. Only completed turns are kept in the
// transcript.
type Session struct {
	ID string

	mu       sync.Mutex
	messages []ai.Message
}

// NewSession starts an empty conversation.
func (a *Agent) NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// Transcript returns a copy of the stored messages.
func (s *Session) Transcript() []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.Message(nil), s.messages...)
}

// Reset forgets the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

// Step is one tool execution inside a turn.
type Step struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result string         `json:"result"`
}

// Answer is the outcome of Ask.
type Answer struct {
	SessionID  string   `json:"session_id"`
	Text       string   `json:"text"`
	Steps      []Step   `json:"steps,omitempty"`
	Iterations int      `json:"iterations"`
	Usage      ai.Usage `json:"usage"`
}

// Ask sends question, optionally preceded by a screen context block, and
// runs tool calls until the model answers in text. The session transcript
// is only updated on success.
func (a *Agent) Ask(ctx context.Context, s *Session, question, screen string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("agent: empty question")
	}
	ctx = tools.WithSession(ctx, s.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append([]ai.Message(nil), s.messages...)
	turn := []ai.Message{{Role: ai.RoleUser, Content: withScreenContext(question, screen)}}
	ans := &Answer{SessionID: s.ID}

	for ans.Iterations < a.opts.MaxIterations {
		ans.Iterations++
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("agent: rate limit wait: %w", err)
		}
		start := time.Now()
		resp, err := a.rt.Chat(ctx, ai.ChatRequest{
			Model:       a.opts.Model,
			System:      a.system,
			Messages:    append(append([]ai.Message(nil), history...), turn...),
			Tools:       a.specs,
			MaxTokens:   a.opts.MaxTokens,
			Temperature: a.opts.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("agent: chat: %w", err)
		}
		addUsage(&ans.Usage, resp.Usage)
		a.logger.Debug("model turn",
			zap.String("session", s.ID),
			zap.Int("iteration", ans.Iterations),
			zap.Int("tool_calls", len(resp.ToolCalls)),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", resp.RequestID))

		if len(resp.ToolCalls) == 0 {
			ans.Text = strings.TrimSpace(resp.Text)
			turn[0].Content = question
			turn = append(turn, ai.Message{Role: ai.RoleAssistant, Content: ans.Text})
			s.messages = append(history, turn...)
			return ans, nil
		}

		calls := withIDs(resp.ToolCalls)
		turn = append(turn, ai.Message{Role: ai.RoleAssistant, Content: resp.Text, ToolCalls: calls})
		results, err := a.runTools(ctx, calls)
		if err != nil {
			return nil, err
		}
		for i, c := range calls {
			ans.Steps = append(ans.Steps, Step{Tool: c.Name, Args: c.Args, Result: results[i]})
			turn = append(turn, ai.Message{
				Role:       ai.RoleTool,
				Content:    TruncateToTokenLimit(results[i], a.opts.ToolResultTokens),
				ToolCallID: c.ID,
				Name:       c.Name,
			})
		}
	}
	a.logger.Warn("max iterations reached", zap.String("session", s.ID), zap.Int("max", a.opts.MaxIterations))
	return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, a.opts.MaxIterations)
}

// runTools executes the calls of one model turn concurrently. Results keep
// call order.
func (a *Agent) runTools(ctx context.Context, calls []ai.ToolCall) ([]string, error) {
	results := make([]string, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		g.Go(func() error {
			results[i] = a.adapter.RunRaw(gctx, c.Name, c.Args)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	return results, nil
}

func withIDs(calls []ai.ToolCall) []ai.ToolCall {
	out := make([]ai.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		if c.Args == nil {
			c.Args = map[string]any{}
		}
		out[i] = c
	}
	return out
}

func addUsage(total *ai.Usage, u ai.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

// ToolSpecs converts tool definitions into runtime tool specs.
func ToolSpecs(defs []tools.Definition) []ai.ToolSpec {
	out := make([]ai.ToolSpec, 0, len(defs))
	for _, d := range defs {
		params := make(map[string]ai.Param, len(d.Schema.Properties))
		for name, p := range d.Schema.Properties {
			params[name] = ai.Param{Type: p.Type, Description: p.Description, Enum: p.Enum}
		}
		out = append(out, ai.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Required:    append([]string(nil), d.Schema.Required...),
			Params:      params,
		})
	}
	return out
}

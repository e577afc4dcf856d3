// Package app owns the long-lived pieces shared by commands and the server:
// schema registry, the current analyzer snapshot, the tool adapter and the
// optional history store.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/avalia-cli/internal/agent"
	"github.com/KaramelBytes/avalia-cli/internal/ai"
	"github.com/KaramelBytes/avalia-cli/internal/analysis"
	cfgpkg "github.com/KaramelBytes/avalia-cli/internal/config"
	"github.com/KaramelBytes/avalia-cli/internal/history"
	"github.com/KaramelBytes/avalia-cli/internal/schema"
	"github.com/KaramelBytes/avalia-cli/internal/tools"
)

// ErrNoAPIKey is returned by NewAgent when no key is configured.
var ErrNoAPIKey = errors.New("no API key configured (set api_key, GOOGLE_API_KEY or OPENROUTER_API_KEY)")

// App is the application context. It is safe for concurrent use.
type App struct {
	cfg      *cfgpkg.Global
	logger   *zap.Logger
	registry *schema.Registry
	current  atomic.Pointer[analysis.Analyzer]
	adapter  *tools.Adapter
	history  *history.Store

	reloadMu sync.Mutex

	watchMu sync.Mutex
	watch   *watcher
}

// New loads the registry and the data directory and opens the history store
// when configured.
func New(ctx context.Context, cfg *cfgpkg.Global, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := schema.Default()
	if cfg.SchemaFile != "" {
		r, err := schema.LoadFile(cfg.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("load schema file: %w", err)
		}
		reg = r
	}
	a := &App{cfg: cfg, logger: logger, registry: reg}

	an, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	a.current.Store(an)

	opts := []tools.AdapterOption{tools.WithLogger(logger.Named("tools"))}
	if cfg.HistoryDB != "" {
		st, err := history.Open(ctx, cfg.HistoryDB, logger.Named("history"))
		if err != nil {
			return nil, err
		}
		a.history = st
		opts = append(opts, tools.WithRecorder(st))
	}
	a.adapter = tools.NewAdapter(a, opts...)
	return a, nil
}

func (a *App) load(ctx context.Context) (*analysis.Analyzer, error) {
	start := time.Now()
	an, err := analysis.New(ctx, a.cfg.DataDir,
		analysis.WithRegistry(a.registry),
		analysis.WithLogger(a.logger.Named("analysis")))
	if err != nil {
		return nil, fmt.Errorf("load data dir %s: %w", a.cfg.DataDir, err)
	}
	a.logger.Info("data loaded",
		zap.String("dir", a.cfg.DataDir),
		zap.Strings("tables", an.AvailableTables()),
		zap.Int("failed", len(an.LoadErrors())),
		zap.Duration("elapsed", time.Since(start)))
	return an, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() *cfgpkg.Global { return a.cfg }

// Logger returns the app logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry returns the schema registry.
func (a *App) Registry() *schema.Registry { return a.registry }

// Analyzer returns the current snapshot. Callers keep using the snapshot they
// got even if a reload happens meanwhile.
func (a *App) Analyzer() *analysis.Analyzer { return a.current.Load() }

// Adapter returns the tool adapter bound to the current snapshot.
func (a *App) Adapter() *tools.Adapter { return a.adapter }

// History returns the store, or nil when history is disabled.
func (a *App) History() *history.Store { return a.history }

// Reload reads the data directory again and swaps the snapshot. On error the
// previous snapshot stays.
func (a *App) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	an, err := a.load(ctx)
	if err != nil {
		return err
	}
	a.current.Store(an)
	return nil
}

// NewAgent builds an agent over the configured runtime.
func (a *App) NewAgent() (*agent.Agent, error) {
	key := a.cfg.ResolvedAPIKey()
	if key == "" {
		return nil, ErrNoAPIKey
	}
	rt, ok := ai.GetRuntime(a.cfg.Provider, ai.RuntimeConfig{
		APIKey:      key,
		BaseURL:     a.cfg.BaseURL,
		HTTPTimeout: a.cfg.HTTPTimeout(),
		RetryMax:    a.cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(a.cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(a.cfg.RetryMaxDelayMs) * time.Millisecond,
	})
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", a.cfg.Provider, ai.Providers())
	}
	return a.NewAgentWithRuntime(rt), nil
}

// NewAgentWithRuntime builds an agent over rt using the configured options.
func (a *App) NewAgentWithRuntime(rt ai.Runtime) *agent.Agent {
	return agent.New(rt, a.adapter, a.registry, agent.Options{
		Model:             a.cfg.ResolvedModel(),
		MaxTokens:         a.cfg.MaxTokens,
		Temperature:       a.cfg.Temperature,
		MaxIterations:     a.cfg.MaxIterations,
		RequestsPerMinute: a.cfg.RequestsPerMinute,
		ToolResultTokens:  a.cfg.ToolResultTokens,
		Logger:            a.logger.Named("agent"),
	})
}

// Close stops the watcher and closes the history store.
func (a *App) Close() error {
	a.StopWatch()
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

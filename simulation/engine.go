// Package simulation runs the turn loop: pick an agent, ask the model for one
// action, apply it to the feed, wait, repeat.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NethermindEth/chaosfeed/ai"
	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/export"
	"github.com/NethermindEth/chaosfeed/parser"
)

var (
	ErrNoAgents       = errors.New("at least one agent is required")
	ErrAlreadyRunning = errors.New("simulation is already running")
)

// DefaultTurnDelay is the pause between turns, also after failed turns.
const DefaultTurnDelay = 5 * time.Second

// SelectionMode decides how the acting agent is picked.
type SelectionMode string

const (
	SelectRandom SelectionMode = "random"
	SelectModel  SelectionMode = "model"
)

// TemplateLoader provides the prompt templates for a turn.
type TemplateLoader interface {
	Load() (ai.Templates, error)
}

type staticTemplates ai.Templates

func (t staticTemplates) Load() (ai.Templates, error) { return ai.Templates(t), nil }

// Config tunes the loop.
type Config struct {
	TurnDelay time.Duration
	Selection SelectionMode
	Templates TemplateLoader
	Sink      export.Sink
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRand fixes the random source, for reproducible runs.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithSleep replaces the delay function between turns.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithIDs replaces the notification id generator.
func WithIDs(next func() string) Option {
	return func(e *Engine) { e.newID = next }
}

// Engine owns the turn loop. At most one loop goroutine exists at a time.
type Engine struct {
	store    *core.Store
	backend  ai.Backend
	selector *ai.Selector
	cfg      Config
	logger   *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration)
	newID func() string

	mu             sync.Mutex
	active         bool
	loopCtx        context.Context
	done           chan struct{}
	configReported bool
}

func NewEngine(store *core.Store, backend ai.Backend, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if cfg.TurnDelay < 0 {
		cfg.TurnDelay = 0
	}
	if cfg.Selection == "" {
		cfg.Selection = SelectRandom
	}
	if cfg.Templates == nil {
		cfg.Templates = staticTemplates(ai.DefaultTemplates())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		store:    store,
		backend:  backend,
		selector: ai.NewSelector(backend),
		cfg:      cfg,
		logger:   logger.Named("simulation"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Start moves the loop to Running. It requires a topic and at least one agent;
// a rejected start leaves the state untouched. ctx bounds the loop goroutine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	// a loop whose context is gone cannot resume; let it exit first
	for e.active && e.loopCtx.Err() != nil {
		done := e.done
		e.mu.Unlock()
		<-done
		e.mu.Lock()
	}
	defer e.mu.Unlock()

	snap := e.store.Snapshot()
	switch {
	case snap.Running:
		return ErrAlreadyRunning
	case strings.TrimSpace(snap.Topic) == "":
		return core.ErrEmptyTopic
	case len(snap.Agents) == 0:
		return ErrNoAgents
	}

	if err := e.store.Dispatch(core.SetRunning{Running: true, At: e.store.Now()}); err != nil {
		return err
	}
	e.logger.Info("simulation started", zap.String("topic", snap.Topic), zap.Int("agents", len(snap.Agents)))

	// a live loop still finishing its last turn picks the new run up by itself
	if !e.active {
		e.active = true
		e.loopCtx = ctx
		e.done = make(chan struct{})
		go e.run(ctx, e.done)
	}
	return nil
}

// Stop moves the loop to Idle. An in-flight turn completes first.
func (e *Engine) Stop() error {
	if !e.store.Snapshot().Running {
		return nil
	}
	e.logger.Info("simulation stopping")
	return e.store.Dispatch(core.SetRunning{Running: false, At: e.store.Now()})
}

// Running reports whether the loop is in the Running state.
func (e *Engine) Running() bool {
	return e.store.Snapshot().Running
}

// Wait blocks until the loop goroutine has exited.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for e.shouldContinue(ctx) {
		err := e.Step(ctx)
		if !e.store.Snapshot().Running || ctx.Err() != nil {
			continue
		}
		if err != nil {
			e.store.Log(core.LevelInfo, "💤", fmt.Sprintf("Sleeping for %s after error...", e.cfg.TurnDelay))
		} else {
			e.store.Log(core.LevelInfo, "💤", fmt.Sprintf("Sleeping for %s...", e.cfg.TurnDelay))
		}
		e.sleep(ctx, e.cfg.TurnDelay)
	}
}

// shouldContinue is the cooperative stop check made before every turn.
func (e *Engine) shouldContinue(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ctx.Err() != nil {
		if e.store.Snapshot().Running {
			_ = e.store.Dispatch(core.SetRunning{Running: false, At: e.store.Now()})
		}
		e.active = false
		return false
	}
	if !e.store.Snapshot().Running {
		e.active = false
		return false
	}
	return true
}

// Step performs one turn. On an empty feed the turn is the opening post, which
// is not recorded as an iteration. Only backend failures are returned; parse
// problems are logged and recorded as the turn's outcome.
func (e *Engine) Step(ctx context.Context) error {
	snap := e.store.Snapshot()
	if len(snap.Agents) == 0 {
		e.store.Log(core.LevelWarn, "⚠️", "No agents left, stopping")
		_ = e.store.Dispatch(core.SetRunning{Running: false, At: e.store.Now()})
		return ErrNoAgents
	}

	if snap.Feed.Len() == 0 {
		author := snap.Agents[e.intn(len(snap.Agents))]
		return e.store.Dispatch(core.OpeningPost{
			Author:  author.Name,
			Content: fmt.Sprintf("Starting the discussion about \"%s\"...", snap.Topic),
			At:      e.store.Now(),
		})
	}

	rec := core.IterationRecord{Timestamp: e.store.Now()}
	feed := snap.FeedText()

	tmpl, err := e.cfg.Templates.Load()
	if err != nil {
		e.logger.Warn("template load failed, using built-in templates", zap.Error(err))
		tmpl = ai.DefaultTemplates()
	}

	winner := e.choose(ctx, snap, tmpl, feed, &rec.Selector)
	rec.Selector.SelectedAgent = winner.Name
	e.store.Log(core.LevelInfo, "✨", fmt.Sprintf("Winner: %s selected (%s)", winner.Name, rec.Selector.Method))
	e.store.Log(core.LevelInfo, "✍️", fmt.Sprintf("%s is thinking...", winner.Name))

	prompt := tmpl.RenderAction(winner, snap.Topic, feed)
	rec.Action = core.ActionExchange{Prompt: prompt, Agent: winner.Name}

	resp, err := e.backend.Complete(ctx, prompt, true)
	if err != nil {
		rec.Outcome = core.OutcomeBackendError
		rec.Error = err.Error()
		e.reportBackendError(err)
		e.record(ctx, rec)
		return err
	}
	e.configReported = false
	rec.Action.Response = resp

	res := parser.Parse(resp)
	switch res.Status {
	case parser.Parsed:
		err := e.store.Dispatch(core.ApplyAction{
			Agent:          winner.Name,
			Action:         res.Action,
			NotificationID: e.newID(),
			At:             e.store.Now(),
		})
		if err != nil {
			rec.Outcome = core.OutcomeInvalid
			rec.Error = err.Error()
			e.store.Log(core.LevelWarn, "⚠️", fmt.Sprintf("Could not apply %s from %s: %v", res.Action.Kind, winner.Name, err))
			break
		}
		rec.Outcome = core.OutcomeApplied
		e.logger.Debug("action applied",
			zap.String("agent", winner.Name),
			zap.String("action", res.Action.String()),
			zap.String("stage", string(res.Stage)))

	case parser.Invalid:
		rec.Outcome = core.OutcomeInvalid
		rec.Error = res.Reason
		e.store.Log(core.LevelWarn, "⚠️", fmt.Sprintf("Invalid action from %s: %s", winner.Name, res.Reason))
		e.logger.Warn("invalid action", zap.String("agent", winner.Name), zap.String("reason", res.Reason), zap.String("raw", res.Raw))

	default:
		rec.Outcome = core.OutcomeUnparseable
		rec.Error = res.Reason
		e.store.Log(core.LevelError, "❌", fmt.Sprintf("Failed to parse response from %s: %s", winner.Name, core.Truncate(res.Raw, 80)))
		e.logger.Warn("unparseable response", zap.String("agent", winner.Name), zap.String("reason", res.Reason), zap.String("raw", res.Raw))
	}

	if rec.Outcome != core.OutcomeApplied {
		_ = e.store.Dispatch(core.SetLastActor{Name: winner.Name})
	}
	e.record(ctx, rec)
	return nil
}

// choose picks the acting agent and fills the selector half of the record.
func (e *Engine) choose(ctx context.Context, snap core.State, tmpl ai.Templates, feed string, sel *core.SelectorExchange) core.Agent {
	eligible := Eligible(snap.Agents, snap.LastActor)
	sel.Method = core.SelectRandom

	if e.cfg.Selection == SelectModel {
		choice, err := e.selector.Choose(ctx, tmpl, eligible, snap.Topic, feed)
		sel.Prompt, sel.Response = choice.Prompt, choice.Response
		if err == nil {
			sel.Method = core.SelectModel
			return choice.Agent
		}
		if errors.Is(err, ai.ErrMissingCredential) {
			e.reportBackendError(err)
		} else {
			e.store.Log(core.LevelWarn, "🎲", fmt.Sprintf("Model selection failed, picking at random: %v", err))
		}
		e.logger.Debug("model selection failed", zap.Error(err))
	}
	return eligible[e.intn(len(eligible))]
}

// reportBackendError surfaces a configuration error in the monitor once; other
// backend errors are logged every time.
func (e *Engine) reportBackendError(err error) {
	if errors.Is(err, ai.ErrMissingCredential) {
		if e.configReported {
			e.logger.Debug("backend not configured", zap.Error(err))
			return
		}
		e.configReported = true
	}
	e.store.Log(core.LevelError, "❌", fmt.Sprintf("Error: %v", err))
	e.logger.Error("backend call failed", zap.Error(err))
}

func (e *Engine) record(ctx context.Context, rec core.IterationRecord) {
	if err := e.store.Dispatch(core.RecordIteration{Record: rec}); err != nil {
		e.logger.Error("record iteration", zap.Error(err))
		return
	}
	if e.cfg.Sink == nil {
		return
	}
	records := e.store.Snapshot().Iterations
	if err := e.cfg.Sink.Export(ctx, records); err != nil {
		e.logger.Debug("export failed", zap.Error(err))
	}
}

func (e *Engine) intn(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}

// Eligible returns the agents allowed to act after last. When excluding last
// leaves nobody, everyone is eligible.
func Eligible(agents []core.Agent, last string) []core.Agent {
	if last == "" {
		return agents
	}
	out := make([]core.Agent, 0, len(agents))
	for _, a := range agents {
		if a.Name != last {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return agents
	}
	return out
}

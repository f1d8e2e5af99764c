package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NethermindEth/chaosfeed/ai"
	"github.com/NethermindEth/chaosfeed/config"
	"github.com/NethermindEth/chaosfeed/core"
	"github.com/NethermindEth/chaosfeed/export"
	"github.com/NethermindEth/chaosfeed/profiles"
	"github.com/NethermindEth/chaosfeed/simulation"
	"github.com/NethermindEth/chaosfeed/storage"
)

// ConfigPath is bound to the root --config flag.
var ConfigPath string

var (
	flagTopic     string
	flagTurnDelay string
	flagSelection string
	flagLogLevel  string
)

// addSimulationFlags registers the settings that commonly change per run.
func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagTopic, "topic", "", "Discussion topic")
	cmd.Flags().StringVar(&flagTurnDelay, "turn-delay", "", "Pause between turns, e.g. 5s")
	cmd.Flags().StringVar(&flagSelection, "selection", "", "Agent selection: random or model")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("topic") {
		cfg.Topic = flagTopic
	}
	if flags.Changed("turn-delay") {
		cfg.Simulation.TurnDelay = flagTurnDelay
	}
	if flags.Changed("selection") {
		cfg.Simulation.Selection = flagSelection
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func storageConfig(cfg *config.Config) storage.BadgerDBConfig {
	if cfg.Storage.InMemory {
		return storage.InMemoryConfig()
	}
	return storage.DefaultConfig(cfg.Storage.DataDir)
}

// app is the wiring shared by serve and tui.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *core.Store
	backend *ai.OpenAIBackend
	engine  *simulation.Engine
	db      *storage.DBStorage
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  core.NewStore(core.NewState(cfg.Topic)),
	}

	if cfg.Profiles.Autoload {
		a.loadProfiles()
	}

	timeout, err := cfg.LLMTimeout()
	if err != nil {
		return nil, err
	}
	a.backend = ai.NewOpenAIBackend(ai.LLMConfig{
		APIKey:              cfg.LLM.APIKey,
		Model:               cfg.LLM.Model,
		BaseURL:             cfg.LLM.BaseURL,
		MaxCompletionTokens: cfg.LLM.MaxCompletionTokens,
		Timeout:             timeout,
	}, logger)
	if !ai.HasCredential(cfg.LLM.APIKey) {
		logger.Warn("OPENAI_API_KEY is not set, turns will fail until it is")
	}

	var sinks export.Multi
	if cfg.Export.FilePath != "" {
		sinks = append(sinks, export.NewFileSink(cfg.Export.FilePath))
	}
	if cfg.Export.Badger {
		a.db, err = storage.Open(storageConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		repo := storage.NewIterationRepository(a.db)
		sinks = append(sinks, export.NewBadgerSink(repo, func() string { return a.store.Snapshot().Topic }))
	}

	delay, err := cfg.TurnDelay()
	if err != nil {
		a.Close()
		return nil, err
	}
	simCfg := simulation.Config{
		TurnDelay: delay,
		Selection: simulation.SelectionMode(cfg.Simulation.Selection),
		Templates: ai.TemplateFiles{
			ActionPath:   cfg.Prompts.ActionPath,
			SelectorPath: cfg.Prompts.SelectorPath,
		},
	}
	if len(sinks) > 0 {
		simCfg.Sink = sinks
	}
	a.engine = simulation.NewEngine(a.store, a.backend, simCfg, logger)

	logger.Info("chaosfeed ready",
		zap.String("model", a.backend.Model()),
		zap.String("topic", cfg.Topic),
		zap.Int("agents", len(a.store.Snapshot().Agents)),
		zap.Duration("turn_delay", delay))
	return a, nil
}

// loadProfiles fills the roster from the profiles file. A malformed file is
// reported and startup continues with an empty roster.
func (a *app) loadProfiles() {
	path := a.cfg.Profiles.Path
	seeds, err := profiles.Load(path)
	if err == nil && len(seeds) > 0 {
		err = a.store.LoadAgents(seeds, path)
	}
	if err != nil {
		a.logger.Warn("could not load profiles", zap.String("path", path), zap.Error(err))
		a.store.Log(core.LevelWarn, "⚠️", fmt.Sprintf("Could not load default agents: %v", err))
	}
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing storage", zap.Error(err))
		}
	}
}

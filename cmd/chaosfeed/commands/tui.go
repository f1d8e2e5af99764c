package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/NethermindEth/chaosfeed/logging"
	"github.com/NethermindEth/chaosfeed/tui"
)

var tuiLogFile string

// TUICmd runs the simulation in the terminal
var TUICmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the feed in the terminal",
	Long:  `Run the simulation with a terminal UI. Process logs go to a file so they do not garble the screen.`,
	RunE:  runTUI,
}

func init() {
	addSimulationFlags(TUICmd)
	TUICmd.Flags().StringVar(&tuiLogFile, "log-file", "chaosfeed.log", "Where process logs are written")
}

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, "json", tuiLogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	events, unsubscribe := a.store.Subscribe(subscriberBuffer)
	defer unsubscribe()

	m := tui.NewModel(ctx, a.store, a.engine, events, cfg.Profiles.Path)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}

	_ = a.engine.Stop()
	cancel()
	a.engine.Wait()
	return nil
}

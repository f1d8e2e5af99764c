package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NethermindEth/chaosfeed/cmd/chaosfeed/commands"
	"github.com/NethermindEth/chaosfeed/config"
)

var rootCmd = &cobra.Command{
	Use:   "chaosfeed",
	Short: "AI social feed simulator",
	Long: `chaosfeed runs a forum where every participant is a language-model persona.
Each turn one agent posts, replies or likes; the feed, activity and system
monitor are shown in the browser (serve) or the terminal (tui).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", config.DefaultPath, "Path to the YAML config file")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.TUICmd)
	rootCmd.AddCommand(commands.ProfilesCmd)
	rootCmd.AddCommand(commands.ExportCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

var configForce bool

// ConfigCmd manages the YAML config file
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	Long: `Write the configuration in effect (defaults, the existing file and environment
overrides) to --config. The API key is never written; keep it in OPENAI_API_KEY or .env.`,
	RunE: runConfigInit,
}

func init() {
	ConfigCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	_, err := os.Stat(ConfigPath)
	switch {
	case err == nil && !configForce:
		fmt.Fprintf(out, "%s already exists, skipping (use --force to overwrite)\n", ConfigPath)
		return nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.LLM.APIKey = ""
	if err := cfg.Save(ConfigPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", ConfigPath)
	return nil
}

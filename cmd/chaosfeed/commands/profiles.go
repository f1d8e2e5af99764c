package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/NethermindEth/chaosfeed/ai"
	"github.com/NethermindEth/chaosfeed/profiles"
)

var profilesForce bool

// ProfilesCmd manages the default agents and the prompt templates
var ProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage default agent profiles",
	Long:  `Write and inspect the default-agents list loaded at startup.`,
}

var profilesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write starter profiles and prompt templates",
	Long:  `Write the built-in personas to the profiles file and the built-in prompts to the template files. Existing files are kept unless --force is given for profiles.`,
	RunE:  runProfilesInit,
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the agents that would be loaded",
	RunE:  runProfilesList,
}

func init() {
	ProfilesCmd.AddCommand(profilesInitCmd)
	ProfilesCmd.AddCommand(profilesListCmd)

	profilesInitCmd.Flags().BoolVar(&profilesForce, "force", false, "Overwrite an existing profiles file")
}

func runProfilesInit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	path := cfg.Profiles.Path
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil && !profilesForce:
		fmt.Fprintf(out, "%s already exists, skipping (use --force to overwrite)\n", path)
	case statErr == nil, errors.Is(statErr, fs.ErrNotExist):
		if err := profiles.Write(path, profiles.Defaults()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d profiles to %s\n", len(profiles.Defaults()), path)
	default:
		return statErr
	}

	written, err := ai.TemplateFiles{
		ActionPath:   cfg.Prompts.ActionPath,
		SelectorPath: cfg.Prompts.SelectorPath,
	}.WriteDefaults()
	for _, p := range written {
		fmt.Fprintf(out, "Wrote template %s\n", p)
	}
	return err
}

func runProfilesList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	seeds, source, err := profiles.LoadOrDefaults(cfg.Profiles.Path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d agents from %s\n\n", len(seeds), source)
	for _, s := range seeds {
		fmt.Fprintf(out, "%s\n  %s\n", s.Name, s.Bio)
	}
	return nil
}

package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/assettile/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default assettile configuration.

By default the file is created at $ASSETTILE_HOME/config.yaml, falling back
to ~/.assettile/config.yaml. Use --config to choose another path.

Examples:
  # Initialize with default location
  assettile init

  # Initialize with custom path
  assettile init --config ./assettile.yaml

  # Overwrite an existing file
  assettile init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		if !initForce {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	fmt.Fprintln(out, "  2. Generate tiles with: assettile generate <dir>")
	return nil
}

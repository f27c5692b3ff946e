package cli

import (
	"errors"
	"fmt"

	"github.com/mvp-joe/watchdog/internal/config"
	"github.com/spf13/cobra"
)

var publishForce bool

var publishCmd = &cobra.Command{
	Use:   "publish [path]",
	Short: "Write the default configuration file",
	Long: `Write a commented default configuration to path (default watchdog.yaml).

An existing file is left untouched unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().BoolVarP(&publishForce, "force", "f", false, "overwrite an existing file")
}

func runPublish(cmd *cobra.Command, args []string) error {
	path := "watchdog.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if err := config.Publish(path, publishForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return fmt.Errorf("failed to publish config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Published config to %s\n", path)
	return nil
}

// Package cli holds the kubeluma command tree.
package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kubilitics/kubeluma/internal/config"
	"github.com/kubilitics/kubeluma/internal/service"
)

// ExitCodeUsage is returned for configuration and pattern errors.
const ExitCodeUsage = 2

// NewRootCommand builds the kubeluma command with its serve subcommand.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kubeluma",
		Short:         "Live Kubernetes pod viewer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand(viper.New()))
	return cmd
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, service.ErrInvalidPattern):
		return ExitCodeUsage
	default:
		return 1
	}
}

package gateway

import (
	"github.com/spf13/cobra"
)

func NewGatewayCommand() *cobra.Command {
	var debug bool
	var configPath string

	cmd := &cobra.Command{
		Use:     "gateway",
		Aliases: []string{"g"},
		Short:   "Start the bridge gateway",
		Args:    cobra.NoArgs,
		Example: `  picobridge gateway
  picobridge gateway --debug --config ~/.picobridge/config.yaml`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return gatewayCmd(configPath, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (default: ~/.picobridge/config.yaml or config.json)")

	return cmd
}

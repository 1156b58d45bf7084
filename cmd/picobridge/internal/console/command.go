package console

import (
	"github.com/spf13/cobra"
)

func NewConsoleCommand() *cobra.Command {
	var debug bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the gateway with an interactive operator console",
		Long: `Starts the gateway and reads "<uid> <text>" lines. Each line is sent
through the bridge as a notice from the given chat.`,
		Args: cobra.NoArgs,
		Example: `  picobridge console
  picobridge console --config ./config.yaml
  > irc/#test maintenance starts in 5 minutes`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return consoleCmd(configPath, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path")

	return cmd
}

package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal"
	"github.com/tinyland-inc/picobridge/pkg/migrate"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate configuration between formats",
		Example: `  picobridge migrate to-yaml
  picobridge migrate to-yaml --dry-run --redact
  picobridge migrate to-json --config ~/.picobridge/config.yaml --output ./config.json --force`,
	}

	cmd.AddCommand(
		newConvertCommand(migrate.FormatYAML),
		newConvertCommand(migrate.FormatJSON),
	)

	return cmd
}

func newConvertCommand(format string) *cobra.Command {
	var opts migrate.Options
	opts.Format = format

	cmd := &cobra.Command{
		Use:   "to-" + format,
		Short: fmt.Sprintf("Convert the config file to %s", format),
		Args:  cobra.NoArgs,
		Example: fmt.Sprintf(`  picobridge migrate to-%[1]s
  picobridge migrate to-%[1]s --dry-run
  picobridge migrate to-%[1]s --config ./config.json --output ./bridge.%[1]s --force`, format),
		RunE: func(_ *cobra.Command, _ []string) error {
			opts.ConfigPath = internal.GetConfigPath(opts.ConfigPath)
			result, err := migrate.Run(opts)
			if err != nil {
				return err
			}
			if !opts.DryRun {
				fmt.Printf("%s config written to %s\n", format, result.OutputPath)
			}
			if len(result.Warnings) > 0 {
				fmt.Println("\nWarnings:")
				for _, w := range result.Warnings {
					fmt.Printf("  - %s\n", w)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "",
		"Source config file path (default: ~/.picobridge/config.yaml or config.json)")
	cmd.Flags().StringVar(&opts.OutputPath, "output", "",
		"Output file path (default: same dir as input, new extension)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Print the converted config without writing")
	cmd.Flags().BoolVar(&opts.Force, "force", false,
		"Overwrite an existing output file")
	cmd.Flags().BoolVar(&opts.Redact, "redact", false,
		"Leave credentials out of the output; supply them via environment variables")

	return cmd
}

// picobridge - IRC, Telegram and Discord chat relay
// License: MIT
//
// Copyright (c) 2026 picobridge contributors

// picobridge relays chat between IRC channels, Telegram groups and
// Discord channels.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal"
	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal/console"
	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal/gateway"
	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal/migrate"
	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal/routes"
	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal/version"
)

func NewPicobridgeCommand() *cobra.Command {
	short := fmt.Sprintf("%s picobridge - IRC / Telegram / Discord relay v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "picobridge",
		Short:   short,
		Example: "picobridge gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		console.NewConsoleCommand(),
		routes.NewRoutesCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewPicobridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

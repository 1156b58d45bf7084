package routes

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal"
	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/channels"
	"github.com/tinyland-inc/picobridge/pkg/config"
)

func NewRoutesCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the resolved routing table",
		Args:  cobra.NoArgs,
		Example: `  picobridge routes
  picobridge routes --config ./config.yaml`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(configPath)
			if err != nil {
				return err
			}
			Print(os.Stdout, NewRouter(cfg))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path")

	return cmd
}

// offline stands in for a platform handler so UIDs resolve without
// connecting anywhere.
type offline struct {
	*channels.BaseHandler
}

func (offline) Say(context.Context, string, string, ...bridge.SayOption) error { return nil }
func (offline) Reply(context.Context, *bridge.Context, string, ...bridge.SayOption) error {
	return nil
}

// NewRouter builds a router from cfg with every known platform registered,
// enabled or not.
func NewRouter(cfg *config.Config) *bridge.Router {
	return bridge.NewRouterFromConfig(cfg,
		offline{channels.NewBaseHandler(channels.TypeIRC, channels.IDIRC)},
		offline{channels.NewBaseHandler(channels.TypeTelegram, channels.IDTelegram)},
		offline{channels.NewBaseHandler(channels.TypeDiscord, channels.IDDiscord)},
	)
}

// Print writes "a ---> b" for enabled routes, "a -X-> b" for disabled ones,
// then the aliases.
func Print(w io.Writer, r *bridge.Router) {
	edges := r.Edges()
	if len(edges) == 0 {
		fmt.Fprintln(w, "No routes configured")
	}
	for _, e := range edges {
		arrow := "--->"
		if e.Disabled {
			arrow = "-X->"
		}
		fmt.Fprintf(w, "%s %s %s\n", e.From, arrow, e.To)
	}

	aliases := r.Aliases()
	if len(aliases) == 0 {
		return
	}
	uids := make([]string, 0, len(aliases))
	for uid := range aliases {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	fmt.Fprintln(w, "\nAliases:")
	for _, uid := range uids {
		a := aliases[uid]
		fmt.Fprintf(w, "  %s: %s (%s)\n", uid, a.Short, a.Full)
	}
}

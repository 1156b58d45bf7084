package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinyland-inc/picobridge/cmd/picobridge/internal"
	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/bus"
	"github.com/tinyland-inc/picobridge/pkg/channels"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
	"github.com/tinyland-inc/picobridge/pkg/monitor"
	"github.com/tinyland-inc/picobridge/pkg/plugins/filter"
	"github.com/tinyland-inc/picobridge/pkg/plugins/irccommand"
	"github.com/tinyland-inc/picobridge/pkg/plugins/ircquery"
	"github.com/tinyland-inc/picobridge/pkg/plugins/media"
	"github.com/tinyland-inc/picobridge/pkg/plugins/paeeye"
	discordproc "github.com/tinyland-inc/picobridge/pkg/processors/discord"
	ircproc "github.com/tinyland-inc/picobridge/pkg/processors/irc"
	telegramproc "github.com/tinyland-inc/picobridge/pkg/processors/telegram"
	"github.com/tinyland-inc/picobridge/pkg/schedule"
)

const shutdownTimeout = 10 * time.Second

// waiter is a processor whose in-flight sends can be drained.
type waiter interface {
	Wait()
}

// Gateway is a wired, running bridge.
type Gateway struct {
	Router   *bridge.Router
	Manager  *channels.Manager
	Bus      *bus.EventBus
	Monitor  *monitor.Server
	Schedule *schedule.Scheduler

	cancel     context.CancelFunc
	processors []waiter
}

// NewHandlers builds a channel for every enabled platform.
func NewHandlers(cfg *config.Config) ([]channels.Channel, error) {
	var out []channels.Channel
	if cfg.IRC.Enabled {
		h, err := channels.NewIRCHandler(cfg.IRC)
		if err != nil {
			return nil, fmt.Errorf("error creating IRC handler: %w", err)
		}
		out = append(out, h)
	}
	if cfg.Telegram.Enabled {
		h, err := channels.NewTelegramHandler(cfg.Telegram)
		if err != nil {
			return nil, fmt.Errorf("error creating Telegram handler: %w", err)
		}
		out = append(out, h)
	}
	if cfg.Discord.Enabled {
		h, err := channels.NewDiscordHandler(cfg.Discord)
		if err != nil {
			return nil, fmt.Errorf("error creating Discord handler: %w", err)
		}
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no platform enabled")
	}
	return out, nil
}

// Start wires handlers, processors and plugins to one router and connects
// every platform.
func Start(parent context.Context, cfg *config.Config) (*Gateway, error) {
	handlers, err := NewHandlers(cfg)
	if err != nil {
		return nil, err
	}
	return start(parent, cfg, handlers)
}

func start(parent context.Context, cfg *config.Config, handlers []channels.Channel) (*Gateway, error) {
	ctx, cancel := context.WithCancel(parent)
	g := &Gateway{
		Manager: channels.NewManager(),
		Bus:     bus.NewEventBus(),
		cancel:  cancel,
	}

	bh := make([]bridge.Handler, 0, len(handlers))
	components := make([]monitor.Component, 0, len(handlers))
	for _, h := range handlers {
		if err := g.Manager.Register(h); err != nil {
			cancel()
			return nil, err
		}
		bh = append(bh, h)
		components = append(components, h)
	}

	g.Router = bridge.NewRouterFromConfig(cfg, bh...)
	g.Router.AddObserver(g.Bus)

	var irc *channels.IRCHandler
	for _, h := range handlers {
		var p interface {
			bridge.Processor
			waiter
		}
		switch h := h.(type) {
		case *channels.IRCHandler:
			irc = h
			p = ircproc.NewProcessor(ctx, g.Router, h, cfg.Bridge.IRC)
		case *channels.TelegramHandler:
			p = telegramproc.NewProcessor(ctx, g.Router, h, cfg.Bridge.Telegram)
		case *channels.DiscordHandler:
			p = discordproc.NewProcessor(ctx, g.Router, h, discordproc.Options{
				DiscordBridgeOptions: cfg.Bridge.Discord,
				RelayEmoji:           cfg.Discord.RelayEmoji,
				UseProxyURL:          cfg.Discord.UseProxyURL,
			})
		default:
			continue
		}
		g.Router.AddProcessor(h.Type(), p)
		watchCommands(g.Bus, h)
		if err := p.Init(); err != nil {
			cancel()
			return nil, fmt.Errorf("error initializing %s processor: %w", h.Type(), err)
		}
		g.processors = append(g.processors, p)
	}

	if err := registerPlugins(g.Router, cfg, irc); err != nil {
		cancel()
		return nil, err
	}

	g.Schedule = schedule.New(g.Router, cfg.Plugins.Schedules)

	if cfg.Monitor.Enabled {
		g.Monitor = monitor.New(cfg.Monitor, g.Bus, components...)
		if err := g.Monitor.Start(ctx); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := g.Manager.StartAll(ctx); err != nil {
		if !anyRunning(g.Manager) {
			g.Shutdown(context.Background())
			return nil, fmt.Errorf("error starting channels: %w", err)
		}
		logger.WarnCF("gateway", "Some channels failed to start", map[string]any{"error": err.Error()})
	}
	g.Schedule.Start(ctx)

	logger.InfoCF("gateway", "Gateway started", map[string]any{
		"platforms": cfg.EnabledPlatforms(),
		"routes":    len(g.Router.Edges()),
	})
	return g, nil
}

// watchCommands forwards command tokens seen by h to the event bus.
func watchCommands(b *bus.EventBus, h channels.Channel) {
	switch h := h.(type) {
	case *channels.IRCHandler:
		h.Events().Command.Subscribe(b.ObserveCommand)
	case *channels.TelegramHandler:
		h.Events().Command.Subscribe(b.ObserveCommand)
	case *channels.DiscordHandler:
		h.Events().Command.Subscribe(b.ObserveCommand)
	}
}

func anyRunning(m *channels.Manager) bool {
	for _, st := range m.Status() {
		if st.Status == channels.StatusRunning {
			return true
		}
	}
	return false
}

func registerPlugins(r *bridge.Router, cfg *config.Config, irc *channels.IRCHandler) error {
	if err := paeeye.Register(r, cfg.Bridge.Paeeye); err != nil {
		return fmt.Errorf("error loading paeeye: %w", err)
	}
	filter.Register(r, cfg.Plugins.Filter)
	media.Register(r, cfg.Bridge.ServeMedia)

	if irc == nil {
		if cfg.Plugins.IRCQuery.Enabled || cfg.Plugins.IRCCommand.Enabled {
			logger.WarnC("gateway", "IRC plugins enabled without an IRC handler")
		}
		return nil
	}
	if cfg.Plugins.IRCQuery.Enabled {
		ircquery.Register(r, irc, cfg.Plugins.IRCQuery)
	}
	if cfg.Plugins.IRCCommand.Enabled {
		irccommand.Register(r, irc, cfg.Plugins.IRCCommand)
	}
	return nil
}

// Shutdown disconnects every platform and drains in-flight work.
func (g *Gateway) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if g.Monitor != nil {
		if err := g.Monitor.Stop(ctx); err != nil {
			logger.WarnCF("gateway", "Monitor shutdown failed", map[string]any{"error": err.Error()})
		}
	}
	if err := g.Manager.StopAll(ctx); err != nil {
		logger.WarnCF("gateway", "Channel shutdown failed", map[string]any{"error": err.Error()})
	}
	g.cancel()
	for _, p := range g.processors {
		p.Wait()
	}
	if g.Schedule != nil {
		g.Schedule.Wait()
	}
	g.Bus.Close()
	logger.InfoC("gateway", "Gateway stopped")
}

func gatewayCmd(configPath string, debug bool) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := internal.SetupLogging(cfg, debug); err != nil {
		return err
	}
	if debug {
		fmt.Println("🔍 Debug mode enabled")
	}

	g, err := Start(context.Background(), cfg)
	if err != nil {
		return err
	}

	fmt.Printf("%s Gateway running (%v). Press Ctrl+C to stop\n", internal.Logo, cfg.EnabledPlatforms())
	if g.Monitor != nil {
		fmt.Printf("  • Monitor: http://%s:%d/health\n", cfg.Monitor.Host, cfg.Monitor.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	g.Shutdown(context.Background())
	fmt.Println("✓ Gateway stopped")
	return nil
}

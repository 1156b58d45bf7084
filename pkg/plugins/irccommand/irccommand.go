// Package irccommand lets bridge admins send raw lines to the bridged IRC
// channels from the other platforms.
package irccommand

import (
	"context"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

type Sayer interface {
	Say(ctx context.Context, target, text string, opts ...bridge.SayOption) error
}

type Command struct {
	router *bridge.Router
	irc    Sayer
	name   string
	echo   bool
}

// Register adds {prefix}command to every non-IRC client.
func Register(r *bridge.Router, irc Sayer, cfg config.IRCCommandConfig) *Command {
	c := &Command{router: r, irc: irc, name: cfg.Prefix + "command", echo: cfg.Echo}
	r.AddCommandFunc(c.name, c.run, bridge.CommandOptions{
		DisallowedClients: []string{"IRC"},
		Disables:          cfg.Disables,
	})
	return c
}

func (c *Command) run(ctx context.Context, m *bridge.Message) error {
	if m.IsPrivate {
		return nil
	}
	if !c.router.IsAdmin(m.FromUID) {
		return m.Reply(ctx, "Permission Denied.")
	}
	if m.Param == "" {
		return m.Reply(ctx, "用法: /"+c.name+" <命令>")
	}
	if c.echo {
		if err := m.Reply(ctx, m.Param); err != nil {
			return err
		}
	}

	sent := 0
	for _, uid := range m.Extra.MapTo {
		u := c.router.Parser().Parse(uid)
		if !u.Valid() || u.Client != "IRC" {
			continue
		}
		if err := c.irc.Say(ctx, u.ID, m.Param); err != nil {
			logger.WarnCF("irccommand", "Send failed", map[string]any{
				"msg_id":  m.MsgID,
				"channel": u.ID,
				"error":   err.Error(),
			})
			continue
		}
		sent++
		logger.DebugCF("irccommand", "Command sent", map[string]any{
			"msg_id":  m.MsgID,
			"channel": u.ID,
		})
	}
	if sent == 0 {
		logger.DebugCF("irccommand", "No IRC targets", map[string]any{"msg_id": m.MsgID})
	}
	return nil
}

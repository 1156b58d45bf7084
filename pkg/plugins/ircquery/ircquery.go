// Package ircquery answers questions about bridged IRC channels from the
// other platforms.
package ircquery

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/channels"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// ChannelState looks up the tracked state of a joined IRC channel.
type ChannelState interface {
	Channel(name string) (channels.IRCChannel, bool)
}

type Query struct {
	router *bridge.Router
	irc    ChannelState
}

// Register adds {prefix}topic and {prefix}names to every non-IRC client.
func Register(r *bridge.Router, irc ChannelState, cfg config.IRCQueryConfig) *Query {
	q := &Query{router: r, irc: irc}
	opts := bridge.CommandOptions{
		DisallowedClients: []string{"IRC"},
		Disables:          cfg.Disables,
	}
	r.AddCommandFunc(cfg.Prefix+"topic", q.topic, opts)
	r.AddCommandFunc(cfg.Prefix+"names", q.names, opts)
	return q
}

// ircChannels returns the IRC channels m was delivered to.
func (q *Query) ircChannels(m *bridge.Message) []string {
	var out []string
	for _, uid := range m.Extra.MapTo {
		u := q.router.Parser().Parse(uid)
		if u.Valid() && u.Client == "IRC" {
			out = append(out, u.ID)
		}
	}
	return out
}

func (q *Query) topic(ctx context.Context, m *bridge.Message) error {
	for _, name := range q.ircChannels(m) {
		ch, _ := q.irc.Channel(name)
		text := "No topic for " + name
		if ch.Topic != "" {
			text = fmt.Sprintf("Topic for channel %s: %s", name, ch.Topic)
		}
		logger.DebugCF("ircquery", "topic", map[string]any{"msg_id": m.MsgID, "channel": name})
		if err := m.Reply(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

func (q *Query) names(ctx context.Context, m *bridge.Message) error {
	for _, name := range q.ircChannels(m) {
		ch, _ := q.irc.Channel(name)
		text := fmt.Sprintf("Users on %s: %s", name, strings.Join(UserList(ch.Users), ", "))
		logger.DebugCF("ircquery", "names", map[string]any{"msg_id": m.MsgID, "channel": name})
		if err := m.Reply(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

// UserList renders users as "(@)op", "(+)voiced" and bare nicks, operators
// first, then voiced users, each group ordered case-insensitively.
func UserList(users map[string]string) []string {
	out := make([]string, 0, len(users))
	for nick, prefix := range users {
		if prefix != "" {
			nick = "(" + prefix + ")" + nick
		}
		out = append(out, nick)
	}
	rank := func(s string) int {
		switch {
		case strings.HasPrefix(s, "(@)"):
			return 0
		case strings.HasPrefix(s, "(+)"):
			return 1
		}
		return 2
	}
	slices.SortFunc(out, func(a, b string) int {
		if d := rank(a) - rank(b); d != 0 {
			return d
		}
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}

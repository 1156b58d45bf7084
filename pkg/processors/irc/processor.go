// Package irc relays IRC channel traffic into the bridge and renders bridged
// messages for IRC.
package irc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/channels"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/ircfmt"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// Client is the part of the IRC handler the processor uses.
type Client interface {
	bridge.Handler
	Nick() string
	Join(channel string) error
	Events() *channels.IRCEvents
	SetSplitSeparators(prefix, postfix string)
}

type Processor struct {
	ctx    context.Context
	router *bridge.Router
	client Client
	opts   config.IRCBridgeOptions
	now    func() time.Time

	wg sync.WaitGroup

	mu       sync.Mutex
	activity map[string]map[string]time.Time
}

func NewProcessor(ctx context.Context, router *bridge.Router, client Client, opts config.IRCBridgeOptions) *Processor {
	return &Processor{
		ctx:      ctx,
		router:   router,
		client:   client,
		opts:     opts,
		now:      time.Now,
		activity: make(map[string]map[string]time.Time),
	}
}

func (p *Processor) Init() error {
	sep := "->"
	if c := p.opts.Colorize; c.Enabled && c.LineSplit != "" {
		sep = ircfmt.Colorize(c.LineSplit, sep)
	}
	p.client.SetSplitSeparators(sep, sep)

	ev := p.client.Events()
	ev.Ready.Subscribe(func(string) { p.joinRoutes() })
	ev.Text.Subscribe(p.onText)
	ev.Topic.Subscribe(p.onTopic)
	ev.Join.Subscribe(p.onJoin)
	ev.Nick.Subscribe(p.onNick)
	ev.Part.Subscribe(func(e channels.IRCPart) {
		p.leave(e.Nick, []string{e.Channel}, "離開頻道", e.Reason)
	})
	ev.Kick.Subscribe(func(e channels.IRCKick) {
		p.leave(e.Nick, []string{e.Channel}, "被 "+e.By+" 踢出頻道", e.Reason)
	})
	ev.Quit.Subscribe(func(e channels.IRCQuit) {
		p.leave(e.Nick, e.Channels, "離開IRC", e.Reason)
	})
	ev.Kill.Subscribe(func(e channels.IRCQuit) {
		p.leave(e.Nick, e.Channels, "被kill", e.Reason)
	})
	return nil
}

// Wait blocks until every in-flight Send started by the processor returns.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// joinRoutes joins every IRC channel that appears in the routing table.
func (p *Processor) joinRoutes() {
	parser := p.router.Parser()
	for _, src := range p.router.Sources() {
		u := parser.Parse(src)
		if u.Client != p.client.Type() {
			continue
		}
		if err := p.client.Join(u.ID); err != nil {
			logger.WarnCF("irc", "Auto-join failed", map[string]any{
				"channel": u.ID,
				"error":   err.Error(),
			})
		}
	}
}

func (p *Processor) send(c *bridge.Context) {
	p.wg.Go(func() {
		p.router.SendContext(p.ctx, c)
	})
}

func (p *Processor) notice(channel, nick, text string) {
	channel = strings.ToLower(channel)
	p.send(bridge.NewContext(bridge.Context{
		From:    channel,
		To:      channel,
		Nick:    nick,
		Text:    text,
		Extra:   bridge.Extra{IsNotice: true},
		Handler: p.client,
	}))
}

func (p *Processor) onText(c *bridge.Context) {
	if c.IsPrivate {
		return
	}
	p.send(c)

	p.mu.Lock()
	defer p.mu.Unlock()
	chans, ok := p.activity[c.From]
	if !ok {
		chans = make(map[string]time.Time)
		p.activity[c.From] = chans
	}
	chans[strings.ToLower(c.To)] = p.now()
}

func (p *Processor) onTopic(e channels.IRCTopic) {
	if !p.opts.Notify.Topic {
		return
	}
	text := e.Nick + " 將頻道Topic設定為 " + e.Topic
	if e.Topic == "" {
		text = e.Nick + " 取消了頻道的Topic"
	}
	p.notice(e.Channel, e.Nick, text)
}

func (p *Processor) onJoin(e channels.IRCJoin) {
	if !p.opts.Notify.Join || e.Nick == p.client.Nick() {
		return
	}
	p.notice(e.Channel, e.Nick, e.Nick+" 加入頻道")
}

func (p *Processor) onNick(e channels.IRCNick) {
	p.mu.Lock()
	if chans, ok := p.activity[e.OldNick]; ok {
		p.activity[e.NewNick] = chans
		delete(p.activity, e.OldNick)
	}
	spoken := make(map[string]bool)
	for ch := range p.activity[e.NewNick] {
		spoken[ch] = true
	}
	p.mu.Unlock()

	text := e.OldNick + " 更名為 " + e.NewNick
	for _, ch := range e.Channels {
		lc := strings.ToLower(ch)
		switch p.opts.Notify.Rename {
		case config.NotifyAll:
		case config.NotifyOnlyActive:
			if !spoken[lc] {
				continue
			}
		default:
			continue
		}
		p.notice(lc, e.NewNick, text)
	}
}

// active reports whether nick spoke in channel within timeBeforeLeave.
// Callers hold p.mu.
func (p *Processor) active(nick, channel string) bool {
	span := time.Duration(p.opts.Notify.TimeBeforeLeave) * time.Second
	last, ok := p.activity[nick][channel]
	return ok && span > 0 && p.now().Sub(last) <= span
}

func (p *Processor) leave(nick string, chans []string, action, reason string) {
	text := nick + " 已" + action
	if reason != "" {
		text += " (" + reason + ")"
	}

	for _, ch := range chans {
		lc := strings.ToLower(ch)

		p.mu.Lock()
		notify := false
		switch p.opts.Notify.Leave {
		case config.NotifyAll:
			notify = true
		case config.NotifyOnlyActive:
			notify = p.active(nick, lc)
		}
		if seen, ok := p.activity[nick]; ok {
			delete(seen, lc)
			if len(seen) == 0 {
				delete(p.activity, nick)
			}
		}
		p.mu.Unlock()

		if notify {
			p.notice(lc, nick, text)
		}
	}
}

// Receive renders m and says it to the IRC channel m is addressed to.
func (p *Processor) Receive(ctx context.Context, m *bridge.Message) error {
	vars := bridge.TemplateVars(m)
	tmpl := bridge.Template(bridge.StyleFor(p.router.Style(), m), m)
	c := p.opts.Colorize

	var output string
	if m.Extra.IsAction {
		output = bridge.Render(tmpl, vars)
		if c.Enabled && c.Broadcast != "" {
			output = ircfmt.Colorize(c.Broadcast, output)
		}
	} else {
		if c.Enabled {
			p.colorize(vars, m)
		}
		output = bridge.Render(tmpl, vars)
		for _, u := range m.Extra.Uploads {
			output += " " + u.URL
		}
	}
	return p.client.Say(ctx, m.To, output)
}

func (p *Processor) colorize(vars map[string]string, m *bridge.Message) {
	c := p.opts.Colorize
	if c.Client != "" {
		vars["client_short"] = ircfmt.Colorize(c.Client, vars["client_short"])
		vars["client_full"] = ircfmt.Colorize(c.Client, vars["client_full"])
	}
	switch c.Nick {
	case "":
	case "colorful":
		if color := ircfmt.NickColor(vars["nick"], c.NickColors); color != "" {
			vars["nick"] = ircfmt.Colorize(color, vars["nick"])
		}
	default:
		vars["nick"] = ircfmt.Colorize(c.Nick, vars["nick"])
	}
	if m.Extra.Reply != nil {
		if c.ReplyTo != "" {
			vars["reply_nick"] = ircfmt.Colorize(c.ReplyTo, vars["reply_nick"])
		}
		if c.RepliedMessage != "" {
			vars["reply_text"] = ircfmt.Colorize(c.RepliedMessage, vars["reply_text"])
		}
	}
	if m.Extra.Forward != nil && c.FwdFrom != "" {
		vars["forward_nick"] = ircfmt.Colorize(c.FwdFrom, vars["forward_nick"])
	}
}

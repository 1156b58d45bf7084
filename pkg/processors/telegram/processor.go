// Package telegram relays Telegram group and channel traffic into the bridge
// and renders bridged messages as Telegram HTML.
package telegram

import (
	"context"
	stderrors "errors"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/channels"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

var commandRe = regexp.MustCompile(`^/([A-Za-z0-9_@]+)(\s+(.*)|\s*)$`)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Client is the part of the Telegram handler the processor uses.
type Client interface {
	bridge.Handler
	Username() string
	Events() *channels.TelegramEvents
	SendHTML(ctx context.Context, target, text string) (int, error)
	SendFile(ctx context.Context, target, kind, ref string, replyTo int) error
}

type Processor struct {
	ctx         context.Context
	router      *bridge.Router
	client      Client
	opts        config.TelegramBridgeOptions
	forwardBots *bridge.ForwardBots

	wg sync.WaitGroup

	mu     sync.RWMutex
	listen map[int64]bool
}

func NewProcessor(ctx context.Context, router *bridge.Router, client Client, opts config.TelegramBridgeOptions) *Processor {
	return &Processor{
		ctx:         ctx,
		router:      router,
		client:      client,
		opts:        opts,
		forwardBots: bridge.NewForwardBots(opts.ForwardBots),
		listen:      make(map[int64]bool),
	}
}

func (p *Processor) Init() error {
	p.forwardBots.Set(p.client.Username(), bridge.ForwardSelf)

	ev := p.client.Events()
	ev.Ready.Subscribe(func(username string) {
		p.forwardBots.Set(username, bridge.ForwardSelf)
	})
	ev.Text.Subscribe(p.onText)
	ev.RichMessage.Subscribe(p.onRichMessage)
	ev.Pin.Subscribe(p.onPin)
	ev.Join.Subscribe(p.onJoin)
	ev.Leave.Subscribe(p.onLeave)
	if p.opts.ForwardChannels {
		ev.ChannelText.Subscribe(func(m channels.TelegramChannelMessage) { p.send(m.Context) })
		ev.ChannelRichMessage.Subscribe(func(m channels.TelegramChannelMessage) { p.send(m.Context) })
	}
	ev.ChannelPost.Subscribe(p.onChannelPost)

	p.bindChannelTransport()
	return nil
}

// Wait blocks until every in-flight Send started by the processor returns.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// bindChannelTransport applies the per-channel "out", "out,must-review"
// and "in" settings. Channels not present in the routing table are skipped.
func (p *Processor) bindChannelTransport() {
	parser := p.router.Parser()
	sources := make(map[string]bool)
	for _, s := range p.router.Sources() {
		sources[s] = true
	}

	for channel, setting := range p.opts.ChannelTransport {
		u := parser.Parse(channel)
		if !u.Valid() {
			u = parser.Parse(bridge.ComposeUID(p.client.Type(), channel))
		}
		if !u.Valid() || !sources[u.UID] {
			logger.WarnCF("telegram", "Channel transport target is not routed", map[string]any{
				"channel": channel,
			})
			continue
		}

		var out, review bool
		for _, opt := range strings.Split(setting, ",") {
			switch strings.TrimSpace(opt) {
			case "out":
				out = true
			case "must-review":
				review = true
			}
		}
		if !out {
			continue
		}
		if review {
			for _, dst := range p.router.Targets(u.UID) {
				p.router.DisableRoute(dst, u.UID)
			}
		}

		id, err := strconv.ParseInt(u.ID, 10, 64)
		if err != nil {
			logger.WarnCF("telegram", "Channel transport id is not numeric", map[string]any{
				"channel": channel,
			})
			continue
		}
		p.mu.Lock()
		p.listen[id] = true
		p.mu.Unlock()
	}
}

func (p *Processor) listening(chat int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.listen[chat]
}

func (p *Processor) send(c *bridge.Context) {
	p.wg.Go(func() {
		p.router.SendContext(p.ctx, c)
	})
}

func (p *Processor) notice(from int64, chat int64, nick, text string) {
	p.send(bridge.NewContext(bridge.Context{
		From:    strconv.FormatInt(from, 10),
		To:      strconv.FormatInt(chat, 10),
		Nick:    nick,
		Text:    text,
		Extra:   bridge.Extra{IsNotice: true},
		Handler: p.client,
	}))
}

// unwrapReply replaces the quoted nick and text when the reply quotes a
// relay bot. It reports false for any other reply so a forward can still
// be unwrapped.
func (p *Processor) unwrapReply(c *bridge.Context) bool {
	r := c.Extra.Reply
	if r == nil {
		return false
	}
	if _, ok := p.forwardBots.Style(r.Username); !ok {
		return false
	}
	if nick, text, ok := p.forwardBots.Parse(r.Username, r.Message); ok {
		r.Nick, r.Message = nick, text
	}
	return true
}

func (p *Processor) onText(c *bridge.Context) {
	if c.IsPrivate {
		return
	}
	if commandRe.MatchString(c.Text) && !p.opts.ForwardCommands && !p.isBridgeCommand(c) {
		return
	}

	if !p.unwrapReply(c) {
		if f := c.Extra.Forward; f != nil {
			if nick, text, ok := p.forwardBots.Parse(f.Username, c.Text); ok {
				f.Nick, c.Text = nick, text
			}
		}
	}
	p.send(c)
}

// isBridgeCommand reports whether c carries a command some bridge plugin
// registered; those are relayed so the plugin hooks can see them.
func (p *Processor) isBridgeCommand(c *bridge.Context) bool {
	if c.Command == "" {
		return false
	}
	_, ok := p.router.Command(c.Command)
	return ok
}

func (p *Processor) onRichMessage(c *bridge.Context) {
	if c.IsPrivate {
		return
	}
	p.unwrapReply(c)
	p.send(c)
}

func (p *Processor) onPin(e channels.TelegramPin) {
	if !p.opts.Notify.Pin {
		return
	}
	p.notice(e.From.ID, e.Chat, e.From.Nick,
		e.From.Nick+" pinned: "+strings.ReplaceAll(e.Text, "\n", " "))
}

func (p *Processor) onJoin(e channels.TelegramMember) {
	if !p.opts.Notify.Join {
		return
	}
	text := e.Target.Nick + " 加入群組"
	if e.From.ID != e.Target.ID {
		text = e.From.Nick + " 邀請 " + e.Target.Nick + " 加入群組"
	}
	p.notice(e.Target.ID, e.Chat, e.Target.Nick, text)
}

func (p *Processor) onLeave(e channels.TelegramMember) {
	if !p.opts.Notify.Leave {
		return
	}
	text := e.Target.Nick + " 離開群組"
	if e.From.ID != e.Target.ID {
		text = e.Target.Nick + " 被 " + e.From.Nick + " 移出群組"
	}
	p.notice(e.Target.ID, e.Chat, e.Target.Nick, text)
}

func (p *Processor) onChannelPost(e channels.TelegramPost) {
	if !p.listening(e.Chat.ID) {
		return
	}
	if e.HasContent {
		p.send(e.Context)
		return
	}
	if e.Pinned != "" && p.opts.Notify.Pin {
		text := e.Context.Nick + " pinned: " + strings.ReplaceAll(e.Pinned, "\n", " ")
		p.notice(e.Chat.ID, e.Chat.ID, e.Context.Nick, text)
	}
}

// Receive renders m as HTML, sends it, then attaches media as replies to
// the sent message.
func (p *Processor) Receive(ctx context.Context, m *bridge.Message) error {
	vars := bridge.TemplateVars(m)
	for k, v := range vars {
		vars[k] = htmlEscaper.Replace(v)
	}
	vars["nick"] = "<b>" + vars["nick"] + "</b>"

	tmpl := bridge.Template(bridge.StyleFor(p.router.Style(), m), m)
	output := bridge.Render(htmlEscaper.Replace(tmpl), vars)

	msgID, err := p.client.SendHTML(ctx, m.To, output)
	if err != nil {
		return err
	}

	var errs []error
	if m.FromClient == p.client.Type() {
		for _, f := range m.Extra.Files {
			if f.Client != p.client.Type() || f.ID == "" {
				continue
			}
			if err := p.client.SendFile(ctx, m.To, f.Type, f.ID, msgID); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		for _, u := range m.Extra.Uploads {
			if err := p.client.SendFile(ctx, m.To, uploadKind(u), u.URL, msgID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := stderrors.Join(errs...); err != nil {
		return errors.Wrap(err, "telegram: attach files")
	}
	return nil
}

// uploadKind maps an upload to the Telegram send method used for it.
func uploadKind(u bridge.Upload) string {
	switch u.Type {
	case "audio":
		return "audio"
	case "photo":
		if strings.EqualFold(path.Ext(urlPath(u.URL)), ".gif") {
			return "animation"
		}
		return "photo"
	}
	return "document"
}

func urlPath(raw string) string {
	if parsed, err := url.Parse(raw); err == nil {
		return parsed.Path
	}
	return raw
}

// Package discord relays Discord channel traffic into the bridge and renders
// bridged messages for Discord.
package discord

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/channels"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

const (
	userCacheSize = 500
	userCacheTTL  = time.Hour

	// Size reported for relayed emoji images; Discord caps emoji at 256 KiB.
	emojiSize = 262144
)

var (
	emojiRe   = regexp.MustCompile(`<(a?):(\w+):(\d*?)>`)
	mentionRe = regexp.MustCompile(`<@!?(\d*?)>`)
)

// Client is the part of the Discord handler the processor uses.
type Client interface {
	bridge.Handler
	BotID() string
	Events() *channels.DiscordEvents
	FetchUser(ctx context.Context, id string) (*discordgo.User, error)
	Nick(u *discordgo.User, member *discordgo.Member) string
}

type Options struct {
	config.DiscordBridgeOptions
	RelayEmoji  bool
	UseProxyURL bool
}

type Processor struct {
	ctx         context.Context
	router      *bridge.Router
	client      Client
	opts        Options
	forwardBots *bridge.ForwardBots
	users       *expirable.LRU[string, *discordgo.User]

	wg sync.WaitGroup
}

func NewProcessor(ctx context.Context, router *bridge.Router, client Client, opts Options) *Processor {
	return &Processor{
		ctx:         ctx,
		router:      router,
		client:      client,
		opts:        opts,
		forwardBots: bridge.NewForwardBots(opts.ForwardBots),
		users:       expirable.NewLRU[string, *discordgo.User](userCacheSize, nil, userCacheTTL),
	}
}

func (p *Processor) Init() error {
	p.forwardBots.Set(p.client.BotID(), bridge.ForwardSelf)

	ev := p.client.Events()
	ev.Ready.Subscribe(func(id string) {
		p.forwardBots.Set(id, bridge.ForwardSelf)
	})
	ev.Text.Subscribe(p.onText)
	return nil
}

// Wait blocks until every in-flight Send started by the processor returns.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) onText(c *bridge.Context) {
	if c.IsPrivate {
		return
	}
	if m, ok := c.RawData.(*discordgo.Message); ok && m.Author != nil {
		p.users.Add(m.Author.ID, m.Author)
	}
	p.wg.Go(func() {
		p.prepare(p.ctx, c)
		p.router.SendContext(p.ctx, c)
	})
}

// prepare unwraps relay bot replies and rewrites custom emoji and mentions
// into plain text.
func (p *Processor) prepare(ctx context.Context, c *bridge.Context) {
	if r := c.Extra.Reply; r != nil {
		if nick, text, ok := p.forwardBots.Parse(r.ID, r.Message); ok {
			r.Nick, r.Message = nick, text
		}
	}
	p.replaceEmoji(c)
	p.replaceMentions(ctx, c)
}

func (p *Processor) replaceEmoji(c *bridge.Context) {
	if !emojiRe.MatchString(c.Text) {
		return
	}

	seen := make(map[string]bool)
	c.Text = emojiRe.ReplaceAllStringFunc(c.Text, func(s string) string {
		m := emojiRe.FindStringSubmatch(s)
		animated, name, id := m[1] == "a", m[2], m[3]
		if id != "" && !seen[id] && p.opts.RelayEmoji {
			seen[id] = true
			c.Extra.Files = append(c.Extra.Files, bridge.File{
				Client: p.client.Type(),
				Type:   "photo",
				ID:     id,
				Size:   emojiSize,
				URL:    p.emojiURL(id, animated),
			})
		}
		return "<emoji: " + name + ">"
	})
}

func (p *Processor) emojiURL(id string, animated bool) string {
	host := "https://cdn.discordapp.com"
	if p.opts.UseProxyURL {
		host = "https://media.discordapp.net"
	}
	ext := ".png"
	if animated {
		ext = ".gif"
	}
	return host + "/emojis/" + id + ext
}

func (p *Processor) replaceMentions(ctx context.Context, c *bridge.Context) {
	matches := mentionRe.FindAllStringSubmatch(c.Text, -1)
	if len(matches) == 0 {
		return
	}

	nicks := make(map[string]string)
	for _, m := range matches {
		id := m[1]
		if _, done := nicks[id]; done {
			continue
		}
		u, ok := p.users.Get(id)
		if !ok {
			var err error
			u, err = p.client.FetchUser(ctx, id)
			if err != nil {
				logger.WarnCF("discord", "Fetch mentioned user failed", map[string]any{
					"user":  id,
					"error": err.Error(),
				})
				nicks[id] = ""
				continue
			}
			p.users.Add(u.ID, u)
		}
		nicks[id] = p.client.Nick(u, nil)
	}

	c.Text = mentionRe.ReplaceAllStringFunc(c.Text, func(s string) string {
		id := mentionRe.FindStringSubmatch(s)[1]
		if nick := nicks[id]; nick != "" {
			return "@" + nick
		}
		return s
	})
}

// Receive renders m and says it to the Discord channel m is addressed to.
func (p *Processor) Receive(ctx context.Context, m *bridge.Message) error {
	tmpl := bridge.Template(bridge.StyleFor(p.router.Style(), m), m)
	output := bridge.Render(tmpl, bridge.TemplateVars(m))
	for _, u := range m.Extra.Uploads {
		output += " " + u.URL
	}
	return p.client.Say(ctx, m.To, output)
}

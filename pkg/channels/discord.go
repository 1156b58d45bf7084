package channels

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

var dcCommandRe = regexp.MustCompile(`^[/!]([A-Za-z0-9_]+)\b(\s+(.*)|\s*)$`)

// discordAPI is the subset of *discordgo.Session the handler calls.
type discordAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

type DiscordPin struct {
	From    *discordgo.User
	Nick    string
	Channel string
	Text    string
}

type DiscordEvents struct {
	Text    Event[*bridge.Context]
	Command Event[*bridge.Context]
	Pin     Event[DiscordPin]
	Ready   Event[string]
}

type DiscordHandler struct {
	*BaseHandler
	cfg     config.DiscordConfig
	session *discordgo.Session
	api     discordAPI
	events  DiscordEvents

	mu    sync.RWMutex
	botID string
}

func NewDiscordHandler(cfg config.DiscordConfig) (*DiscordHandler, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "discord: create session")
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	h := newDiscordHandler(cfg, dg)
	h.session = dg

	dg.AddHandler(h.handleReady)
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		h.HandleMessage(context.Background(), m.Message)
	})
	return h, nil
}

func newDiscordHandler(cfg config.DiscordConfig, api discordAPI) *DiscordHandler {
	return &DiscordHandler{
		BaseHandler: NewBaseHandler(TypeDiscord, IDDiscord, WithIgnoreList(cfg.Ignore)),
		cfg:         cfg,
		api:         api,
	}
}

func (h *DiscordHandler) Events() *DiscordEvents { return &h.events }

// BotID is the bot's own user id, known once the gateway is ready.
func (h *DiscordHandler) BotID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.botID
}

func (h *DiscordHandler) setBotID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.botID = id
}

func (h *DiscordHandler) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	h.setBotID(r.User.ID)
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"user": r.User.Username,
	})
	h.events.Ready.Emit(r.User.ID)
}

func (h *DiscordHandler) Start(ctx context.Context) error {
	if h.IsRunning() {
		return nil
	}
	if h.session == nil {
		return ErrNotConnected
	}
	logger.InfoC("discord", "Starting Discord handler")
	if err := h.session.Open(); err != nil {
		return errors.Wrap(err, "discord: open connection")
	}
	h.setRunning(true)
	return nil
}

func (h *DiscordHandler) Stop(ctx context.Context) error {
	if !h.IsRunning() {
		return nil
	}
	h.setRunning(false)
	if h.session != nil {
		if err := h.session.Close(); err != nil {
			return errors.Wrap(err, "discord: close connection")
		}
	}
	logger.InfoC("discord", "Discord handler stopped")
	return nil
}

// HandleMessage turns a created message into a Context.
func (h *DiscordHandler) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}
	if m.Author.ID == h.BotID() ||
		(h.cfg.IgnoreBot && m.Author.Bot) ||
		h.IsIgnored(m.Author.ID) ||
		(m.Content == "" && len(m.Embeds) > 0) {
		return
	}

	if m.Type == discordgo.MessageTypeChannelPinnedMessage {
		h.events.Pin.Emit(DiscordPin{
			From:    m.Author,
			Nick:    h.Nick(m.Author, m.Member),
			Channel: m.ChannelID,
			Text:    h.ConvertToText(m),
		})
		return
	}

	text := m.Content
	var extra bridge.Extra
	for _, a := range m.Attachments {
		url := a.URL
		if h.cfg.UseProxyURL && a.ProxyURL != "" {
			url = a.ProxyURL
		}
		extra.Files = append(extra.Files, bridge.File{
			Client:   "Discord",
			Type:     "photo",
			ID:       a.ID,
			Size:     int64(a.Size),
			URL:      url,
			MimeType: a.ContentType,
		})
		text += fmt.Sprintf(" <photo: %dx%d, %s>", a.Width, a.Height, FriendlySize(int64(a.Size)))
	}

	if ref := h.referencedMessage(m); ref != nil && ref.Author != nil {
		extra.Reply = &bridge.ReplyInfo{
			ID:            ref.Author.ID,
			Nick:          h.Nick(ref.Author, ref.Member),
			Username:      ref.Author.Username,
			Discriminator: ref.Author.Discriminator,
			Message:       h.ConvertToText(ref),
			IsText:        ref.Content != "",
		}
	}
	extra.Username = m.Author.Username
	extra.Discriminator = m.Author.Discriminator

	c := bridge.NewContext(bridge.Context{
		From:      m.Author.ID,
		To:        m.ChannelID,
		Nick:      h.Nick(m.Author, m.Member),
		Text:      text,
		IsPrivate: m.GuildID == "",
		Extra:     extra,
		Handler:   h,
		RawData:   m,
	})

	if cm := dcCommandRe.FindStringSubmatch(strings.TrimSpace(m.Content)); cm != nil {
		c.Command = cm[1]
		c.Param = strings.TrimSpace(cm[3])
		h.runCommand(ctx, c)
		h.events.Command.Emit(c)
	}

	h.events.Text.Emit(c)
}

// referencedMessage returns the replied-to message when it lives in the
// same channel.
func (h *DiscordHandler) referencedMessage(m *discordgo.Message) *discordgo.Message {
	ref := m.MessageReference
	if ref == nil || ref.MessageID == "" || (ref.ChannelID != "" && ref.ChannelID != m.ChannelID) {
		return nil
	}
	if m.ReferencedMessage != nil {
		return m.ReferencedMessage
	}
	if h.api == nil {
		return nil
	}
	msg, err := h.api.ChannelMessage(m.ChannelID, ref.MessageID)
	if err != nil {
		logger.DebugCF("discord", "Fetch referenced message failed", map[string]any{
			"message_id": ref.MessageID,
			"error":      err.Error(),
		})
		return nil
	}
	return msg
}

// Nick renders a user per the configured nick style. member may be nil.
func (h *DiscordHandler) Nick(u *discordgo.User, member *discordgo.Member) string {
	if u == nil {
		return ""
	}
	switch h.cfg.NickStyle {
	case "nickname":
		if member != nil && member.Nick != "" {
			return member.Nick
		}
		return firstNonEmpty(u.Username, u.ID)
	case "username", "":
		return firstNonEmpty(u.Username, u.ID)
	}
	return u.ID
}

func (h *DiscordHandler) ConvertToText(m *discordgo.Message) string {
	switch {
	case m.Content != "":
		return m.Content
	case m.Type == discordgo.MessageTypeChannelPinnedMessage:
		return "<Pinned Message>"
	case m.Type == discordgo.MessageTypeGuildMemberJoin:
		return "<New member>"
	case len(m.Attachments) > 0:
		return "<Photo>"
	case len(m.Embeds) > 0:
		return "<Embeds>"
	}
	return "<Message>"
}

// FetchUser looks a user up through the REST API.
func (h *DiscordHandler) FetchUser(ctx context.Context, id string) (*discordgo.User, error) {
	if h.api == nil {
		return nil, ErrNotConnected
	}
	u, err := h.api.User(id, discordgo.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "discord: fetch user %s", id)
	}
	return u, nil
}

func (h *DiscordHandler) Say(ctx context.Context, target, text string, opts ...bridge.SayOption) error {
	if h.api == nil {
		return ErrNotConnected
	}
	if target == "" {
		return nil
	}
	if _, err := h.api.ChannelMessageSend(target, text, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrapf(err, "discord: send to %s", target)
	}
	return nil
}

// Reply answers in the channel the message came from. Direct messages are
// answered in the same DM channel.
func (h *DiscordHandler) Reply(ctx context.Context, c *bridge.Context, text string, opts ...bridge.SayOption) error {
	if !c.IsPrivate && bridge.ApplySayOptions(opts).WithNick {
		text = c.Nick + ": " + text
	}
	return h.Say(ctx, c.To, text, opts...)
}

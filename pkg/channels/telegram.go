package channels

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/pkg/errors"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// Service accounts Telegram uses to relay linked-channel posts and
// anonymous admins.
const (
	telegramServiceID    int64 = 777000
	groupAnonymousBotID  int64 = 1087968824
	telegramChannelBotID int64 = 136817688
)

var (
	tgCommandRe     = regexp.MustCompile(`^/([A-Za-z0-9_@]+)(\s+(.*)|\s*)$`)
	tgCommandNameRe = regexp.MustCompile(`^([A-Za-z0-9_]+)(|@([A-Za-z0-9_]+))$`)
	tgCommandStrip  = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// telegramAPI is the subset of *telego.Bot the handler calls.
type telegramAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendSticker(ctx context.Context, params *telego.SendStickerParams) (*telego.Message, error)
	SendAudio(ctx context.Context, params *telego.SendAudioParams) (*telego.Message, error)
	SendVoice(ctx context.Context, params *telego.SendVoiceParams) (*telego.Message, error)
	SendVideo(ctx context.Context, params *telego.SendVideoParams) (*telego.Message, error)
	SendAnimation(ctx context.Context, params *telego.SendAnimationParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

type TelegramUser struct {
	ID       int64
	Nick     string
	Username string
}

type TelegramPin struct {
	From TelegramUser
	Chat int64
	Text string
}

// TelegramMember is a join or leave in a group. From and Target are the
// same user when nobody else added or removed them.
type TelegramMember struct {
	Chat   int64
	From   TelegramUser
	Target TelegramUser
}

// TelegramChannelMessage is a linked-channel post relayed into a group.
type TelegramChannelMessage struct {
	Channel telego.Chat
	Context *bridge.Context
}

// TelegramPost is a post in a channel the bot administers. Context is
// already filled in; HasContent is false for service messages. Pinned is
// the summary of the pinned message for pin service messages.
type TelegramPost struct {
	Chat       telego.Chat
	Message    *telego.Message
	Context    *bridge.Context
	HasContent bool
	Pinned     string
}

type TelegramEvents struct {
	Text               Event[*bridge.Context]
	Command            Event[*bridge.Context]
	RichMessage        Event[*bridge.Context]
	ChannelText        Event[TelegramChannelMessage]
	ChannelRichMessage Event[TelegramChannelMessage]
	Pin                Event[TelegramPin]
	Join               Event[TelegramMember]
	Leave              Event[TelegramMember]
	ChannelPost        Event[TelegramPost]
	Ready              Event[string]
}

type TelegramHandler struct {
	*BaseHandler
	cfg       config.TelegramConfig
	bot       *telego.Bot
	api       telegramAPI
	events    TelegramEvents
	startTime int64

	mu       sync.RWMutex
	username string
	botID    int64
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewTelegramHandler(cfg config.TelegramConfig) (*TelegramHandler, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	var opts []telego.BotOption
	if cfg.APIRoot != "" {
		opts = append(opts, telego.WithAPIServer(cfg.APIRoot))
	}
	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "telegram: create bot")
	}
	h := newTelegramHandler(cfg, bot)
	h.bot = bot
	return h, nil
}

func newTelegramHandler(cfg config.TelegramConfig, api telegramAPI) *TelegramHandler {
	return &TelegramHandler{
		BaseHandler: NewBaseHandler(TypeTelegram, IDTelegram, WithIgnoreList(cfg.Ignore)),
		cfg:         cfg,
		api:         api,
		startTime:   time.Now().Unix(),
	}
}

func (h *TelegramHandler) Events() *TelegramEvents { return &h.events }

// Username is the bot's own username, known after Start.
func (h *TelegramHandler) Username() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.username
}

func (h *TelegramHandler) BotID() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.botID
}

func (h *TelegramHandler) setIdentity(id int64, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.botID, h.username = id, username
}

func (h *TelegramHandler) Start(ctx context.Context) error {
	if h.IsRunning() {
		return nil
	}
	if h.bot == nil {
		return ErrNotConnected
	}

	me, err := h.bot.GetMe(ctx)
	if err != nil {
		return errors.Wrap(err, "telegram: get me")
	}
	h.setIdentity(me.ID, me.Username)

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := h.bot.UpdatesViaLongPolling(pollCtx, nil)
	if err != nil {
		cancel()
		return errors.Wrap(err, "telegram: start long polling")
	}

	h.mu.Lock()
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()
	h.setRunning(true)

	go func() {
		defer close(done)
		for update := range updates {
			h.HandleUpdate(pollCtx, update)
		}
	}()

	logger.InfoCF("telegram", "Telegram bot connected", map[string]any{
		"username": me.Username,
	})
	h.events.Ready.Emit(me.Username)
	return nil
}

func (h *TelegramHandler) Stop(ctx context.Context) error {
	if !h.IsRunning() {
		return nil
	}
	h.setRunning(false)

	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	logger.InfoC("telegram", "Telegram handler stopped")
	return nil
}

// AddCommand strips characters Telegram does not allow in commands.
func (h *TelegramHandler) AddCommand(name string, fn bridge.CommandFunc) {
	h.BaseHandler.AddCommand(tgCommandStrip.ReplaceAllString(name, ""), fn)
}

func (h *TelegramHandler) DeleteCommand(name string) {
	h.BaseHandler.DeleteCommand(tgCommandStrip.ReplaceAllString(name, ""))
}

func (h *TelegramHandler) HasCommand(name string) bool {
	return h.BaseHandler.HasCommand(tgCommandStrip.ReplaceAllString(name, ""))
}

func (h *TelegramHandler) HandleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	case update.ChannelPost != nil:
		h.handleChannelPost(update.ChannelPost)
	}
}

func (h *TelegramHandler) handleMessage(ctx context.Context, m *telego.Message) {
	if m.From == nil || m.Date < h.startTime {
		return
	}
	if h.IsIgnored(fmt.Sprintf("%d|%s", m.From.ID, m.From.Username)) ||
		(m.SenderChat != nil && h.IsIgnored(strconv.FormatInt(m.SenderChat.ID, 10))) {
		return
	}

	c := bridge.NewContext(bridge.Context{
		From:      strconv.FormatInt(m.From.ID, 10),
		To:        strconv.FormatInt(m.Chat.ID, 10),
		Nick:      h.Nick(m.From),
		IsPrivate: m.Chat.ID > 0,
		Handler:   h,
		RawData:   m,
	})
	c.Extra.Username = m.From.Username

	fwdChannel := forwardChannel(m)
	switch {
	case m.From.ID == telegramServiceID && fwdChannel != nil:
		c.From = strconv.FormatInt(fwdChannel.ID, 10)
		c.Nick = "LinkChannel"
		c.Extra.Username = fwdChannel.Username
		c.Extra.IsChannel = true
	case m.From.ID == groupAnonymousBotID && (m.Chat.Type == telego.ChatTypeGroup || m.Chat.Type == telego.ChatTypeSupergroup):
		c.From = strconv.FormatInt(m.Chat.ID, 10)
		c.Nick = "Group " + m.Chat.Title
		c.Extra.Username = m.Chat.Username
	case m.From.ID == telegramChannelBotID && m.SenderChat != nil && m.SenderChat.Type == telego.ChatTypeChannel:
		c.From = strconv.FormatInt(m.SenderChat.ID, 10)
		c.Nick = "Channel " + m.SenderChat.Title
		c.Extra.Username = m.SenderChat.Username
	}

	h.fillReplyForward(c, m)

	if m.Text != "" {
		c.Text = m.Text
		h.parseCommand(ctx, c, m.Text)
		if c.Extra.IsChannel {
			h.events.ChannelText.Emit(TelegramChannelMessage{Channel: *fwdChannel, Context: c})
		} else {
			h.events.Text.Emit(c)
		}
		return
	}

	if !h.ParseMedia(c, m) {
		from := TelegramUser{ID: m.From.ID, Nick: h.Nick(m.From), Username: m.From.Username}
		switch {
		case m.PinnedMessage != nil:
			h.events.Pin.Emit(TelegramPin{From: from, Chat: m.Chat.ID, Text: h.PinnedText(m)})
		case m.LeftChatMember != nil:
			u := m.LeftChatMember
			h.events.Leave.Emit(TelegramMember{Chat: m.Chat.ID, From: from,
				Target: TelegramUser{ID: u.ID, Nick: h.Nick(u), Username: u.Username}})
		case len(m.NewChatMembers) > 0:
			u := m.NewChatMembers[0]
			h.events.Join.Emit(TelegramMember{Chat: m.Chat.ID, From: from,
				Target: TelegramUser{ID: u.ID, Nick: h.Nick(&u), Username: u.Username}})
		}
		return
	}

	if c.Extra.IsChannel {
		h.events.ChannelRichMessage.Emit(TelegramChannelMessage{Channel: *fwdChannel, Context: c})
	} else {
		h.events.RichMessage.Emit(c)
	}
}

func (h *TelegramHandler) handleChannelPost(m *telego.Message) {
	nick := m.AuthorSignature
	if nick == "" {
		nick = "Channel"
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	c := bridge.NewContext(bridge.Context{
		From:    chatID,
		To:      chatID,
		Nick:    nick,
		Handler: h,
		RawData: m,
	})
	c.Extra.Username = m.Chat.Username
	h.fillReplyForward(c, m)

	post := TelegramPost{Chat: m.Chat, Message: m, Context: c, HasContent: true}
	if m.Text != "" {
		c.Text = m.Text
	} else {
		post.HasContent = h.ParseMedia(c, m)
	}
	if !post.HasContent && m.PinnedMessage != nil {
		post.Pinned = h.PinnedText(m)
	}
	h.events.ChannelPost.Emit(post)
}

// parseCommand sets Command and Param for "/cmd" and "/cmd@thisbot".
func (h *TelegramHandler) parseCommand(ctx context.Context, c *bridge.Context, text string) {
	m := tgCommandRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	parts := tgCommandNameRe.FindStringSubmatch(m[1])
	if parts == nil {
		return
	}
	if parts[3] != "" && !strings.EqualFold(parts[3], h.Username()) {
		return
	}
	c.Command = parts[1]
	c.Param = m[3]
	h.runCommand(ctx, c)
	h.events.Command.Emit(c)
}

func (h *TelegramHandler) fillReplyForward(c *bridge.Context, m *telego.Message) {
	if r := m.ReplyToMessage; r != nil {
		info := &bridge.ReplyInfo{
			Message: h.ConvertToText(r),
			IsText:  r.Text != "",
		}
		if r.From != nil {
			info.ID = strconv.FormatInt(r.From.ID, 10)
			info.Nick = h.Nick(r.From)
			info.Username = r.From.Username
			if ch := forwardChannel(r); r.From.ID == telegramServiceID && ch != nil {
				info.ID = strconv.FormatInt(ch.ID, 10)
				info.Nick = "Channel " + ch.Title
				info.Username = ch.Username
			}
		} else if r.SenderChat != nil {
			info.ID = strconv.FormatInt(r.SenderChat.ID, 10)
			info.Nick = "Channel " + r.SenderChat.Title
			info.Username = r.SenderChat.Username
		}
		c.Extra.Reply = info
		return
	}

	switch origin := m.ForwardOrigin.(type) {
	case *telego.MessageOriginUser:
		c.Extra.Forward = &bridge.ForwardInfo{Nick: h.Nick(&origin.SenderUser), Username: origin.SenderUser.Username}
	case *telego.MessageOriginHiddenUser:
		c.Extra.Forward = &bridge.ForwardInfo{Nick: origin.SenderUserName}
	case *telego.MessageOriginChat:
		c.Extra.Forward = &bridge.ForwardInfo{Nick: "Group " + origin.SenderChat.Title, Username: origin.SenderChat.Username}
	case *telego.MessageOriginChannel:
		c.Extra.Forward = &bridge.ForwardInfo{Nick: "Channel " + origin.Chat.Title, Username: origin.Chat.Username}
	}
}

// forwardChannel returns the source channel of a channel forward.
func forwardChannel(m *telego.Message) *telego.Chat {
	if origin, ok := m.ForwardOrigin.(*telego.MessageOriginChannel); ok {
		return &origin.Chat
	}
	return nil
}

// Nick renders a user per the configured nick style.
func (h *TelegramHandler) Nick(u *telego.User) string {
	if u == nil {
		return ""
	}
	username := strings.TrimSpace(u.Username)
	firstname := strings.TrimSpace(u.FirstName)
	if firstname == "" {
		firstname = strings.TrimSpace(u.LastName)
	}
	fullname := strings.TrimSpace(u.FirstName + " " + u.LastName)

	switch h.cfg.NickStyle {
	case "fullname":
		return firstNonEmpty(fullname, username)
	case "firstname":
		return firstNonEmpty(firstname, username)
	default:
		return firstNonEmpty(username, fullname)
	}
}

// ConvertToText summarizes a message for reply quotes.
func (h *TelegramHandler) ConvertToText(m *telego.Message) string {
	switch {
	case m.Audio != nil:
		return "<Audio>"
	case len(m.Photo) > 0:
		return "<Photo>"
	case m.Document != nil:
		return "<Document>"
	case m.Game != nil:
		return "<Game>"
	case m.Sticker != nil:
		return m.Sticker.Emoji + "<Sticker>"
	case m.Video != nil:
		return "<Video>"
	case m.Voice != nil:
		return "<Voice>"
	case m.Contact != nil:
		return "<Contact>"
	case m.Location != nil:
		return "<Location>"
	case m.Venue != nil:
		return "<Venue>"
	case m.PinnedMessage != nil:
		return "<Pinned Message>"
	case len(m.NewChatMembers) > 0:
		return "<New member>"
	case m.LeftChatMember != nil:
		return "<Removed member>"
	case m.Text != "":
		return m.Text
	}
	return "<Message>"
}

// PinnedText summarizes the message a service message pinned.
func (h *TelegramHandler) PinnedText(m *telego.Message) string {
	if pinned, ok := m.PinnedMessage.(*telego.Message); ok {
		return h.ConvertToText(pinned)
	}
	return "<Message>"
}

// ParseMedia fills Text and Files for a non-text message and reports
// whether it recognized the content.
func (h *TelegramHandler) ParseMedia(c *bridge.Context, m *telego.Message) bool {
	switch {
	case len(m.Photo) > 0:
		var best telego.PhotoSize
		for _, p := range m.Photo {
			if p.FileSize > best.FileSize || best.FileID == "" {
				best = p
			}
		}
		h.setFile(c, "photo", best.FileID, int64(best.FileSize), "")
		c.Text = fmt.Sprintf("<photo: %dx%d, %s>", best.Width, best.Height, FriendlySize(int64(best.FileSize)))
		if m.Caption != "" {
			c.Text += " " + m.Caption
		}
		c.Extra.IsImage = true
		c.Extra.ImageCaption = m.Caption
	case m.Sticker != nil:
		c.Text = m.Sticker.Emoji + "<Sticker>"
		h.setFile(c, "sticker", m.Sticker.FileID, int64(m.Sticker.FileSize), "")
		c.Extra.IsImage = true
	case m.Audio != nil:
		c.Text = fmt.Sprintf("<Audio: %d\", %s>", m.Audio.Duration, FriendlySize(int64(m.Audio.FileSize)))
		h.setFile(c, "audio", m.Audio.FileID, int64(m.Audio.FileSize), m.Audio.MimeType)
	case m.Voice != nil:
		c.Text = fmt.Sprintf("<Voice: %d\", %s>", m.Voice.Duration, FriendlySize(int64(m.Voice.FileSize)))
		h.setFile(c, "voice", m.Voice.FileID, int64(m.Voice.FileSize), m.Voice.MimeType)
	case m.Video != nil:
		c.Text = fmt.Sprintf("<Video: %dx%d, %d\", %s>", m.Video.Width, m.Video.Height, m.Video.Duration, FriendlySize(int64(m.Video.FileSize)))
		h.setFile(c, "video", m.Video.FileID, int64(m.Video.FileSize), m.Video.MimeType)
	case m.Document != nil:
		c.Text = fmt.Sprintf("<File: %s, %s>", m.Document.FileName, FriendlySize(int64(m.Document.FileSize)))
		h.setFile(c, "document", m.Document.FileID, int64(m.Document.FileSize), m.Document.MimeType)
	case m.Contact != nil:
		c.Text = fmt.Sprintf("<Contact: %s, %s>", m.Contact.FirstName, m.Contact.PhoneNumber)
	case m.Venue != nil:
		c.Text = fmt.Sprintf("<Venue: %s, %s, %s>", m.Venue.Title, m.Venue.Address,
			FriendlyLocation(m.Venue.Location.Latitude, m.Venue.Location.Longitude))
	case m.Location != nil:
		c.Text = fmt.Sprintf("<Location: %s>", FriendlyLocation(m.Location.Latitude, m.Location.Longitude))
	default:
		return false
	}
	return true
}

func (h *TelegramHandler) setFile(c *bridge.Context, kind, fileID string, size int64, mimeType string) {
	c.Extra.Files = []bridge.File{{
		Client:   "Telegram",
		Type:     kind,
		ID:       fileID,
		Size:     size,
		MimeType: mimeType,
		Prepare:  h.prepareFile,
	}}
}

// prepareFile resolves a file id to its download URL.
func (h *TelegramHandler) prepareFile(ctx context.Context, f *bridge.File) error {
	file, err := h.api.GetFile(ctx, &telego.GetFileParams{FileID: f.ID})
	if err != nil {
		return errors.Wrapf(err, "telegram: get file %s", f.ID)
	}
	f.URL = h.api.FileDownloadURL(file.FilePath)
	f.Path = file.FilePath
	return nil
}

func parseChatID(target string) (telego.ChatID, error) {
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		return tu.ID(id), nil
	}
	if strings.HasPrefix(target, "@") {
		return tu.Username(target), nil
	}
	return telego.ChatID{}, errors.Errorf("telegram: invalid chat id %q", target)
}

func (h *TelegramHandler) Say(ctx context.Context, target, text string, opts ...bridge.SayOption) error {
	_, err := h.send(ctx, target, text, bridge.ApplySayOptions(opts))
	return err
}

// SendHTML sends an HTML message and returns its message id.
func (h *TelegramHandler) SendHTML(ctx context.Context, target, text string) (int, error) {
	return h.send(ctx, target, text, bridge.SayOptions{ParseMode: telego.ModeHTML})
}

func (h *TelegramHandler) send(ctx context.Context, target, text string, o bridge.SayOptions) (int, error) {
	if h.api == nil {
		return 0, ErrNotConnected
	}
	chat, err := parseChatID(target)
	if err != nil {
		return 0, err
	}
	params := tu.Message(chat, text)
	if o.ParseMode != "" {
		params = params.WithParseMode(o.ParseMode)
	}
	if o.Silent {
		params = params.WithDisableNotification()
	}
	if id, err := strconv.Atoi(o.ReplyTo); err == nil {
		params = params.WithReplyParameters(&telego.ReplyParameters{MessageID: id, AllowSendingWithoutReply: true})
	}
	sent, err := h.api.SendMessage(ctx, params)
	if err != nil {
		return 0, errors.Wrapf(err, "telegram: send to %s", target)
	}
	return sent.MessageID, nil
}

// SendFile sends a photo, sticker, audio, voice, video, animation or
// document. ref is a URL or a Telegram file id.
func (h *TelegramHandler) SendFile(ctx context.Context, target, kind, ref string, replyTo int) error {
	if h.api == nil {
		return ErrNotConnected
	}
	chat, err := parseChatID(target)
	if err != nil {
		return err
	}
	file := tu.FileFromID(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		file = tu.FileFromURL(ref)
	}
	var reply *telego.ReplyParameters
	if replyTo > 0 {
		reply = &telego.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}

	switch kind {
	case "photo":
		_, err = h.api.SendPhoto(ctx, tu.Photo(chat, file).WithReplyParameters(reply))
	case "sticker":
		_, err = h.api.SendSticker(ctx, tu.Sticker(chat, file).WithReplyParameters(reply))
	case "audio":
		_, err = h.api.SendAudio(ctx, tu.Audio(chat, file).WithReplyParameters(reply))
	case "voice":
		_, err = h.api.SendVoice(ctx, tu.Voice(chat, file).WithReplyParameters(reply))
	case "video":
		_, err = h.api.SendVideo(ctx, tu.Video(chat, file).WithReplyParameters(reply))
	case "animation":
		_, err = h.api.SendAnimation(ctx, tu.Animation(chat, file).WithReplyParameters(reply))
	default:
		_, err = h.api.SendDocument(ctx, tu.Document(chat, file).WithReplyParameters(reply))
	}
	return errors.Wrapf(err, "telegram: send %s to %s", kind, target)
}

// Reply answers in the same chat, quoting the original message in groups.
func (h *TelegramHandler) Reply(ctx context.Context, c *bridge.Context, text string, opts ...bridge.SayOption) error {
	o := bridge.ApplySayOptions(opts)
	if c.IsPrivate {
		_, err := h.send(ctx, c.To, text, o)
		return err
	}
	if o.WithNick {
		text = c.Nick + ": " + text
	}
	if m, ok := c.RawData.(*telego.Message); ok && o.ReplyTo == "" {
		o.ReplyTo = strconv.Itoa(m.MessageID)
	}
	_, err := h.send(ctx, c.To, text, o)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

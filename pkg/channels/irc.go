package channels

import (
	"context"
	"crypto/tls"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/pkg/errors"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/ircfmt"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

var (
	ErrNotConnected = errors.New("handler not connected")

	ircCommandRe = regexp.MustCompile(`^!([A-Za-z0-9_]+)\b(\s+(.*)|\s*)$`)
)

// ircConn is the subset of *ircevent.Connection the handler drives.
type ircConn interface {
	Privmsg(target, text string) error
	Action(target, text string) error
	Join(channel string) error
	Part(channel string) error
	Send(command string, params ...string) error
	CurrentNick() string
}

type IRCJoin struct {
	Channel string
	Nick    string
}

type IRCPart struct {
	Channel string
	Nick    string
	Reason  string
}

type IRCKick struct {
	Channel string
	Nick    string
	By      string
	Reason  string
}

type IRCTopic struct {
	Channel string
	Topic   string
	Nick    string
}

type IRCNick struct {
	OldNick  string
	NewNick  string
	Channels []string
}

// IRCQuit is emitted for QUIT and KILL.
type IRCQuit struct {
	Nick     string
	Reason   string
	Channels []string
}

type IRCEvents struct {
	Text    Event[*bridge.Context]
	Command Event[*bridge.Context]
	Join    Event[IRCJoin]
	Part    Event[IRCPart]
	Kick    Event[IRCKick]
	Topic   Event[IRCTopic]
	Nick    Event[IRCNick]
	Quit    Event[IRCQuit]
	Kill    Event[IRCQuit]
	Ready   Event[string]
}

// IRCChannel is the tracked state of a joined channel. Users maps a nick
// to its highest membership prefix ("@", "+" or "").
type IRCChannel struct {
	Name  string
	Topic string
	Users map[string]string
}

type IRCHandler struct {
	*BaseHandler
	cfg      config.IRCConfig
	client   *ircevent.Connection
	conn     ircConn
	ignore   []*regexp.Regexp
	maxLines int
	events   IRCEvents

	mu           sync.RWMutex
	nick         string
	chans        map[string]*IRCChannel
	splitPrefix  string
	splitPostfix string
}

func NewIRCHandler(cfg config.IRCConfig) (*IRCHandler, error) {
	if cfg.Server == "" {
		return nil, errors.New("irc: server is required")
	}

	client := &ircevent.Connection{
		Server:      cfg.Address(),
		Nick:        cfg.Nick,
		User:        cfg.UserName,
		RealName:    cfg.RealName,
		UseTLS:      cfg.TLS,
		QuitMessage: "disconnect by operator.",
	}
	if cfg.TLS {
		client.TLSConfig = &tls.Config{ServerName: cfg.Server}
	}
	if cfg.SASL {
		client.UseSASL = true
		client.SASLLogin = cfg.UserName
		client.SASLPassword = cfg.SASLPassword
	}

	h := newIRCHandler(cfg, client)
	h.client = client

	client.AddConnectCallback(func(ircmsg.Message) { h.onConnect() })
	for _, code := range []string{"PRIVMSG", "JOIN", "PART", "KICK", "TOPIC", "NICK", "QUIT", "KILL", "MODE", "332", "353"} {
		client.AddCallback(code, h.HandleMessage)
	}
	return h, nil
}

func newIRCHandler(cfg config.IRCConfig, conn ircConn) *IRCHandler {
	h := &IRCHandler{
		BaseHandler: NewBaseHandler(TypeIRC, IDIRC),
		cfg:         cfg,
		conn:        conn,
		maxLines:    cfg.MaxLines,
		nick:        cfg.Nick,
		chans:       make(map[string]*IRCChannel),
	}
	if h.maxLines <= 0 {
		h.maxLines = DefaultMaxLines
	}
	for _, name := range cfg.Ignore {
		h.ignore = append(h.ignore, regexp.MustCompile(`^`+regexp.QuoteMeta(name)+`\d*$`))
	}
	return h
}

func (h *IRCHandler) Events() *IRCEvents { return &h.events }

// Nick is the nick the server currently knows the bot by.
func (h *IRCHandler) Nick() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nick
}

// SetSplitSeparators sets the marks added around wrapped lines.
func (h *IRCHandler) SetSplitSeparators(prefix, postfix string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.splitPrefix, h.splitPostfix = prefix, postfix
}

func (h *IRCHandler) Start(ctx context.Context) error {
	if h.IsRunning() {
		return nil
	}
	if h.client == nil {
		return ErrNotConnected
	}
	logger.InfoCF("irc", "Connecting to IRC server", map[string]any{
		"server": h.client.Server,
		"nick":   h.cfg.Nick,
	})
	if err := h.client.Connect(); err != nil {
		return errors.Wrap(err, "irc: connect")
	}
	h.setRunning(true)
	go h.client.Loop()
	return nil
}

func (h *IRCHandler) Stop(ctx context.Context) error {
	if !h.IsRunning() {
		return nil
	}
	h.setRunning(false)
	if h.client != nil {
		h.client.Quit()
	}
	logger.InfoC("irc", "IRC handler stopped")
	return nil
}

func (h *IRCHandler) onConnect() {
	nick := h.conn.CurrentNick()
	h.mu.Lock()
	h.nick = nick
	h.mu.Unlock()

	for _, ch := range h.cfg.Channels {
		if err := h.conn.Join(ch); err != nil {
			logger.WarnCF("irc", "Join failed", map[string]any{"channel": ch, "error": err.Error()})
		}
	}
	logger.InfoCF("irc", "IRC bot is ready", map[string]any{"nick": nick})
	h.events.Ready.Emit(nick)
}

// HandleMessage dispatches one server line.
func (h *IRCHandler) HandleMessage(msg ircmsg.Message) {
	from := sourceNick(msg.Source)
	param := func(i int) string {
		if i < len(msg.Params) {
			return msg.Params[i]
		}
		return ""
	}

	switch msg.Command {
	case "PRIVMSG":
		text := param(1)
		if body, ok := strings.CutPrefix(text, "\x01ACTION "); ok {
			h.processMessage(from, param(0), strings.TrimSuffix(body, "\x01"), true, msg)
		} else if !strings.HasPrefix(text, "\x01") {
			h.processMessage(from, param(0), text, false, msg)
		}

	case "JOIN":
		channel := param(0)
		if h.isMe(from) {
			h.ensureChannel(channel)
			logger.InfoCF("irc", "Joined channel", map[string]any{"channel": channel})
		}
		h.setUser(channel, from, "")
		h.events.Join.Emit(IRCJoin{Channel: channel, Nick: from})

	case "PART":
		channel := param(0)
		h.removeUser(channel, from)
		h.events.Part.Emit(IRCPart{Channel: channel, Nick: from, Reason: param(1)})

	case "KICK":
		channel, nick := param(0), param(1)
		h.removeUser(channel, nick)
		h.events.Kick.Emit(IRCKick{Channel: channel, Nick: nick, By: from, Reason: param(2)})

	case "TOPIC":
		channel := param(0)
		h.setTopic(channel, param(1))
		h.events.Topic.Emit(IRCTopic{Channel: channel, Topic: param(1), Nick: from})

	case "332":
		h.setTopic(param(1), param(2))

	case "353":
		channel := param(2)
		for _, name := range strings.Fields(param(3)) {
			prefix := ""
			for name != "" && strings.ContainsRune("~&@%+", rune(name[0])) {
				if prefix == "" {
					prefix = name[:1]
				}
				name = name[1:]
			}
			h.setUser(channel, name, prefix)
		}

	case "NICK":
		newNick := param(0)
		chans := h.renameUser(from, newNick)
		if h.isMe(from) {
			h.mu.Lock()
			h.nick = newNick
			h.mu.Unlock()
		}
		h.events.Nick.Emit(IRCNick{OldNick: from, NewNick: newNick, Channels: chans})

	case "QUIT":
		chans := h.dropUser(from)
		h.events.Quit.Emit(IRCQuit{Nick: from, Reason: param(0), Channels: chans})

	case "KILL":
		nick := param(0)
		chans := h.dropUser(nick)
		h.events.Kill.Emit(IRCQuit{Nick: nick, Reason: param(1), Channels: chans})

	case "MODE":
		h.applyMode(param(0), msg.Params[min(1, len(msg.Params)):])
	}
}

func (h *IRCHandler) processMessage(from, to, text string, isAction bool, raw ircmsg.Message) {
	if from == h.Nick() {
		return
	}
	for _, re := range h.ignore {
		if re.MatchString(from) {
			return
		}
	}

	plain := ircfmt.Strip(text)
	isPrivate := to == h.Nick()
	c := bridge.NewContext(bridge.Context{
		From:      from,
		To:        to,
		Nick:      from,
		Text:      plain,
		IsPrivate: isPrivate,
		Handler:   h,
		RawData:   raw,
	})
	if !isPrivate {
		c.To = strings.ToLower(to)
	}
	c.Extra.IsAction = isAction

	if m := ircCommandRe.FindStringSubmatch(plain); m != nil {
		c.Command = m[1]
		c.Param = strings.TrimSpace(m[3])
		h.runCommand(context.Background(), c)
		h.events.Command.Emit(c)
	}

	h.events.Text.Emit(c)
}

// Say sends text to a channel or nick, wrapped at the IRC line budget.
func (h *IRCHandler) Say(ctx context.Context, target, text string, opts ...bridge.SayOption) error {
	if h.conn == nil {
		return ErrNotConnected
	}
	if target == "" {
		return nil
	}
	o := bridge.ApplySayOptions(opts)

	h.mu.RLock()
	prefix, postfix := h.splitPrefix, h.splitPostfix
	h.mu.RUnlock()

	var lines []string
	if o.KeepLines {
		for _, s := range strings.Split(text, "\n") {
			lines = append(lines, SplitText(s, DefaultMaxBytesPerLine, h.maxLines, prefix, postfix)...)
		}
	} else {
		lines = SplitText(text, DefaultMaxBytesPerLine, h.maxLines, prefix, postfix)
	}

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if line == "" {
			continue
		}
		var err error
		if o.IsAction {
			err = h.conn.Action(target, line)
		} else {
			err = h.conn.Privmsg(target, line)
		}
		if err != nil {
			return errors.Wrapf(err, "irc: send to %s", target)
		}
	}
	return nil
}

func (h *IRCHandler) Reply(ctx context.Context, c *bridge.Context, text string, opts ...bridge.SayOption) error {
	if c.IsPrivate {
		return h.Say(ctx, c.From, text, opts...)
	}
	if bridge.ApplySayOptions(opts).WithNick {
		text = c.Nick + ": " + text
	}
	return h.Say(ctx, c.To, text, opts...)
}

func (h *IRCHandler) Join(channel string) error {
	if h.conn == nil {
		return ErrNotConnected
	}
	return h.conn.Join(channel)
}

func (h *IRCHandler) Part(channel, reason string) error {
	if h.conn == nil {
		return ErrNotConnected
	}
	if reason == "" {
		return h.conn.Part(channel)
	}
	return h.conn.Send("PART", channel, reason)
}

// Channel returns a snapshot of a joined channel's state.
func (h *IRCHandler) Channel(name string) (IRCChannel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.chans[strings.ToLower(name)]
	if !ok {
		return IRCChannel{}, false
	}
	users := make(map[string]string, len(ch.Users))
	for k, v := range ch.Users {
		users[k] = v
	}
	return IRCChannel{Name: ch.Name, Topic: ch.Topic, Users: users}, true
}

// Channels lists the joined channels, lower-cased and sorted.
func (h *IRCHandler) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.chans))
	for name := range h.chans {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (h *IRCHandler) isMe(nick string) bool {
	return strings.EqualFold(nick, h.Nick())
}

func (h *IRCHandler) ensureChannel(name string) *IRCChannel {
	key := strings.ToLower(name)
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.chans[key]
	if !ok {
		ch = &IRCChannel{Name: name, Users: make(map[string]string)}
		h.chans[key] = ch
	}
	return ch
}

func (h *IRCHandler) setUser(channel, nick, prefix string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.chans[strings.ToLower(channel)]; ok {
		ch.Users[nick] = prefix
	}
}

func (h *IRCHandler) setTopic(channel, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.chans[strings.ToLower(channel)]; ok {
		ch.Topic = topic
	}
}

func (h *IRCHandler) removeUser(channel, nick string) {
	key := strings.ToLower(channel)
	h.mu.Lock()
	defer h.mu.Unlock()
	if strings.EqualFold(nick, h.nick) {
		delete(h.chans, key)
		return
	}
	if ch, ok := h.chans[key]; ok {
		delete(ch.Users, nick)
	}
}

// dropUser removes nick everywhere and returns the channels it was in.
func (h *IRCHandler) dropUser(nick string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var chans []string
	for key, ch := range h.chans {
		if _, ok := ch.Users[nick]; ok {
			delete(ch.Users, nick)
			chans = append(chans, key)
		}
	}
	sort.Strings(chans)
	return chans
}

func (h *IRCHandler) renameUser(oldNick, newNick string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var chans []string
	for key, ch := range h.chans {
		if prefix, ok := ch.Users[oldNick]; ok {
			delete(ch.Users, oldNick)
			ch.Users[newNick] = prefix
			chans = append(chans, key)
		}
	}
	sort.Strings(chans)
	return chans
}

// applyMode tracks op and voice changes. args[0] is the mode string.
func (h *IRCHandler) applyMode(channel string, args []string) {
	if len(args) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.chans[strings.ToLower(channel)]
	if !ok {
		return
	}

	adding := true
	next := 1
	for _, mode := range args[0] {
		switch mode {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'o', 'v', 'h':
			if next >= len(args) {
				return
			}
			nick := args[next]
			next++
			prefix := map[rune]string{'o': "@", 'v': "+", 'h': "%"}[mode]
			if _, ok := ch.Users[nick]; !ok {
				continue
			}
			if adding {
				if ch.Users[nick] != "@" {
					ch.Users[nick] = prefix
				}
			} else if ch.Users[nick] == prefix {
				ch.Users[nick] = ""
			}
		case 'b', 'e', 'I', 'k':
			next++
		case 'l':
			if adding {
				next++
			}
		}
	}
}

func sourceNick(source string) string {
	nick, _, _ := strings.Cut(source, "!")
	return nick
}

package channels

import (
	"context"
	"strings"
	"testing"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
)

type sentLine struct {
	target string
	text   string
	action bool
}

type fakeIRCConn struct {
	nick   string
	lines  []sentLine
	joined []string
	raw    [][]string
}

func (f *fakeIRCConn) Privmsg(target, text string) error {
	f.lines = append(f.lines, sentLine{target: target, text: text})
	return nil
}

func (f *fakeIRCConn) Action(target, text string) error {
	f.lines = append(f.lines, sentLine{target: target, text: text, action: true})
	return nil
}

func (f *fakeIRCConn) Join(channel string) error {
	f.joined = append(f.joined, channel)
	return nil
}

func (f *fakeIRCConn) Part(channel string) error {
	f.raw = append(f.raw, []string{"PART", channel})
	return nil
}

func (f *fakeIRCConn) Send(command string, params ...string) error {
	f.raw = append(f.raw, append([]string{command}, params...))
	return nil
}

func (f *fakeIRCConn) CurrentNick() string { return f.nick }

func newTestIRC(t *testing.T, ignore ...string) (*IRCHandler, *fakeIRCConn) {
	t.Helper()
	conn := &fakeIRCConn{nick: "bridgebot"}
	h := newIRCHandler(config.IRCConfig{
		Server:   "irc.example.org",
		Nick:     "bridgebot",
		Channels: config.FlexibleStringSlice{"#test"},
		Ignore:   ignore,
	}, conn)
	return h, conn
}

func privmsg(from, to, text string) ircmsg.Message {
	return ircmsg.Message{Source: from + "!u@host", Command: "PRIVMSG", Params: []string{to, text}}
}

func TestIRCTextAndCommand(t *testing.T) {
	h, _ := newTestIRC(t)

	var texts, commands []*bridge.Context
	h.Events().Text.Subscribe(func(c *bridge.Context) { texts = append(texts, c) })
	h.Events().Command.Subscribe(func(c *bridge.Context) { commands = append(commands, c) })

	h.HandleMessage(privmsg("alice", "#Test", "\x0304hello\x03 world"))
	h.HandleMessage(privmsg("alice", "#Test", "!nick  bob  "))

	if len(texts) != 2 {
		t.Fatalf("got %d texts, want 2", len(texts))
	}
	c := texts[0]
	if c.Text != "hello world" || c.To != "#test" || c.From != "alice" || c.IsPrivate {
		t.Errorf("unexpected context %+v", c)
	}
	if c.Handler != h {
		t.Error("handler not set")
	}
	if len(commands) != 1 || commands[0].Command != "nick" || commands[0].Param != "bob" {
		t.Errorf("unexpected commands %+v", commands)
	}
	if texts[1].Command != "nick" {
		t.Error("command text should still be emitted with Command set")
	}
}

func TestIRCPrivateAndAction(t *testing.T) {
	h, _ := newTestIRC(t)
	var got []*bridge.Context
	h.Events().Text.Subscribe(func(c *bridge.Context) { got = append(got, c) })

	h.HandleMessage(privmsg("alice", "bridgebot", "psst"))
	h.HandleMessage(privmsg("alice", "#test", "\x01ACTION waves\x01"))
	h.HandleMessage(privmsg("alice", "#test", "\x01VERSION\x01"))

	if len(got) != 2 {
		t.Fatalf("got %d contexts, want 2", len(got))
	}
	if !got[0].IsPrivate || got[0].To != "bridgebot" {
		t.Errorf("private message: %+v", got[0])
	}
	if !got[1].Extra.IsAction || got[1].Text != "waves" {
		t.Errorf("action: %+v", got[1])
	}
}

func TestIRCIgnore(t *testing.T) {
	h, _ := newTestIRC(t, "spambot", "a.b")
	n := 0
	h.Events().Text.Subscribe(func(*bridge.Context) { n++ })

	h.HandleMessage(privmsg("bridgebot", "#test", "echo"))
	h.HandleMessage(privmsg("spambot", "#test", "x"))
	h.HandleMessage(privmsg("spambot42", "#test", "x"))
	h.HandleMessage(privmsg("axb", "#test", "regex chars are quoted"))
	h.HandleMessage(privmsg("spambotx", "#test", "y"))

	if n != 2 {
		t.Errorf("got %d messages, want 2", n)
	}
}

func TestIRCSay(t *testing.T) {
	h, conn := newTestIRC(t)
	ctx := context.Background()

	if err := h.Say(ctx, "", "dropped"); err != nil {
		t.Fatal(err)
	}
	if err := h.Say(ctx, "#test", "one\ntwo"); err != nil {
		t.Fatal(err)
	}
	if err := h.Say(ctx, "#test", "dances", bridge.WithAction()); err != nil {
		t.Fatal(err)
	}
	want := []sentLine{
		{"#test", "one", false},
		{"#test", "two", false},
		{"#test", "dances", true},
	}
	if len(conn.lines) != len(want) {
		t.Fatalf("lines = %+v", conn.lines)
	}
	for i := range want {
		if conn.lines[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, conn.lines[i], want[i])
		}
	}
}

func TestIRCSayWrapsLongText(t *testing.T) {
	h, conn := newTestIRC(t)
	if err := h.Say(context.Background(), "#test", strings.Repeat("a", 1000)); err != nil {
		t.Fatal(err)
	}
	if len(conn.lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(conn.lines))
	}
	for _, l := range conn.lines {
		if len(l.text) > DefaultMaxBytesPerLine {
			t.Errorf("line of %d bytes exceeds budget", len(l.text))
		}
	}
}

func TestIRCReply(t *testing.T) {
	h, conn := newTestIRC(t)
	ctx := context.Background()

	pub := &bridge.Context{From: "alice", To: "#test", Nick: "alice"}
	if err := h.Reply(ctx, pub, "hi", bridge.WithNick()); err != nil {
		t.Fatal(err)
	}
	priv := &bridge.Context{From: "alice", To: "bridgebot", Nick: "alice", IsPrivate: true}
	if err := h.Reply(ctx, priv, "secret", bridge.WithNick()); err != nil {
		t.Fatal(err)
	}
	if conn.lines[0] != (sentLine{"#test", "alice: hi", false}) {
		t.Errorf("public reply = %+v", conn.lines[0])
	}
	if conn.lines[1] != (sentLine{"alice", "secret", false}) {
		t.Errorf("private reply = %+v", conn.lines[1])
	}
}

func TestIRCChannelState(t *testing.T) {
	h, _ := newTestIRC(t)

	var joins []IRCJoin
	var nicks []IRCNick
	var quits []IRCQuit
	h.Events().Join.Subscribe(func(j IRCJoin) { joins = append(joins, j) })
	h.Events().Nick.Subscribe(func(n IRCNick) { nicks = append(nicks, n) })
	h.Events().Quit.Subscribe(func(q IRCQuit) { quits = append(quits, q) })

	h.HandleMessage(ircmsg.Message{Source: "bridgebot!b@h", Command: "JOIN", Params: []string{"#Test"}})
	h.HandleMessage(ircmsg.Message{Source: "server", Command: "332", Params: []string{"bridgebot", "#test", "welcome"}})
	h.HandleMessage(ircmsg.Message{Source: "server", Command: "353", Params: []string{"bridgebot", "=", "#test", "@op +voiced plain bridgebot"}})
	h.HandleMessage(ircmsg.Message{Source: "carol!c@h", Command: "JOIN", Params: []string{"#test"}})
	h.HandleMessage(ircmsg.Message{Source: "op!o@h", Command: "MODE", Params: []string{"#test", "+o-v", "plain", "voiced"}})
	h.HandleMessage(ircmsg.Message{Source: "carol!c@h", Command: "NICK", Params: []string{"caroline"}})
	h.HandleMessage(ircmsg.Message{Source: "plain!p@h", Command: "QUIT", Params: []string{"bye"}})

	ch, ok := h.Channel("#TEST")
	if !ok {
		t.Fatal("channel not tracked")
	}
	if ch.Topic != "welcome" {
		t.Errorf("topic = %q", ch.Topic)
	}
	want := map[string]string{"op": "@", "voiced": "", "bridgebot": "", "caroline": ""}
	if len(ch.Users) != len(want) {
		t.Errorf("users = %v", ch.Users)
	}
	for nick, prefix := range want {
		if got, ok := ch.Users[nick]; !ok || got != prefix {
			t.Errorf("user %s = %q (%v), want %q", nick, got, ok, prefix)
		}
	}

	if len(joins) != 2 {
		t.Errorf("joins = %+v", joins)
	}
	if len(nicks) != 1 || nicks[0].OldNick != "carol" || nicks[0].NewNick != "caroline" || nicks[0].Channels[0] != "#test" {
		t.Errorf("nicks = %+v", nicks)
	}
	if len(quits) != 1 || quits[0].Reason != "bye" || len(quits[0].Channels) != 1 {
		t.Errorf("quits = %+v", quits)
	}

	h.HandleMessage(ircmsg.Message{Source: "bridgebot!b@h", Command: "PART", Params: []string{"#test"}})
	if _, ok := h.Channel("#test"); ok {
		t.Error("channel still tracked after self part")
	}
}

func TestIRCReadyJoinsChannels(t *testing.T) {
	h, conn := newTestIRC(t)
	conn.nick = "bridgebot_"
	var ready string
	h.Events().Ready.Subscribe(func(n string) { ready = n })

	h.onConnect()

	if ready != "bridgebot_" || h.Nick() != "bridgebot_" {
		t.Errorf("ready nick = %q, Nick() = %q", ready, h.Nick())
	}
	if len(conn.joined) != 1 || conn.joined[0] != "#test" {
		t.Errorf("joined = %v", conn.joined)
	}
}

func TestIRCPartWithReason(t *testing.T) {
	h, conn := newTestIRC(t)
	_ = h.Part("#a", "")
	_ = h.Part("#b", "later")
	if len(conn.raw) != 2 || conn.raw[1][0] != "PART" || conn.raw[1][2] != "later" {
		t.Errorf("raw = %v", conn.raw)
	}
}

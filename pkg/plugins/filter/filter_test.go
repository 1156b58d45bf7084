package filter

import (
	"context"
	"testing"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
)

func msg(from, to, nick, text string) *bridge.Message {
	return &bridge.Message{
		Context: bridge.Context{Nick: nick, Text: text},
		FromUID: from,
		ToUID:   to,
	}
}

func TestBuildSkipsBadRules(t *testing.T) {
	got := Build(config.FilterConfig{Filters: []config.FilterRule{
		{Text: "("},
		{Event: "later", Text: "x"},
		{Event: "receive"},
		{Nick: "^spam"},
		{Event: "receive", To: "^irc/"},
	}})
	if n := got[EventSend].len(); n != 1 {
		t.Errorf("send rules = %d, want 1", n)
	}
	if n := got[EventReceive].len(); n != 1 {
		t.Errorf("receive rules = %d, want 1", n)
	}
}

func TestRejects(t *testing.T) {
	f := Build(config.FilterConfig{Filters: []config.FilterRule{
		{From: "^telegram/-100$", Nick: "^bot"},
		{Text: "casino", FilterReply: true},
	}})[EventSend]

	tests := []struct {
		name string
		m    *bridge.Message
		want bool
	}{
		{"all patterns match", msg("telegram/-100", "irc/#a", "botty", "hi"), true},
		{"one pattern misses", msg("telegram/-200", "irc/#a", "botty", "hi"), false},
		{"second rule", msg("irc/#a", "telegram/-100", "bob", "best casino"), true},
		{"clean", msg("irc/#a", "telegram/-100", "bob", "hello"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Rejects(tt.m); got != tt.want {
				t.Errorf("Rejects = %v, want %v", got, tt.want)
			}
		})
	}

	reply := msg("irc/#a", "telegram/-100", "bob", "what?")
	reply.Extra.Reply = &bridge.ReplyInfo{Nick: "eve", Message: "casino link"}
	if !f.Rejects(reply) {
		t.Error("reply text not filtered")
	}
}

func TestUnfilters(t *testing.T) {
	f := Build(config.FilterConfig{
		Filters:   []config.FilterRule{{Text: "^!"}},
		Unfilters: []config.FilterRule{{From: "^irc/"}, {Nick: "^admin$"}},
	})[EventSend]

	if f.Rejects(msg("irc/#a", "", "bob", "hi")) {
		t.Error("allowed source rejected")
	}
	if f.Rejects(msg("discord/1", "", "admin", "hi")) {
		t.Error("allowed nick rejected")
	}
	if !f.Rejects(msg("discord/1", "", "bob", "hi")) {
		t.Error("message outside the allow list passed")
	}
	if !f.Rejects(msg("irc/#a", "", "bob", "!cmd")) {
		t.Error("filter did not win over allow list")
	}
}

func TestRegisterReceive(t *testing.T) {
	r := bridge.NewRouter()
	base := r.HookCount(bridge.EventReceive)
	Register(r, config.FilterConfig{Filters: []config.FilterRule{{Event: "receive", To: "^irc/"}}})
	if n := r.HookCount(bridge.EventReceive); n != base+1 {
		t.Fatalf("receive hooks = %d, want %d", n, base+1)
	}

	err := r.EmitHook(context.Background(), bridge.EventReceive, msg("telegram/1", "irc/#a", "n", "t"))
	if err != bridge.ErrVetoed {
		t.Errorf("EmitHook = %v, want ErrVetoed", err)
	}
}

package bridge

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

func commandMessage(h Handler, to, command string) *Message {
	m := ircMessage(h, to, "alice", "!"+command)
	m.Command = command
	return m
}

func TestCommandRegistersWithHandlersOnce(t *testing.T) {
	r, hs, _ := testRouter(nil)

	r.AddCommandFunc("ping", nil, CommandOptions{DisallowedClients: []string{"irc"}})
	if hs["IRC"].hasCommand("ping") {
		t.Error("disallowed client got the command")
	}
	if !hs["Telegram"].hasCommand("ping") || !hs["Discord"].hasCommand("ping") {
		t.Error("command missing on allowed clients")
	}

	// re-registration leaves the handler tokens alone
	r.AddCommandFunc("ping", nil, CommandOptions{AllowedClients: []string{"irc"}})
	if hs["IRC"].hasCommand("ping") {
		t.Error("re-registration touched handlers")
	}

	r.AddCommandFunc("only", nil, CommandOptions{AllowedClients: []string{"tg"}})
	if !hs["Telegram"].hasCommand("only") || hs["Discord"].hasCommand("only") {
		t.Error("allowed client list not honoured")
	}
}

func TestCommandPhases(t *testing.T) {
	r, hs, _ := testRouter([][]string{{"irc/#a", "tg/-100"}})

	var mu sync.Mutex
	var phases []string
	record := func(name string) Hook {
		return func(context.Context, *Message) error {
			mu.Lock()
			defer mu.Unlock()
			phases = append(phases, name)
			return nil
		}
	}
	r.AddCommand("ping", Callbacks{
		Send:    record("send"),
		Receive: record("receive"),
		Sent:    record("sent"),
	}, CommandOptions{})

	if !r.Send(context.Background(), commandMessage(hs["IRC"], "#a", "ping")) {
		t.Fatal("Send failed")
	}
	if !slices.Equal(phases, []string{"send", "receive", "sent"}) {
		t.Errorf("phases = %v", phases)
	}
}

func TestCommandDisables(t *testing.T) {
	r, hs, _ := testRouter([][]string{{"irc/#a", "tg/-100"}, {"irc/#b", "tg/-200"}})

	ran := 0
	r.AddCommand("ping", Callbacks{Send: func(context.Context, *Message) error {
		ran++
		return nil
	}}, CommandOptions{Disables: []string{"irc/#a", "not-a-uid"}})

	r.Send(context.Background(), commandMessage(hs["IRC"], "#a", "ping"))
	if ran != 0 {
		t.Error("command ran in a disabled group")
	}

	r.Send(context.Background(), commandMessage(hs["IRC"], "#b", "ping"))
	if ran != 1 {
		t.Errorf("command ran %d times in an enabled group, want 1", ran)
	}

	cmd, _ := r.Command("ping")
	if !slices.Equal(cmd.Disables, []string{"irc/#a"}) {
		t.Errorf("invalid uid kept: %v", cmd.Disables)
	}
}

func TestCommandEnables(t *testing.T) {
	r, hs, _ := testRouter([][]string{{"irc/#a", "tg/-100"}, {"irc/#b", "tg/-200"}})

	ran := 0
	r.AddCommand("ping", Callbacks{Send: func(context.Context, *Message) error {
		ran++
		return nil
	}}, CommandOptions{Enables: []string{"irc/#b"}, Disables: []string{"irc/#b"}})

	r.Send(context.Background(), commandMessage(hs["IRC"], "#a", "ping"))
	r.Send(context.Background(), commandMessage(hs["IRC"], "#b", "ping"))
	if ran != 1 {
		t.Errorf("ran = %d, want 1 (enables only, disables ignored)", ran)
	}
}

func TestCommandSendErrorVetoes(t *testing.T) {
	r, hs, procs := testRouter([][]string{{"irc/#a", "tg/-100"}})
	r.AddCommand("secret", Callbacks{Send: func(context.Context, *Message) error {
		return errors.New("not relayed")
	}}, CommandOptions{})

	if r.Send(context.Background(), commandMessage(hs["IRC"], "#a", "secret")) {
		t.Error("command send error should veto")
	}
	if len(procs["Telegram"].received) != 0 {
		t.Error("vetoed command delivered")
	}
}

func TestUnknownCommandRelays(t *testing.T) {
	r, hs, procs := testRouter([][]string{{"irc/#a", "tg/-100"}})
	if !r.Send(context.Background(), commandMessage(hs["IRC"], "#a", "nobody")) {
		t.Error("unknown command should relay like text")
	}
	if len(procs["Telegram"].received) != 1 {
		t.Error("not delivered")
	}
}

func TestDeleteCommand(t *testing.T) {
	r, hs, _ := testRouter(nil)
	r.AddCommandFunc("ping", nil, CommandOptions{})
	r.DeleteCommand("ping")

	if _, ok := r.Command("ping"); ok {
		t.Error("command still registered")
	}
	for typ, h := range hs {
		if h.hasCommand("ping") {
			t.Errorf("%s still has the command", typ)
		}
	}
}

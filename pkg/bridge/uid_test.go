package bridge

import "testing"

func TestParseUID(t *testing.T) {
	p := NewUIDParser()

	tests := []struct {
		in     string
		client string
		id     string
		uid    string
	}{
		{"irc/#Test", "IRC", "#test", "irc/#test"},
		{"Telegram/-100123", "Telegram", "-100123", "telegram/-100123"},
		{"discord/42/extra", "Discord", "42/extra", "discord/42/extra"},
		{"Matrix/!room", "matrix", "!room", "matrix/!room"},
	}
	for _, tt := range tests {
		u := p.Parse(tt.in)
		if !u.Valid() {
			t.Fatalf("Parse(%q) invalid", tt.in)
		}
		if u.Client != tt.client || u.ID != tt.id || u.UID != tt.uid {
			t.Errorf("Parse(%q) = %+v, want {%s %s %s}", tt.in, u, tt.client, tt.id, tt.uid)
		}
	}

	for _, bad := range []string{"", "irc", "/x", "irc/"} {
		if u := p.Parse(bad); u.Valid() {
			t.Errorf("Parse(%q) should be invalid, got %+v", bad, u)
		}
	}
}

func TestParseUIDRoundTrip(t *testing.T) {
	p := NewUIDParser()
	p.SetHandlers([]Handler{newFakeHandler("Telegram", "tg"), newFakeHandler("IRC", "irc")})

	for _, s := range []string{"tg/-100", "TELEGRAM/-100", "irc/#Chan", "irc/Nick"} {
		first := p.Parse(s)
		second := p.Parse(first.UID)
		if first != second {
			t.Errorf("round trip of %q: %+v != %+v", s, first, second)
		}
	}
}

func TestSetHandlersShortIDs(t *testing.T) {
	p := NewUIDParser()
	p.SetHandlers([]Handler{newFakeHandler("Telegram", "TG")})

	u := p.Parse("tg/-100")
	if u.Client != "Telegram" || u.UID != "telegram/-100" {
		t.Errorf("short id not resolved: %+v", u)
	}

	// the table is replaced, so IRC is now an unknown prefix
	if u := p.Parse("irc/#a"); u.Client != "irc" {
		t.Errorf("expected pass-through client, got %+v", u)
	}
}

func TestComposeUID(t *testing.T) {
	if got := ComposeUID("IRC", "#Chan"); got != "irc/#chan" {
		t.Errorf("got %q", got)
	}
}

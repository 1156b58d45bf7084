package bridge

import (
	"testing"

	"github.com/tinyland-inc/picobridge/pkg/config"
)

func TestTruncate(t *testing.T) {
	tests := []struct{ in, want string }{
		{"short", "short"},
		{"exactly10!", "exactly10!"},
		{"this is too long", "this is..."},
		{"line\nbreaks\nhere", "linebre..."},
		{"a\nb", "ab"},
		{"一二三四五六七八九十十一", "一二三四五六七..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, 10); got != tt.want {
			t.Errorf("Truncate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	got := Render("[{nick}] {text}{missing}", map[string]string{"nick": "alice", "text": "hi"})
	if got != "[alice] hi" {
		t.Errorf("got %q", got)
	}
}

func TestTemplatePrecedence(t *testing.T) {
	set := config.DefaultMessageStyle().Simple
	m := &Message{}
	if Template(set, m) != set.Message {
		t.Error("plain message")
	}
	m.Extra.Forward = &ForwardInfo{Nick: "f"}
	if Template(set, m) != set.Forward {
		t.Error("forward")
	}
	m.Extra.Reply = &ReplyInfo{Nick: "r"}
	if Template(set, m) != set.Reply {
		t.Error("reply beats forward")
	}
	m.Extra.IsAction = true
	if Template(set, m) != set.Action {
		t.Error("action beats reply")
	}
	m.Extra.IsNotice = true
	if Template(set, m) != set.Notice {
		t.Error("notice beats everything")
	}
}

func TestStyleFor(t *testing.T) {
	style := config.DefaultMessageStyle()

	tests := []struct {
		name    string
		clients int
		short   string
		notice  bool
		want    config.StyleSet
	}{
		{"two-way labelled", 2, "irc", false, style.Simple},
		{"two-way notice", 2, "", true, style.Simple},
		{"three-way labelled", 3, "irc", false, style.Complex},
		{"three-way notice", 3, "", true, style.Complex},
		{"three-way unlabelled", 3, "", false, style.Simple},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Message{}
			m.Extra.Clients = tt.clients
			m.Extra.ClientName.Short = tt.short
			m.Extra.IsNotice = tt.notice
			if got := StyleFor(style, m); got != tt.want {
				t.Errorf("StyleFor = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTemplateVars(t *testing.T) {
	h := newFakeHandler("IRC", "irc")
	m := ircMessage(h, "#a", "alice", "hi")
	m.Extra.Reply = &ReplyInfo{Nick: "bob", Message: "a rather long line", IsText: true}

	vars := TemplateVars(m)
	if vars["client_short"] != "irc" || vars["client_full"] != "IRC" {
		t.Errorf("client names fall back to handler: %v", vars)
	}
	if vars["reply_text"] != "a rathe..." {
		t.Errorf("reply_text = %q", vars["reply_text"])
	}

	got := Render(config.DefaultMessageStyle().Simple.Reply, vars)
	if got != "[alice] Re bob 「a rathe...」: hi" {
		t.Errorf("got %q", got)
	}
}

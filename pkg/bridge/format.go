package bridge

import (
	"regexp"
	"strings"

	"github.com/tinyland-inc/picobridge/pkg/config"
)

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Truncate drops newlines and shortens s to n runes, ending in "...".
func Truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", "")
	r := []rune(s)
	if len(r) > n {
		return string(r[:max(0, n-3)]) + "..."
	}
	return s
}

// Render substitutes {name} placeholders from vars. Unknown names render
// empty.
func Render(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(p string) string {
		return vars[p[1:len(p)-1]]
	})
}

// TemplateVars collects the placeholder values for m.
func TemplateVars(m *Message) map[string]string {
	vars := map[string]string{
		"nick":         m.Nick,
		"from":         m.From,
		"to":           m.To,
		"text":         m.Text,
		"client_short": m.Extra.ClientName.Short,
		"client_full":  m.Extra.ClientName.Full,
		"command":      m.Command,
		"param":        m.Param,
	}
	if m.Handler != nil {
		if vars["client_short"] == "" {
			vars["client_short"] = m.Handler.ID()
		}
		if vars["client_full"] == "" {
			vars["client_full"] = m.Handler.Type()
		}
	}
	if r := m.Extra.Reply; r != nil {
		vars["reply_nick"] = r.Nick
		vars["reply_user"] = r.Username
		if r.IsText {
			vars["reply_text"] = Truncate(r.Message, 10)
		} else {
			vars["reply_text"] = r.Message
		}
	}
	if f := m.Extra.Forward; f != nil {
		vars["forward_nick"] = f.Nick
		vars["forward_user"] = f.Username
	}
	return vars
}

// Template picks the notice, action, reply, forward or message template of
// set, in that order of precedence.
func Template(set config.StyleSet, m *Message) string {
	switch {
	case m.Extra.IsNotice:
		return set.Notice
	case m.Extra.IsAction:
		return set.Action
	case m.Extra.Reply != nil:
		return set.Reply
	case m.Extra.Forward != nil:
		return set.Forward
	}
	return set.Message
}

// StyleFor chooses between the simple and complex sets. The complex,
// labelled style is used only when three or more endpoints take part and
// the message carries a client label or is a notice.
func StyleFor(style config.MessageStyle, m *Message) config.StyleSet {
	if m.Extra.Clients >= 3 && (m.Extra.ClientName.Short != "" || m.Extra.IsNotice) {
		return style.Complex
	}
	return style.Simple
}

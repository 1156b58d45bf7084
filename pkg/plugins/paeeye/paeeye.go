// Package paeeye lets chat users keep a message out of the bridge by
// marking it.
package paeeye

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

type Paeeye struct {
	prepend string
	inline  string
	re      *regexp.Regexp
}

// New compiles cfg. It returns nil when no marker is configured.
func New(cfg config.PaeeyeConfig) (*Paeeye, error) {
	p := &Paeeye{prepend: cfg.Prepend, inline: cfg.Inline}
	if cfg.Regexp != "" {
		re, err := regexp.Compile(cfg.Regexp)
		if err != nil {
			return nil, errors.Wrapf(err, "paeeye: regexp %q", cfg.Regexp)
		}
		p.re = re
	}
	if p.prepend == "" && p.inline == "" && p.re == nil {
		return nil, nil
	}
	return p, nil
}

// Match reports whether text carries one of the markers.
func (p *Paeeye) Match(text string) bool {
	if p.prepend != "" && strings.HasPrefix(text, p.prepend) {
		return true
	}
	if p.inline != "" && strings.Contains(text, p.inline) {
		return true
	}
	return p.re != nil && p.re.MatchString(text)
}

// Hook vetoes messages whose text, or the text they reply to, is marked.
func (p *Paeeye) Hook(_ context.Context, m *bridge.Message) error {
	if p.Match(m.Text) || (m.Extra.Reply != nil && p.Match(m.Extra.Reply.Message)) {
		logger.DebugCF("paeeye", "Ignored", map[string]any{
			"msg_id": m.MsgID,
			"from":   m.FromUID,
		})
		return bridge.ErrVetoed
	}
	return nil
}

// Register installs the paeeye send hook on r. It is a no-op for an empty
// configuration.
func Register(r *bridge.Router, cfg config.PaeeyeConfig) error {
	p, err := New(cfg)
	if err != nil || p == nil {
		return err
	}
	r.AddHook(bridge.EventSend, p.Hook)
	return nil
}

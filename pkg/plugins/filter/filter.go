// Package filter drops bridged messages by sender, destination, nick or
// text.
package filter

import (
	"context"
	"regexp"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

const (
	EventSend    = "send"
	EventReceive = "receive"
)

// Rule is a compiled filter rule. Nil patterns are not tested.
type Rule struct {
	Event       string
	From        *regexp.Regexp
	To          *regexp.Regexp
	Nick        *regexp.Regexp
	Text        *regexp.Regexp
	FilterReply bool
}

func compileRule(r config.FilterRule) (*Rule, error) {
	out := &Rule{Event: r.Event, FilterReply: r.FilterReply}
	if out.Event == "" {
		out.Event = EventSend
	}
	for _, f := range []struct {
		src string
		dst **regexp.Regexp
	}{
		{r.From, &out.From},
		{r.To, &out.To},
		{r.Nick, &out.Nick},
		{r.Text, &out.Text},
	} {
		if f.src == "" {
			continue
		}
		re, err := regexp.Compile(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = re
	}
	return out, nil
}

func (r *Rule) empty() bool {
	return r.From == nil && r.To == nil && r.Nick == nil && r.Text == nil
}

func matches(re *regexp.Regexp, s string) bool {
	return re == nil || re.MatchString(s)
}

// Match reports whether every pattern of r matches m. With FilterReply set
// the replied-to nick and text are tried as well.
func (r *Rule) Match(m *bridge.Message) bool {
	if !matches(r.From, m.FromUID) || !matches(r.To, m.ToUID) {
		return false
	}
	if matches(r.Nick, m.Nick) && matches(r.Text, m.Text) {
		return true
	}
	reply := m.Extra.Reply
	return r.FilterReply && reply != nil &&
		matches(r.Nick, reply.Nick) && matches(r.Text, reply.Message)
}

// Filter holds the rules of one hook event.
type Filter struct {
	filters   []*Rule
	unfilters []*Rule
}

// Rejects reports whether m should be dropped: a filter rule matches, or
// allow-list rules exist and none of them matches.
func (f *Filter) Rejects(m *bridge.Message) bool {
	for _, r := range f.filters {
		if r.Match(m) {
			return true
		}
	}
	if len(f.unfilters) == 0 {
		return false
	}
	for _, r := range f.unfilters {
		if r.Match(m) {
			return false
		}
	}
	return true
}

func (f *Filter) Hook(_ context.Context, m *bridge.Message) error {
	if f.Rejects(m) {
		logger.DebugCF("filter", "Message filtered", map[string]any{
			"msg_id": m.MsgID,
			"from":   m.FromUID,
			"to":     m.ToUID,
		})
		return bridge.ErrVetoed
	}
	return nil
}

func (f *Filter) len() int {
	return len(f.filters) + len(f.unfilters)
}

// Build compiles cfg into one Filter per event. Rules with a bad pattern,
// an unknown event or no pattern at all are logged and skipped.
func Build(cfg config.FilterConfig) map[string]*Filter {
	out := map[string]*Filter{
		EventSend:    {},
		EventReceive: {},
	}
	add := func(kind string, rules []config.FilterRule, allow bool) {
		for i, rc := range rules {
			r, err := compileRule(rc)
			if err != nil {
				logger.WarnCF("filter", "Skipping rule with bad pattern", map[string]any{
					"list":  kind,
					"index": i,
					"error": err.Error(),
				})
				continue
			}
			f, ok := out[r.Event]
			if !ok {
				logger.WarnCF("filter", "Skipping rule with unknown event", map[string]any{
					"list":  kind,
					"index": i,
					"event": r.Event,
				})
				continue
			}
			if r.empty() {
				continue
			}
			if allow {
				f.unfilters = append(f.unfilters, r)
			} else {
				f.filters = append(f.filters, r)
			}
		}
	}
	add("filters", cfg.Filters, false)
	add("unfilters", cfg.Unfilters, true)
	return out
}

// Register installs the send and receive filters that have rules.
func Register(r *bridge.Router, cfg config.FilterConfig) {
	filters := Build(cfg)
	if f := filters[EventSend]; f.len() > 0 {
		r.AddHook(bridge.EventSend, f.Hook)
	}
	if f := filters[EventReceive]; f.len() > 0 {
		r.AddHook(bridge.EventReceive, f.Hook)
	}
}

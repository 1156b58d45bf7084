package bridge

import (
	"regexp"
	"sync"
)

// Forward bot styles: how another relay bot (or this one) prefixes the
// real author's nick.
const (
	ForwardSelf     = "self"
	ForwardBrackets = "[]"
	ForwardAngles   = "<>"
)

var forwardBotPatterns = map[string]*regexp.Regexp{
	ForwardSelf:     regexp.MustCompile(`(?s)^\[(.*?)\] (.*)$`),
	ForwardBrackets: regexp.MustCompile(`(?s)^\[(.*?)\](?::? |\n)(.*)$`),
	ForwardAngles:   regexp.MustCompile(`(?s)^<(.*?)>(?::? |\n)(.*)$`),
}

// ForwardBots maps a relay bot's identity (Telegram username, Discord user
// id) to the style it writes messages in.
type ForwardBots struct {
	mu   sync.RWMutex
	bots map[string]string
}

func NewForwardBots(bots map[string]string) *ForwardBots {
	fb := &ForwardBots{bots: make(map[string]string, len(bots))}
	for k, v := range bots {
		fb.bots[k] = v
	}
	return fb
}

// Set registers or replaces a bot. An empty key is ignored.
func (fb *ForwardBots) Set(key, style string) {
	if key == "" {
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.bots[key] = style
}

func (fb *ForwardBots) Style(key string) (string, bool) {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	s, ok := fb.bots[key]
	return s, ok
}

// Parse extracts the real nick and text from a message written by the bot
// key. ok is false when key is not a known bot or text does not match its
// style. Only the outermost label is removed.
func (fb *ForwardBots) Parse(key, text string) (nick, body string, ok bool) {
	style, known := fb.Style(key)
	if !known {
		return "", "", false
	}
	re, known := forwardBotPatterns[style]
	if !known {
		return "", "", false
	}
	m := re.FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return "", "", false
	}
	return m[1], m[2], true
}

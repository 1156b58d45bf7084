package bridge

import (
	"context"
	"sync"
)

type fakeHandler struct {
	typ, id string

	mu       sync.Mutex
	said     []string
	commands map[string]CommandFunc
}

func newFakeHandler(typ, id string) *fakeHandler {
	return &fakeHandler{typ: typ, id: id, commands: map[string]CommandFunc{}}
}

func (h *fakeHandler) Type() string { return h.typ }
func (h *fakeHandler) ID() string   { return h.id }

func (h *fakeHandler) Say(_ context.Context, target, text string, _ ...SayOption) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.said = append(h.said, target+": "+text)
	return nil
}

func (h *fakeHandler) Reply(ctx context.Context, c *Context, text string, opts ...SayOption) error {
	return h.Say(ctx, c.To, text, opts...)
}

func (h *fakeHandler) AddCommand(name string, fn CommandFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[name] = fn
}

func (h *fakeHandler) DeleteCommand(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.commands, name)
}

func (h *fakeHandler) hasCommand(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.commands[name]
	return ok
}

type recordingProcessor struct {
	mu       sync.Mutex
	received []*Message
	fail     map[string]error
}

func (p *recordingProcessor) Init() error { return nil }

func (p *recordingProcessor) Receive(_ context.Context, m *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, m)
	if err, ok := p.fail[m.ToUID]; ok {
		return err
	}
	return nil
}

func (p *recordingProcessor) targets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.received))
	for _, m := range p.received {
		out = append(out, m.ToUID)
	}
	return out
}

// testRouter wires an IRC/Telegram/Discord trio of fakes with recording
// processors.
func testRouter(groups [][]string) (*Router, map[string]*fakeHandler, map[string]*recordingProcessor) {
	r := NewRouter()
	handlers := map[string]*fakeHandler{
		"IRC":      newFakeHandler("IRC", "irc"),
		"Telegram": newFakeHandler("Telegram", "tg"),
		"Discord":  newFakeHandler("Discord", "dc"),
	}
	procs := map[string]*recordingProcessor{}
	for typ, h := range handlers {
		r.AddHandler(h)
		p := &recordingProcessor{}
		procs[typ] = p
		r.AddProcessor(typ, p)
	}
	r.LoadRoutes(groups, nil)
	return r, handlers, procs
}

func ircMessage(h Handler, to, nick, text string) *Message {
	return NewMessage(NewContext(Context{
		From:    nick,
		To:      to,
		Nick:    nick,
		Text:    text,
		Handler: h,
	}))
}

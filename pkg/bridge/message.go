package bridge

import "errors"

var (
	ErrInvalidUID = errors.New("invalid uid")
	ErrNoHandler  = errors.New("context has no handler")
	// ErrVetoed is what bridge.send hooks conventionally return to stop a
	// message. Any non-nil error vetoes.
	ErrVetoed = errors.New("message vetoed")
)

// Message is a Context with its source and destination resolved to UIDs.
type Message struct {
	Context

	FromClient string
	ToClient   string
	FromUID    string
	ToUID      string
}

// NewMessage wraps c under a new message id. The client of both ends is
// the type of c's handler; without a handler the identity fields stay empty
// until set explicitly.
func NewMessage(c *Context) *Message {
	m := &Message{Context: *c}
	m.Extra = c.Extra.Clone()
	m.MsgID = nextMsgID()
	if c.Handler != nil {
		m.FromClient = c.Handler.Type()
		m.ToClient = c.Handler.Type()
		m.FromUID = ComposeUID(m.FromClient, c.From)
		m.ToUID = ComposeUID(m.ToClient, c.To)
	}
	return m
}

// Clone returns a deep copy of m with a new message id.
func (m *Message) Clone() *Message {
	out := *m
	out.Extra = m.Extra.Clone()
	out.MsgID = nextMsgID()
	return &out
}

// SetToUID re-targets m. An unparseable uid leaves m unchanged.
func (m *Message) SetToUID(p *UIDParser, uid string) error {
	u := p.Parse(uid)
	if !u.Valid() {
		return ErrInvalidUID
	}
	m.To = u.ID
	m.ToClient = u.Client
	m.ToUID = u.UID
	return nil
}


package bridge

import (
	"context"
	"sync/atomic"
)

var lastMsgID atomic.Int64

func nextMsgID() int64 {
	return lastMsgID.Add(1)
}

// CommandFunc runs when a handler recognizes a registered command token.
type CommandFunc func(ctx context.Context, c *Context) error

// Handler is a platform session: it owns the SDK client, turns native
// events into Contexts and sends text back out.
type Handler interface {
	// Type is the canonical platform name ("IRC", "Telegram", "Discord").
	Type() string
	// ID is the short code also accepted as a UID prefix ("I", "T", "D").
	ID() string
	Say(ctx context.Context, target, text string, opts ...SayOption) error
	Reply(ctx context.Context, c *Context, text string, opts ...SayOption) error
	AddCommand(name string, fn CommandFunc)
	DeleteCommand(name string)
}

// SayOptions carries per-platform send switches.
type SayOptions struct {
	IsAction bool
	// WithNick prefixes replies in public chats with "nick: ".
	WithNick bool
	// KeepLines splits each input line on its own instead of wrapping the
	// whole text.
	KeepLines bool
	ParseMode string
	ReplyTo   string
	Silent    bool
}

type SayOption func(*SayOptions)

func WithAction() SayOption { return func(o *SayOptions) { o.IsAction = true } }
func WithNick() SayOption { return func(o *SayOptions) { o.WithNick = true } }
func WithKeepLines() SayOption { return func(o *SayOptions) { o.KeepLines = true } }
func WithParseMode(m string) SayOption { return func(o *SayOptions) { o.ParseMode = m } }
func WithReplyTo(id string) SayOption { return func(o *SayOptions) { o.ReplyTo = id } }
func WithSilent() SayOption { return func(o *SayOptions) { o.Silent = true } }

func ApplySayOptions(opts []SayOption) SayOptions {
	var o SayOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type ClientName struct {
	Short string `json:"short"`
	Full  string `json:"full"`
}

type ReplyInfo struct {
	ID            string `json:"id"`
	Nick          string `json:"nick"`
	Username      string `json:"username,omitempty"`
	Message       string `json:"message"`
	IsText        bool   `json:"is_text"`
	Discriminator string `json:"discriminator,omitempty"`
}

type ForwardInfo struct {
	Nick     string `json:"nick"`
	Username string `json:"username,omitempty"`
}

// File is an attachment on the source platform. Prepare, when set,
// resolves URL (for example a Telegram getFile call) before download.
type File struct {
	Client   string `json:"client"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Type     string `json:"type"`
	ID       string `json:"id"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	Prepare func(ctx context.Context, f *File) error `json:"-"`
}

// Upload is a re-hosted file ready to be linked or sent on.
type Upload struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Extra holds the per-message metadata the bridge and processors share.
type Extra struct {
	Clients    int          `json:"clients,omitempty"`
	MapTo      []string     `json:"map_to,omitempty"`
	ClientName ClientName   `json:"client_name"`
	Reply      *ReplyInfo   `json:"reply,omitempty"`
	Forward    *ForwardInfo `json:"forward,omitempty"`
	Files      []File       `json:"files,omitempty"`
	Uploads    []Upload     `json:"uploads,omitempty"`

	Username      string `json:"username,omitempty"`
	Discriminator string `json:"discriminator,omitempty"`
	IsChannel     bool   `json:"is_channel,omitempty"`
	IsImage       bool   `json:"is_image,omitempty"`
	ImageCaption  string `json:"image_caption,omitempty"`
	IsAction      bool   `json:"is_action,omitempty"`
	IsNotice      bool   `json:"is_notice,omitempty"`
	PlainText     bool   `json:"plain_text,omitempty"`
}

// Clone deep-copies slices and pointed-to structs.
func (e Extra) Clone() Extra {
	out := e
	if e.MapTo != nil {
		out.MapTo = append([]string(nil), e.MapTo...)
	}
	if e.Reply != nil {
		r := *e.Reply
		out.Reply = &r
	}
	if e.Forward != nil {
		f := *e.Forward
		out.Forward = &f
	}
	if e.Files != nil {
		out.Files = append([]File(nil), e.Files...)
	}
	if e.Uploads != nil {
		out.Uploads = append([]Upload(nil), e.Uploads...)
	}
	return out
}

// Context is a platform-neutral message envelope.
type Context struct {
	From      string
	To        string
	Nick      string
	Text      string
	IsPrivate bool
	Command   string
	Param     string
	Extra     Extra
	Handler   Handler
	RawData   any

	MsgID int64
}

// NewContext copies c and assigns a fresh message id.
func NewContext(c Context) *Context {
	c.MsgID = nextMsgID()
	return &c
}

// Reply answers c on the handler it came from.
func (c *Context) Reply(ctx context.Context, text string, opts ...SayOption) error {
	if c.Handler == nil {
		return ErrNoHandler
	}
	return c.Handler.Reply(ctx, c, text, opts...)
}

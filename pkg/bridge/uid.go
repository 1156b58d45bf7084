package bridge

import (
	"strings"
	"sync"
)

// UID addresses a chat on a platform: "<client>/<id>".
type UID struct {
	// Client is the canonical platform name when the prefix is known,
	// otherwise the lower-cased prefix.
	Client string
	ID     string
	UID    string
}

func (u UID) Valid() bool {
	return u.UID != ""
}

func (u UID) String() string {
	return u.UID
}

// ComposeUID builds the UID string for id on client.
func ComposeUID(client, id string) string {
	return strings.ToLower(client) + "/" + strings.ToLower(id)
}

// UIDParser resolves short and full client prefixes to canonical platform
// names.
type UIDParser struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewUIDParser() *UIDParser {
	return &UIDParser{
		names: map[string]string{
			"irc":      "IRC",
			"telegram": "Telegram",
			"discord":  "Discord",
		},
	}
}

// SetHandlers rebuilds the prefix table from the running handlers: both the
// handler id and its type map to the type.
func (p *UIDParser) SetHandlers(handlers []Handler) {
	names := make(map[string]string, len(handlers)*2)
	for _, h := range handlers {
		names[strings.ToLower(h.ID())] = h.Type()
		names[strings.ToLower(h.Type())] = h.Type()
	}

	p.mu.Lock()
	p.names = names
	p.mu.Unlock()
}

// Resolve maps a client prefix to its canonical name. Unknown prefixes come
// back lower-cased.
func (p *UIDParser) Resolve(client string) string {
	client = strings.ToLower(client)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if full, ok := p.names[client]; ok {
		return full
	}
	return client
}

// Parse splits s at the first "/". Input without a separator, or with an
// empty client or id, yields the zero UID.
func (p *UIDParser) Parse(s string) UID {
	client, id, ok := strings.Cut(s, "/")
	if !ok || client == "" || id == "" {
		return UID{}
	}
	client = p.Resolve(client)
	id = strings.ToLower(id)
	return UID{
		Client: client,
		ID:     id,
		UID:    strings.ToLower(client) + "/" + id,
	}
}

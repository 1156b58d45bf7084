package bus

import "time"

// Kind classifies a bridge event.
type Kind string

const (
	KindSend    Kind = "send"
	KindVeto    Kind = "veto"
	KindDeliver Kind = "deliver"
	KindFail    Kind = "fail"
	KindSent    Kind = "sent"
	KindCommand Kind = "command"
)

// Event is a routing outcome as seen by operators.
type Event struct {
	ID      uint64    `json:"id"`
	Kind    Kind      `json:"kind"`
	MsgID   int64     `json:"msg_id"`
	FromUID string    `json:"from_uid"`
	ToUID   string    `json:"to_uid"`
	Nick    string    `json:"nick,omitempty"`
	Text    string    `json:"text,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

package bridge

import (
	"errors"
	"testing"
)

func TestNewMessageDerivesIdentity(t *testing.T) {
	c := NewContext(Context{From: "Alice", To: "#Chan", Handler: newFakeHandler("IRC", "irc")})
	m := NewMessage(c)

	if m.FromClient != "IRC" || m.ToClient != "IRC" {
		t.Errorf("clients = %s/%s", m.FromClient, m.ToClient)
	}
	if m.FromUID != "irc/alice" || m.ToUID != "irc/#chan" {
		t.Errorf("uids = %s %s", m.FromUID, m.ToUID)
	}
	if m.MsgID <= c.MsgID {
		t.Errorf("message id %d not after context id %d", m.MsgID, c.MsgID)
	}
}

func TestMsgIDMonotonic(t *testing.T) {
	a := NewContext(Context{})
	b := NewContext(Context{})
	if b.MsgID <= a.MsgID {
		t.Errorf("ids not increasing: %d then %d", a.MsgID, b.MsgID)
	}
}

func TestSetToUID(t *testing.T) {
	p := NewUIDParser()
	m := NewMessage(NewContext(Context{To: "#a", Handler: newFakeHandler("IRC", "irc")}))

	if err := m.SetToUID(p, "telegram/-100"); err != nil {
		t.Fatal(err)
	}
	if m.To != "-100" || m.ToClient != "Telegram" || m.ToUID != "telegram/-100" {
		t.Errorf("got %+v", m)
	}

	if err := m.SetToUID(p, "garbage"); !errors.Is(err, ErrInvalidUID) {
		t.Errorf("err = %v", err)
	}
	if m.ToUID != "telegram/-100" {
		t.Error("invalid uid modified the message")
	}
}

func TestExtraClone(t *testing.T) {
	e := Extra{
		MapTo:   []string{"a"},
		Reply:   &ReplyInfo{Nick: "r"},
		Forward: &ForwardInfo{Nick: "f"},
		Files:   []File{{ID: "1"}},
		Uploads: []Upload{{URL: "u"}},
	}
	c := e.Clone()
	c.MapTo[0] = "b"
	c.Reply.Nick = "x"
	c.Forward.Nick = "y"
	c.Files[0].ID = "2"
	c.Uploads[0].URL = "v"

	if e.MapTo[0] != "a" || e.Reply.Nick != "r" || e.Forward.Nick != "f" || e.Files[0].ID != "1" || e.Uploads[0].URL != "u" {
		t.Errorf("clone shares state: %+v", e)
	}
}

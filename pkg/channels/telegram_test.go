package channels

import (
	"context"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
)

type fakeTelegramAPI struct {
	messages []*telego.SendMessageParams
	photos   []*telego.SendPhotoParams
	docs     []*telego.SendDocumentParams
	nextID   int
}

func (f *fakeTelegramAPI) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.messages = append(f.messages, p)
	f.nextID++
	return &telego.Message{MessageID: f.nextID}, nil
}

func (f *fakeTelegramAPI) SendPhoto(_ context.Context, p *telego.SendPhotoParams) (*telego.Message, error) {
	f.photos = append(f.photos, p)
	return &telego.Message{}, nil
}

func (f *fakeTelegramAPI) SendSticker(context.Context, *telego.SendStickerParams) (*telego.Message, error) {
	return &telego.Message{}, nil
}

func (f *fakeTelegramAPI) SendAudio(context.Context, *telego.SendAudioParams) (*telego.Message, error) {
	return &telego.Message{}, nil
}

func (f *fakeTelegramAPI) SendVoice(context.Context, *telego.SendVoiceParams) (*telego.Message, error) {
	return &telego.Message{}, nil
}

func (f *fakeTelegramAPI) SendVideo(context.Context, *telego.SendVideoParams) (*telego.Message, error) {
	return &telego.Message{}, nil
}

func (f *fakeTelegramAPI) SendAnimation(context.Context, *telego.SendAnimationParams) (*telego.Message, error) {
	return &telego.Message{}, nil
}

func (f *fakeTelegramAPI) SendDocument(_ context.Context, p *telego.SendDocumentParams) (*telego.Message, error) {
	f.docs = append(f.docs, p)
	return &telego.Message{}, nil
}

func (f *fakeTelegramAPI) GetFile(_ context.Context, p *telego.GetFileParams) (*telego.File, error) {
	return &telego.File{FileID: p.FileID, FilePath: "photos/" + p.FileID + ".jpg"}, nil
}

func (f *fakeTelegramAPI) FileDownloadURL(path string) string {
	return "https://files.example/" + path
}

func newTestTelegram(t *testing.T, cfg config.TelegramConfig) (*TelegramHandler, *fakeTelegramAPI) {
	t.Helper()
	api := &fakeTelegramAPI{}
	h := newTelegramHandler(cfg, api)
	h.setIdentity(42, "bridge_bot")
	return h, api
}

func groupMessage(text string) *telego.Message {
	return &telego.Message{
		MessageID: 7,
		Date:      time.Now().Unix() + 10,
		From:      &telego.User{ID: 1001, FirstName: "Alice", LastName: "Liddell", Username: "alice"},
		Chat:      telego.Chat{ID: -100, Type: telego.ChatTypeSupergroup, Title: "Wonderland"},
		Text:      text,
	}
}

func TestTelegramText(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{})
	var got []*bridge.Context
	h.Events().Text.Subscribe(func(c *bridge.Context) { got = append(got, c) })

	h.HandleUpdate(context.Background(), telego.Update{Message: groupMessage("hello")})

	if len(got) != 1 {
		t.Fatalf("got %d contexts", len(got))
	}
	c := got[0]
	if c.From != "1001" || c.To != "-100" || c.Nick != "alice" || c.Text != "hello" || c.IsPrivate {
		t.Errorf("unexpected context %+v", c)
	}
	if c.Extra.Username != "alice" {
		t.Errorf("username = %q", c.Extra.Username)
	}
}

func TestTelegramSkipsOldAndIgnored(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{Ignore: config.FlexibleStringSlice{"2002"}})
	n := 0
	h.Events().Text.Subscribe(func(*bridge.Context) { n++ })

	old := groupMessage("old")
	old.Date = time.Now().Unix() - 3600
	h.HandleUpdate(context.Background(), telego.Update{Message: old})

	ignored := groupMessage("spam")
	ignored.From.ID = 2002
	h.HandleUpdate(context.Background(), telego.Update{Message: ignored})

	if n != 0 {
		t.Errorf("got %d messages, want 0", n)
	}
}

func TestTelegramCommands(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{})
	var cmds []*bridge.Context
	h.Events().Command.Subscribe(func(c *bridge.Context) { cmds = append(cmds, c) })

	ran := 0
	h.AddCommand("irc.names", func(context.Context, *bridge.Context) error {
		ran++
		return nil
	})
	if !h.HasCommand("ircnames") {
		t.Fatal("command name not sanitized")
	}

	for _, text := range []string{"/ircnames", "/ircnames@Bridge_Bot arg", "/ircnames@other_bot", "not /ircnames"} {
		h.HandleUpdate(context.Background(), telego.Update{Message: groupMessage(text)})
	}

	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	if cmds[1].Command != "ircnames" || cmds[1].Param != "arg" {
		t.Errorf("unexpected command %+v", cmds[1])
	}
	if ran != 2 {
		t.Errorf("callback ran %d times", ran)
	}
}

func TestTelegramNickStyle(t *testing.T) {
	u := &telego.User{FirstName: "Alice", LastName: "Liddell", Username: "alice"}
	tests := map[string]string{
		"":          "alice",
		"username":  "alice",
		"fullname":  "Alice Liddell",
		"firstname": "Alice",
	}
	for style, want := range tests {
		h, _ := newTestTelegram(t, config.TelegramConfig{NickStyle: style})
		if got := h.Nick(u); got != want {
			t.Errorf("style %q: got %q, want %q", style, got, want)
		}
	}

	h, _ := newTestTelegram(t, config.TelegramConfig{NickStyle: "username"})
	if got := h.Nick(&telego.User{FirstName: "Bob"}); got != "Bob" {
		t.Errorf("fallback nick = %q", got)
	}
}

func TestTelegramReplyAndForward(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{})
	var got []*bridge.Context
	h.Events().Text.Subscribe(func(c *bridge.Context) { got = append(got, c) })

	m := groupMessage("agreed")
	m.ReplyToMessage = &telego.Message{
		From:  &telego.User{ID: 3003, Username: "bob"},
		Photo: []telego.PhotoSize{{FileID: "p"}},
	}
	h.HandleUpdate(context.Background(), telego.Update{Message: m})

	fwd := groupMessage("look")
	fwd.ForwardOrigin = &telego.MessageOriginChannel{Chat: telego.Chat{ID: -200, Title: "News", Username: "news"}}
	h.HandleUpdate(context.Background(), telego.Update{Message: fwd})

	if len(got) != 2 {
		t.Fatalf("got %d contexts", len(got))
	}
	r := got[0].Extra.Reply
	if r == nil || r.Nick != "bob" || r.Message != "<Photo>" || r.IsText || r.ID != "3003" {
		t.Errorf("reply = %+v", r)
	}
	f := got[1].Extra.Forward
	if f == nil || f.Nick != "Channel News" || f.Username != "news" {
		t.Errorf("forward = %+v", f)
	}
}

func TestTelegramLinkedChannel(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{})
	var got []TelegramChannelMessage
	h.Events().ChannelText.Subscribe(func(m TelegramChannelMessage) { got = append(got, m) })
	n := 0
	h.Events().Text.Subscribe(func(*bridge.Context) { n++ })

	m := groupMessage("post")
	m.From = &telego.User{ID: telegramServiceID, FirstName: "Telegram"}
	m.ForwardOrigin = &telego.MessageOriginChannel{Chat: telego.Chat{ID: -300, Title: "Linked", Username: "linked"}}
	h.HandleUpdate(context.Background(), telego.Update{Message: m})

	if n != 0 || len(got) != 1 {
		t.Fatalf("text=%d channel=%d", n, len(got))
	}
	c := got[0].Context
	if c.From != "-300" || c.Nick != "LinkChannel" || !c.Extra.IsChannel || got[0].Channel.ID != -300 {
		t.Errorf("unexpected context %+v", c)
	}
}

func TestTelegramAnonymousSenders(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{})
	var got []*bridge.Context
	h.Events().Text.Subscribe(func(c *bridge.Context) { got = append(got, c) })

	anon := groupMessage("from admins")
	anon.From = &telego.User{ID: groupAnonymousBotID, Username: "GroupAnonymousBot"}
	h.HandleUpdate(context.Background(), telego.Update{Message: anon})

	ch := groupMessage("from channel")
	ch.From = &telego.User{ID: telegramChannelBotID, Username: "Channel_Bot"}
	ch.SenderChat = &telego.Chat{ID: -400, Type: telego.ChatTypeChannel, Title: "Herald"}
	h.HandleUpdate(context.Background(), telego.Update{Message: ch})

	if got[0].Nick != "Group Wonderland" || got[0].From != "-100" {
		t.Errorf("anonymous admin: %+v", got[0])
	}
	if got[1].Nick != "Channel Herald" || got[1].From != "-400" {
		t.Errorf("channel sender: %+v", got[1])
	}
}

func TestTelegramMedia(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{})
	var got []*bridge.Context
	h.Events().RichMessage.Subscribe(func(c *bridge.Context) { got = append(got, c) })

	m := groupMessage("")
	m.Photo = []telego.PhotoSize{
		{FileID: "small", Width: 90, Height: 60, FileSize: 1000},
		{FileID: "large", Width: 1280, Height: 853, FileSize: 204800},
	}
	m.Caption = "sunset"
	h.HandleUpdate(context.Background(), telego.Update{Message: m})

	if len(got) != 1 {
		t.Fatalf("got %d rich messages", len(got))
	}
	c := got[0]
	if c.Text != "<photo: 1280x853, 200 KB> sunset" {
		t.Errorf("text = %q", c.Text)
	}
	if !c.Extra.IsImage || c.Extra.ImageCaption != "sunset" || len(c.Extra.Files) != 1 {
		t.Fatalf("extra = %+v", c.Extra)
	}

	f := c.Extra.Files[0]
	if f.ID != "large" || f.Type != "photo" || f.Client != "Telegram" {
		t.Errorf("file = %+v", f)
	}
	if err := f.Prepare(context.Background(), &f); err != nil {
		t.Fatal(err)
	}
	if f.URL != "https://files.example/photos/large.jpg" {
		t.Errorf("url = %q", f.URL)
	}
}

func TestTelegramServiceEvents(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{})
	var pins []TelegramPin
	var joins, leaves []TelegramMember
	h.Events().Pin.Subscribe(func(p TelegramPin) { pins = append(pins, p) })
	h.Events().Join.Subscribe(func(m TelegramMember) { joins = append(joins, m) })
	h.Events().Leave.Subscribe(func(m TelegramMember) { leaves = append(leaves, m) })

	pin := groupMessage("")
	pin.PinnedMessage = &telego.Message{Text: "read the rules"}
	h.HandleUpdate(context.Background(), telego.Update{Message: pin})

	join := groupMessage("")
	join.NewChatMembers = []telego.User{{ID: 5005, Username: "carol"}}
	h.HandleUpdate(context.Background(), telego.Update{Message: join})

	leave := groupMessage("")
	leave.LeftChatMember = &telego.User{ID: 1001, Username: "alice"}
	h.HandleUpdate(context.Background(), telego.Update{Message: leave})

	if len(pins) != 1 || pins[0].Text != "read the rules" || pins[0].From.Nick != "alice" {
		t.Errorf("pins = %+v", pins)
	}
	if len(joins) != 1 || joins[0].Target.Nick != "carol" || joins[0].Chat != -100 {
		t.Errorf("joins = %+v", joins)
	}
	if len(leaves) != 1 || leaves[0].Target.ID != leaves[0].From.ID {
		t.Errorf("leaves = %+v", leaves)
	}
}

func TestTelegramChannelPost(t *testing.T) {
	h, _ := newTestTelegram(t, config.TelegramConfig{})
	var posts []TelegramPost
	h.Events().ChannelPost.Subscribe(func(p TelegramPost) { posts = append(posts, p) })

	h.HandleUpdate(context.Background(), telego.Update{ChannelPost: &telego.Message{
		Chat:            telego.Chat{ID: -500, Type: telego.ChatTypeChannel, Username: "herald"},
		AuthorSignature: "Editor",
		Text:            "breaking",
	}})

	if len(posts) != 1 {
		t.Fatalf("got %d posts", len(posts))
	}
	c := posts[0].Context
	if c.From != "-500" || c.To != "-500" || c.Nick != "Editor" || c.Text != "breaking" || !posts[0].HasContent {
		t.Errorf("post = %+v", c)
	}
}

func TestTelegramSend(t *testing.T) {
	h, api := newTestTelegram(t, config.TelegramConfig{})
	ctx := context.Background()

	id, err := h.SendHTML(ctx, "-100", "<b>alice</b>: hi")
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 || api.messages[0].ParseMode != telego.ModeHTML || api.messages[0].ChatID.ID != -100 {
		t.Errorf("sent %+v (id %d)", api.messages[0], id)
	}

	if err := h.Say(ctx, "not-a-chat", "x"); err == nil {
		t.Error("expected invalid chat id error")
	}

	c := &bridge.Context{To: "-100", Nick: "alice", RawData: groupMessage("hi")}
	if err := h.Reply(ctx, c, "pong"); err != nil {
		t.Fatal(err)
	}
	last := api.messages[len(api.messages)-1]
	if last.ReplyParameters == nil || last.ReplyParameters.MessageID != 7 {
		t.Errorf("reply parameters = %+v", last.ReplyParameters)
	}

	if err := h.SendFile(ctx, "-100", "photo", "https://img.example/a.png", id); err != nil {
		t.Fatal(err)
	}
	if err := h.SendFile(ctx, "-100", "file", "BQACAgIAAx", 0); err != nil {
		t.Fatal(err)
	}
	if len(api.photos) != 1 || api.photos[0].Photo.URL != "https://img.example/a.png" || api.photos[0].ReplyParameters.MessageID != 1 {
		t.Errorf("photos = %+v", api.photos)
	}
	if len(api.docs) != 1 || api.docs[0].Document.FileID != "BQACAgIAAx" {
		t.Errorf("docs = %+v", api.docs)
	}
}

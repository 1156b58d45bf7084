package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/bus"
	"github.com/tinyland-inc/picobridge/pkg/channels"
	"github.com/tinyland-inc/picobridge/pkg/config"
)

func TestNewGatewayCommand(t *testing.T) {
	cmd := NewGatewayCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "gateway", cmd.Use)
	assert.Equal(t, "Start the bridge gateway", cmd.Short)
	assert.Equal(t, []string{"g"}, cmd.Aliases)
	assert.True(t, cmd.HasExample())
	assert.False(t, cmd.HasSubCommands())

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup("config"))
}

type fakeChannel struct {
	*channels.BaseHandler

	mu      sync.Mutex
	running bool
	said    []string
}

func newFakeChannel(typ, id string) *fakeChannel {
	return &fakeChannel{BaseHandler: channels.NewBaseHandler(typ, id)}
}

func (f *fakeChannel) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeChannel) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func (f *fakeChannel) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeChannel) Say(_ context.Context, target, text string, _ ...bridge.SayOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, target+" "+text)
	return nil
}

func (f *fakeChannel) Reply(ctx context.Context, c *bridge.Context, text string, opts ...bridge.SayOption) error {
	return f.Say(ctx, c.To, text, opts...)
}

type echoProcessor struct{ ch *fakeChannel }

func (echoProcessor) Init() error { return nil }

func (p echoProcessor) Receive(ctx context.Context, m *bridge.Message) error {
	return p.ch.Say(ctx, m.To, m.Text)
}

func TestStartWiresRouter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bridge.Groups = [][]string{{"irc/#test", "telegram/-100"}}
	cfg.Bridge.Paeeye = config.PaeeyeConfig{Prepend: "//"}
	cfg.Plugins.Schedules = []config.ScheduleConfig{{Cron: "0 9 * * *", To: "irc/#test", Text: "morning"}}

	irc := newFakeChannel("IRC", "irc")
	tg := newFakeChannel("Telegram", "telegram")
	g, err := start(context.Background(), cfg, []channels.Channel{irc, tg})
	require.NoError(t, err)

	assert.True(t, g.Manager.AllRunning())
	assert.Len(t, g.Router.Handlers(), 2)
	assert.Equal(t, []string{"telegram/-100"}, g.Router.Targets("irc/#test"))
	assert.Len(t, g.Schedule.Jobs(), 1)
	assert.Nil(t, g.Monitor)

	g.Router.AddProcessor("Telegram", echoProcessor{tg})
	send := func(text string) bool {
		return g.Router.SendContext(context.Background(), bridge.NewContext(bridge.Context{
			From: "alice", To: "#test", Nick: "alice", Text: text, Handler: irc,
		}))
	}
	assert.True(t, send("hello"))
	assert.False(t, send("// secret"))
	assert.Equal(t, []string{"-100 hello"}, tg.said)

	g.Shutdown(context.Background())
	assert.False(t, irc.IsRunning())
	assert.False(t, tg.IsRunning())
}

func TestNewHandlersNeedsAPlatform(t *testing.T) {
	_, err := NewHandlers(config.DefaultConfig())
	assert.Error(t, err)
}

func TestWatchCommandsPublishesToBus(t *testing.T) {
	eb := bus.NewEventBus()
	defer eb.Close()
	events, cancel, err := eb.Subscribe()
	require.NoError(t, err)
	defer cancel()

	dc, err := channels.NewDiscordHandler(config.DiscordConfig{Token: "x"})
	require.NoError(t, err)
	watchCommands(eb, dc)

	dc.HandleMessage(context.Background(), &discordgo.Message{
		ID:        "m1",
		ChannelID: "887654321",
		GuildID:   "g1",
		Content:   "!nick alice2",
		Author:    &discordgo.User{ID: "5", Username: "alice"},
	})

	select {
	case ev := <-events:
		assert.Equal(t, bus.KindCommand, ev.Kind)
		assert.Equal(t, "discord/5", ev.FromUID)
		assert.Equal(t, "discord/887654321", ev.ToUID)
		assert.Equal(t, "!nick alice2", ev.Text)
	case <-time.After(time.Second):
		t.Fatal("no command event published")
	}
}

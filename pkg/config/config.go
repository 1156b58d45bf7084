package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	IRC      IRCConfig           `json:"irc"      yaml:"irc"`
	Telegram TelegramConfig      `json:"telegram" yaml:"telegram"`
	Discord  DiscordConfig       `json:"discord"  yaml:"discord"`
	Logging  LoggingConfig       `json:"logging"  yaml:"logging"`
	Admins   FlexibleStringSlice `json:"admins"   yaml:"admins"   env:"PICOBRIDGE_ADMINS"`
	Bridge   BridgeConfig        `json:"bridge"   yaml:"bridge"`
	Plugins  PluginsConfig       `json:"plugins"  yaml:"plugins"`
	Monitor  MonitorConfig       `json:"monitor"  yaml:"monitor"`
}

type IRCConfig struct {
	Enabled      bool                `env:"PICOBRIDGE_IRC_ENABLED"       json:"enabled"       yaml:"enabled"`
	Server       string              `env:"PICOBRIDGE_IRC_SERVER"        json:"server"        yaml:"server"`
	Port         int                 `env:"PICOBRIDGE_IRC_PORT"          json:"port"          yaml:"port"`
	TLS          bool                `env:"PICOBRIDGE_IRC_TLS"           json:"tls"           yaml:"tls"`
	Nick         string              `env:"PICOBRIDGE_IRC_NICK"          json:"nick"          yaml:"nick"`
	UserName     string              `env:"PICOBRIDGE_IRC_USER_NAME"     json:"user_name"     yaml:"user_name"`
	RealName     string              `env:"PICOBRIDGE_IRC_REAL_NAME"     json:"real_name"     yaml:"real_name"`
	Channels     FlexibleStringSlice `env:"PICOBRIDGE_IRC_CHANNELS"      json:"channels"      yaml:"channels"`
	SASL         bool                `env:"PICOBRIDGE_IRC_SASL"          json:"sasl"          yaml:"sasl"`
	SASLPassword string              `env:"PICOBRIDGE_IRC_SASL_PASSWORD" json:"sasl_password" yaml:"sasl_password"`
	MaxLines     int                 `env:"PICOBRIDGE_IRC_MAX_LINES"     json:"max_lines"     yaml:"max_lines"`
	Ignore       FlexibleStringSlice `env:"PICOBRIDGE_IRC_IGNORE"        json:"ignore"        yaml:"ignore"`
}

// Address returns host:port for the IRC connection.
func (c IRCConfig) Address() string {
	port := c.Port
	if port == 0 {
		port = 6667
		if c.TLS {
			port = 6697
		}
	}
	return fmt.Sprintf("%s:%d", c.Server, port)
}

type TelegramConfig struct {
	Enabled   bool                `env:"PICOBRIDGE_TELEGRAM_ENABLED"    json:"enabled"    yaml:"enabled"`
	Token     string              `env:"PICOBRIDGE_TELEGRAM_TOKEN"      json:"token"      yaml:"token"`
	APIRoot   string              `env:"PICOBRIDGE_TELEGRAM_API_ROOT"   json:"api_root"   yaml:"api_root"`
	NickStyle string              `env:"PICOBRIDGE_TELEGRAM_NICK_STYLE" json:"nick_style" yaml:"nick_style"`
	Ignore    FlexibleStringSlice `env:"PICOBRIDGE_TELEGRAM_IGNORE"     json:"ignore"     yaml:"ignore"`
}

type DiscordConfig struct {
	Enabled     bool                `env:"PICOBRIDGE_DISCORD_ENABLED"       json:"enabled"       yaml:"enabled"`
	Token       string              `env:"PICOBRIDGE_DISCORD_TOKEN"         json:"token"         yaml:"token"`
	NickStyle   string              `env:"PICOBRIDGE_DISCORD_NICK_STYLE"    json:"nick_style"    yaml:"nick_style"`
	UseProxyURL bool                `env:"PICOBRIDGE_DISCORD_USE_PROXY_URL" json:"use_proxy_url" yaml:"use_proxy_url"`
	RelayEmoji  bool                `env:"PICOBRIDGE_DISCORD_RELAY_EMOJI"   json:"relay_emoji"   yaml:"relay_emoji"`
	IgnoreBot   bool                `env:"PICOBRIDGE_DISCORD_IGNORE_BOT"    json:"ignore_bot"    yaml:"ignore_bot"`
	Ignore      FlexibleStringSlice `env:"PICOBRIDGE_DISCORD_IGNORE"        json:"ignore"        yaml:"ignore"`
}

type LoggingConfig struct {
	Level string `env:"PICOBRIDGE_LOG_LEVEL" json:"level" yaml:"level"`
	File  string `env:"PICOBRIDGE_LOG_FILE"  json:"file"  yaml:"file"`
}

// BridgeConfig is the routing surface: groups, aliases, one-way disables
// and per-platform relay options.
type BridgeConfig struct {
	Groups       [][]string                     `json:"groups"                  yaml:"groups"`
	Aliases      map[string]Alias               `json:"aliases,omitempty"       yaml:"aliases,omitempty"`
	Disables     map[string]FlexibleStringSlice `json:"disables,omitempty"      yaml:"disables,omitempty"`
	MessageStyle *MessageStyle                  `json:"message_style,omitempty" yaml:"message_style,omitempty"`
	IRC          IRCBridgeOptions               `json:"irc"                     yaml:"irc"`
	Telegram     TelegramBridgeOptions          `json:"telegram"                yaml:"telegram"`
	Discord      DiscordBridgeOptions           `json:"discord"                 yaml:"discord"`
	Paeeye       PaeeyeConfig                   `json:"paeeye"                  yaml:"paeeye"`
	ServeMedia   ServeMediaConfig               `json:"servemedia"              yaml:"servemedia"`
}

type StyleSet struct {
	Message string `json:"message" yaml:"message"`
	Reply   string `json:"reply"   yaml:"reply"`
	Forward string `json:"forward" yaml:"forward"`
	Action  string `json:"action"  yaml:"action"`
	Notice  string `json:"notice"  yaml:"notice"`
}

type MessageStyle struct {
	Simple  StyleSet `json:"simple"  yaml:"simple"`
	Complex StyleSet `json:"complex" yaml:"complex"`
}

type IRCNotifyOptions struct {
	Join            bool       `json:"join"              yaml:"join"`
	Rename          NotifyMode `json:"rename"            yaml:"rename"`
	Leave           NotifyMode `json:"leave"             yaml:"leave"`
	TimeBeforeLeave int        `json:"time_before_leave" yaml:"time_before_leave"`
	Topic           bool       `json:"topic"             yaml:"topic"`
}

type ColorizeOptions struct {
	Enabled        bool     `json:"enabled"         yaml:"enabled"`
	Broadcast      string   `json:"broadcast"       yaml:"broadcast"`
	Client         string   `json:"client"          yaml:"client"`
	Nick           string   `json:"nick"            yaml:"nick"`
	ReplyTo        string   `json:"replyto"         yaml:"replyto"`
	RepliedMessage string   `json:"repliedmessage"  yaml:"repliedmessage"`
	FwdFrom        string   `json:"fwdfrom"         yaml:"fwdfrom"`
	LineSplit      string   `json:"linesplit"       yaml:"linesplit"`
	NickColors     []string `json:"nickcolors"      yaml:"nickcolors"`
}

type IRCBridgeOptions struct {
	Notify   IRCNotifyOptions `json:"notify"   yaml:"notify"`
	Colorize ColorizeOptions  `json:"colorize" yaml:"colorize"`
}

type TelegramNotifyOptions struct {
	Join  bool `json:"join"  yaml:"join"`
	Leave bool `json:"leave" yaml:"leave"`
	Pin   bool `json:"pin"   yaml:"pin"`
}

type TelegramBridgeOptions struct {
	Notify           TelegramNotifyOptions `json:"notify"                      yaml:"notify"`
	ChannelTransport map[string]string     `json:"channel_transport,omitempty" yaml:"channel_transport,omitempty"`
	ForwardChannels  bool                  `json:"forward_channels"            yaml:"forward_channels"`
	ForwardCommands  bool                  `json:"forward_commands"            yaml:"forward_commands"`
	ForwardBots      map[string]string     `json:"forward_bots,omitempty"      yaml:"forward_bots,omitempty"`
}

type DiscordBridgeOptions struct {
	ForwardBots map[string]string `json:"forward_bots,omitempty" yaml:"forward_bots,omitempty"`
}

type ImgurConfig struct {
	APIURL   string `json:"api_url"   yaml:"api_url"`
	ClientID string `json:"client_id" yaml:"client_id" env:"PICOBRIDGE_IMGUR_CLIENT_ID"`
}

type ServeMediaConfig struct {
	Type       string      `env:"PICOBRIDGE_SERVEMEDIA_TYPE" json:"type"         yaml:"type"`
	CachePath  string      `json:"cache_path"   yaml:"cache_path"`
	ServeURL   string      `json:"serve_url"    yaml:"serve_url"`
	LinxAPIURL string      `json:"linx_api_url" yaml:"linx_api_url"`
	UguuAPIURL string      `json:"uguu_api_url" yaml:"uguu_api_url"`
	SMMSToken  string      `env:"PICOBRIDGE_SMMS_TOKEN" json:"smms_token" yaml:"smms_token"`
	Imgur      ImgurConfig `json:"imgur"        yaml:"imgur"`
	SizeLimit  int64       `json:"size_limit"   yaml:"size_limit"`
	Timeout    int         `json:"timeout"      yaml:"timeout"`
	UserAgent  string      `json:"user_agent"   yaml:"user_agent"`
}

type FilterRule struct {
	Event       string `json:"event,omitempty"        yaml:"event,omitempty"`
	From        string `json:"from,omitempty"         yaml:"from,omitempty"`
	To          string `json:"to,omitempty"           yaml:"to,omitempty"`
	Nick        string `json:"nick,omitempty"         yaml:"nick,omitempty"`
	Text        string `json:"text,omitempty"         yaml:"text,omitempty"`
	FilterReply bool   `json:"filter_reply,omitempty" yaml:"filter_reply,omitempty"`
}

type FilterConfig struct {
	Filters   []FilterRule `json:"filters,omitempty"   yaml:"filters,omitempty"`
	Unfilters []FilterRule `json:"unfilters,omitempty" yaml:"unfilters,omitempty"`
}

type IRCQueryConfig struct {
	Enabled  bool                `json:"enabled"  yaml:"enabled"`
	Prefix   string              `json:"prefix"   yaml:"prefix"`
	Disables FlexibleStringSlice `json:"disables" yaml:"disables"`
}

type IRCCommandConfig struct {
	Enabled  bool                `json:"enabled"  yaml:"enabled"`
	Prefix   string              `json:"prefix"   yaml:"prefix"`
	Echo     bool                `json:"echo"     yaml:"echo"`
	Disables FlexibleStringSlice `json:"disables" yaml:"disables"`
}

type ScheduleConfig struct {
	Cron string `json:"cron" yaml:"cron"`
	To   string `json:"to"   yaml:"to"`
	Text string `json:"text" yaml:"text"`
}

type PluginsConfig struct {
	Filter     FilterConfig     `json:"filter"              yaml:"filter"`
	IRCQuery   IRCQueryConfig   `json:"ircquery"            yaml:"ircquery"`
	IRCCommand IRCCommandConfig `json:"irccommand"          yaml:"irccommand"`
	Schedules  []ScheduleConfig `json:"schedules,omitempty" yaml:"schedules,omitempty"`
}

type MonitorConfig struct {
	Enabled bool   `env:"PICOBRIDGE_MONITOR_ENABLED" json:"enabled" yaml:"enabled"`
	Host    string `env:"PICOBRIDGE_MONITOR_HOST"    json:"host"    yaml:"host"`
	Port    int    `env:"PICOBRIDGE_MONITOR_PORT"    json:"port"    yaml:"port"`
}

// IsYAML reports whether path should be read and written as YAML.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Decode unmarshals data into cfg using the format implied by path.
func Decode(path string, data []byte, cfg *Config) error {
	if IsYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

// Encode marshals cfg using the format implied by path.
func Encode(path string, cfg *Config) ([]byte, error) {
	if IsYAML(path) {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := Decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := Encode(path, cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Style returns the configured message style, or the defaults.
func (c *Config) Style() MessageStyle {
	if c.Bridge.MessageStyle == nil {
		return DefaultMessageStyle()
	}
	return *c.Bridge.MessageStyle
}

func (c *IRCConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Server == "" {
		return errors.New("server is required")
	}
	if c.Nick == "" {
		return errors.New("nick is required")
	}
	if c.SASL && c.SASLPassword == "" {
		return errors.New("sasl_password is required when sasl is enabled")
	}
	return nil
}

func (c *TelegramConfig) Validate() error {
	if c.Enabled && c.Token == "" {
		return errors.New("token is required")
	}
	return nil
}

func (c *DiscordConfig) Validate() error {
	if c.Enabled && c.Token == "" {
		return errors.New("token is required")
	}
	return nil
}

func (c *ServeMediaConfig) Validate() error {
	switch c.Type {
	case "", "none", "vim-cn", "vimcn", "sm.ms":
	case "self":
		if c.CachePath == "" || c.ServeURL == "" {
			return errors.New("cache_path and serve_url are required for type self")
		}
	case "linx":
		if c.LinxAPIURL == "" {
			return errors.New("linx_api_url is required for type linx")
		}
	case "uguu", "Uguu":
		if c.UguuAPIURL == "" {
			return errors.New("uguu_api_url is required for type uguu")
		}
	case "imgur":
		if c.Imgur.ClientID == "" {
			return errors.New("imgur.client_id is required for type imgur")
		}
	default:
		return fmt.Errorf("unknown type %q", c.Type)
	}
	return nil
}

// Validate checks the required fields of every enabled component. Bad UIDs
// in the routing surface are not errors here; the router warns and skips them.
func (c *Config) Validate() error {
	if err := c.IRC.Validate(); err != nil {
		return fmt.Errorf("irc: %w", err)
	}
	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if err := c.Discord.Validate(); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	if err := c.Bridge.ServeMedia.Validate(); err != nil {
		return fmt.Errorf("bridge.servemedia: %w", err)
	}
	for i, s := range c.Plugins.Schedules {
		if s.Cron == "" || s.To == "" {
			return fmt.Errorf("plugins.schedules[%d]: cron and to are required", i)
		}
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		return fmt.Errorf("monitor: invalid port %d", c.Monitor.Port)
	}
	return nil
}

// EnabledPlatforms lists the enabled platform names in a stable order.
func (c *Config) EnabledPlatforms() []string {
	var out []string
	if c.IRC.Enabled {
		out = append(out, "IRC")
	}
	if c.Telegram.Enabled {
		out = append(out, "Telegram")
	}
	if c.Discord.Enabled {
		out = append(out, "Discord")
	}
	return out
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}

// ExpandedCachePath returns cache_path with ~ expanded.
func (c *ServeMediaConfig) ExpandedCachePath() string {
	return expandHome(c.CachePath)
}

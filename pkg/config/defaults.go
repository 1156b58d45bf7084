package config

func DefaultMessageStyle() MessageStyle {
	return MessageStyle{
		Simple: StyleSet{
			Message: "[{nick}] {text}",
			Reply:   "[{nick}] Re {reply_nick} 「{reply_text}」: {text}",
			Forward: "[{nick}] Fwd {forward_nick}: {text}",
			Action:  "* {nick} {text}",
			Notice:  "< {text} >",
		},
		Complex: StyleSet{
			Message: "[{client_short} - {nick}] {text}",
			Reply:   "[{client_short} - {nick}] Re {reply_nick} 「{reply_text}」: {text}",
			Forward: "[{client_short} - {nick}] Fwd {forward_nick}: {text}",
			Action:  "* {client_short} - {nick} {text}",
			Notice:  "< {client_full}: {text} >",
		},
	}
}

func DefaultConfig() *Config {
	return &Config{
		IRC: IRCConfig{
			Port:     6667,
			Nick:     "picobridge",
			UserName: "picobridge",
			RealName: "picobridge relay",
			MaxLines: 4,
		},
		Telegram: TelegramConfig{
			NickStyle: "username",
		},
		Discord: DiscordConfig{
			NickStyle: "username",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Bridge: BridgeConfig{
			Groups: [][]string{},
			IRC: IRCBridgeOptions{
				Notify: IRCNotifyOptions{
					Rename:          NotifyNone,
					Leave:           NotifyNone,
					TimeBeforeLeave: 600,
				},
				Colorize: ColorizeOptions{
					Broadcast:      "green",
					Client:         "navy",
					Nick:           "colorful",
					ReplyTo:        "brown",
					RepliedMessage: "olive",
					FwdFrom:        "cyan",
					LineSplit:      "silver",
					NickColors: []string{
						"green", "blue", "purple", "olive", "pink", "teal", "red",
					},
				},
			},
			ServeMedia: ServeMediaConfig{
				Type:      "none",
				Timeout:   3000,
				UserAgent: "picobridge",
			},
		},
		Plugins: PluginsConfig{
			IRCQuery:   IRCQueryConfig{Prefix: "irc"},
			IRCCommand: IRCCommandConfig{Prefix: "irc"},
		},
		Monitor: MonitorConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
	}
}

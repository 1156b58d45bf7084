// Package migrate converts picobridge configuration files between JSON
// and YAML.
package migrate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinyland-inc/picobridge/pkg/config"
)

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Options controls a config conversion.
type Options struct {
	ConfigPath string // source file; its extension selects the input format
	OutputPath string // default: source path with the target extension
	Format     string // FormatYAML or FormatJSON
	DryRun     bool
	Force      bool
	// Redact blanks credentials in the output; they are then expected from
	// the environment.
	Redact bool
	Out    io.Writer // dry-run output, default os.Stdout
}

// Result summarizes the conversion.
type Result struct {
	OutputPath string
	Warnings   []string
}

type credential struct {
	name string
	env  string
	ptr  *string
}

func credentials(cfg *config.Config) []credential {
	return []credential{
		{"irc.sasl_password", "PICOBRIDGE_IRC_SASL_PASSWORD", &cfg.IRC.SASLPassword},
		{"telegram.token", "PICOBRIDGE_TELEGRAM_TOKEN", &cfg.Telegram.Token},
		{"discord.token", "PICOBRIDGE_DISCORD_TOKEN", &cfg.Discord.Token},
		{"bridge.servemedia.smms_token", "PICOBRIDGE_SMMS_TOKEN", &cfg.Bridge.ServeMedia.SMMSToken},
		{"bridge.servemedia.imgur.client_id", "PICOBRIDGE_IMGUR_CLIENT_ID", &cfg.Bridge.ServeMedia.Imgur.ClientID},
	}
}

// Run converts opts.ConfigPath into opts.Format. Environment overrides are
// not applied, so the output holds only what the file says.
func Run(opts Options) (*Result, error) {
	if opts.Format != FormatYAML && opts.Format != FormatJSON {
		return nil, fmt.Errorf("unknown format %q", opts.Format)
	}
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("config path is required")
	}

	data, err := os.ReadFile(opts.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", opts.ConfigPath)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := config.DefaultConfig()
	if err := config.Decode(opts.ConfigPath, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", opts.ConfigPath, err)
	}

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = strings.TrimSuffix(opts.ConfigPath, filepath.Ext(opts.ConfigPath)) + "." + opts.Format
	}
	if filepath.Clean(outputPath) == filepath.Clean(opts.ConfigPath) && !opts.DryRun {
		return nil, fmt.Errorf("output would overwrite the input: %s", outputPath)
	}

	result := &Result{OutputPath: outputPath}
	for _, c := range credentials(cfg) {
		if *c.ptr == "" {
			continue
		}
		if opts.Redact {
			*c.ptr = ""
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: credential removed, set %s", c.name, c.env))
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: credential copied in plain text", c.name))
		}
	}

	out, err := config.Encode("config."+opts.Format, cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", opts.Format, err)
	}

	if opts.DryRun {
		w := opts.Out
		if w == nil {
			w = os.Stdout
		}
		fmt.Fprintf(w, "# %s (dry-run)\n", outputPath)
		_, err := w.Write(out)
		return result, err
	}

	if !opts.Force {
		if _, err := os.Stat(outputPath); err == nil {
			return nil, fmt.Errorf("output file already exists: %s (use --force to overwrite)", outputPath)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(outputPath, out, 0o600); err != nil {
		return nil, err
	}
	return result, nil
}

// Package media re-hosts attachments so platforms without native file
// relay can link them.
package media

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

const (
	DefaultTimeout   = 3000 * time.Millisecond
	DefaultUserAgent = "picobridge (+https://github.com/tinyland-inc/picobridge)"
)

// ErrSkipped is returned by Upload for files the configured host does not
// take.
var ErrSkipped = errors.New("file not accepted by host")

// UploadError records which host failed to take a file.
type UploadError struct {
	Host string
	Err  error
}

func (e *UploadError) Error() string {
	return "upload to " + e.Host + ": " + e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Uploader struct {
	cfg       config.ServeMediaConfig
	host      string
	client    *http.Client
	userAgent string

	vimcnURL string
	smmsURL  string
}

type Option func(*Uploader)

// WithHTTPClient replaces the default client. Its timeout is left alone.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Uploader) { u.client = c }
}

// New builds an uploader for cfg. Type aliases ("vimcn", "Uguu") are
// normalized.
func New(cfg config.ServeMediaConfig, opts ...Option) *Uploader {
	timeout := DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Millisecond
	}
	u := &Uploader{
		cfg:       cfg,
		host:      normalizeHost(cfg.Type),
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		vimcnURL:  vimcnURL,
		smmsURL:   smmsURL,
	}
	if u.userAgent == "" {
		u.userAgent = DefaultUserAgent
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func normalizeHost(t string) string {
	switch t {
	case "", "none":
		return ""
	case "vimcn":
		return "vim-cn"
	case "Uguu":
		return "uguu"
	}
	return t
}

// Enabled reports whether a host is configured.
func (u *Uploader) Enabled() bool {
	return u.host != ""
}

// Upload re-hosts one file. Public image hosts only take photos; other
// files get ErrSkipped.
func (u *Uploader) Upload(ctx context.Context, f *bridge.File) (*bridge.Upload, error) {
	kind := ConvertType(f.Type)
	if (u.host == "imgur" || u.host == "sm.ms") && kind != "photo" {
		return nil, ErrSkipped
	}
	if sourceExt(f) == ".exe" {
		return nil, &UploadError{Host: u.host, Err: errors.New("refusing to upload .exe file")}
	}

	data, err := u.fetch(ctx, f)
	if err != nil {
		return nil, &UploadError{Host: u.host, Err: err}
	}
	src := f.URL
	if src == "" {
		src = f.Path
	}
	name := FileName(src, f.ID)

	var url string
	switch u.host {
	case "self":
		url, err = u.toCache(name, data)
	case "vim-cn":
		url, err = u.toVimCN(ctx, name, data)
	case "uguu":
		url, err = u.toUguu(ctx, name, data)
	case "imgur":
		url, err = u.toImgur(ctx, name, data)
	case "sm.ms":
		url, err = u.toSMMS(ctx, name, data)
	case "linx":
		url, err = u.toLinx(ctx, name, data)
	default:
		err = errors.Errorf("unknown host type %q", u.host)
	}
	if err != nil {
		return nil, &UploadError{Host: u.host, Err: err}
	}
	return &bridge.Upload{Type: kind, URL: url}, nil
}

// Hook uploads the files of a bridged message and fills Extra.Uploads in
// file order. Failures drop only the file concerned; the message is never
// vetoed.
func (u *Uploader) Hook(ctx context.Context, m *bridge.Message) error {
	if m.Extra.Clients <= 1 || len(m.Extra.Files) == 0 || !u.Enabled() {
		return nil
	}
	if len(m.Extra.Uploads) > 0 {
		return nil
	}

	total := len(m.Extra.Files)
	results := make([]*bridge.Upload, total)
	var wg sync.WaitGroup
	for i := range m.Extra.Files {
		f := &m.Extra.Files[i]
		fields := map[string]any{"msg_id": m.MsgID, "file": i + 1, "files": total}

		if f.Prepare != nil {
			if err := f.Prepare(ctx, f); err != nil {
				fields["error"] = err.Error()
				logger.ErrorCF("media", "Prepare file failed", fields)
				continue
			}
		}
		if u.cfg.SizeLimit > 0 && f.Size > u.cfg.SizeLimit*1024 {
			logger.DebugCF("media", "Size limit exceeded", fields)
			continue
		}

		wg.Go(func() {
			up, err := u.Upload(ctx, f)
			switch {
			case errors.Is(err, ErrSkipped):
			case err != nil:
				fields["error"] = err.Error()
				logger.ErrorCF("media", "Upload failed", fields)
			default:
				results[i] = up
			}
		})
	}
	wg.Wait()

	uploads := make([]bridge.Upload, 0, total)
	for _, up := range results {
		if up != nil {
			logger.DebugCF("media", "Uploaded", map[string]any{
				"msg_id": m.MsgID,
				"type":   up.Type,
				"url":    up.URL,
			})
			uploads = append(uploads, *up)
		}
	}
	m.Extra.Uploads = uploads
	return nil
}

// Register installs the upload hook when a host is configured.
func Register(r *bridge.Router, cfg config.ServeMediaConfig, opts ...Option) *Uploader {
	u := New(cfg, opts...)
	if u.Enabled() {
		r.AddHook(bridge.EventSend, u.Hook)
	}
	return u
}

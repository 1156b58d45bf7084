package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/image/webp"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
)

var allowedExts = []string{
	".jpg", ".jpeg", ".png", ".webp", ".tiff", ".svg", ".gif", ".pdf", ".mp3", ".mp4", ".tgz",
}

// FileName derives the stored name of a file: the md5 of its platform id
// plus an extension taken from name or, failing that, from the URL.
// Extensions outside the allow list become ".txt"; webp becomes ".png"
// since the content is converted.
func FileName(rawURL, name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = strings.ToLower(path.Ext(urlPath(rawURL)))
	}
	if ext == ".webp" {
		ext = ".png"
	}
	if !slices.Contains(allowedExts, ext) {
		ext = ".txt"
	}
	if name == "" {
		name = uuid.NewString()
	}
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:]) + ext
}

// ConvertType maps a platform file type onto the shared upload types.
func ConvertType(t string) string {
	switch t {
	case "sticker":
		return "photo"
	case "voice":
		return "audio"
	case "video", "document":
		return "file"
	}
	return t
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	return raw
}

func sourceExt(f *bridge.File) string {
	if f.URL != "" {
		return strings.ToLower(path.Ext(urlPath(f.URL)))
	}
	return strings.ToLower(path.Ext(f.Path))
}

// fetch reads the whole file, from its URL or local path, converting webp
// photos and stickers to PNG.
func (u *Uploader) fetch(ctx context.Context, f *bridge.File) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case f.URL != "":
		data, err = u.download(ctx, f.URL)
	case f.Path != "":
		data, err = os.ReadFile(f.Path)
	default:
		return nil, errors.New("file has neither url nor path")
	}
	if err != nil {
		return nil, err
	}

	if (f.Type == "sticker" || f.Type == "photo") && sourceExt(f) == ".webp" {
		return webpToPNG(data)
	}
	return data, nil
}

func (u *Uploader) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", u.userAgent)
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "download")
	}
	return data, nil
}

func webpToPNG(data []byte) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode webp")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode png")
	}
	return buf.Bytes(), nil
}

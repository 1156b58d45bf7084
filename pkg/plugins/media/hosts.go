package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	vimcnURL = "https://img.vim-cn.com/"
	smmsURL  = "https://sm.ms/api/v2/upload"
)

// multipartBody encodes data as a form file field plus extra plain fields.
func multipartBody(field, name string, data []byte, extra map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range extra {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// do sends req and returns the body of a 200 response.
func (u *Uploader) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", u.userAgent)
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (u *Uploader) postForm(ctx context.Context, endpoint, field, name string, data []byte, extra, headers map[string]string) ([]byte, error) {
	body, contentType, err := multipartBody(field, name, data, extra)
	if err != nil {
		return nil, errors.Wrap(err, "encode form")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return u.do(req)
}

// toCache stores data under cache_path and links it below serve_url.
func (u *Uploader) toCache(name string, data []byte) (string, error) {
	dir := u.cfg.ExpandedCachePath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create cache dir")
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", errors.Wrap(err, "write cache")
	}
	return u.cfg.ServeURL + name, nil
}

func (u *Uploader) toVimCN(ctx context.Context, name string, data []byte) (string, error) {
	body, err := u.postForm(ctx, u.vimcnURL, "name", name, data, nil, nil)
	if err != nil {
		return "", err
	}
	return strings.Replace(strings.TrimSpace(string(body)), "http://", "https://", 1), nil
}

func (u *Uploader) toUguu(ctx context.Context, name string, data []byte) (string, error) {
	body, err := u.postForm(ctx, u.cfg.UguuAPIURL, "file", name, data,
		map[string]string{"randomname": "true"}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (u *Uploader) toImgur(ctx context.Context, name string, data []byte) (string, error) {
	endpoint := strings.TrimSuffix(u.cfg.Imgur.APIURL, "/") + "/upload"
	body, err := u.postForm(ctx, endpoint, "image", name, data,
		map[string]string{"type": "file"},
		map[string]string{"Authorization": "Client-ID " + u.cfg.Imgur.ClientID})
	if err != nil {
		return "", err
	}

	var res struct {
		Success bool `json:"success"`
		Data    struct {
			Link  string `json:"link"`
			Error string `json:"error"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	if !res.Success {
		return "", errors.Errorf("imgur returned: %s", res.Data.Error)
	}
	return res.Data.Link, nil
}

func (u *Uploader) toSMMS(ctx context.Context, name string, data []byte) (string, error) {
	headers := map[string]string{}
	if u.cfg.SMMSToken != "" {
		headers["Authorization"] = u.cfg.SMMSToken
	}
	body, err := u.postForm(ctx, u.smmsURL, "smfile", name, data, nil, headers)
	if err != nil {
		return "", err
	}

	var res struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Images  string `json:"images"`
		Data    struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	switch {
	case res.Success:
		return res.Data.URL, nil
	case res.Code == "image_repeated" && res.Images != "":
		return res.Images, nil
	}
	return "", errors.Errorf("sm.ms returned: %s", res.Message)
}

func (u *Uploader) toLinx(ctx context.Context, name string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.cfg.LinxAPIURL+name, bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Linx-Randomize", "yes")
	req.Header.Set("Accept", "application/json")
	body, err := u.do(req)
	if err != nil {
		return "", err
	}

	var res struct {
		DirectURL string `json:"direct_url"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	return res.DirectURL, nil
}

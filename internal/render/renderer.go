// Package render turns render payloads into images through a remote
// HTML-to-image service.
package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bili_bot/internal/model"
)

// Template names.
const (
	TemplateDynamic = "dynamic"
)

const maxImageSize = 20 << 20

//go:embed templates/*.html
var templateFS embed.FS

// ErrUnknownTemplate is returned for a template name that does not exist.
var ErrUnknownTemplate = errors.New("unknown template")

// Renderer renders a payload with a named template and returns the path of
// the finished image. The caller owns the file.
type Renderer interface {
	Render(ctx context.Context, name string, payload *model.RenderPayload) (string, error)
}

// HTTPClient is the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client renders cards by executing a local template and posting the HTML
// to a text-to-image service.
type Client struct {
	url     string
	dir     string
	timeout time.Duration
	http    HTTPClient
	tmpl    *template.Template
}

// NewClient creates a Client posting to url and writing images under dir.
func NewClient(httpClient HTTPClient, url, dir string, timeout time.Duration) (*Client, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	return &Client{url: url, dir: dir, timeout: timeout, http: httpClient, tmpl: tmpl}, nil
}

type renderRequest struct {
	HTML    string        `json:"html"`
	Options renderOptions `json:"options"`
}

type renderOptions struct {
	Type     string `json:"type"`
	FullPage bool   `json:"full_page"`
}

// Render executes the named template with payload and returns the path of
// the PNG produced by the service.
func (c *Client) Render(ctx context.Context, name string, payload *model.RenderPayload) (string, error) {
	page, err := c.HTML(name, payload)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(renderRequest{
		HTML:    page,
		Options: renderOptions{Type: "png", FullPage: true},
	})
	if err != nil {
		return "", fmt.Errorf("encode render request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post render request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(img) == 0 {
		return "", errors.New("empty image")
	}
	if ct := http.DetectContentType(img); !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("response is not an image: %s", ct)
	}

	f, err := os.CreateTemp(c.dir, "card-*.png")
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := f.Write(img); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close image file: %w", err)
	}
	return f.Name(), nil
}

// HTML executes the named template with payload.
func (c *Client) HTML(name string, payload *model.RenderPayload) (string, error) {
	t := c.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, newCardView(payload)); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// cardView marks the payload fields that are already safe for the template.
type cardView struct {
	*model.RenderPayload
	BodyHTML template.HTML
	QRCode   template.URL
	Forward  *cardView
}

func newCardView(p *model.RenderPayload) *cardView {
	if p == nil {
		p = &model.RenderPayload{}
	}
	v := &cardView{
		RenderPayload: p,
		BodyHTML:      template.HTML(p.Body),
	}
	if strings.HasPrefix(p.QRCode, "data:image/png;base64,") {
		v.QRCode = template.URL(p.QRCode)
	}
	if p.Forward != nil {
		v.Forward = newCardView(p.Forward)
	}
	return v
}

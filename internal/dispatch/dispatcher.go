// Package dispatch turns render payloads and live transitions into chat
// messages.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"bili_bot/internal/metrics"
	"bili_bot/internal/model"
	"bili_bot/internal/render"
)

// RenderFailedText opens a plain-text message sent because rendering failed.
const RenderFailedText = "Image rendering failed (´;ω;`)"

// Transport delivers a message to a subscriber.
type Transport interface {
	Send(ctx context.Context, subscriberID string, msg model.Message) error
}

// Options configures a Dispatcher.
type Options struct {
	// Renderer may be nil, in which case every message is plain text.
	Renderer  render.Renderer
	Transport Transport
	// RenderImagePosts controls whether draw and word posts are rendered.
	RenderImagePosts bool
	// BotName is the display name on system cards.
	BotName string
	// QR encodes a link for system cards. Nil disables QR codes.
	QR  func(string) string
	Log *slog.Logger
}

// Dispatcher renders payloads and sends them, falling back to plain text.
type Dispatcher struct {
	renderer         render.Renderer
	transport        Transport
	renderImagePosts bool
	botName          string
	qr               func(string) string
	log              *slog.Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	qr := opts.QR
	if qr == nil {
		qr = func(string) string { return "" }
	}
	return &Dispatcher{
		renderer:         opts.Renderer,
		transport:        opts.Transport,
		renderImagePosts: opts.RenderImagePosts,
		botName:          opts.BotName,
		qr:               qr,
		log:              opts.Log,
	}
}

// Dispatch sends a feed update to a subscriber.
func (d *Dispatcher) Dispatch(ctx context.Context, subscriberID string, p *model.RenderPayload) error {
	headline := fmt.Sprintf("📣 %s posted a new dynamic:", p.DisplayName)
	if !d.renderImagePosts && isImagePost(p.ContentType) {
		return d.send(ctx, subscriberID, plainMessage(p, headline, false))
	}
	return d.deliver(ctx, subscriberID, p, headline)
}

// DispatchLive sends a live transition notice. TransitionNone sends nothing.
func (d *Dispatcher) DispatchLive(ctx context.Context, subscriberID string, info *model.LiveInfo, t model.Transition) error {
	if t == model.TransitionNone {
		return nil
	}
	return d.deliver(ctx, subscriberID, d.LivePayload(info, t), "")
}

// DispatchCard sends a system card such as a subscription confirmation.
func (d *Dispatcher) DispatchCard(ctx context.Context, subscriberID string, p *model.RenderPayload) error {
	return d.deliver(ctx, subscriberID, p, "")
}

// deliver renders p and sends the image with the permalink as caption. When
// rendering is unavailable or fails the same content goes out as text.
func (d *Dispatcher) deliver(ctx context.Context, subscriberID string, p *model.RenderPayload, headline string) error {
	if d.renderer == nil {
		return d.send(ctx, subscriberID, plainMessage(p, headline, false))
	}

	path, err := d.renderer.Render(ctx, render.TemplateDynamic, p)
	if err != nil {
		metrics.RenderFailures.Inc()
		d.log.Error("render failed, sending plain text", "subscriber", subscriberID, "error", err)
		return d.send(ctx, subscriberID, plainMessage(p, headline, true))
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			d.log.Warn("remove rendered image", "path", path, "error", err)
		}
	}()

	return d.send(ctx, subscriberID, model.Message{ImagePath: path, Caption: p.PermalinkURL})
}

func (d *Dispatcher) send(ctx context.Context, subscriberID string, msg model.Message) error {
	if err := d.transport.Send(ctx, subscriberID, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	kind := "text"
	if msg.ImagePath != "" {
		kind = "image"
	}
	metrics.MessagesSent.WithLabelValues(kind).Inc()
	return nil
}

func isImagePost(contentType string) bool {
	return contentType == model.TypeDraw || contentType == model.TypeWord
}

// plainMessage composes the text form of a payload: an optional failure
// notice, the headline, the text, the permalink, then every image.
func plainMessage(p *model.RenderPayload, headline string, failed bool) model.Message {
	var lines []string
	if failed {
		lines = append(lines, RenderFailedText)
	}
	if headline != "" {
		lines = append(lines, headline)
	}
	if p.Title != "" {
		lines = append(lines, p.Title)
	}
	if text := payloadText(p); text != "" {
		lines = append(lines, text)
	}
	if f := p.Forward; f != nil {
		fwd := "↪ " + f.DisplayName
		if text := payloadText(f); text != "" {
			fwd += ": " + text
		}
		lines = append(lines, fwd)
	}
	if p.PermalinkURL != "" {
		lines = append(lines, p.PermalinkURL)
	}

	msg := model.Message{Parts: []model.Part{model.TextPart(strings.Join(lines, "\n"))}}
	for _, u := range p.ImageURLs {
		msg.Parts = append(msg.Parts, model.ImagePart(u))
	}
	if p.Forward != nil {
		for _, u := range p.Forward.ImageURLs {
			msg.Parts = append(msg.Parts, model.ImagePart(u))
		}
	}
	return msg
}

func payloadText(p *model.RenderPayload) string {
	if p.Summary != "" {
		return p.Summary
	}
	return HTMLToText(p.Body)
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"bili_bot/internal/model"
)

const (
	subscriberPrefix = "telegram"

	// Telegram accepts at most ten photos per album.
	maxAlbumSize = 10
	// Telegram rejects text messages longer than this many UTF-16 code units.
	maxMessageLength = 4096
)

// ErrBadSubscriberID is returned for ids not of the form telegram:<type>:<chat id>.
var ErrBadSubscriberID = errors.New("malformed subscriber id")

// SubscriberID returns the subscriber id of a chat.
func SubscriberID(chat *tgbotapi.Chat) string {
	return fmt.Sprintf("%s:%s:%d", subscriberPrefix, chat.Type, chat.ID)
}

// ParseSubscriberID extracts the chat id from a subscriber id.
func ParseSubscriberID(id string) (int64, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[0] != subscriberPrefix || parts[1] == "" {
		return 0, fmt.Errorf("%w: %q", ErrBadSubscriberID, id)
	}
	chatID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadSubscriberID, id)
	}
	return chatID, nil
}

// Transport sends dispatcher messages to Telegram chats.
type Transport struct {
	api API
	log *slog.Logger
}

// NewTransport creates a Transport.
func NewTransport(api API, log *slog.Logger) *Transport {
	return &Transport{api: api, log: log}
}

// Send delivers msg to the chat named by subscriberID. A rendered image goes
// out as one captioned photo. Otherwise text parts are joined into a single
// message, split when it is too long, followed by the image parts as a
// photo or album.
func (t *Transport) Send(ctx context.Context, subscriberID string, msg model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := ParseSubscriberID(subscriberID)
	if err != nil {
		return err
	}
	t.log.Debug("send message", "subscriber", subscriberID, "image", msg.ImagePath != "", "parts", len(msg.Parts))

	if msg.ImagePath != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(msg.ImagePath))
		photo.Caption = msg.Caption
		if _, err := t.api.Send(photo); err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
		return nil
	}

	texts := lo.FilterMap(msg.Parts, func(p model.Part, _ int) (string, bool) {
		return p.Value, p.Kind == model.PartText && p.Value != ""
	})
	images := lo.FilterMap(msg.Parts, func(p model.Part, _ int) (string, bool) {
		return p.Value, p.Kind == model.PartImageURL && p.Value != ""
	})

	for _, chunk := range splitText(strings.Join(texts, "\n"), maxMessageLength) {
		text := tgbotapi.NewMessage(chatID, chunk)
		text.DisableWebPagePreview = true
		if _, err := t.api.Send(text); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}

	for _, chunk := range lo.Chunk(images, maxAlbumSize) {
		if err := t.sendImages(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) sendImages(chatID int64, urls []string) error {
	if len(urls) == 1 {
		if _, err := t.api.Send(tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(urls[0]))); err != nil {
			return fmt.Errorf("send photo: %w", err)
		}
		return nil
	}

	media := make([]any, len(urls))
	for i, u := range urls {
		media[i] = tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(u))
	}
	if _, err := t.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media)); err != nil {
		return fmt.Errorf("send album: %w", err)
	}
	return nil
}

// splitText cuts text into pieces of at most limit UTF-16 code units,
// breaking between lines where it can and inside a line only when the line
// alone is over the limit.
func splitText(text string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		size   int
	)
	flush := func() {
		if c := strings.TrimRight(cur.String(), "\n"); c != "" {
			chunks = append(chunks, c)
		}
		cur.Reset()
		size = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf16Len(line)
		if size+n > limit {
			flush()
		}
		for n > limit {
			head, rest := cutUTF16(line, limit)
			chunks = append(chunks, head)
			line, n = rest, utf16Len(rest)
		}
		cur.WriteString(line)
		size += n
	}
	flush()
	return chunks
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// cutUTF16 splits s after the longest prefix of at most limit code units.
func cutUTF16(s string, limit int) (head, rest string) {
	n := 0
	for i, r := range s {
		l := utf16.RuneLen(r)
		if n+l > limit {
			return s[:i], s[i:]
		}
		n += l
	}
	return s, ""
}

package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	actionUnsubConfirm = "unsub_confirm"
	actionNoop         = "noop"
)

// listKeyboard offers one unsubscribe button per listed creator.
func listKeyboard(entries []ListEntry) *tgbotapi.InlineKeyboardMarkup {
	if len(entries) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(entries))
	for _, e := range entries {
		label := strconv.FormatInt(e.CreatorID, 10)
		if e.Name != "" {
			label = e.Name
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Unsubscribe "+label, fmt.Sprintf("%s:%d", actionUnsubConfirm, e.CreatorID)),
		))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
	if cb.Message == nil || cb.From == nil {
		return
	}

	chatID := cb.Message.Chat.ID
	if !b.cfg.IsUserAllowed(cb.From.ID) {
		b.reply(chatID, "Access denied.")
		return
	}

	action, idStr, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}
	uid, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	subscriberID := SubscriberID(cb.Message.Chat)
	b.log.Info("callback",
		"action", action,
		"creator_id", uid,
		"subscriber", subscriberID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case actionUnsubConfirm:
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Unsubscribe from %d?", uid))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, unsubscribe", fmt.Sprintf("%s:%d", cmdUnsub, uid)),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", actionNoop+":0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send unsubscribe confirmation", "error", err)
		}
	case cmdUnsub:
		b.handleUnsub(ctx, chatID, subscriberID, idStr)
	}
}

// Package bot implements the Telegram command surface and chat transport.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bili_bot/internal/classifier"
	"bili_bot/internal/config"
	"bili_bot/internal/model"
	"bili_bot/internal/storage"
)

// API is the part of the Telegram client the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewAPI connects to Telegram with the given bot token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

// Platform looks up creators and their feeds.
type Platform interface {
	LatestFeed(ctx context.Context, creatorID int64) (*model.FeedPage, error)
	Profile(ctx context.Context, creatorID int64) (*model.Profile, error)
}

// Dispatcher sends feed updates and system cards to a chat.
type Dispatcher interface {
	Dispatch(ctx context.Context, subscriberID string, p *model.RenderPayload) error
	DispatchCard(ctx context.Context, subscriberID string, p *model.RenderPayload) error
	SubscribedPayload(profile *model.Profile, types []model.FilterType, patterns []string) *model.RenderPayload
	VideoPayload(v *model.VideoInfo) *model.RenderPayload
}

// VideoLookup fetches video details and expands short links.
type VideoLookup interface {
	VideoInfo(ctx context.Context, bvid string) (*model.VideoInfo, error)
	ResolveShortLink(ctx context.Context, link string) (string, error)
}

// Services are the collaborators the command handlers call into.
type Services struct {
	Platform   Platform
	Videos     VideoLookup
	Classifier *classifier.Classifier
	Dispatcher Dispatcher
}

// Bot is the Telegram bot that handles user commands.
type Bot struct {
	api        API
	store      storage.Storage
	cfg        *config.Config
	platform   Platform
	videos     VideoLookup
	classifier *classifier.Classifier
	dispatcher Dispatcher
	log        *slog.Logger
}

// New creates a Bot on top of an existing Telegram client.
func New(api API, store storage.Storage, cfg *config.Config, svc Services, log *slog.Logger) *Bot {
	return &Bot{
		api:        api,
		store:      store,
		cfg:        cfg,
		platform:   svc.Platform,
		videos:     svc.Videos,
		classifier: svc.Classifier,
		dispatcher: svc.Dispatcher,
		log:        log,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage routes commands. A plain message that mentions a video gets
// the video card, other plain messages are ignored.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	allowed := msg.From != nil && b.cfg.IsUserAllowed(msg.From.ID)
	if !msg.IsCommand() {
		if allowed && HasVideoRef(msg.Text) {
			b.handleVideo(ctx, newCommand(msg, msg.Text))
		}
		return
	}
	if !allowed {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send reply", "chat_id", chatID, "error", err)
	}
}

// command is one parsed chat command.
type command struct {
	chatID       int64
	subscriberID string
	userID       int64
	args         string
}

func newCommand(msg *tgbotapi.Message, args string) command {
	cmd := command{
		chatID:       msg.Chat.ID,
		subscriberID: SubscriberID(msg.Chat),
		args:         strings.TrimSpace(args),
	}
	if msg.From != nil {
		cmd.userID = msg.From.ID
	}
	return cmd
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := newCommand(msg, msg.CommandArguments())

	b.log.Debug("command", "cmd", msg.Command(), "args", cmd.args, "subscriber", cmd.subscriberID)

	switch name := msg.Command(); name {
	case "start":
		b.handleStart(cmd.chatID)
	case "help":
		b.handleHelp(cmd.chatID)
	case "sid":
		b.reply(cmd.chatID, fmt.Sprintf("Subscriber id of this chat: %s", cmd.subscriberID))
	case "sub":
		b.handleSub(ctx, cmd)
	case cmdList:
		b.handleList(ctx, cmd.chatID, cmd.subscriberID)
	case cmdUnsub:
		b.handleUnsub(ctx, cmd.chatID, cmd.subscriberID, cmd.args)
	case "subtest":
		b.handleSubTest(ctx, cmd)
	case "video":
		b.handleVideo(ctx, cmd)
	case "globalsub", "globaldel", "globallist":
		if !b.cfg.IsAdmin(cmd.userID) {
			b.reply(cmd.chatID, "This command is for admins only.")
			return
		}
		switch name {
		case "globalsub":
			b.handleGlobalSub(ctx, cmd)
		case "globaldel":
			b.handleGlobalDel(ctx, cmd)
		default:
			b.handleGlobalList(ctx, cmd.chatID)
		}
	default:
		b.reply(cmd.chatID, "Unknown command. Use /help for a list of commands.")
	}
}

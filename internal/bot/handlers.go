package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bili_bot/internal/bilibili"
	"bili_bot/internal/filter"
	"bili_bot/internal/model"
	"bili_bot/internal/storage"
)

const (
	cmdList  = "list"
	cmdUnsub = "unsub"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Bili Notify Bot!

Follow Bilibili creators and get their new dynamics and live streams in this chat.

Quick start:
1. /sub <uid> - subscribe to a creator
2. /sub <uid> forward lottery - same, muting reposts and lottery posts
3. /list - see what this chat follows

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, fmt.Sprintf(`Subscriptions:
/sub <uid> [filters...] - subscribe, or update the filters of an existing subscription
/list - show this chat's subscriptions
/unsub <uid> - unsubscribe
/subtest <uid> - send the creator's latest dynamic here without subscribing
/sid - show this chat's subscriber id
/video <BV id | link> - show a video's stats, also triggered by any message with a video link

Filters are filter types or regular expressions. Dynamics of a listed type, or whose text matches a pattern, are not sent.
Filter types: %s

Admin:
/globalsub <sid> <uid> [filters...] - subscribe another chat
/globaldel <sid> - delete all subscriptions of a chat (full id or chat id)
/globallist - list every subscribed chat`, filterTypeNames()))
}

func (b *Bot) handleSub(ctx context.Context, cmd command) {
	args, err := ParseSubArgs(cmd.args)
	if err != nil {
		b.reply(cmd.chatID, err.Error())
		return
	}
	b.subscribe(ctx, cmd.chatID, cmd.subscriberID, args, true)
}

func (b *Bot) handleGlobalSub(ctx context.Context, cmd command) {
	args, err := ParseGlobalSubArgs(cmd.args)
	if err != nil {
		b.reply(cmd.chatID, err.Error())
		return
	}
	b.subscribe(ctx, cmd.chatID, args.SubscriberID, args, false)
}

// subscribe creates or updates the subscription of subscriberID to
// args.CreatorID. Replies go to chatID. With card set, a new subscription is
// confirmed with a rendered card in the subscribed chat.
func (b *Bot) subscribe(ctx context.Context, chatID int64, subscriberID string, args SubArgs, card bool) {
	fa := filter.ParseArgs(args.Tokens)
	if err := filter.ValidatePatterns(fa.Patterns); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid regex, nothing changed:\n%v", err))
		return
	}

	key := model.Key{SubscriberID: subscriberID, CreatorID: args.CreatorID}
	err := b.store.Update(ctx, key, func(sub *model.Subscription) error {
		sub.FilterTypes = fa.Types
		sub.FilterPatterns = fa.Patterns
		return nil
	})
	switch {
	case err == nil:
		msg := fmt.Sprintf("Already subscribed to %d, filters updated.", args.CreatorID)
		if f := FormatFilters(fa.Types, fa.Patterns); f != "" {
			msg += "\n" + f
		}
		b.reply(chatID, msg)
		return
	case !errors.Is(err, storage.ErrNotFound):
		b.log.Error("update subscription", "subscriber", subscriberID, "creator_id", args.CreatorID, "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	profile, err := b.platform.Profile(ctx, args.CreatorID)
	if errors.Is(err, bilibili.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("No such creator: %d", args.CreatorID))
		return
	}
	if err != nil {
		b.log.Error("look up creator", "creator_id", args.CreatorID, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to look up creator: %v", err))
		return
	}

	sub := &model.Subscription{
		SubscriberID:   subscriberID,
		CreatorID:      args.CreatorID,
		FilterTypes:    fa.Types,
		FilterPatterns: fa.Patterns,
		CreatedAt:      time.Now().UTC(),
	}
	if page, err := b.platform.LatestFeed(ctx, args.CreatorID); err != nil {
		b.log.Error("fetch initial feed", "creator_id", args.CreatorID, "name", profile.Name, "error", err)
	} else {
		sub.LastSeenItemID = b.classifier.Classify(page, sub).Cursor
	}

	if err := b.store.Put(ctx, sub); err != nil {
		b.log.Error("save subscription", "subscriber", subscriberID, "creator_id", args.CreatorID, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to save subscription: %v", err))
		return
	}
	b.log.Info("subscribed", "subscriber", subscriberID, "creator_id", args.CreatorID, "last_seen", sub.LastSeenItemID)

	if !card {
		b.reply(chatID, fmt.Sprintf("Subscribed %s to %d (%s).", subscriberID, args.CreatorID, profile.Name))
		return
	}
	p := b.dispatcher.SubscribedPayload(profile, fa.Types, fa.Patterns)
	if err := b.dispatcher.DispatchCard(ctx, subscriberID, p); err != nil {
		b.log.Error("send subscription card", "subscriber", subscriberID, "error", err)
		b.reply(chatID, fmt.Sprintf("Subscribed to %s (%d).", profile.Name, args.CreatorID))
	}
}

func (b *Bot) handleList(ctx context.Context, chatID int64, subscriberID string) {
	subs, err := b.store.List(ctx, subscriberID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	entries := make([]ListEntry, 0, len(subs))
	for _, s := range subs {
		e := ListEntry{CreatorID: s.CreatorID, Sub: s}
		if p, err := b.platform.Profile(ctx, s.CreatorID); err != nil {
			b.log.Warn("look up creator for list", "creator_id", s.CreatorID, "error", err)
		} else {
			e.Name = p.Name
		}
		entries = append(entries, e)
	}

	b.sendWithKeyboard(chatID, FormatSubscriptionList(entries), listKeyboard(entries))
}

func (b *Bot) handleUnsub(ctx context.Context, chatID int64, subscriberID, args string) {
	uid, err := ParseUIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unsub <uid>")
		return
	}

	err = b.store.Delete(ctx, model.Key{SubscriberID: subscriberID, CreatorID: uid})
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Subscription to %d not found.", uid))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting subscription: %v", err))
		return
	}
	b.log.Info("unsubscribed", "subscriber", subscriberID, "creator_id", uid)
	b.reply(chatID, fmt.Sprintf("Unsubscribed from %d.", uid))
}

// handleSubTest classifies the creator's current feed with no cursor and no
// filters and sends the result here. Nothing is saved.
func (b *Bot) handleSubTest(ctx context.Context, cmd command) {
	uid, err := ParseUIDArg(cmd.args)
	if err != nil {
		b.reply(cmd.chatID, "Usage: /subtest <uid>")
		return
	}

	page, err := b.platform.LatestFeed(ctx, uid)
	if err != nil {
		b.reply(cmd.chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}

	d := b.classifier.Classify(page, &model.Subscription{SubscriberID: cmd.subscriberID, CreatorID: uid})
	if d.Payload == nil {
		b.reply(cmd.chatID, fmt.Sprintf("No dynamic of %d to show.", uid))
		return
	}
	if err := b.dispatcher.Dispatch(ctx, cmd.subscriberID, d.Payload); err != nil {
		b.reply(cmd.chatID, fmt.Sprintf("Failed to send dynamic: %v", err))
	}
}

func (b *Bot) handleGlobalDel(ctx context.Context, cmd command) {
	if cmd.args == "" {
		b.reply(cmd.chatID, "Usage: /globaldel <subscriber_id>\nUse /sid in a chat to see its subscriber id.")
		return
	}

	ids, err := b.store.ListSubscribers(ctx)
	if err != nil {
		b.reply(cmd.chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	matches := MatchSubscribers(ids, cmd.args)
	switch len(matches) {
	case 0:
		b.reply(cmd.chatID, fmt.Sprintf("No subscriber matches %q.", cmd.args))
		return
	case 1:
	default:
		b.reply(cmd.chatID, FormatCandidates(cmd.args, matches))
		return
	}

	n, err := b.store.DeleteSubscriber(ctx, matches[0])
	if err != nil {
		b.reply(cmd.chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.log.Info("deleted subscriber", "subscriber", matches[0], "count", n)
	b.reply(cmd.chatID, fmt.Sprintf("Deleted %d subscription(s) of %s.", n, matches[0]))
}

func (b *Bot) handleGlobalList(ctx context.Context, chatID int64) {
	ids, err := b.store.ListSubscribers(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	subs, err := b.store.ListAll(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatGlobalList(ids, subs))
}

// handleVideo replies with the card of the video named by a BV id, a video
// page link or a b23.tv short link in cmd.args.
func (b *Bot) handleVideo(ctx context.Context, cmd command) {
	bvid := bilibili.FindBVID(cmd.args)
	if bvid == "" {
		link := bilibili.FindShortLink(cmd.args)
		if link == "" {
			b.reply(cmd.chatID, "Usage: /video <BV id | video link | b23.tv link>")
			return
		}
		target, err := b.videos.ResolveShortLink(ctx, link)
		if err != nil {
			b.log.Warn("resolve short link", "link", link, "error", err)
			b.reply(cmd.chatID, fmt.Sprintf("Failed to resolve %s: %v", link, err))
			return
		}
		if bvid = bilibili.FindBVID(target); bvid == "" {
			b.reply(cmd.chatID, fmt.Sprintf("%s does not point to a video.", link))
			return
		}
	}

	info, err := b.videos.VideoInfo(ctx, bvid)
	if errors.Is(err, bilibili.ErrVideoNotFound) {
		b.reply(cmd.chatID, fmt.Sprintf("No such video: %s", bvid))
		return
	}
	if err != nil {
		b.log.Error("fetch video info", "bvid", bvid, "error", err)
		b.reply(cmd.chatID, fmt.Sprintf("Failed to fetch video info: %v", err))
		return
	}

	if err := b.dispatcher.DispatchCard(ctx, cmd.subscriberID, b.dispatcher.VideoPayload(info)); err != nil {
		b.log.Error("send video card", "subscriber", cmd.subscriberID, "bvid", bvid, "error", err)
		b.reply(cmd.chatID, fmt.Sprintf("Failed to send video info: %v", err))
	}
}

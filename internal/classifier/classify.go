// Package classifier decides which feed item is new for a subscription and
// turns it into a render payload.
package classifier

import (
	"log/slog"

	"bili_bot/internal/filter"
	"bili_bot/internal/model"
)

// LotteryMarker is the opening rich-text node of an interactive lottery post.
const LotteryMarker = "互动抽奖"

// QRFunc encodes content as a QR code data URI. It returns "" on failure.
type QRFunc func(content string) string

// Decision is the outcome of classifying one feed page.
//
// Payload set: render and send it, then commit Cursor.
// Payload nil, Cursor set: the item was filtered, commit Cursor only.
// Both empty: nothing new, or the newest item could not be handled.
type Decision struct {
	Payload *model.RenderPayload
	Cursor  string
}

// Advanced reports whether the decision moves the cursor.
func (d Decision) Advanced() bool {
	return d.Cursor != ""
}

// Classifier walks feed pages and produces Decisions.
type Classifier struct {
	log *slog.Logger
	qr  QRFunc
}

// New creates a Classifier. qr may be nil, in which case payloads carry no
// QR code.
func New(log *slog.Logger, qr QRFunc) *Classifier {
	if qr == nil {
		qr = func(string) string { return "" }
	}
	return &Classifier{log: log, qr: qr}
}

// Classify scans page newest first and decides on the first item that is
// neither malformed nor pinned. Hitting the subscription's cursor means there
// is nothing new. It never returns an error for unexpected data.
func (c *Classifier) Classify(page *model.FeedPage, sub *model.Subscription) Decision {
	if page == nil || sub == nil {
		return Decision{}
	}

	for i := range page.Items {
		item := &page.Items[i]
		if !wellFormed(item) {
			c.log.Debug("skip malformed item", "creator_id", sub.CreatorID, "item_id", item.ID)
			continue
		}
		if item.Pinned {
			continue
		}
		if item.ID == sub.LastSeenItemID {
			return Decision{}
		}
		return c.decide(item, sub)
	}
	return Decision{}
}

func (c *Classifier) decide(item *model.FeedItem, sub *model.Subscription) Decision {
	switch item.Kind {
	case model.KindForward:
		if sub.HasFilterType(model.FilterForward) {
			return c.filtered(item, sub, "type", string(model.FilterForward))
		}
		if p, ok := filter.NewMatcher(sub.FilterPatterns).Match(item.Forward.Comment.Text); ok {
			return c.filtered(item, sub, "pattern", p)
		}
		return Decision{Payload: c.forwardPayload(item), Cursor: item.ID}

	case model.KindImagePost:
		if ft := imagePostFilterType(item.TypeToken); sub.HasFilterType(ft) {
			return c.filtered(item, sub, "type", string(ft))
		}
		if item.Post.Blocked {
			return c.filtered(item, sub, "blocked", "charge-only")
		}
		if item.Post.Summary.FirstNodeText() == LotteryMarker && sub.HasFilterType(model.FilterLottery) {
			return c.filtered(item, sub, "type", string(model.FilterLottery))
		}
		if p, ok := filter.NewMatcher(sub.FilterPatterns).Match(item.Post.Summary.Text); ok {
			return c.filtered(item, sub, "pattern", p)
		}
		return Decision{Payload: c.buildPayload(item, false), Cursor: item.ID}

	case model.KindVideo:
		if sub.HasFilterType(model.FilterVideo) {
			return c.filtered(item, sub, "type", string(model.FilterVideo))
		}
		return Decision{Payload: c.buildPayload(item, false), Cursor: item.ID}

	default:
		c.log.Warn("unsupported feed item type",
			"creator_id", sub.CreatorID, "item_id", item.ID, "type", item.TypeToken)
		return Decision{}
	}
}

func (c *Classifier) filtered(item *model.FeedItem, sub *model.Subscription, by, value string) Decision {
	c.log.Info("item filtered",
		"subscriber", sub.SubscriberID, "creator_id", sub.CreatorID,
		"item_id", item.ID, "by", by, "value", value)
	return Decision{Cursor: item.ID}
}

func imagePostFilterType(token string) model.FilterType {
	if token == model.TypeArticle {
		return model.FilterArticle
	}
	return model.FilterDraw
}

// wellFormed reports whether item has an id and the payload its kind needs.
// Unknown kinds are well formed so that they stop the scan.
func wellFormed(item *model.FeedItem) bool {
	if item.Malformed || item.ID == "" {
		return false
	}
	switch item.Kind {
	case model.KindForward:
		return item.Forward != nil
	case model.KindVideo:
		return item.Video != nil
	case model.KindImagePost:
		return item.Post != nil
	default:
		return true
	}
}

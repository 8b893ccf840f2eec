// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"time"
)

// FilterType is a content category a subscriber can mute.
type FilterType string

// Supported filter types.
const (
	FilterForward FilterType = "forward"
	FilterLottery FilterType = "lottery"
	FilterVideo   FilterType = "video"
	FilterArticle FilterType = "article"
	FilterDraw    FilterType = "draw"
	FilterLive    FilterType = "live"
)

// FilterTypes lists every valid filter type in display order.
var FilterTypes = []FilterType{FilterForward, FilterLottery, FilterVideo, FilterArticle, FilterDraw, FilterLive}

// IsValid reports whether t is one of the known filter types.
func (t FilterType) IsValid() bool {
	for _, v := range FilterTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Key identifies a single subscription record.
type Key struct {
	SubscriberID string
	CreatorID    int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.SubscriberID, k.CreatorID)
}

// Subscription is one chat's subscription to one creator.
type Subscription struct {
	SubscriberID   string       `json:"subscriber_id"`
	CreatorID      int64        `json:"uid"`
	LastSeenItemID string       `json:"last"`
	IsLive         bool         `json:"is_live"`
	FilterTypes    []FilterType `json:"filter_types"`
	FilterPatterns []string     `json:"filter_regex"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Key returns the record key of the subscription.
func (s *Subscription) Key() Key {
	return Key{SubscriberID: s.SubscriberID, CreatorID: s.CreatorID}
}

// HasFilterType reports whether t is muted for this subscription.
func (s *Subscription) HasFilterType(t FilterType) bool {
	for _, v := range s.FilterTypes {
		if v == t {
			return true
		}
	}
	return false
}

// LiveInfo is the live room state of a creator.
type LiveInfo struct {
	CreatorName string
	Live        bool
	RoomTitle   string
	Cover       string
	URL         string
}

// Profile is the public profile of a creator.
type Profile struct {
	ID     int64
	Name   string
	Sex    string
	Avatar string
}

// VideoInfo is the public summary of one video.
type VideoInfo struct {
	BVID      string
	Title     string
	OwnerName string
	Cover     string
	Views     int64
	Likes     int64
	Coins     int64
	// Online is the current viewer count as the site formats it, e.g. "1000+".
	Online string
}

// Transition is a change in live state between two poll cycles.
type Transition int

// Live transitions.
const (
	TransitionNone Transition = iota
	WentLive
	WentOffline
)

func (t Transition) String() string {
	switch t {
	case WentLive:
		return "went_live"
	case WentOffline:
		return "went_offline"
	default:
		return "none"
	}
}

// PartKind distinguishes the parts of a plain message.
type PartKind int

// Message part kinds.
const (
	PartText PartKind = iota
	PartImageURL
)

// Part is one element of a plain (non-rendered) message.
type Part struct {
	Kind  PartKind
	Value string
}

// Message is an outbound chat message: either a rendered image with a
// caption, or a list of text and image parts.
type Message struct {
	ImagePath string
	Caption   string
	Parts     []Part
}

// TextPart returns a text message part.
func TextPart(s string) Part { return Part{Kind: PartText, Value: s} }

// ImagePart returns an image-by-URL message part.
func ImagePart(url string) Part { return Part{Kind: PartImageURL, Value: url} }

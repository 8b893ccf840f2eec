package dispatch

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"bili_bot/internal/model"
)

// SpaceURL is the profile page of a creator.
func SpaceURL(creatorID int64) string {
	return "https://space.bilibili.com/" + strconv.FormatInt(creatorID, 10)
}

// LiveText is the notice for a live transition.
func LiveText(creatorName string, t model.Transition) string {
	switch t {
	case model.WentLive:
		return fmt.Sprintf("📣 %s is live now!", creatorName)
	case model.WentOffline:
		return fmt.Sprintf("📣 %s went offline.", creatorName)
	default:
		return ""
	}
}

// LivePayload builds the card for a live transition.
func (d *Dispatcher) LivePayload(info *model.LiveInfo, t model.Transition) *model.RenderPayload {
	text := LiveText(info.CreatorName, t)
	p := &model.RenderPayload{
		DisplayName:  d.botName,
		Title:        info.RoomTitle,
		Body:         html.EscapeString(text),
		Summary:      text,
		ImageURLs:    []string{},
		PermalinkURL: info.URL,
		QRCode:       d.qr(info.URL),
	}
	if info.Cover != "" {
		p.ImageURLs = []string{info.Cover}
	}
	return p
}

// SubscribedPayload builds the confirmation card for a new subscription.
func (d *Dispatcher) SubscribedPayload(profile *model.Profile, types []model.FilterType, patterns []string) *model.RenderPayload {
	lines := []string{
		"📣 Subscribed!",
		fmt.Sprintf("Creator: %s | Sex: %s", profile.Name, profile.Sex),
	}
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		lines = append(lines, "Muted types: "+strings.Join(names, ", "))
	}
	if len(patterns) > 0 {
		lines = append(lines, "Muted patterns: "+strings.Join(patterns, ", "))
	}
	for i := range lines {
		lines[i] = html.EscapeString(lines[i])
	}

	url := SpaceURL(profile.ID)
	p := &model.RenderPayload{
		DisplayName:  d.botName,
		Body:         strings.Join(lines, "<br>"),
		ImageURLs:    []string{},
		PermalinkURL: url,
		QRCode:       d.qr(url),
	}
	if profile.Avatar != "" {
		p.ImageURLs = []string{profile.Avatar}
	}
	return p
}

// VideoURL is the watch page of a video.
func VideoURL(bvid string) string {
	return "https://www.bilibili.com/video/" + bvid
}

// VideoPayload builds the card for a video lookup.
func (d *Dispatcher) VideoPayload(v *model.VideoInfo) *model.RenderPayload {
	lines := []string{
		"Uploader: " + v.OwnerName,
		fmt.Sprintf("Views: %d", v.Views),
		fmt.Sprintf("Likes: %d", v.Likes),
		fmt.Sprintf("Coins: %d", v.Coins),
	}
	if v.Online != "" {
		lines = append(lines, fmt.Sprintf("%s watching now", v.Online))
	}
	for i := range lines {
		lines[i] = html.EscapeString(lines[i])
	}

	url := VideoURL(v.BVID)
	p := &model.RenderPayload{
		DisplayName:  d.botName,
		Title:        v.Title,
		Body:         strings.Join(lines, "<br>"),
		ImageURLs:    []string{},
		PermalinkURL: url,
		QRCode:       d.qr(url),
	}
	if v.Cover != "" {
		p.ImageURLs = []string{v.Cover}
	}
	return p
}

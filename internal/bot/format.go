package bot

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"bili_bot/internal/model"
)

// ListEntry is one line of a chat's subscription list. Name is empty when
// the profile lookup failed.
type ListEntry struct {
	CreatorID int64
	Name      string
	Sub       model.Subscription
}

// FormatSubscriptionList formats the subscriptions of one chat.
func FormatSubscriptionList(entries []ListEntry) string {
	if len(entries) == 0 {
		return "No subscriptions yet. Use /sub <uid> to add one."
	}
	var b strings.Builder
	b.WriteString("Subscriptions:\n")
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = "(creator info unavailable)"
		}
		fmt.Fprintf(&b, "%d. %d - %s\n", i+1, e.CreatorID, name)
		if f := FormatFilters(e.Sub.FilterTypes, e.Sub.FilterPatterns); f != "" {
			fmt.Fprintf(&b, "   %s\n", f)
		}
	}
	return b.String()
}

// FormatFilters describes muted types and patterns on one line, or returns
// "" when there are none.
func FormatFilters(types []model.FilterType, patterns []string) string {
	var parts []string
	if len(types) > 0 {
		names := lo.Map(types, func(t model.FilterType, _ int) string { return string(t) })
		parts = append(parts, "muted types: "+strings.Join(names, ", "))
	}
	if len(patterns) > 0 {
		parts = append(parts, "muted patterns: "+strings.Join(patterns, ", "))
	}
	return strings.Join(parts, "; ")
}

// FormatGlobalList lists every subscriber with its creator ids.
func FormatGlobalList(subscribers []string, subs []model.Subscription) string {
	if len(subscribers) == 0 {
		return "No chat has any subscription."
	}
	bySubscriber := lo.GroupBy(subs, func(s model.Subscription) string { return s.SubscriberID })

	var b strings.Builder
	b.WriteString("Subscribers:\n")
	for _, sid := range subscribers {
		fmt.Fprintf(&b, "- %s\n", sid)
		for _, s := range bySubscriber[sid] {
			fmt.Fprintf(&b, "  - %d\n", s.CreatorID)
		}
	}
	return b.String()
}

// FormatCandidates lists the subscriber ids an ambiguous query matched.
func FormatCandidates(query string, ids []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q matches %d subscribers, use the full id:\n", query, len(ids))
	for _, id := range ids {
		fmt.Fprintf(&b, "- %s\n", id)
	}
	return b.String()
}

func filterTypeNames() string {
	return strings.Join(lo.Map(model.FilterTypes, func(t model.FilterType, _ int) string { return string(t) }), ", ")
}

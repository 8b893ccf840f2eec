package bot

import (
	"fmt"
	"strconv"
	"strings"

	"bili_bot/internal/bilibili"
)

// SubArgs holds the parsed arguments of a subscribe command.
type SubArgs struct {
	SubscriberID string
	CreatorID    int64
	Tokens       []string
}

// ParseUIDArg extracts a creator uid from a command argument string.
func ParseUIDArg(args string) (int64, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, fmt.Errorf("creator UID is required")
	}
	return parseUID(fields[0])
}

// ParseSubArgs parses arguments for /sub.
// Format: <uid> [filter types and regex patterns...]
func ParseSubArgs(args string) (SubArgs, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return SubArgs{}, fmt.Errorf("usage: /sub <uid> [filters...]")
	}
	uid, err := parseUID(fields[0])
	if err != nil {
		return SubArgs{}, err
	}
	return SubArgs{CreatorID: uid, Tokens: fields[1:]}, nil
}

// ParseGlobalSubArgs parses arguments for /globalsub.
// Format: <subscriber id> <uid> [filters...]
func ParseGlobalSubArgs(args string) (SubArgs, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return SubArgs{}, fmt.Errorf("usage: /globalsub <subscriber_id> <uid> [filters...]")
	}
	if _, err := ParseSubscriberID(fields[0]); err != nil {
		return SubArgs{}, fmt.Errorf("invalid subscriber id %q, use /sid in the target chat", fields[0])
	}
	uid, err := parseUID(fields[1])
	if err != nil {
		return SubArgs{}, err
	}
	return SubArgs{SubscriberID: fields[0], CreatorID: uid, Tokens: fields[2:]}, nil
}

// MatchSubscribers returns the ids whose last segment is query. An id equal
// to query is the only match.
func MatchSubscribers(ids []string, query string) []string {
	var out []string
	for _, id := range ids {
		if id == query {
			return []string{id}
		}
		last := id
		if i := strings.LastIndex(id, ":"); i >= 0 {
			last = id[i+1:]
		}
		if last == query {
			out = append(out, id)
		}
	}
	return out
}

func parseUID(s string) (int64, error) {
	uid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || uid <= 0 {
		return 0, fmt.Errorf("invalid UID %q", s)
	}
	return uid, nil
}

// HasVideoRef reports whether s mentions a video id or a short link.
func HasVideoRef(s string) bool {
	return bilibili.FindBVID(s) != "" || bilibili.FindShortLink(s) != ""
}

// Package bilibili is a small client for the public Bilibili web API: a
// creator's dynamics feed, live room state, profile card and video info.
package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"bili_bot/internal/model"
)

// Default API hosts.
const (
	DefaultAPIBase  = "https://api.bilibili.com"
	DefaultLiveBase = "https://api.live.bilibili.com"
)

const (
	userAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodySize = 5 * 1024 * 1024

	codeNotFound = -404
)

var (
	// ErrNotFound is returned when the creator does not exist.
	ErrNotFound = errors.New("creator not found")
	// ErrNoCredential is returned by LatestFeed when no SESSDATA is configured.
	ErrNoCredential = errors.New("no bilibili credential configured")
	// ErrVideoNotFound is returned by VideoInfo for an unknown or hidden video.
	ErrVideoNotFound = errors.New("video not found")
	// ErrNotShortLink is returned when a short link does not redirect.
	ErrNotShortLink = errors.New("link does not redirect")
)

var (
	bvidRe      = regexp.MustCompile(`(?i)\bBV([0-9A-Za-z]{10})\b`)
	shortLinkRe = regexp.MustCompile(`(?i)(?:https?://)?(?:b23\.tv|bili2233\.cn)/[0-9A-Za-z]+`)
)

// FindBVID returns the first video id in s, normalised to the "BV" prefix,
// or "" when there is none.
func FindBVID(s string) string {
	m := bvidRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return "BV" + m[1]
}

// FindShortLink returns the first b23.tv style short link in s with a
// scheme, or "" when there is none.
func FindShortLink(s string) string {
	link := shortLinkRe.FindString(s)
	if link == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(link), "http") {
		link = "https://" + link
	}
	return link
}

// APIError is a non-zero API result code.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili api error %d: %s", e.Code, e.Message)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Bilibili web API.
type Client struct {
	http HTTPClient
	// redirects is http with redirect following disabled when that is possible.
	redirects HTTPClient
	sessdata string
	apiBase  string
	liveBase string
	timeout  time.Duration

	// names caches creator display names for live notices.
	names sync.Map
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the API hosts.
func WithBaseURLs(api, live string) Option {
	return func(c *Client) {
		c.apiBase = api
		c.liveBase = live
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a Client. sessdata may be empty, which disables LatestFeed.
func New(httpClient HTTPClient, sessdata string, opts ...Option) *Client {
	c := &Client{
		http:     httpClient,
		sessdata: sessdata,
		apiBase:  DefaultAPIBase,
		liveBase: DefaultLiveBase,
		timeout:  15 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	c.redirects = httpClient
	if hc, ok := httpClient.(*http.Client); ok {
		nr := *hc
		nr.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		c.redirects = &nr
	}
	return c
}

// HasCredential reports whether a SESSDATA cookie is configured.
func (c *Client) HasCredential() bool {
	return c.sessdata != ""
}

// LatestFeed returns the newest page of a creator's dynamics.
func (c *Client) LatestFeed(ctx context.Context, creatorID int64) (*model.FeedPage, error) {
	if !c.HasCredential() {
		return nil, ErrNoCredential
	}
	q := url.Values{"host_mid": {strconv.FormatInt(creatorID, 10)}}
	var data feedData
	if err := c.get(ctx, c.apiBase+"/x/polymer/web-dynamic/v1/feed/space?"+q.Encode(), &data); err != nil {
		return nil, fmt.Errorf("get feed %d: %w", creatorID, err)
	}
	page := convertPage(&data)
	for _, it := range page.Items {
		if it.Author.Name != "" {
			c.names.Store(creatorID, it.Author.Name)
			break
		}
	}
	return page, nil
}

// LiveInfo returns the live room state of a creator.
func (c *Client) LiveInfo(ctx context.Context, creatorID int64) (*model.LiveInfo, error) {
	q := url.Values{"mid": {strconv.FormatInt(creatorID, 10)}}
	var room roomData
	if err := c.get(ctx, c.liveBase+"/room/v1/Room/getRoomInfoOld?"+q.Encode(), &room); err != nil {
		return nil, fmt.Errorf("get live room %d: %w", creatorID, err)
	}

	info := &model.LiveInfo{
		Live:      room.LiveStatus == 1,
		RoomTitle: room.Title,
		Cover:     room.Cover,
		URL:       room.URL,
	}
	if name, ok := c.names.Load(creatorID); ok {
		info.CreatorName = name.(string)
	} else if p, err := c.Profile(ctx, creatorID); err == nil {
		info.CreatorName = p.Name
	} else {
		info.CreatorName = strconv.FormatInt(creatorID, 10)
	}
	return info, nil
}

// Profile returns the public profile of a creator. A missing creator
// yields ErrNotFound.
func (c *Client) Profile(ctx context.Context, creatorID int64) (*model.Profile, error) {
	q := url.Values{"mid": {strconv.FormatInt(creatorID, 10)}}
	var data cardData
	if err := c.get(ctx, c.apiBase+"/x/web-interface/card?"+q.Encode(), &data); err != nil {
		return nil, fmt.Errorf("get profile %d: %w", creatorID, err)
	}
	p := &model.Profile{
		ID:     creatorID,
		Name:   data.Card.Name,
		Sex:    data.Card.Sex,
		Avatar: data.Card.Face,
	}
	if p.Name != "" {
		c.names.Store(creatorID, p.Name)
	}
	return p, nil
}

// VideoInfo returns the title, owner, counters and current viewer count of
// a video.
func (c *Client) VideoInfo(ctx context.Context, bvid string) (*model.VideoInfo, error) {
	q := url.Values{"bvid": {bvid}}
	var view viewData
	if err := c.get(ctx, c.apiBase+"/x/web-interface/view?"+q.Encode(), &view); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("get video %s: %w", bvid, err)
	}

	q.Set("cid", strconv.FormatInt(view.CID, 10))
	var online onlineData
	if err := c.get(ctx, c.apiBase+"/x/player/online/total?"+q.Encode(), &online); err != nil {
		return nil, fmt.Errorf("get online count %s: %w", bvid, err)
	}

	if view.Owner.Name != "" && view.Owner.Mid != 0 {
		c.names.Store(view.Owner.Mid, view.Owner.Name)
	}
	return &model.VideoInfo{
		BVID:      bvid,
		Title:     view.Title,
		OwnerName: view.Owner.Name,
		Cover:     view.Pic,
		Views:     view.Stat.View,
		Likes:     view.Stat.Like,
		Coins:     view.Stat.Coin,
		Online:    online.Total,
	}, nil
}

// ResolveShortLink follows one redirect of a short link and returns the
// target without its query string.
func (c *Client) ResolveShortLink(ctx context.Context, link string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.redirects.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", link, err)
	}
	defer func() { _ = resp.Body.Close() }()

	target := ""
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		target = resp.Header.Get("Location")
	} else if resp.Request != nil && resp.Request.URL.String() != link {
		target = resp.Request.URL.String()
	}
	if target == "" {
		return "", fmt.Errorf("resolve %s: %w", link, ErrNotShortLink)
	}
	target, _, _ = strings.Cut(target, "?")
	return target, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://www.bilibili.com/")
	if c.sessdata != "" {
		req.AddCookie(&http.Cookie{Name: "SESSDATA", Value: c.sessdata})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code == codeNotFound {
		return ErrNotFound
	}
	if env.Code != 0 {
		return &APIError{Code: env.Code, Message: env.Message}
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

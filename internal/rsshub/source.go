// Package rsshub reads creator dynamics from an RSSHub mirror when no
// Bilibili credential is available.
package rsshub

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"bili_bot/internal/model"
)

const feedTitleSuffix = " 的 bilibili 动态"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Platform serves the lookups an RSS feed cannot answer.
type Platform interface {
	LiveInfo(ctx context.Context, creatorID int64) (*model.LiveInfo, error)
	Profile(ctx context.Context, creatorID int64) (*model.Profile, error)
}

// Source fetches dynamics as RSS and delegates live state and profiles.
type Source struct {
	client   HTTPClient
	baseURL  string
	platform Platform
	timeout  time.Duration
}

// New creates a Source reading from the RSSHub instance at baseURL.
func New(client HTTPClient, baseURL string, platform Platform, timeout time.Duration) *Source {
	return &Source{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		platform: platform,
		timeout:  timeout,
	}
}

// LatestFeed fetches and converts the creator's dynamics feed.
func (s *Source) LatestFeed(ctx context.Context, creatorID int64) (*model.FeedPage, error) {
	feed, err := s.fetch(ctx, s.baseURL+"/bilibili/user/dynamic/"+strconv.FormatInt(creatorID, 10))
	if err != nil {
		return nil, fmt.Errorf("get rsshub feed %d: %w", creatorID, err)
	}
	return convertFeed(feed), nil
}

// LiveInfo delegates to the platform client.
func (s *Source) LiveInfo(ctx context.Context, creatorID int64) (*model.LiveInfo, error) {
	return s.platform.LiveInfo(ctx, creatorID)
}

// Profile delegates to the platform client.
func (s *Source) Profile(ctx context.Context, creatorID int64) (*model.Profile, error) {
	return s.platform.Profile(ctx, creatorID)
}

func (s *Source) fetch(ctx context.Context, rawURL string) (*gofeed.Feed, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "BiliBot/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// ItemID prefers the numeric dynamic id of a t.bilibili.com link or GUID so
// the cursor matches the one the web API would produce.
func ItemID(item *gofeed.Item) string {
	for _, raw := range []string{item.Link, item.GUID} {
		if id := dynamicID(raw); id != "" {
			return id
		}
	}
	return ItemGUID(item)
}

func dynamicID(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "t.bilibili.com" {
		return ""
	}
	id := path.Base(u.Path)
	if id == "/" || id == "." {
		return ""
	}
	return id
}

func convertFeed(feed *gofeed.Feed) *model.FeedPage {
	author := model.Author{Name: strings.TrimSuffix(feed.Title, feedTitleSuffix)}
	if feed.Image != nil {
		author.Face = feed.Image.URL
	}

	page := &model.FeedPage{Items: make([]model.FeedItem, 0, len(feed.Items))}
	for _, it := range feed.Items {
		page.Items = append(page.Items, convertItem(it, author))
	}
	return page
}

func convertItem(it *gofeed.Item, author model.Author) model.FeedItem {
	if len(it.Authors) > 0 && it.Authors[0].Name != "" {
		author.Name = it.Authors[0].Name
	}
	text, images := parseDescription(it.Description)
	item := model.FeedItem{ID: ItemID(it), Author: author}

	if bvid := videoID(it.Link); bvid != "" {
		item.Kind = model.KindVideo
		item.TypeToken = model.TypeVideo
		cover := ""
		if len(images) > 0 {
			cover = images[0]
		}
		item.Video = &model.Video{Title: it.Title, Cover: cover, BVID: bvid, Desc: model.RichText{Text: text}}
		return item
	}

	item.Kind = model.KindImagePost
	item.TypeToken = model.TypeDraw
	item.Post = &model.Post{
		Summary: model.RichText{Text: text},
		Images:  images,
		JumpURL: strings.TrimPrefix(it.Link, "https:"),
	}
	return item
}

// parseDescription returns the plain text and the image sources of an item
// description.
func parseDescription(desc string) (string, []string) {
	if desc == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return desc, nil
	}
	var images []string
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok && src != "" {
			images = append(images, src)
		}
	})
	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text()), images
}

func videoID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(u.Path, "/video/") {
		return ""
	}
	return strings.Trim(strings.TrimPrefix(u.Path, "/video/"), "/")
}

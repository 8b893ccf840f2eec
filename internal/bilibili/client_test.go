package bilibili

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bili_bot/internal/model"
)

type fakeAPI struct {
	feed       string
	cardCalls  atomic.Int32
	feedCookie atomic.Value
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/polymer/web-dynamic/v1/feed/space", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("host_mid"); got != "12345" {
			t.Errorf("unexpected host_mid %q", got)
		}
		if c, err := r.Cookie("SESSDATA"); err == nil {
			f.feedCookie.Store(c.Value)
		}
		_, _ = fmt.Fprint(w, f.feed)
	})
	mux.HandleFunc("/room/v1/Room/getRoomInfoOld", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mid") {
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = fmt.Fprint(w, `{"code":0,"message":"0","data":{"roomStatus":1,"liveStatus":1,"url":"https://live.bilibili.com/777","title":"直播中","cover":"https://i0.hdslb.com/bfs/live/cover.jpg","roomid":777}}`)
		}
	})
	mux.HandleFunc("/x/web-interface/card", func(w http.ResponseWriter, r *http.Request) {
		f.cardCalls.Add(1)
		switch r.URL.Query().Get("mid") {
		case "404":
			_, _ = fmt.Fprint(w, `{"code":-404,"message":"啥都木有","ttl":1}`)
		case "412":
			_, _ = fmt.Fprint(w, `{"code":-412,"message":"请求被拦截","ttl":1}`)
		default:
			_, _ = fmt.Fprint(w, `{"code":0,"message":"0","data":{"card":{"mid":"`+r.URL.Query().Get("mid")+`","name":"卡片UP","sex":"保密","face":"https://i0.hdslb.com/bfs/face/card.jpg"}}}`)
		}
	})
	mux.HandleFunc("/x/web-interface/view", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("bvid") {
		case "BV1xx411c7mD":
			_, _ = fmt.Fprint(w, `{"code":0,"message":"0","data":{"bvid":"BV1xx411c7mD","cid":3724723,"title":"字幕君交流场所","pic":"https://i0.hdslb.com/bfs/archive/cover.jpg","owner":{"mid":2,"name":"碧诗"},"stat":{"view":3000000,"like":120000,"coin":45000}}}`)
		default:
			_, _ = fmt.Fprint(w, `{"code":-404,"message":"啥都木有","ttl":1}`)
		}
	})
	mux.HandleFunc("/x/player/online/total", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cid"); got != "3724723" {
			t.Errorf("unexpected cid %q", got)
		}
		_, _ = fmt.Fprint(w, `{"code":0,"message":"0","data":{"total":"1000+","count":"800"}}`)
	})
	mux.HandleFunc("/b23/abcdef", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.bilibili.com/video/BV1xx411c7mD?share_source=copy", http.StatusFound)
	})
	mux.HandleFunc("/b23/plain", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "ok")
	})
	return mux
}

func newTestClient(t *testing.T, sessdata string) (*Client, *fakeAPI) {
	t.Helper()
	data, err := os.ReadFile("../../testdata/bilibili_feed.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	api := &fakeAPI{feed: string(data)}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return New(srv.Client(), sessdata, WithBaseURLs(srv.URL, srv.URL)), api
}

func TestLatestFeed(t *testing.T) {
	c, api := newTestClient(t, "token")

	got, err := c.LatestFeed(context.Background(), 12345)
	if err != nil {
		t.Fatalf("latest feed: %v", err)
	}
	if got := api.feedCookie.Load(); got != "token" {
		t.Errorf("expected SESSDATA cookie, got %v", got)
	}

	face := "https://i0.hdslb.com/bfs/face/face.jpg"
	up := model.Author{Name: "测试UP", Face: face}
	want := &model.FeedPage{Items: []model.FeedItem{
		{
			ID:        "900000000000000105",
			Kind:      model.KindVideo,
			TypeToken: model.TypeVideo,
			Pinned:    true,
			Author:    model.Author{Name: "测试UP", Face: face, Pendant: "https://i0.hdslb.com/bfs/garb/pendant.png"},
			Video:     &model.Video{Title: "置顶视频", Cover: "https://i0.hdslb.com/bfs/archive/pinned.jpg", BVID: "BV1pinned0001"},
		},
		{
			ID:        "900000000000000104",
			Kind:      model.KindVideo,
			TypeToken: model.TypeVideo,
			Author:    up,
			Topic:     "日常",
			Video: &model.Video{
				Title: "T",
				Cover: "https://i0.hdslb.com/bfs/archive/t.jpg",
				BVID:  "BV1xx411c7mD",
				Desc: model.RichText{
					Text: "新视频 [doge]",
					Nodes: []model.RichTextNode{
						{Type: "RICH_TEXT_NODE_TYPE_TEXT", Text: "新视频 "},
						{Type: "RICH_TEXT_NODE_TYPE_EMOJI", Text: "[doge]", IconURL: "https://i0.hdslb.com/bfs/emote/doge.png"},
					},
				},
			},
		},
		{
			ID:        "900000000000000103",
			Kind:      model.KindForward,
			TypeToken: model.TypeForward,
			Author:    up,
			Forward: &model.Forward{
				Comment: model.RichText{
					Text:  "转发一下",
					Nodes: []model.RichTextNode{{Type: "RICH_TEXT_NODE_TYPE_TEXT", Text: "转发一下"}},
				},
				Original: &model.FeedItem{
					ID:        "800000000000000001",
					Kind:      model.KindImagePost,
					TypeToken: model.TypeDraw,
					Author:    model.Author{Name: "别的UP", Face: "https://i0.hdslb.com/bfs/face/other.jpg"},
					Post: &model.Post{
						Summary: model.RichText{
							Text:  "五张图",
							Nodes: []model.RichTextNode{{Type: "RICH_TEXT_NODE_TYPE_TEXT", Text: "五张图"}},
						},
						Images: []string{
							"https://i0.hdslb.com/bfs/new_dyn/1.jpg",
							"https://i0.hdslb.com/bfs/new_dyn/2.jpg",
							"https://i0.hdslb.com/bfs/new_dyn/3.jpg",
							"https://i0.hdslb.com/bfs/new_dyn/4.jpg",
							"https://i0.hdslb.com/bfs/new_dyn/5.jpg",
						},
						JumpURL: "//www.bilibili.com/opus/800000000000000001",
					},
				},
			},
		},
		{
			ID:        "900000000000000102",
			Kind:      model.KindImagePost,
			TypeToken: model.TypeDraw,
			Author:    up,
			Post: &model.Post{
				Summary: model.RichText{
					Text: "互动抽奖 转发送周边",
					Nodes: []model.RichTextNode{
						{Type: "RICH_TEXT_NODE_TYPE_LOTTERY", Text: "互动抽奖", JumpURL: "//www.bilibili.com/h5/lottery"},
						{Type: "RICH_TEXT_NODE_TYPE_TEXT", Text: " 转发送周边"},
					},
				},
				JumpURL: "//www.bilibili.com/opus/900000000000000102",
			},
		},
		{
			ID:        "900000000000000101",
			Kind:      model.KindImagePost,
			TypeToken: model.TypeArticle,
			Author:    up,
			Post:      &model.Post{Blocked: true},
		},
		{
			ID:        "900000000000000100",
			Kind:      model.KindUnknown,
			TypeToken: "DYNAMIC_TYPE_LIVE_RCMD",
			Author:    up,
		},
		{
			ID:        "900000000000000099",
			Kind:      model.KindImagePost,
			TypeToken: model.TypeWord,
			Malformed: true,
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LatestFeed mismatch (-want +got):\n%s", diff)
	}
}

func TestLatestFeedWithoutCredential(t *testing.T) {
	c, api := newTestClient(t, "")
	_, err := c.LatestFeed(context.Background(), 12345)
	if !errors.Is(err, ErrNoCredential) {
		t.Errorf("expected ErrNoCredential, got %v", err)
	}
	if got := api.feedCookie.Load(); got != nil {
		t.Errorf("feed endpoint should not be called, saw cookie %v", got)
	}
	if c.HasCredential() {
		t.Error("HasCredential() = true, want false")
	}
}

func TestProfile(t *testing.T) {
	c, _ := newTestClient(t, "")

	got, err := c.Profile(context.Background(), 42)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	want := &model.Profile{ID: 42, Name: "卡片UP", Sex: "保密", Avatar: "https://i0.hdslb.com/bfs/face/card.jpg"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Profile mismatch (-want +got):\n%s", diff)
	}
}

func TestProfileErrors(t *testing.T) {
	c, _ := newTestClient(t, "")

	_, err := c.Profile(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = c.Profile(context.Background(), 412)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != -412 {
		t.Errorf("expected code -412, got %d", apiErr.Code)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("-412 must not be reported as not found")
	}
}

func TestLiveInfo(t *testing.T) {
	t.Run("name from profile lookup", func(t *testing.T) {
		c, api := newTestClient(t, "")
		got, err := c.LiveInfo(context.Background(), 42)
		if err != nil {
			t.Fatalf("live info: %v", err)
		}
		want := &model.LiveInfo{
			CreatorName: "卡片UP",
			Live:        true,
			RoomTitle:   "直播中",
			Cover:       "https://i0.hdslb.com/bfs/live/cover.jpg",
			URL:         "https://live.bilibili.com/777",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("LiveInfo mismatch (-want +got):\n%s", diff)
		}

		if _, err := c.LiveInfo(context.Background(), 42); err != nil {
			t.Fatalf("second live info: %v", err)
		}
		if n := api.cardCalls.Load(); n != 1 {
			t.Errorf("expected cached name after first lookup, got %d card calls", n)
		}
	})

	t.Run("name cached from feed", func(t *testing.T) {
		c, api := newTestClient(t, "token")
		if _, err := c.LatestFeed(context.Background(), 12345); err != nil {
			t.Fatalf("latest feed: %v", err)
		}
		got, err := c.LiveInfo(context.Background(), 12345)
		if err != nil {
			t.Fatalf("live info: %v", err)
		}
		if got.CreatorName != "测试UP" {
			t.Errorf("expected name from feed, got %q", got.CreatorName)
		}
		if n := api.cardCalls.Load(); n != 0 {
			t.Errorf("expected no card calls, got %d", n)
		}
	})

	t.Run("server error", func(t *testing.T) {
		c, _ := newTestClient(t, "")
		if _, err := c.LiveInfo(context.Background(), 500); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestVideoInfo(t *testing.T) {
	c, _ := newTestClient(t, "")

	got, err := c.VideoInfo(context.Background(), "BV1xx411c7mD")
	if err != nil {
		t.Fatalf("video info: %v", err)
	}
	want := &model.VideoInfo{
		BVID:      "BV1xx411c7mD",
		Title:     "字幕君交流场所",
		OwnerName: "碧诗",
		Cover:     "https://i0.hdslb.com/bfs/archive/cover.jpg",
		Views:     3000000,
		Likes:     120000,
		Coins:     45000,
		Online:    "1000+",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("video info (-want +got):\n%s", diff)
	}

	if _, err := c.VideoInfo(context.Background(), "BV1000000000"); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("expected ErrVideoNotFound, got %v", err)
	}
}

func TestResolveShortLink(t *testing.T) {
	data, err := os.ReadFile("../../testdata/bilibili_feed.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	srv := httptest.NewServer((&fakeAPI{feed: string(data)}).handler(t))
	t.Cleanup(srv.Close)
	c := New(srv.Client(), "")

	got, err := c.ResolveShortLink(context.Background(), srv.URL+"/b23/abcdef")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if diff := cmp.Diff("https://www.bilibili.com/video/BV1xx411c7mD", got); diff != "" {
		t.Errorf("target (-want +got):\n%s", diff)
	}

	if _, err := c.ResolveShortLink(context.Background(), srv.URL+"/b23/plain"); !errors.Is(err, ErrNotShortLink) {
		t.Errorf("expected ErrNotShortLink, got %v", err)
	}
}

func TestFindBVID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BV1xx411c7mD", "BV1xx411c7mD"},
		{"bv1xx411c7mD", "BV1xx411c7mD"},
		{"https://www.bilibili.com/video/BV1xx411c7mD/?spm_id_from=333", "BV1xx411c7mD"},
		{"look at this BV1xx411c7mD please", "BV1xx411c7mD"},
		{"BV1xx411", ""},
		{"no video here", ""},
	}
	for _, tt := range tests {
		if got := FindBVID(tt.in); got != tt.want {
			t.Errorf("FindBVID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindShortLink(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://b23.tv/abcDEF1", "https://b23.tv/abcDEF1"},
		{"【标题】 b23.tv/xyz", "https://b23.tv/xyz"},
		{"http://bili2233.cn/q1", "http://bili2233.cn/q1"},
		{"https://www.bilibili.com/video/BV1xx411c7mD", ""},
	}
	for _, tt := range tests {
		if got := FindShortLink(tt.in); got != tt.want {
			t.Errorf("FindShortLink(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

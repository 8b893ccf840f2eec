package model

// ItemKind is the closed set of feed item variants the classifier understands.
type ItemKind int

// Feed item kinds.
const (
	KindUnknown ItemKind = iota
	KindForward
	KindVideo
	KindImagePost
)

func (k ItemKind) String() string {
	switch k {
	case KindForward:
		return "forward"
	case KindVideo:
		return "video"
	case KindImagePost:
		return "image_post"
	default:
		return "unknown"
	}
}

// Platform type tokens.
const (
	TypeForward = "DYNAMIC_TYPE_FORWARD"
	TypeVideo   = "DYNAMIC_TYPE_AV"
	TypeDraw    = "DYNAMIC_TYPE_DRAW"
	TypeWord    = "DYNAMIC_TYPE_WORD"
	TypeArticle = "DYNAMIC_TYPE_ARTICLE"
)

// KindOf maps a platform type token to its item kind.
func KindOf(typeToken string) ItemKind {
	switch typeToken {
	case TypeForward:
		return KindForward
	case TypeVideo:
		return KindVideo
	case TypeDraw, TypeWord, TypeArticle:
		return KindImagePost
	default:
		return KindUnknown
	}
}

// FeedPage is one page of a creator's timeline, newest first.
type FeedPage struct {
	Items []FeedItem
}

// Author is the poster of a feed item.
type Author struct {
	Name    string
	Face    string
	Pendant string
}

// RichTextNode is one node of platform rich text.
type RichTextNode struct {
	Type    string
	Text    string
	IconURL string
	JumpURL string
}

// RichText is platform rich text: its flat text plus typed nodes.
type RichText struct {
	Text  string
	Nodes []RichTextNode
}

// FirstNodeText returns the text of the opening node, if any.
func (r RichText) FirstNodeText() string {
	if len(r.Nodes) == 0 {
		return ""
	}
	return r.Nodes[0].Text
}

// Video is the payload of a video upload.
type Video struct {
	Title string
	Cover string
	BVID  string
	Desc  RichText
}

// Post is the payload of an image/text post or article.
type Post struct {
	Title   string
	Summary RichText
	Images  []string
	JumpURL string
	Blocked bool
}

// Forward is the payload of a repost.
type Forward struct {
	Comment  RichText
	Original *FeedItem
}

// FeedItem is a single timeline entry. Exactly one of Video, Post and
// Forward is set for the matching Kind.
type FeedItem struct {
	ID        string
	Kind      ItemKind
	TypeToken string
	Pinned    bool
	Malformed bool
	Author    Author
	Topic     string

	Video   *Video
	Post    *Post
	Forward *Forward
}

// RenderPayload is the renderer-agnostic description of one update card.
type RenderPayload struct {
	DisplayName  string         `json:"name"`
	Avatar       string         `json:"avatar"`
	Decoration   string         `json:"pendant,omitempty"`
	Title        string         `json:"title,omitempty"`
	Body         string         `json:"text"`
	Summary      string         `json:"summary,omitempty"`
	ImageURLs    []string       `json:"image_urls"`
	PermalinkURL string         `json:"url,omitempty"`
	QRCode       string         `json:"qrcode,omitempty"`
	ContentType  string         `json:"type,omitempty"`
	Forward      *RenderPayload `json:"forward,omitempty"`
}

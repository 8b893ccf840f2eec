package classifier

import (
	"strings"

	"bili_bot/internal/model"
)

const (
	maxImages = 9

	videoBodyPrefix = "投稿了新视频<br>"
)

// ForwardURL is the permalink of a repost.
func ForwardURL(id string) string {
	return "https://t.bilibili.com/" + id
}

// VideoURL is the permalink of a video.
func VideoURL(bvid string) string {
	return "https://www.bilibili.com/video/" + bvid
}

// PostURL turns a protocol-relative jump url into a permalink.
func PostURL(jumpURL string) string {
	if jumpURL == "" || strings.HasPrefix(jumpURL, "http://") || strings.HasPrefix(jumpURL, "https://") {
		return jumpURL
	}
	return "https:" + jumpURL
}

func (c *Classifier) forwardPayload(item *model.FeedItem) *model.RenderPayload {
	p := c.buildPayload(item, false)
	if orig := item.Forward.Original; orig != nil && wellFormed(orig) && orig.Kind != model.KindUnknown {
		nested := c.buildPayload(orig, true)
		if len(nested.ImageURLs) > 1 {
			nested.ImageURLs = nested.ImageURLs[:1]
		}
		p.Forward = nested
	}
	return p
}

// buildPayload fills the fields shared by all kinds and then the kind
// specific ones. Nested payloads carry no permalink or QR code.
func (c *Classifier) buildPayload(item *model.FeedItem, nested bool) *model.RenderPayload {
	p := &model.RenderPayload{
		DisplayName: item.Author.Name,
		Avatar:      item.Author.Face,
		Decoration:  item.Author.Pendant,
		ContentType: item.TypeToken,
		ImageURLs:   []string{},
	}

	var permalink string
	switch item.Kind {
	case model.KindVideo:
		v := item.Video
		p.Title = v.Title
		p.Summary = v.Desc.Text
		p.Body = videoBodyPrefix
		if v.Desc.Text != "" {
			p.Body += RichTextHTML(v.Desc, item.Topic)
		}
		if v.Cover != "" {
			p.ImageURLs = []string{v.Cover}
		}
		permalink = VideoURL(v.BVID)

	case model.KindImagePost:
		post := item.Post
		p.Title = post.Title
		p.Summary = post.Summary.Text
		p.Body = RichTextHTML(post.Summary, item.Topic)
		images := post.Images
		if len(images) > maxImages {
			images = images[:maxImages]
		}
		p.ImageURLs = append(p.ImageURLs, images...)
		permalink = PostURL(post.JumpURL)

	case model.KindForward:
		comment := item.Forward.Comment
		p.Summary = comment.Text
		if comment.Text != "" {
			p.Body = RichTextHTML(comment, item.Topic)
		}
		permalink = ForwardURL(item.ID)
	}

	if !nested && permalink != "" {
		p.PermalinkURL = permalink
		p.QRCode = c.qr(permalink)
	}
	return p
}

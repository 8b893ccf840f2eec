package bilibili

import "bili_bot/internal/model"

const (
	pinnedTag = "置顶"

	majorBlocked = "MAJOR_TYPE_BLOCKED"
)

func convertPage(data *feedData) *model.FeedPage {
	page := &model.FeedPage{Items: make([]model.FeedItem, 0, len(data.Items))}
	for i := range data.Items {
		page.Items = append(page.Items, convertItem(&data.Items[i]))
	}
	return page
}

// convertItem maps a raw item onto the closed set of item kinds. Items that
// lack the fields their kind needs are marked malformed rather than dropped.
func convertItem(raw *rawItem) model.FeedItem {
	item := model.FeedItem{
		ID:        raw.IDStr,
		TypeToken: raw.Type,
		Kind:      model.KindOf(raw.Type),
	}
	m := raw.Modules
	if m == nil {
		item.Malformed = true
		return item
	}

	if m.Author != nil {
		item.Author = model.Author{Name: m.Author.Name, Face: m.Author.Face}
		if m.Author.Pendant != nil {
			item.Author.Pendant = m.Author.Pendant.Image
		}
	}
	item.Pinned = m.Tag != nil && m.Tag.Text == pinnedTag

	dyn := m.Dynamic
	if dyn != nil && dyn.Topic != nil {
		item.Topic = dyn.Topic.Name
	}

	switch item.Kind {
	case model.KindVideo:
		if dyn == nil || dyn.Major == nil || dyn.Major.Archive == nil {
			item.Malformed = true
			return item
		}
		a := dyn.Major.Archive
		item.Video = &model.Video{Title: a.Title, Cover: a.Cover, BVID: a.BVID, Desc: convertRichText(dyn.Desc)}

	case model.KindImagePost:
		if dyn == nil || dyn.Major == nil {
			item.Malformed = true
			return item
		}
		if dyn.Major.Type == majorBlocked {
			item.Post = &model.Post{Blocked: true}
			return item
		}
		o := dyn.Major.Opus
		if o == nil {
			item.Malformed = true
			return item
		}
		post := &model.Post{Title: o.Title, Summary: convertRichText(o.Summary), JumpURL: o.JumpURL}
		for _, pic := range o.Pics {
			if pic.URL != "" {
				post.Images = append(post.Images, pic.URL)
			}
		}
		item.Post = post

	case model.KindForward:
		fwd := &model.Forward{}
		if dyn != nil {
			fwd.Comment = convertRichText(dyn.Desc)
		}
		if raw.Orig != nil {
			orig := convertItem(raw.Orig)
			fwd.Original = &orig
		}
		item.Forward = fwd
	}
	return item
}

func convertRichText(raw *rawRichText) model.RichText {
	if raw == nil {
		return model.RichText{}
	}
	rt := model.RichText{Text: raw.Text}
	for _, n := range raw.Nodes {
		node := model.RichTextNode{Type: n.Type, Text: n.Text, JumpURL: n.JumpURL}
		if n.Emoji != nil {
			node.IconURL = n.Emoji.IconURL
		}
		rt.Nodes = append(rt.Nodes, node)
	}
	return rt
}

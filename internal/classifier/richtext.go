package classifier

import (
	"html"
	"strings"

	"bili_bot/internal/model"
)

// Rich text node types.
const (
	NodeText    = "RICH_TEXT_NODE_TYPE_TEXT"
	NodeTopic   = "RICH_TEXT_NODE_TYPE_TOPIC"
	NodeAt      = "RICH_TEXT_NODE_TYPE_AT"
	NodeEmoji   = "RICH_TEXT_NODE_TYPE_EMOJI"
	NodeWeb     = "RICH_TEXT_NODE_TYPE_WEB"
	NodeLottery = "RICH_TEXT_NODE_TYPE_LOTTERY"
	NodeVote    = "RICH_TEXT_NODE_TYPE_VOTE"
)

// RichTextHTML renders rich text as an HTML fragment that is safe to embed
// as-is. A non-empty topic is prepended on its own line.
func RichTextHTML(rt model.RichText, topic string) string {
	var b strings.Builder
	if topic != "" {
		b.WriteString(`<span class="topic">#`)
		b.WriteString(escape(topic))
		b.WriteString(`#</span><br>`)
	}

	if len(rt.Nodes) == 0 {
		b.WriteString(escape(rt.Text))
		return b.String()
	}

	for _, n := range rt.Nodes {
		switch n.Type {
		case NodeTopic:
			writeSpan(&b, "topic", n.Text)
		case NodeAt:
			writeSpan(&b, "at", n.Text)
		case NodeWeb, NodeLottery, NodeVote:
			writeSpan(&b, "link", n.Text)
		case NodeEmoji:
			if n.IconURL == "" {
				b.WriteString(escape(n.Text))
				continue
			}
			b.WriteString(`<img class="emoji" src="`)
			b.WriteString(html.EscapeString(n.IconURL))
			b.WriteString(`" alt="`)
			b.WriteString(html.EscapeString(n.Text))
			b.WriteString(`">`)
		default:
			b.WriteString(escape(n.Text))
		}
	}
	return b.String()
}

func writeSpan(b *strings.Builder, class, text string) {
	b.WriteString(`<span class="`)
	b.WriteString(class)
	b.WriteString(`">`)
	b.WriteString(escape(text))
	b.WriteString(`</span>`)
}

// escape HTML-escapes s and turns newlines into line breaks.
func escape(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}

package dispatch

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText strips markup from a rendered body. Line breaks become
// newlines and emoji images become their alt text.
func HTMLToText(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		alt, _ := img.Attr("alt")
		img.ReplaceWithHtml(html.EscapeString(alt))
	})
	return strings.TrimSpace(doc.Text())
}

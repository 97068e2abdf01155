package updater

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// PlainNotes turns release notes into plain text. Update sources often ship
// HTML notes; plain text is returned trimmed and otherwise unchanged.
func PlainNotes(notes string) string {
	if !strings.Contains(notes, "<") {
		return strings.TrimSpace(notes)
	}

	node, err := html.Parse(strings.NewReader(notes))
	if err != nil {
		return strings.TrimSpace(notes)
	}
	doc := goquery.NewDocumentFromNode(node)

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("- ")
		s.AppendHtml("\n")
	})
	doc.Find("p, div, h1, h2, h3, h4, h5, h6, ul, ol").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

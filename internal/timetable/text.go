package timetable

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/atom-api/atom/internal/stringutil"
)

// joinedText returns the trimmed, non-empty text nodes under sel joined by
// single spaces.
func joinedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

// findAll returns the nodes of sel and their descendants that match selector,
// in document order.
func findAll(sel *goquery.Selection, selector string) []*goquery.Selection {
	var found []*goquery.Selection
	sel.Each(func(_ int, s *goquery.Selection) {
		if s.Is(selector) {
			found = append(found, s)
		}
		s.Find(selector).Each(func(_ int, d *goquery.Selection) {
			found = append(found, d)
		})
	})
	return found
}

// entityText returns the text of a marker element together with a trailing
// "-…" or "/…" annotation written right after it.
func entityText(sel *goquery.Selection) string {
	text := strings.TrimSpace(sel.Text())
	if len(sel.Nodes) == 0 {
		return text
	}
	next := sel.Nodes[0].NextSibling
	if next != nil && next.Type == html.TextNode {
		suffix := strings.TrimSpace(next.Data)
		if strings.HasPrefix(suffix, "-") || strings.HasPrefix(suffix, "/") {
			text += suffix
		}
	}
	return text
}

// collapseRepeatedLead drops the second word of s when it repeats the first.
func collapseRepeatedLead(s string) string {
	parts := strings.Fields(s)
	if len(parts) >= 2 && parts[0] == parts[1] {
		return strings.Join(append(parts[:1], parts[2:]...), " ")
	}
	return s
}

// bodyRows returns every row of table except the header row.
func bodyRows(table *goquery.Selection) *goquery.Selection {
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return rows.Slice(0, 0)
	}
	return rows.Slice(1, goquery.ToEnd)
}

// slotNumber reads the lesson number printed in the first column.
func slotNumber(cell *goquery.Selection) (int, bool) {
	text := strings.TrimSpace(cell.Text())
	if !stringutil.IsNumeric(text) {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	return n, err == nil
}

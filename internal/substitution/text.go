package substitution

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	spaceAroundNewline = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	spaceRun           = regexp.MustCompile(`[ \t]{2,}`)
	doubleNewline      = regexp.MustCompile(`\n\n`)
	newlineRun         = regexp.MustCompile(`\n{3,}`)
	horizontalSpace    = regexp.MustCompile(`[ \t]+`)
	newlinesBeforeLink = regexp.MustCompile(`\n+\[`)
)

// placeholder is what an empty cell sometimes literally contains.
const placeholder = "&nbsp;"

// cellText flattens sel to text: <br> becomes a newline, markup is dropped
// and whitespace is tidied. Nodes in replace are written as the given text.
func cellText(sel *goquery.Selection, replace map[*html.Node]string) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if r, ok := replace[n]; ok {
			b.WriteString(r)
			return
		}
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			return
		case n.Type == html.CommentNode:
			return
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteString("\n")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return tidy(b.String())
}

func tidy(text string) string {
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\u00a0", " ").Replace(text)
	text = spaceAroundNewline.ReplaceAllString(text, "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	text = doubleNewline.ReplaceAllString(text, "\n")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.Trim(text, "\n ")
}

// useful reports whether a cell value carries data: it is not blank and is
// not the column header itself.
func useful(value, header string) bool {
	value = strings.TrimSpace(value)
	return value != "" && value != placeholder && !strings.EqualFold(value, header)
}

func optional(value, header string) *string {
	if !useful(value, header) {
		return nil
	}
	return &value
}

// detail returns the part of a "label - detail" description after the dash.
func detail(description string) (string, bool) {
	_, after, found := strings.Cut(description, "-")
	if !found {
		return description, false
	}
	return strings.TrimSpace(after), true
}

package timetable

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const (
	testHost     = "https://plan.example.com"
	testPlansURL = testHost + "/plany/"
)

var errPageMissing = errors.New("page not found")

// fakeFetcher serves canned pages keyed by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: map[string]int{}}
}

func (f *fakeFetcher) FetchPage(_ context.Context, pageURL, _ string) (*goquery.Document, error) {
	f.mu.Lock()
	f.calls[pageURL]++
	body, ok := f.pages[pageURL]
	f.mu.Unlock()
	if !ok {
		return nil, errPageMissing
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

func (f *fakeFetcher) callCount(pageURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pageURL]
}

func mustDocument(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func strPtr(s string) *string {
	return &s
}

// planPage wraps body rows into a plan page with a Monday..Friday header.
func planPage(title, rows string) string {
	return `<html><body>
<span class="tytulnapis">` + title + `</span>
<table class="tabela">
<tr><th>Nr</th><th>Godz</th><th>Poniedziałek</th><th>Wtorek</th><th>Środa</th><th>Czwartek</th><th>Piątek</th></tr>
` + rows + `
</table>
</body></html>`
}

// planRow builds one body row from a number, a time range and five day cells.
func planRow(number, hours string, days ...string) string {
	var b strings.Builder
	b.WriteString(`<tr><td class="nr">` + number + `</td><td class="g">` + hours + `</td>`)
	for i := range 5 {
		cell := ""
		if i < len(days) {
			cell = days[i]
		}
		b.WriteString(`<td class="l">` + cell + `</td>`)
	}
	b.WriteString("</tr>\n")
	return b.String()
}

package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	domerrors "github.com/atom-api/atom/internal/errors"
)

func newTestClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 4
	}
	return NewClient(opts)
}

func TestFetchPage_DecodesCharset(t *testing.T) {
	page, err := charmap.ISO8859_2.NewEncoder().Bytes([]byte(`<html><body><td class="st0">Zastępstwa środa</td></body></html>`))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(page)
	}))
	defer srv.Close()

	doc, err := newTestClient(Options{}).FetchPage(context.Background(), srv.URL, "iso-8859-2")
	require.NoError(t, err)
	assert.Equal(t, "Zastępstwa środa", doc.Find("td.st0").Text())
}

func TestFetchPage_Gzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(`<span class="tytulnapis">1A</span>`))
		_ = gz.Close()
	}))
	defer srv.Close()

	doc, err := newTestClient(Options{}).FetchPage(context.Background(), srv.URL, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "1A", doc.Find(".tytulnapis").Text())
}

func TestFetchPage_DropsInvalidBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>ab\xffcd</p>"))
	}))
	defer srv.Close()

	doc, err := newTestClient(Options{}).FetchPage(context.Background(), srv.URL, "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "abcd", doc.Find("p").Text())
}

func TestFetchPage_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(Options{}).FetchPage(context.Background(), srv.URL+"/o99.html", "utf-8")
	require.Error(t, err)

	var scraperErr *domerrors.ScraperError
	require.ErrorAs(t, err, &scraperErr)
	assert.Equal(t, http.StatusNotFound, scraperErr.StatusCode)
	assert.False(t, domerrors.IsTimeout(err))
}

func TestFetchPage_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(Options{Timeout: 50 * time.Millisecond}).FetchPage(context.Background(), srv.URL, "utf-8")
	require.Error(t, err)
	assert.True(t, domerrors.IsTimeout(err), "want timeout, got %v", err)
}

func TestFetchPage_UnknownEncoding(t *testing.T) {
	_, err := newTestClient(Options{}).FetchPage(context.Background(), "http://127.0.0.1:1/", "no-such-charset")
	assert.Error(t, err)
}

func TestFetchPage_UserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	tests := []struct {
		name  string
		agent string
		check func(t *testing.T, ua string)
	}{
		{"default", "", func(t *testing.T, ua string) { assert.True(t, strings.HasPrefix(ua, "Atom API/")) }},
		{"configured", "test-agent/1.0", func(t *testing.T, ua string) { assert.Equal(t, "test-agent/1.0", ua) }},
		{"random", RandomUserAgent, func(t *testing.T, ua string) {
			assert.NotEmpty(t, ua)
			assert.NotEqual(t, RandomUserAgent, ua)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(Options{UserAgent: tt.agent}).FetchPage(context.Background(), srv.URL, "utf-8")
			require.NoError(t, err)
			tt.check(t, got.Load().(string))
		})
	}
}

func TestFetchPage_ConcurrencyBound(t *testing.T) {
	var current, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
	}))
	defer srv.Close()

	client := newTestClient(Options{Concurrency: 2})

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, err := client.FetchPage(context.Background(), srv.URL, "utf-8")
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Zero(t, client.Limiter().InFlight())
}

func TestFetchPage_CanceledWhileWaitingForSlot(t *testing.T) {
	client := newTestClient(Options{Concurrency: 1})
	require.NoError(t, client.Limiter().Acquire(context.Background()))
	defer client.Limiter().Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchPage(ctx, "http://127.0.0.1:1/", "utf-8")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "plan.example.com", sourceLabel("https://plan.example.com/plany/o1.html"))
	assert.Equal(t, "unknown", sourceLabel("not a url"))
}

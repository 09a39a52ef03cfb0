// Package scraper fetches upstream HTML pages and hands them over as parsed
// goquery documents. Fetches never retry: a failure is reported once and the
// caller decides whether it is fatal.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/atom-api/atom/internal/buildinfo"
	domerrors "github.com/atom-api/atom/internal/errors"
	"github.com/atom-api/atom/internal/metrics"
)

// RandomUserAgent as Options.UserAgent makes every request present a random
// browser User-Agent.
const RandomUserAgent = "random"

// maxBodySize bounds how much of a page is read.
const maxBodySize = 8 << 20

// Options configures a Client.
type Options struct {
	Timeout     time.Duration // per fetch, after a limiter slot is taken
	Concurrency int64
	UserAgent   string // empty = "Atom API/<version>"; RandomUserAgent rotates
	Metrics     *metrics.Metrics

	// HTTPClient overrides the default transport. Its Timeout is left as is.
	HTTPClient *http.Client
}

// Client is an HTTP client for upstream pages, bounded by a shared Limiter.
type Client struct {
	httpClient *http.Client
	limiter    *Limiter
	timeout    time.Duration
	userAgent  string
	metrics    *metrics.Metrics
}

// NewClient creates a new scraper client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		httpClient: httpClient,
		limiter:    NewLimiter(opts.Concurrency, opts.Metrics),
		timeout:    opts.Timeout,
		userAgent:  opts.UserAgent,
		metrics:    opts.Metrics,
	}
}

// Limiter returns the limiter shared by every fetch of this client.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// FetchPage downloads pageURL, decodes it from the named charset (any name
// known to the WHATWG encoding index, e.g. "utf-8" or "iso-8859-2") and
// parses it. Bytes that cannot be decoded are dropped.
//
// The returned error wraps context.DeadlineExceeded when the fetch timed out;
// see errors.IsTimeout.
func (c *Client) FetchPage(ctx context.Context, pageURL, encoding string) (*goquery.Document, error) {
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", encoding, err)
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, domerrors.NewScraperError(pageURL, 0, err)
	}
	defer c.limiter.Release()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	source := sourceLabel(pageURL)
	start := time.Now()

	doc, err := c.fetch(ctx, pageURL, enc.NewDecoder())
	status := "success"
	switch {
	case domerrors.IsTimeout(err):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	c.metrics.RecordScraperRequest(source, status, time.Since(start).Seconds())

	return doc, err
}

func (c *Client) fetch(ctx context.Context, pageURL string, decoder transform.Transformer) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, domerrors.NewScraperError(pageURL, 0, err)
	}
	req.Header.Set("User-Agent", c.requestUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pl-PL,pl;q=0.9,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domerrors.NewScraperError(pageURL, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domerrors.NewScraperError(pageURL, resp.StatusCode, fmt.Errorf("unexpected status"))
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, domerrors.NewScraperError(pageURL, resp.StatusCode, fmt.Errorf("gzip: %w", err))
		}
		defer func() { _ = gz.Close() }()
		body = gz
	}

	dropInvalid := runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError }))
	reader := transform.NewReader(io.LimitReader(body, maxBodySize), transform.Chain(decoder, dropInvalid))

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, domerrors.NewScraperError(pageURL, resp.StatusCode, fmt.Errorf("parse HTML: %w", err))
	}
	return doc, nil
}

func (c *Client) requestUserAgent() string {
	switch c.userAgent {
	case "":
		return buildinfo.UserAgent()
	case RandomUserAgent:
		return uarand.GetRandom()
	default:
		return c.userAgent
	}
}

func sourceLabel(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

package timetable

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	sectionPathRegex = regexp.MustCompile(`(?:^|/)o\d+\.html$`)
	teacherPathRegex = regexp.MustCompile(`(?:^|/)n\d+\.html$`)
	roomPathRegex    = regexp.MustCompile(`(?:^|/)s\d+\.html$`)

	sectionNameRegex = regexp.MustCompile(`^(\d)\s*(\p{L})`)
	teacherNameRegex = regexp.MustCompile(`^([\p{L}\p{N}_])\s+([\p{L}\p{N}_\-]+)`)
	roomNameRegex    = regexp.MustCompile(`^([\p{L}\p{N}_]+)`)
)

// ExtractDirectory builds the section, teacher and room maps from the
// directory page fetched from sourceURL. The page is only trusted when it
// lives on the same host as the plans directory; otherwise, and on any
// structural failure, all three maps are empty.
func (e *Extractor) ExtractDirectory(ctx context.Context, doc *goquery.Document, sourceURL string) (dir Directory) {
	log := e.logger.WithField("url", sourceURL)

	if doc == nil {
		log.WarnContext(ctx, "No directory page content")
		e.metrics.RecordExtraction("directory", "empty")
		return EmptyDirectory()
	}
	if !isPageURL(sourceURL) {
		log.WarnContext(ctx, "Directory URL is not an absolute http(s) URL")
		e.metrics.RecordExtraction("directory", "empty")
		return EmptyDirectory()
	}
	if !sameHost(sourceURL, e.plansURL) {
		log.WarnContext(ctx, "Directory host does not match the plans host",
			"plans_url", e.plansURL)
		e.metrics.RecordExtraction("directory", "empty")
		return EmptyDirectory()
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithError(fmt.Errorf("panic: %v", r)).ErrorContext(ctx, "Failed to parse directory page")
			e.metrics.RecordExtraction("directory", "empty")
			dir = EmptyDirectory()
		}
	}()

	dir = EmptyDirectory()
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		target, ok := resolveURL(sourceURL, href)
		if !ok {
			return
		}
		parsed, err := url.Parse(target)
		if err != nil {
			return
		}

		raw := joinedText(a)
		text := strings.Join(strings.Fields(strings.ReplaceAll(raw, ".", " ")), " ")
		entry := DirectoryEntry{
			URL:        target,
			Identifier: fileStem(parsed.Path),
			Expansion:  raw,
		}

		switch {
		case sectionPathRegex.MatchString(parsed.Path):
			m := sectionNameRegex.FindStringSubmatch(text)
			if m == nil {
				return
			}
			entry.Expansion = collapseRepeatedLead(raw)
			addFirst(dir.Sections, m[1]+" "+strings.ToUpper(m[2]), entry)
		case teacherPathRegex.MatchString(parsed.Path):
			m := teacherNameRegex.FindStringSubmatch(text)
			if m == nil {
				return
			}
			addFirst(dir.Teachers, strings.ToUpper(m[1])+". "+m[2], entry)
		case roomPathRegex.MatchString(parsed.Path):
			m := roomNameRegex.FindStringSubmatch(text)
			if m == nil {
				return
			}
			addFirst(dir.Rooms, strings.ToUpper(m[1]), entry)
		}
	})

	outcome := "ok"
	if dir.Empty() {
		outcome = "empty"
	}
	e.metrics.RecordExtraction("directory", outcome)
	log.DebugContext(ctx, "Extracted directory",
		"sections", len(dir.Sections),
		"teachers", len(dir.Teachers),
		"rooms", len(dir.Rooms))
	return dir
}

func addFirst(entries map[string]DirectoryEntry, name string, entry DirectoryEntry) {
	if _, exists := entries[name]; !exists {
		entries[name] = entry
	}
}

// fileStem returns the last path segment up to its first dot.
func fileStem(path string) string {
	file := path[strings.LastIndex(path, "/")+1:]
	stem, _, _ := strings.Cut(file, ".")
	return stem
}

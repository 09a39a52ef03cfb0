package substitution

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/metrics"
	"github.com/atom-api/atom/internal/sliceutil"
	"github.com/atom-api/atom/internal/stringutil"
	"github.com/atom-api/atom/internal/timetable"
)

const (
	infoClass     = "st0"
	fallbackClass = "st1"

	unknownTeacher = "Nieznany"
)

var columnHeaders = [4]string{"Lekcja", "Opis", "Zastępca", "Uwagi"}

var (
	teacherSeparator = regexp.MustCompile(`[,\n;/&]| i | I `)
	noticeDate       = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})`)
	anyDigit         = regexp.MustCompile(`\d`)
	parentheses      = regexp.MustCompile(`[()]`)
)

// dayKeywords is checked in order against the first line of the notice.
var dayKeywords = []struct{ keyword, day string }{
	{"poniedziałek", "Poniedziałek"},
	{"poniedzialek", "Poniedziałek"},
	{"wtorek", "Wtorek"},
	{"środa", "Środa"},
	{"sroda", "Środa"},
	{"czwartek", "Czwartek"},
	{"piątek", "Piątek"},
	{"piatek", "Piątek"},
	{"sobota", "Sobota"},
	{"niedziela", "Niedziela"},
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Poniedziałek",
	time.Tuesday:   "Wtorek",
	time.Wednesday: "Środa",
	time.Thursday:  "Czwartek",
	time.Friday:    "Piątek",
	time.Saturday:  "Sobota",
	time.Sunday:    "Niedziela",
}

// EntryResolver completes entries of a section's notice from its plan.
type EntryResolver interface {
	Resolve(ctx context.Context, entries []Substitution, sectionID, day string, directory timetable.Directory, q Query) []Substitution
}

// Options configures an Extractor.
type Options struct {
	Resolver EntryResolver
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Extractor parses the substitution notice.
type Extractor struct {
	resolver EntryResolver
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// NewExtractor creates an extractor. Without a resolver, section notices are
// returned as extracted.
func NewExtractor(opts Options) *Extractor {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Extractor{
		resolver: opts.Resolver,
		logger:   log.WithModule("substitution"),
		metrics:  opts.Metrics,
	}
}

// Extract parses the notice page. Rows are read in order; a row with a single
// cell names the teacher the following rows belong to. When q targets a
// section, rows not tied to any section are kept for the resolver, which
// then decides from the section's own plan.
//
// A page that cannot be parsed yields Empty().
func (e *Extractor) Extract(ctx context.Context, doc *goquery.Document, directory timetable.Directory, q Query) (result Substitutions) {
	if doc == nil {
		e.logger.WarnContext(ctx, "No substitutions page content")
		e.metrics.RecordExtraction("substitutions", "empty")
		return Empty()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.WithError(fmt.Errorf("panic: %v", r)).ErrorContext(ctx, "Failed to parse substitutions page")
			e.metrics.RecordExtraction("substitutions", "empty")
			result = Empty()
		}
	}()

	result = Empty()
	switch {
	case q.Section != "":
		if entry, ok := directory.Sections[q.Section]; ok {
			result.Identifier = &entry.Identifier
		}
	case q.Teacher != "":
		if entry, ok := directory.Teachers[q.Teacher]; ok {
			result.Identifier = &entry.Identifier
		}
	}

	rows := doc.Find("tr")
	result.Info = noticeInfo(rows, infoClass)
	if result.Info != "" {
		result.Day = inferDay(result.Info)
	}

	m := newMatcher(directory, q)
	currentTeacher := ""
	start := lastInfoRow(rows) + 1
	rows.Each(func(i int, row *goquery.Selection) {
		if i < start {
			return
		}
		cells := row.Find("td")
		switch {
		case cells.Length() == 1:
			currentTeacher = cellText(cells, nil)
		case cells.Length() >= 4:
			if entry, ok := m.entry(currentTeacher, cells); ok {
				result.Entries = append(result.Entries, entry)
			}
		}
	})

	if result.Info == "" && !hasSubstitutionRows(rows) {
		result.Info = noticeInfo(rows, fallbackClass)
		result.Day = nil
	}
	if result.Info != "" {
		short := strings.Contains(stringutil.Normalize(result.Info), "skrocon")
		result.ShortSchedule = &short
	}

	if q.Section != "" && len(result.Entries) > 0 && result.Identifier != nil && result.Day != nil && e.resolver != nil {
		result.Entries = e.resolver.Resolve(ctx, result.Entries, *result.Identifier, *result.Day, directory, q)
	}

	outcome := "ok"
	if len(result.Entries) == 0 {
		outcome = "empty"
	}
	e.metrics.RecordExtraction("substitutions", outcome)
	e.logger.DebugContext(ctx, "Extracted substitutions",
		"entries", len(result.Entries),
		"day", result.Day)
	return result
}

// matcher decides which rows are kept and how they are labelled.
type matcher struct {
	query        Query
	sections     []*regexp.Regexp
	haveSections bool
	target       *regexp.Regexp
	targetKeys   map[string]struct{}
}

func newMatcher(directory timetable.Directory, q Query) *matcher {
	m := &matcher{query: q, haveSections: len(directory.Sections) > 0}
	for name := range directory.Sections {
		if normalized := stringutil.Normalize(name); normalized != "" {
			m.sections = append(m.sections, regexp.MustCompile(`\b`+regexp.QuoteMeta(normalized)+`\b`))
		}
	}
	if q.Section != "" {
		parts := strings.Fields(stringutil.Normalize(q.Section))
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		m.target = regexp.MustCompile(`\b` + strings.Join(parts, `\s*`) + `\b`)
	}
	if q.Teacher != "" {
		m.targetKeys = stringutil.FuzzyKeys(q.Teacher)
	}
	return m
}

func (m *matcher) entry(currentTeacher string, cells *goquery.Selection) (Substitution, bool) {
	var fields [4]string
	for i := range fields {
		fields[i] = cellText(cells.Eq(i), nil)
	}
	lesson, description, substitute, notes := fields[0], fields[1], fields[2], fields[3]

	anyUseful := false
	for i, f := range fields {
		if useful(f, columnHeaders[i]) {
			anyUseful = true
			break
		}
	}
	if !anyUseful {
		return Substitution{}, false
	}

	teachers := rowTeachers(currentTeacher, substitute)
	identified := m.identified(strings.Join(fields[:], " "))

	include := !m.query.targeted() ||
		(m.query.Section != "" && (m.matchesSection(fields) || !identified)) ||
		(m.query.Teacher != "" && m.matchesTeacher(teachers))
	if !include {
		return Substitution{}, false
	}

	entry := Substitution{
		Identified: identified,
		Teacher:    currentTeacher,
		Substitute: optional(substitute, columnHeaders[2]),
		Notes:      optional(notes, columnHeaders[3]),
	}
	if entry.Teacher == "" {
		entry.Teacher = strings.Join(teachers, ", ")
	}
	if entry.Teacher == "" {
		entry.Teacher = unknownTeacher
	}
	if useful(lesson, columnHeaders[0]) {
		if n, err := strconv.Atoi(strings.TrimSpace(lesson)); err == nil {
			entry.Lesson = &n
		}
	}
	if useful(description, columnHeaders[1]) {
		if m.query.targeted() {
			description, _ = detail(description)
		}
		entry.Description = &description
	}
	return entry, true
}

// identified reports whether the row names a known section. Without a
// section list any digit in the row counts.
func (m *matcher) identified(rowText string) bool {
	if !m.haveSections {
		return anyDigit.MatchString(rowText)
	}
	normalized := stringutil.Normalize(rowText)
	for _, re := range m.sections {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// matchesSection looks for the requested section in the lesson, description
// label and substitute columns.
func (m *matcher) matchesSection(fields [4]string) bool {
	if m.target == nil {
		return false
	}
	cols := fields
	if cols[1] != "" {
		cols[1], _, _ = strings.Cut(cols[1], "-")
	}
	text := stringutil.Normalize(strings.Join(cols[:3], " "))
	text = stringutil.CollapseSpaces(parentheses.ReplaceAllString(text, " "))
	return m.target.MatchString(text)
}

func (m *matcher) matchesTeacher(teachers []string) bool {
	if len(m.targetKeys) == 0 {
		return false
	}
	keys := make(map[string]struct{})
	for _, t := range teachers {
		for k := range stringutil.FuzzyKeys(t) {
			keys[k] = struct{}{}
		}
	}
	return stringutil.KeysIntersect(keys, m.targetKeys)
}

// rowTeachers lists the current teacher followed by the names found in the
// substitute column, without duplicates.
func rowTeachers(currentTeacher, substitute string) []string {
	candidates := []string{currentTeacher}
	if strings.TrimSpace(substitute) != "" {
		candidates = append(candidates, teacherSeparator.Split(substitute, -1)...)
	}

	names := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if name = strings.TrimSpace(name); name != "" && name != placeholder {
			names = append(names, name)
		}
	}
	return sliceutil.Deduplicate(names, func(name string) string { return name })
}

// noticeInfo returns the text of the first non-empty cell with the given
// class. Its first link is kept as a Markdown link.
func noticeInfo(rows *goquery.Selection, class string) string {
	var info string
	rows.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if !td.HasClass(class) {
			return true
		}
		raw := cellText(td, nil)
		if raw == "" || raw == placeholder {
			return true
		}

		var replace map[*html.Node]string
		if link := td.Find("a").First(); link.Length() > 0 {
			if href, _ := link.Attr("href"); href != "" {
				replace = map[*html.Node]string{
					link.Get(0): "[" + cellText(link, nil) + "](" + href + ")",
				}
			}
		}
		text := cellText(td, replace)
		text = horizontalSpace.ReplaceAllString(text, " ")
		info = newlinesBeforeLink.ReplaceAllString(text, " [")
		return false
	})
	return info
}

// inferDay reads the weekday from the first line of the notice, by name or
// from a dd.mm.yyyy date.
func inferDay(info string) *string {
	line, _, _ := strings.Cut(info, "\n")
	line = strings.ToLower(line)

	for _, k := range dayKeywords {
		if strings.Contains(line, k.keyword) {
			day := k.day
			return &day
		}
	}

	match := noticeDate.FindString(line)
	if match == "" {
		return nil
	}
	date, err := time.Parse("02.01.2006", match)
	if err != nil {
		return nil
	}
	day := weekdayNames[date.Weekday()]
	return &day
}

// lastInfoRow returns the index of the last row opening with an info cell,
// or -1.
func lastInfoRow(rows *goquery.Selection) int {
	last := -1
	rows.Each(func(i int, row *goquery.Selection) {
		if first := row.Find("td").First(); first.Length() > 0 && first.HasClass(infoClass) {
			last = i
		}
	})
	return last
}

// hasSubstitutionRows reports whether any row holds a real record, i.e. is
// neither blank nor a repeated header.
func hasSubstitutionRows(rows *goquery.Selection) bool {
	headers := make(map[string]struct{}, len(columnHeaders))
	for _, h := range columnHeaders {
		headers[strings.ToLower(h)] = struct{}{}
	}

	found := false
	rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return true
		}
		blank, header := true, true
		for i := range 4 {
			text := strings.ToLower(cellText(cells.Eq(i), nil))
			if text != "" && text != placeholder {
				blank = false
			}
			if _, ok := headers[strings.TrimSpace(text)]; !ok {
				header = false
			}
		}
		found = !blank && !header
		return !found
	})
	return found
}

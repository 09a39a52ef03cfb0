package timetable

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/atom-api/atom/internal/group"
	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/metrics"
	"github.com/atom-api/atom/internal/sliceutil"
)

// teacherBatchSize is how many deferred teacher lookups run at once.
const teacherBatchSize = 20

// Options configures an Extractor.
type Options struct {
	// PlansURL is the directory all plan pages live in. Entity links are
	// resolved against it and only pages on its host are trusted.
	PlansURL string

	Groups        *group.Filter
	ShortSchedule map[int]string // slot number -> "8:00-8:30"
	Teachers      TeacherLookup

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Extractor parses directory and plan pages.
type Extractor struct {
	plansURL      string
	groups        *group.Filter
	shortSchedule map[int]string
	teachers      TeacherLookup
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

// NewExtractor creates an extractor.
func NewExtractor(opts Options) *Extractor {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Extractor{
		plansURL:      opts.PlansURL,
		groups:        opts.Groups,
		shortSchedule: opts.ShortSchedule,
		teachers:      opts.Teachers,
		logger:        log.WithModule("timetable"),
		metrics:       opts.Metrics,
	}
}

// Query selects what an extracted plan keeps.
type Query struct {
	// ShortDay switches that day to the shortened schedule times.
	ShortDay *string
	// Groups keeps only lessons of these groups (see group.Filter.Include).
	Groups []string
	// Subjects maps a subject name fragment to whether it is wanted. Lessons
	// whose subject contains a fragment mapped to false are dropped.
	Subjects map[string]bool
}

type lookupKey struct {
	roomURL string
	day     string
	slot    int
}

type page struct {
	query             Query
	days              []string
	name              *string
	sectionExpansions map[string]struct{}
	trusted           bool
	pending           map[lookupKey]struct{}
	order             []lookupKey
}

// Extract parses the plan page fetched from sourceURL. It returns false when
// no plan could be produced: no page, a source URL that is not http(s), no
// schedule table, or a page that failed to parse. A table without body rows
// still yields a plan with every header day present and empty.
//
// Lessons on a section's plan that name a room but no teacher are completed
// by looking the room's own plan up through the configured TeacherLookup.
func (e *Extractor) Extract(ctx context.Context, doc *goquery.Document, directory Directory, q Query, sourceURL string) (tt *Timetable, ok bool) {
	log := e.logger.WithField("url", sourceURL)

	if doc == nil {
		log.WarnContext(ctx, "No plan page content")
		e.metrics.RecordExtraction("timetable", "empty")
		return nil, false
	}
	if !isPageURL(sourceURL) {
		log.WarnContext(ctx, "Plan URL is not an absolute http(s) URL")
		e.metrics.RecordExtraction("timetable", "empty")
		return nil, false
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithError(fmt.Errorf("panic: %v", r)).ErrorContext(ctx, "Failed to parse plan page")
			e.metrics.RecordExtraction("timetable", "empty")
			tt, ok = nil, false
		}
	}()

	p := &page{
		query:             q,
		sectionExpansions: make(map[string]struct{}, len(directory.Sections)),
		trusted:           sameHost(sourceURL, e.plansURL),
		pending:           make(map[lookupKey]struct{}),
	}
	for _, entry := range directory.Sections {
		if entry.Expansion != "" {
			p.sectionExpansions[entry.Expansion] = struct{}{}
		}
	}
	if !p.trusted {
		log.WarnContext(ctx, "Plan host does not match the plans host, lesson links are dropped")
	}

	tt = &Timetable{URL: sourceURL, Category: CategoryUnknown}
	if id, found := identifierFromURL(sourceURL); found {
		tt.Identifier = &id
		tt.Category = CategoryOf(id)
	}

	if title := doc.Find(".tytulnapis").First(); title.Length() > 0 {
		name := collapseRepeatedLead(strings.TrimSpace(title.Text()))
		tt.Name = &name
		p.name = &name
	}
	tt.Validity = scrapeValidity(doc)
	tt.GeneratedAt = scrapeGeneratedAt(doc)

	table := doc.Find("table.tabela").First()
	if table.Length() == 0 {
		log.WarnContext(ctx, "Plan page has no schedule table")
		e.metrics.RecordExtraction("timetable", "empty")
		return nil, false
	}

	p.days = headerDays(table)
	tt.Days = p.days
	tt.Week = make(map[string][]Slot, len(p.days))
	for _, day := range p.days {
		tt.Week[day] = []Slot{}
	}

	bodyRows(table).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < len(p.days)+2 {
			return
		}
		number, ok := slotNumber(cells.Eq(0))
		if !ok {
			return
		}
		for i, day := range p.days {
			lessons := e.cellLessons(p, cells.Eq(i+2), day, number)
			if len(lessons) == 0 {
				continue
			}
			start, end := e.slotTimes(q.ShortDay, day, number, cells.Eq(1))
			tt.Week[day] = append(tt.Week[day], Slot{
				Number:  number,
				Start:   start,
				End:     end,
				Lessons: lessons,
			})
		}
	})

	if len(p.order) > 0 {
		log.DebugContext(ctx, "Resolving omitted teachers", "lookups", len(p.order))
		e.backfillTeachers(tt, e.resolveTeachers(ctx, p))
	}

	e.metrics.RecordExtraction("timetable", "ok")
	return tt, true
}

func (e *Extractor) slotTimes(shortDay *string, day string, number int, timeCell *goquery.Selection) (string, string) {
	var hours string
	if shortDay != nil && *shortDay == day {
		hours = e.shortSchedule[number]
	}
	if hours == "" {
		hours = strings.ReplaceAll(strings.TrimSpace(timeCell.Text()), " ", "")
	}
	start, end, _ := strings.Cut(hours, "-")
	return start, end
}

func (e *Extractor) cellLessons(p *page, td *goquery.Selection, day string, number int) []Lesson {
	blocks := splitBlocks(td)
	if len(blocks) == 0 {
		if text := joinedText(td); text != "" {
			return []Lesson{&FreeformLesson{Text: text}}
		}
		return nil
	}

	var lessons []Lesson
	for _, block := range blocks {
		if len(findAll(block, ".p")) == 0 {
			if text := joinedText(block); text != "" {
				lessons = append(lessons, &FreeformLesson{Text: text})
			}
			continue
		}
		lessons = append(lessons, e.standardLessons(p, block, day, number)...)
	}
	return lessons
}

func (e *Extractor) standardLessons(p *page, block *goquery.Selection, day string, number int) []Lesson {
	teacher, room, sections := e.entities(p, block)

	var lessons []Lesson
	var active *StandardLesson
	for _, marker := range findAll(block, ".p") {
		subject := entityText(marker)
		if subject == "" {
			continue
		}
		if strings.HasPrefix(subject, "#") {
			if active != nil {
				active.Subject += " " + subject
			}
			continue
		}
		if excludedSubject(subject, p.query.Subjects) {
			continue
		}

		var tag *string
		if t, found := e.groups.Extract(subject); found {
			tag = &t
		}
		if tag != nil && !e.groups.Include(*tag, p.query.Groups) {
			continue
		}

		lessonTeacher := teacher
		if p.teacherOmitted(teacher, room) {
			p.queueLookup(lookupKey{roomURL: *room.URL, day: day, slot: number})
			lessonTeacher = Entity{}
		}

		active = &StandardLesson{
			Subject:  subject,
			Group:    tag,
			Teacher:  lessonTeacher,
			Room:     room,
			Sections: sections,
		}
		lessons = append(lessons, active)
	}
	return lessons
}

func (e *Extractor) entities(p *page, block *goquery.Selection) (teacher, room Entity, sections []Entity) {
	sections = []Entity{}
	if !p.trusted {
		return Entity{}, Entity{}, sections
	}

	for _, s := range findAll(block, ".o") {
		href, _ := s.Attr("href")
		sections = append(sections, newEntity(entityText(s), href, e.plansURL))
	}
	if found := findAll(block, ".n"); len(found) > 0 {
		href, _ := found[0].Attr("href")
		teacher = newEntity(strings.TrimSpace(found[0].Text()), href, e.plansURL)
	}
	if found := findAll(block, ".s"); len(found) > 0 {
		href, _ := found[0].Attr("href")
		room = newEntity(strings.TrimSpace(found[0].Text()), href, e.plansURL)
	}
	return teacher, room, sections
}

// teacherOmitted reports whether a lesson on a section's own plan lost its
// teacher while still linking to the room.
func (p *page) teacherOmitted(teacher, room Entity) bool {
	if p.name == nil {
		return false
	}
	if _, isSection := p.sectionExpansions[*p.name]; !isSection {
		return false
	}
	return teacher.Text == nil && room.URL != nil
}

func (p *page) queueLookup(key lookupKey) {
	if _, queued := p.pending[key]; queued {
		return
	}
	p.pending[key] = struct{}{}
	p.order = append(p.order, key)
}

// resolveTeachers runs the queued lookups in batches. Lookups within a batch
// run concurrently; batches run one after another.
func (e *Extractor) resolveTeachers(ctx context.Context, p *page) map[lookupKey]Entity {
	resolved := make(map[lookupKey]Entity, len(p.order))
	if e.teachers == nil {
		return resolved
	}

	for _, batch := range sliceutil.Chunk(p.order, teacherBatchSize) {
		results := make([]Entity, len(batch))
		var g errgroup.Group
		for i, key := range batch {
			g.Go(func() error {
				results[i] = e.teachers.Resolve(ctx, key.roomURL, p.days, key.day, key.slot)
				return nil
			})
		}
		_ = g.Wait()

		for i, key := range batch {
			resolved[key] = results[i]
		}
	}
	return resolved
}

func (e *Extractor) backfillTeachers(tt *Timetable, resolved map[lookupKey]Entity) {
	for day, slots := range tt.Week {
		for _, slot := range slots {
			for _, lesson := range slot.Lessons {
				std, ok := lesson.(*StandardLesson)
				if !ok || std.Teacher.Text != nil || std.Room.URL == nil {
					continue
				}
				if teacher, found := resolved[lookupKey{roomURL: *std.Room.URL, day: day, slot: slot.Number}]; found {
					std.Teacher = teacher
				}
			}
		}
	}
}

func excludedSubject(subject string, flags map[string]bool) bool {
	lower := strings.ToLower(subject)
	for name, wanted := range flags {
		if !wanted && strings.Contains(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

func headerDays(table *goquery.Selection) []string {
	header := table.Find("tr").First()
	cells := header.Find("th")
	days := make([]string, 0, max(cells.Length()-2, 0))
	cells.Each(func(i int, th *goquery.Selection) {
		if i >= 2 {
			days = append(days, strings.TrimSpace(th.Text()))
		}
	})
	return days
}

// splitBlocks splits a cell at its <br> children. Whitespace-only runs are
// not blocks.
func splitBlocks(td *goquery.Selection) []*goquery.Selection {
	contents := td.Contents()
	var blocks []*goquery.Selection
	start, hasContent := 0, false
	flush := func(end int) {
		if hasContent {
			blocks = append(blocks, contents.Slice(start, end))
		}
		start, hasContent = end+1, false
	}
	for i, n := range contents.Nodes {
		switch {
		case n.Type == html.ElementNode && n.Data == "br":
			flush(i)
		case n.Type == html.TextNode && strings.TrimSpace(n.Data) == "":
		case n.Type == html.CommentNode:
		default:
			hasContent = true
		}
	}
	flush(len(contents.Nodes))
	return blocks
}

func scrapeValidity(doc *goquery.Document) Validity {
	var v Validity
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		text := strings.NewReplacer(":", "", "r.", "").Replace(joinedText(td))
		if !strings.HasPrefix(text, "Obowiązuje") {
			return true
		}
		if _, rest, found := strings.Cut(text, "od"); found {
			from, _, _ := strings.Cut(rest, "do")
			from = strings.TrimSpace(from)
			v.From = &from
		}
		if _, rest, found := strings.Cut(text, "do"); found {
			to := strings.TrimSpace(rest)
			v.To = &to
		}
		return false
	})
	return v
}

func scrapeGeneratedAt(doc *goquery.Document) *string {
	var generated *string
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		text := strings.ToLower(joinedText(td))
		if !strings.HasPrefix(text, "wygenerowano") {
			return true
		}
		if fields := strings.Fields(strings.TrimPrefix(text, "wygenerowano")); len(fields) > 0 {
			generated = &fields[0]
		}
		return false
	})
	return generated
}

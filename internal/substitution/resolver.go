package substitution

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/atom-api/atom/internal/group"
	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/metrics"
	"github.com/atom-api/atom/internal/stringutil"
	"github.com/atom-api/atom/internal/timetable"
)

var (
	// groupCounter marks a row that concerns one part of a split class, e.g.
	// "Informatyka (2)".
	groupCounter    = regexp.MustCompile(`\((\d)\)`)
	splitMarker     = regexp.MustCompile(`\([123]\)`)
	trailingComment = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
)

// PlanExtractor parses a plan page.
type PlanExtractor interface {
	Extract(ctx context.Context, doc *goquery.Document, directory timetable.Directory, q timetable.Query, sourceURL string) (*timetable.Timetable, bool)
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Fetcher  timetable.Fetcher
	Plans    PlanExtractor
	PlansURL string
	Encoding string
	Groups   *group.Filter
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Resolver ties notice rows to a section by comparing the row's teachers with
// the teachers of the section's plan at the same lesson.
type Resolver struct {
	fetcher  timetable.Fetcher
	plans    PlanExtractor
	plansURL string
	encoding string
	groups   *group.Filter
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// NewResolver creates a resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{
		fetcher:  opts.Fetcher,
		plans:    opts.Plans,
		plansURL: opts.PlansURL,
		encoding: opts.Encoding,
		groups:   opts.Groups,
		logger:   log.WithModule("substitution_resolver"),
		metrics:  opts.Metrics,
	}
}

// Resolve binds unidentified entries, and entries of split classes, to the
// lessons of section sectionID on day, then drops what is still unbound.
// Entries that cannot be checked because the plan is unavailable are
// returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, entries []Substitution, sectionID, day string, directory timetable.Directory, q Query) (out []Substitution) {
	log := r.logger.WithFields(map[string]any{"section": sectionID, "day": day})

	defer func() {
		if rec := recover(); rec != nil {
			log.WithError(fmt.Errorf("panic: %v", rec)).ErrorContext(ctx, "Failed to resolve substitutions")
			out = entries
		}
	}()

	if r.plansURL == "" || r.encoding == "" {
		log.WarnContext(ctx, "Plans source is not configured")
		return entries
	}
	planURL, err := url.JoinPath(r.plansURL, sectionID+".html")
	if err != nil {
		log.WithError(err).WarnContext(ctx, "Invalid section plan URL")
		return entries
	}

	doc, err := r.fetcher.FetchPage(ctx, planURL, r.encoding)
	if err != nil || doc == nil {
		log.WithError(err).WarnContext(ctx, "Failed to fetch section plan")
		return entries
	}
	plan, ok := r.plans.Extract(ctx, doc, directory, timetable.Query{Groups: q.Groups, Subjects: q.Subjects}, planURL)
	if !ok {
		log.WarnContext(ctx, "No section plan to resolve against")
		return entries
	}

	titles := make(map[string]map[string]struct{})
	resolved := slices.Clone(entries)
	for i := range resolved {
		r.bind(ctx, &resolved[i], plan, day, q.Groups, titles)
	}

	out = make([]Substitution, 0, len(resolved))
	for _, entry := range resolved {
		if !entry.Identified {
			r.metrics.RecordResolverEntry("dropped")
			continue
		}
		description := deref(entry.Description)
		if groupCounter.MatchString(description) && len(q.Groups) > 0 {
			if entry.Group == nil || !r.groups.Include(*entry.Group, q.Groups) {
				r.metrics.RecordResolverEntry("dropped")
				continue
			}
		}
		if d, trimmed := detail(description); trimmed {
			entry.Description = &d
		}
		r.metrics.RecordResolverEntry("kept")
		out = append(out, entry)
	}
	log.DebugContext(ctx, "Resolved substitutions", "in", len(entries), "out", len(out))
	return out
}

// bind looks for the entry's lesson on the plan and, when one of its teachers
// matches the entry, takes over the lesson's group and marks the entry
// identified. A group counter in the description only accepts the lesson of
// the matching group.
func (r *Resolver) bind(ctx context.Context, entry *Substitution, plan *timetable.Timetable, day string, requested []string, titles map[string]map[string]struct{}) {
	description := deref(entry.Description)
	if entry.Identified && !splitMarker.MatchString(description) {
		return
	}
	if entry.Lesson == nil {
		return
	}

	var counter string
	if m := groupCounter.FindStringSubmatch(description); m != nil {
		counter = m[1]
	}
	entryKeys := stringutil.FuzzyKeys(entry.Teacher)

	for _, slot := range plan.Week[day] {
		if slot.Number != *entry.Lesson {
			continue
		}
		for _, lesson := range slot.Lessons {
			std, ok := lesson.(*timetable.StandardLesson)
			if !ok || std.Teacher.URL == nil {
				continue
			}
			planKeys := r.titleKeys(ctx, *std.Teacher.URL, titles)
			if len(planKeys) == 0 || !stringutil.KeysIntersect(entryKeys, planKeys) {
				continue
			}

			tag := deref(std.Group)
			if counter != "" {
				if std.Group == nil || group.Numerator(tag) != counter {
					continue
				}
			}
			if !r.groups.Include(tag, requested) {
				continue
			}
			entry.Group = std.Group
			entry.Identified = true
			r.metrics.RecordResolverEntry("matched")
			break
		}
		if entry.Identified {
			break
		}
	}
}

// titleKeys returns the fuzzy keys of the name in a teacher plan's title,
// fetching each plan at most once per resolution.
func (r *Resolver) titleKeys(ctx context.Context, teacherURL string, titles map[string]map[string]struct{}) map[string]struct{} {
	if keys, seen := titles[teacherURL]; seen {
		return keys
	}

	var keys map[string]struct{}
	doc, err := r.fetcher.FetchPage(ctx, teacherURL, r.encoding)
	if err != nil || doc == nil {
		r.logger.WithError(err).DebugContext(ctx, "Failed to fetch teacher plan", "url", teacherURL)
	} else if title := doc.Find(".tytulnapis").First(); title.Length() > 0 {
		name := trailingComment.ReplaceAllString(strings.TrimSpace(title.Text()), "")
		keys = stringutil.FuzzyKeys(strings.TrimSpace(name))
	}
	titles[teacherURL] = keys
	return keys
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Package service fetches the upstream pages a request needs and runs them
// through the extractors. It is the only layer that turns fetch failures into
// the error taxonomy of internal/errors; the extractors below it degrade to
// empty results instead.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/atom-api/atom/internal/config"
	"github.com/atom-api/atom/internal/ctxutil"
	domerrors "github.com/atom-api/atom/internal/errors"
	"github.com/atom-api/atom/internal/group"
	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/metrics"
	"github.com/atom-api/atom/internal/sentry"
	"github.com/atom-api/atom/internal/substitution"
	"github.com/atom-api/atom/internal/timetable"
)

// Operation names used in wrapped errors and Sentry tags.
const (
	opGetDirectory     = "get_directory"
	opGetTimetable     = "get_timetable"
	opGetSubstitutions = "get_substitutions"
)

// User-facing messages attached to wrapped errors.
const (
	msgMissingConfiguration = "required source is not configured"
	msgInvalidIdentifier    = "invalid identifier"
	msgSourceUnavailable    = "source did not respond in time"
	msgInternal             = "failed to process source data"
)

// Options configures a Service.
type Options struct {
	Directory     config.Source
	Plans         config.Source
	Substitutions config.Source

	Groups        []string
	ShortSchedule map[int]string

	Fetcher timetable.Fetcher
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// TimetableQuery narrows a plan down.
type TimetableQuery struct {
	Groups   []string
	ShortDay *string
	Subjects map[string]bool
}

// SubstitutionQuery narrows the substitution notice down.
type SubstitutionQuery struct {
	Groups   []string
	Subjects map[string]bool
}

// Service answers directory, timetable and substitution requests.
type Service struct {
	directory     config.Source
	plans         config.Source
	substitutions config.Source

	fetcher       timetable.Fetcher
	timetables    *timetable.Extractor
	substitutionX *substitution.Extractor
	logger        *logger.Logger
}

// New wires the extractors together. All of them share opts.Fetcher, so
// every page a request touches goes through the same fetch limiter.
func New(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	groups := group.NewFilter(opts.Groups)

	teachers := timetable.NewTeacherResolver(opts.Fetcher, opts.Plans.URL, opts.Plans.Encoding, log, opts.Metrics)
	timetables := timetable.NewExtractor(timetable.Options{
		PlansURL:      opts.Plans.URL,
		Groups:        groups,
		ShortSchedule: opts.ShortSchedule,
		Teachers:      teachers,
		Logger:        log,
		Metrics:       opts.Metrics,
	})
	resolver := substitution.NewResolver(substitution.ResolverOptions{
		Fetcher:  opts.Fetcher,
		Plans:    timetables,
		PlansURL: opts.Plans.URL,
		Encoding: opts.Plans.Encoding,
		Groups:   groups,
		Logger:   log,
		Metrics:  opts.Metrics,
	})

	return &Service{
		directory:     opts.Directory,
		plans:         opts.Plans,
		substitutions: opts.Substitutions,
		fetcher:       opts.Fetcher,
		timetables:    timetables,
		substitutionX: substitution.NewExtractor(substitution.Options{
			Resolver: resolver,
			Logger:   log,
			Metrics:  opts.Metrics,
		}),
		logger: log.WithModule("service"),
	}
}

// GetDirectory returns the sections, teachers and rooms listed on the
// directory page.
func (s *Service) GetDirectory(ctx context.Context) (dir timetable.Directory, err error) {
	wrap := domerrors.NewWrapper("service", opGetDirectory)
	defer s.recoverInternal(ctx, wrap, &err)

	if !s.directory.Ready() {
		s.logger.WarnContext(ctx, "Directory source is not configured")
		return timetable.EmptyDirectory(), wrap.Wrap(domerrors.ErrMissingConfiguration, msgMissingConfiguration)
	}

	return s.loadDirectory(ctx, wrap)
}

// GetTimetable returns the plan of the section, teacher or room with the
// given identifier ("o1", "n12", "s3").
func (s *Service) GetTimetable(ctx context.Context, identifier string, q TimetableQuery) (tt *timetable.Timetable, err error) {
	wrap := domerrors.NewWrapper("service", opGetTimetable)
	defer s.recoverInternal(ctx, wrap, &err)

	if !s.directory.Ready() || !s.plans.Ready() {
		s.logger.WarnContext(ctx, "Directory or plans source is not configured")
		return nil, wrap.Wrap(domerrors.ErrMissingConfiguration, msgMissingConfiguration)
	}
	if len(identifier) < 2 || timetable.CategoryOf(identifier) == timetable.CategoryUnknown {
		return nil, wrap.Wrapf(domerrors.ErrInvalidIdentifier, "%s: %q", msgInvalidIdentifier, identifier)
	}
	ctx = ctxutil.WithIdentifier(ctx, identifier)

	planURL, err := url.JoinPath(s.plans.URL, identifier+".html")
	if err != nil {
		return nil, s.internal(ctx, wrap, fmt.Errorf("plan url: %w", err))
	}

	directory, err := s.loadDirectory(ctx, wrap)
	if err != nil {
		return nil, err
	}

	doc, err := s.fetch(ctx, wrap, planURL, s.plans.Encoding)
	if err != nil {
		return nil, err
	}

	tt, ok := s.timetables.Extract(ctx, doc, directory, timetable.Query{
		ShortDay: q.ShortDay,
		Groups:   q.Groups,
		Subjects: q.Subjects,
	}, planURL)
	if !ok {
		return nil, s.internal(ctx, wrap, fmt.Errorf("no plan extracted from %s", planURL))
	}
	return tt, nil
}

// GetSubstitutions returns the substitution notice. An empty identifier
// returns every row; "o…" narrows it to a section and "n…" to a teacher,
// both of which must be listed in the directory.
func (s *Service) GetSubstitutions(ctx context.Context, identifier string, q SubstitutionQuery) (result substitution.Substitutions, err error) {
	wrap := domerrors.NewWrapper("service", opGetSubstitutions)
	defer s.recoverInternal(ctx, wrap, &err)

	if !s.directory.Ready() || !s.substitutions.Ready() {
		s.logger.WarnContext(ctx, "Directory or substitutions source is not configured")
		return substitution.Empty(), wrap.Wrap(domerrors.ErrMissingConfiguration, msgMissingConfiguration)
	}
	if identifier != "" {
		if !targetShape(identifier) {
			return substitution.Empty(), wrap.Wrapf(domerrors.ErrInvalidIdentifier, "%s: %q", msgInvalidIdentifier, identifier)
		}
		ctx = ctxutil.WithIdentifier(ctx, identifier)
	}

	directory, err := s.loadDirectory(ctx, wrap)
	if err != nil {
		return substitution.Empty(), err
	}

	query := substitution.Query{Groups: q.Groups, Subjects: q.Subjects}
	if identifier != "" {
		name, ok := targetName(directory, identifier)
		if !ok {
			return substitution.Empty(), wrap.Wrapf(domerrors.ErrInvalidIdentifier, "%s: %q", msgInvalidIdentifier, identifier)
		}
		if strings.HasPrefix(strings.ToLower(identifier), "o") {
			query.Section = name
		} else {
			query.Teacher = name
		}
	}

	doc, err := s.fetch(ctx, wrap, s.substitutions.URL, s.substitutions.Encoding)
	if err != nil {
		return substitution.Empty(), err
	}
	return s.substitutionX.Extract(ctx, doc, directory, query), nil
}

// SubjectFlags builds the subject inclusion map from the optional religion
// and health education switches. It returns nil when neither is given, which
// keeps every subject.
func SubjectFlags(religion, health *bool) map[string]bool {
	if religion == nil && health == nil {
		return nil
	}
	flags := make(map[string]bool, 2)
	if religion != nil {
		flags["religia"] = *religion
	}
	if health != nil {
		flags["zdrowotna"] = *health
	}
	return flags
}

// targetShape reports whether identifier can name a section or a teacher.
func targetShape(identifier string) bool {
	if len(identifier) < 2 {
		return false
	}
	prefix := strings.ToLower(identifier[:1])
	return prefix == "o" || prefix == "n"
}

// targetName finds the directory name of a section ("o…") or teacher ("n…")
// identifier.
func targetName(directory timetable.Directory, identifier string) (string, bool) {
	switch strings.ToLower(identifier[:1]) {
	case "o":
		name, _, ok := directory.SectionByIdentifier(identifier)
		return name, ok
	case "n":
		name, _, ok := directory.TeacherByIdentifier(identifier)
		return name, ok
	default:
		return "", false
	}
}

func (s *Service) loadDirectory(ctx context.Context, wrap *domerrors.ErrorWrapper) (timetable.Directory, error) {
	doc, err := s.fetch(ctx, wrap, s.directory.URL, s.directory.Encoding)
	if err != nil {
		return timetable.EmptyDirectory(), err
	}
	return s.timetables.ExtractDirectory(ctx, doc, s.directory.URL), nil
}

// fetch downloads a page. Only a timeout is reported as an error; any other
// failure is logged and yields a nil document, which the extractors treat as
// an empty page.
func (s *Service) fetch(ctx context.Context, wrap *domerrors.ErrorWrapper, pageURL, encoding string) (*goquery.Document, error) {
	doc, err := s.fetcher.FetchPage(ctx, pageURL, encoding)
	switch {
	case err == nil:
		return doc, nil
	case domerrors.IsTimeout(err):
		s.logger.WithError(err).WithField("url", pageURL).WarnContext(ctx, "Source timed out")
		return nil, wrap.Wrap(fmt.Errorf("%w: %w", domerrors.ErrSourceUnavailable, err), msgSourceUnavailable)
	default:
		s.logger.WithError(err).WithField("url", pageURL).ErrorContext(ctx, "Failed to fetch source page")
		return nil, nil
	}
}

// internal logs and reports cause and returns it as ErrInternal.
func (s *Service) internal(ctx context.Context, wrap *domerrors.ErrorWrapper, cause error) error {
	err := wrap.Wrap(fmt.Errorf("%w: %w", domerrors.ErrInternal, cause), msgInternal)
	s.logger.WithError(err).ErrorContext(ctx, "Request processing failed")
	tags := map[string]string{"module": "service"}
	var wrapped *domerrors.WrappedError
	if errors.As(err, &wrapped) {
		tags["operation"] = wrapped.Operation
	}
	sentry.CaptureException(ctx, err, tags)
	return err
}

func (s *Service) recoverInternal(ctx context.Context, wrap *domerrors.ErrorWrapper, err *error) {
	if r := recover(); r != nil {
		*err = s.internal(ctx, wrap, fmt.Errorf("panic: %v", r))
	}
}

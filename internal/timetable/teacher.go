package timetable

import (
	"context"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/metrics"
)

// TeacherLookup finds who teaches in a room at a given day and slot.
type TeacherLookup interface {
	Resolve(ctx context.Context, roomURL string, days []string, day string, slot int) Entity
}

// TeacherResolver reads the teacher of a lesson from the room's own plan.
type TeacherResolver struct {
	fetcher  Fetcher
	plansURL string
	encoding string
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// NewTeacherResolver creates a resolver fetching room plans under plansURL.
func NewTeacherResolver(fetcher Fetcher, plansURL, encoding string, log *logger.Logger, m *metrics.Metrics) *TeacherResolver {
	if log == nil {
		log = logger.Discard()
	}
	return &TeacherResolver{
		fetcher:  fetcher,
		plansURL: plansURL,
		encoding: encoding,
		logger:   log.WithModule("teacher_resolver"),
		metrics:  m,
	}
}

// Resolve returns the teacher anchor found in roomURL's plan at (day, slot).
// days is the header of the plan the lookup originates from. Every failure
// yields an unknown Entity.
func (r *TeacherResolver) Resolve(ctx context.Context, roomURL string, days []string, day string, slot int) Entity {
	teacher := r.resolve(ctx, roomURL, days, day, slot)
	if teacher.Known() {
		r.metrics.RecordTeacherLookup("resolved")
	} else {
		r.metrics.RecordTeacherLookup("unresolved")
	}
	return teacher
}

func (r *TeacherResolver) resolve(ctx context.Context, roomURL string, days []string, day string, slot int) Entity {
	log := r.logger.WithFields(map[string]any{"url": roomURL, "day": day, "slot": slot})

	if r.plansURL == "" || r.encoding == "" {
		log.WarnContext(ctx, "Plans source is not configured")
		return Entity{}
	}
	if !sameHost(roomURL, r.plansURL) {
		log.WarnContext(ctx, "Room URL host does not match the plans host")
		return Entity{}
	}

	doc, err := r.fetcher.FetchPage(ctx, roomURL, r.encoding)
	if err != nil || doc == nil {
		log.WithError(err).WarnContext(ctx, "Failed to fetch room plan")
		return Entity{}
	}

	table := doc.Find("table.tabela").First()
	if table.Length() == 0 {
		log.DebugContext(ctx, "Room plan has no schedule table")
		return Entity{}
	}

	dayIndex := slices.Index(days, day)
	if dayIndex < 0 {
		return Entity{}
	}
	column := dayIndex + 2

	var teacher Entity
	bodyRows(table).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if column >= cells.Length() {
			return true
		}
		number, ok := slotNumber(cells.Eq(0))
		if !ok || number != slot {
			return true
		}
		anchor := cells.Eq(column).Find("a.n").First()
		if anchor.Length() == 0 {
			return true
		}
		href, _ := anchor.Attr("href")
		teacher = newEntity(strings.TrimSpace(anchor.Text()), href, r.plansURL)
		return false
	})
	return teacher
}

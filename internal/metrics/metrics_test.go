package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.ScraperRequestsTotal == nil || m.ScraperDurationSeconds == nil {
		t.Error("scraper metrics are nil")
	}
	if m.LimiterWaitSeconds == nil || m.LimiterInFlight == nil {
		t.Error("limiter metrics are nil")
	}
	if m.ExtractionsTotal == nil || m.TeacherLookupsTotal == nil || m.ResolverEntriesTotal == nil {
		t.Error("extraction metrics are nil")
	}
	if m.APIRequestsTotal == nil || m.APIDurationSeconds == nil {
		t.Error("API metrics are nil")
	}
}

func TestRecordScraperRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordScraperRequest("plans", "success", 0.2)
	m.RecordScraperRequest("plans", "success", 0.3)
	m.RecordScraperRequest("substitutions", "timeout", 10)

	if got := testutil.ToFloat64(m.ScraperRequestsTotal.WithLabelValues("plans", "success")); got != 2 {
		t.Errorf("plans/success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ScraperRequestsTotal.WithLabelValues("substitutions", "timeout")); got != 1 {
		t.Errorf("substitutions/timeout = %v, want 1", got)
	}
}

func TestRecordExtractionAndLookups(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordExtraction("timetable", "ok")
	m.RecordExtraction("timetable", "empty")
	m.RecordTeacherLookup("resolved")
	m.RecordResolverEntry("dropped")

	if got := testutil.ToFloat64(m.ExtractionsTotal.WithLabelValues("timetable", "empty")); got != 1 {
		t.Errorf("timetable/empty = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TeacherLookupsTotal.WithLabelValues("resolved")); got != 1 {
		t.Errorf("lookups resolved = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ResolverEntriesTotal.WithLabelValues("dropped")); got != 1 {
		t.Errorf("resolver dropped = %v, want 1", got)
	}
}

func TestInFlightGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AddInFlight(1)
	m.AddInFlight(1)
	m.AddInFlight(-1)
	m.RecordLimiterWait(0.01)

	if got := testutil.ToFloat64(m.LimiterInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.RecordScraperRequest("plans", "success", 1)
	m.RecordLimiterWait(1)
	m.AddInFlight(1)
	m.RecordExtraction("directory", "ok")
	m.RecordTeacherLookup("unresolved")
	m.RecordResolverEntry("kept")
	m.RecordAPIRequest("/timetable", "2xx", 1)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	New(registry)

	defer func() {
		if recover() == nil {
			t.Error("expected panic registering metrics twice on one registry")
		}
	}()
	New(registry)
}

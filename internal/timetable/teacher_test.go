package timetable

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atom-api/atom/internal/metrics"
)

const (
	roomPlanURL = testHost + "/plany/s4.html"
	noTableURL  = testHost + "/plany/s9.html"
)

var weekDays = []string{"Poniedziałek", "Wtorek", "Środa", "Czwartek", "Piątek"}

func roomPlan() string {
	return planPage("GIM gimnastyczna",
		planRow("3", "9:50-10:35", "", `<span class="p">WF-1/2</span> <a href="n14.html" class="n">AK</a> <a href="o1.html" class="o">1A</a>`)+
			planRow("4", "10:45-11:30", `<span class="p">WF</span> <span class="n">XX</span>`))
}

func TestTeacherResolver_Resolve(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{roomPlanURL: roomPlan()})
	r := NewTeacherResolver(fetcher, testPlansURL, "utf-8", nil, nil)

	teacher := r.Resolve(context.Background(), roomPlanURL, weekDays, "Wtorek", 3)
	require.True(t, teacher.Known())
	assert.Equal(t, "AK", *teacher.Text)
	assert.Equal(t, testHost+"/plany/n14.html", *teacher.URL)
	assert.Equal(t, "n14", *teacher.Identifier)
	assert.Equal(t, 1, fetcher.callCount(roomPlanURL))
}

func TestTeacherResolver_Unresolved(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{
		roomPlanURL: roomPlan(),
		noTableURL:  `<html><body><p>brak planu</p></body></html>`,
	})

	tests := []struct {
		name    string
		roomURL string
		day     string
		slot    int
	}{
		{"slot not found", roomPlanURL, "Wtorek", 7},
		{"day not in header", roomPlanURL, "Sobota", 3},
		{"empty cell", roomPlanURL, "Poniedziałek", 3},
		{"teacher without anchor", roomPlanURL, "Poniedziałek", 4},
		{"no schedule table", noTableURL, "Wtorek", 3},
		{"fetch failure", testHost + "/plany/s10.html", "Wtorek", 3},
		{"foreign host", "https://evil.example.org/plany/s4.html", "Wtorek", 3},
	}

	r := NewTeacherResolver(fetcher, testPlansURL, "utf-8", nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Entity{}, r.Resolve(context.Background(), tt.roomURL, weekDays, tt.day, tt.slot))
		})
	}

	assert.Zero(t, fetcher.callCount("https://evil.example.org/plany/s4.html"))
}

func TestTeacherResolver_NotConfigured(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{roomPlanURL: roomPlan()})
	r := NewTeacherResolver(fetcher, testPlansURL, "", nil, nil)

	assert.Equal(t, Entity{}, r.Resolve(context.Background(), roomPlanURL, weekDays, "Wtorek", 3))
	assert.Zero(t, fetcher.callCount(roomPlanURL))
}

func TestTeacherResolver_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	fetcher := newFakeFetcher(map[string]string{roomPlanURL: roomPlan()})
	r := NewTeacherResolver(fetcher, testPlansURL, "utf-8", nil, m)

	r.Resolve(context.Background(), roomPlanURL, weekDays, "Wtorek", 3)
	r.Resolve(context.Background(), roomPlanURL, weekDays, "Wtorek", 8)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TeacherLookupsTotal.WithLabelValues("resolved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TeacherLookupsTotal.WithLabelValues("unresolved")))
}

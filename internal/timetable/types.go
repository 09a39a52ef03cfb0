// Package timetable extracts the school directory and per-entity weekly plans
// from the published schedule pages.
package timetable

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher downloads and parses a page. It is satisfied by *scraper.Client.
type Fetcher interface {
	FetchPage(ctx context.Context, pageURL, encoding string) (*goquery.Document, error)
}

// Category tells whose plan a timetable is.
type Category string

const (
	CategorySection Category = "section"
	CategoryTeacher Category = "teacher"
	CategoryRoom    Category = "room"
	CategoryUnknown Category = "unknown"
)

// CategoryOf infers the category from an identifier's leading letter.
func CategoryOf(identifier string) Category {
	switch {
	case strings.HasPrefix(identifier, "o"):
		return CategorySection
	case strings.HasPrefix(identifier, "n"):
		return CategoryTeacher
	case strings.HasPrefix(identifier, "s"):
		return CategoryRoom
	default:
		return CategoryUnknown
	}
}

// DirectoryEntry is one link of the directory page.
type DirectoryEntry struct {
	URL        string `json:"url"`
	Identifier string `json:"identifier"`
	Expansion  string `json:"expansion"`
}

// Directory holds the three name-keyed lookup maps of the directory page.
type Directory struct {
	Sections map[string]DirectoryEntry `json:"sections"`
	Teachers map[string]DirectoryEntry `json:"teachers"`
	Rooms    map[string]DirectoryEntry `json:"rooms"`
}

// EmptyDirectory returns a directory with three empty, non-nil maps.
func EmptyDirectory() Directory {
	return Directory{
		Sections: map[string]DirectoryEntry{},
		Teachers: map[string]DirectoryEntry{},
		Rooms:    map[string]DirectoryEntry{},
	}
}

// Empty reports whether no entry was found at all.
func (d Directory) Empty() bool {
	return len(d.Sections) == 0 && len(d.Teachers) == 0 && len(d.Rooms) == 0
}

// SectionByIdentifier finds the section whose page identifier is id.
func (d Directory) SectionByIdentifier(id string) (string, DirectoryEntry, bool) {
	return findByIdentifier(d.Sections, id)
}

// TeacherByIdentifier finds the teacher whose page identifier is id.
func (d Directory) TeacherByIdentifier(id string) (string, DirectoryEntry, bool) {
	return findByIdentifier(d.Teachers, id)
}

func findByIdentifier(entries map[string]DirectoryEntry, id string) (string, DirectoryEntry, bool) {
	for name, entry := range entries {
		if entry.Identifier == id {
			return name, entry, true
		}
	}
	return "", DirectoryEntry{}, false
}

// Entity references a teacher, room or section from inside a lesson.
// An unknown entity has all fields nil. Identifier is only set together
// with URL.
type Entity struct {
	Text       *string `json:"text"`
	URL        *string `json:"url"`
	Identifier *string `json:"identifier"`
}

// Known reports whether the entity has a display text.
func (e Entity) Known() bool {
	return e.Text != nil
}

func newEntity(text, href, base string) Entity {
	e := Entity{Text: &text}
	if href == "" || base == "" {
		return e
	}
	resolved, ok := resolveURL(base, href)
	if !ok {
		return e
	}
	e.URL = &resolved
	if id, ok := identifierFromURL(resolved); ok {
		e.Identifier = &id
	}
	return e
}

// Lesson is either a *StandardLesson or a *FreeformLesson.
type Lesson interface {
	Standard() bool
}

// StandardLesson is a lesson with a recognised subject.
type StandardLesson struct {
	Subject  string   `json:"subject"`
	Group    *string  `json:"group"`
	Teacher  Entity   `json:"teacher"`
	Room     Entity   `json:"room"`
	Sections []Entity `json:"sections"`
}

// Standard implements Lesson.
func (*StandardLesson) Standard() bool { return true }

// MarshalJSON adds the "standard" discriminator.
func (l *StandardLesson) MarshalJSON() ([]byte, error) {
	type plain StandardLesson
	return json.Marshal(struct {
		Standard bool `json:"standard"`
		*plain
	}{true, (*plain)(l)})
}

// FreeformLesson is a cell block without subject markup, kept as plain text.
type FreeformLesson struct {
	Text string `json:"text"`
}

// Standard implements Lesson.
func (*FreeformLesson) Standard() bool { return false }

// MarshalJSON adds the "standard" discriminator.
func (l *FreeformLesson) MarshalJSON() ([]byte, error) {
	type plain FreeformLesson
	return json.Marshal(struct {
		Standard bool `json:"standard"`
		*plain
	}{false, (*plain)(l)})
}

// Slot is one numbered period of a day that has at least one lesson.
type Slot struct {
	Number  int      `json:"number"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Lessons []Lesson `json:"lessons"`
}

// Validity is the date range printed on the page, when present.
type Validity struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

// Timetable is the weekly plan of one section, teacher or room.
type Timetable struct {
	Name        *string           `json:"name"`
	Category    Category          `json:"category"`
	URL         string            `json:"url"`
	Identifier  *string           `json:"identifier"`
	GeneratedAt *string           `json:"generated_at"`
	Validity    Validity          `json:"validity"`
	Days        []string          `json:"days"`
	Week        map[string][]Slot `json:"week"`
}

// SlotAt returns the slot with the given number on day.
func (t *Timetable) SlotAt(day string, number int) (Slot, bool) {
	if t == nil {
		return Slot{}, false
	}
	for _, slot := range t.Week[day] {
		if slot.Number == number {
			return slot, true
		}
	}
	return Slot{}, false
}

// identifierFromURL returns the file name of u up to its first dot. A file
// name without a dot has no identifier.
func identifierFromURL(u string) (string, bool) {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Path == "" {
		return "", false
	}
	file := parsed.Path[strings.LastIndex(parsed.Path, "/")+1:]
	stem, _, ok := strings.Cut(file, ".")
	if !ok {
		return "", false
	}
	return stem, true
}

func resolveURL(base, href string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return b.ResolveReference(ref).String(), true
}

// isPageURL reports whether u is an absolute http(s) URL.
func isPageURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && ua.Host == ub.Host
}

// Package substitution extracts the daily substitution notice and binds its
// rows to the section or teacher they concern.
package substitution

// Substitution is one row of the notice.
type Substitution struct {
	// Identified is false while the row could not be tied to the requested
	// section or teacher with certainty.
	Identified  bool    `json:"identified"`
	Group       *string `json:"group"`
	Teacher     string  `json:"teacher"`
	Lesson      *int    `json:"lesson"`
	Description *string `json:"description"`
	Substitute  *string `json:"substitute"`
	Notes       *string `json:"notes"`
}

// Substitutions is the parsed notice.
type Substitutions struct {
	Identifier    *string        `json:"identifier"`
	Day           *string        `json:"day"`
	Info          string         `json:"info"`
	ShortSchedule *bool          `json:"short_schedule"`
	Entries       []Substitution `json:"entries"`
}

// Empty returns a notice with no information and no entries.
func Empty() Substitutions {
	return Substitutions{Entries: []Substitution{}}
}

// Query narrows the notice down to one section or one teacher, named as in
// the directory ("1 A", "J. Nowak"). At most one of Section and Teacher is
// expected to be set.
type Query struct {
	Section  string
	Teacher  string
	Groups   []string
	Subjects map[string]bool
}

func (q Query) targeted() bool {
	return q.Section != "" || q.Teacher != ""
}

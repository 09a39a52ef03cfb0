// Package group implements lesson group tags: extracting a tag from a subject
// and deciding whether a tagged lesson matches a requested set of groups.
//
// Tags come in two shapes. Fractional tags ("1/3", "2/2") name one part of a
// split class; they are compared only with requested tags that share the same
// denominator. Joint tags ("j1", "j2") carry no denominator and are compared
// only with requested tags that also lack one and start with "j".
package group

import "strings"

// DefaultVocabulary is the set of tags recognised when none is configured.
var DefaultVocabulary = []string{"1/3", "2/3", "3/3", "1/2", "2/2", "1/1", "j1", "j2"}

// Filter holds the configured group vocabulary. The zero value has an empty
// vocabulary, which makes every lesson pass Include and no subject carry a tag.
type Filter struct {
	vocabulary []string
	known      map[string]struct{}
}

// NewFilter creates a filter over the given vocabulary. Order matters for
// Extract: the first tag found in a subject wins.
func NewFilter(vocabulary []string) *Filter {
	known := make(map[string]struct{}, len(vocabulary))
	for _, tag := range vocabulary {
		known[tag] = struct{}{}
	}
	return &Filter{
		vocabulary: append([]string(nil), vocabulary...),
		known:      known,
	}
}

// Vocabulary returns a copy of the configured tags in their configured order.
func (f *Filter) Vocabulary() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.vocabulary...)
}

// Known reports whether tag belongs to the vocabulary.
func (f *Filter) Known(tag string) bool {
	if f == nil {
		return false
	}
	_, ok := f.known[tag]
	return ok
}

// Extract returns the first vocabulary tag contained in subject.
func (f *Filter) Extract(subject string) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, tag := range f.vocabulary {
		if strings.Contains(subject, tag) {
			return tag, true
		}
	}
	return "", false
}

// Include reports whether a lesson tagged with tag should be kept when the
// caller asked for requested groups. An empty tag or empty request always
// passes, as does a request naming only unknown tags.
func (f *Filter) Include(tag string, requested []string) bool {
	if tag == "" || len(requested) == 0 {
		return true
	}

	supported := make([]string, 0, len(requested))
	for _, r := range requested {
		if f.Known(r) {
			supported = append(supported, r)
		}
	}
	if len(supported) == 0 {
		return true
	}

	var candidates []string
	if denominator, ok := Denominator(tag); ok {
		for _, r := range supported {
			if d, ok := Denominator(r); ok && d == denominator {
				candidates = append(candidates, r)
			}
		}
	} else {
		for _, r := range supported {
			if !strings.Contains(r, "/") && strings.HasPrefix(r, "j") {
				candidates = append(candidates, r)
			}
		}
	}

	if len(candidates) == 0 {
		return true
	}
	for _, c := range candidates {
		if c == tag {
			return true
		}
	}
	return false
}

// Numerator returns the part of a tag before the first "/", or the whole tag
// when it has none.
func Numerator(tag string) string {
	numerator, _, _ := strings.Cut(tag, "/")
	return numerator
}

// Denominator returns the part of a fractional tag between the first and
// second "/".
func Denominator(tag string) (string, bool) {
	_, rest, ok := strings.Cut(tag, "/")
	if !ok {
		return "", false
	}
	denominator, _, _ := strings.Cut(rest, "/")
	return denominator, true
}

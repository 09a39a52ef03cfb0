package timetable

import (
	"context"
	"net/url"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const directoryPage = `<html><body>
<ul>
<li><a href="plany/o1.html">1A 1A informatyczna</a></li>
<li><a href="plany/o2.html">2b</a></li>
<li><a href="plany/o3.html">1a duplikat</a></li>
<li><a href="plany/o4.html">Ogłoszenia</a></li>
</ul>
<ul>
<li><a href="plany/n12.html">J.Nowak (JN)</a></li>
<li><a href="plany/n13.html">J.Nowak (JN2)</a></li>
<li><a href="plany/n14.html">A.Kowal-Zając (AK)</a></li>
</ul>
<ul>
<li><a href="plany/s3.html">101 sala komputerowa</a></li>
<li><a href="plany/s4.html">gim gimnastyczna</a></li>
</ul>
<a href="index.html">Strona główna</a>
</body></html>`

func newTestExtractor(teachers TeacherLookup) *Extractor {
	return NewExtractor(Options{
		PlansURL: testPlansURL,
		Teachers: teachers,
	})
}

func TestExtractDirectory(t *testing.T) {
	e := newTestExtractor(nil)
	dir := e.ExtractDirectory(context.Background(), mustDocument(t, directoryPage), testHost+"/lista.html")

	require.Len(t, dir.Sections, 2)
	assert.Equal(t, DirectoryEntry{
		URL:        testHost + "/plany/o1.html",
		Identifier: "o1",
		Expansion:  "1A informatyczna",
	}, dir.Sections["1 A"])
	assert.Equal(t, "o2", dir.Sections["2 B"].Identifier)

	require.Len(t, dir.Teachers, 2)
	assert.Equal(t, "n12", dir.Teachers["J. Nowak"].Identifier, "first occurrence wins")
	assert.Equal(t, "J.Nowak (JN)", dir.Teachers["J. Nowak"].Expansion)
	assert.Equal(t, "n14", dir.Teachers["A. Kowal-Zając"].Identifier)

	require.Len(t, dir.Rooms, 2)
	assert.Equal(t, "s3", dir.Rooms["101"].Identifier)
	assert.Equal(t, "s4", dir.Rooms["GIM"].Identifier)
}

func TestExtractDirectory_IdentifierIsFileStem(t *testing.T) {
	e := newTestExtractor(nil)
	dir := e.ExtractDirectory(context.Background(), mustDocument(t, directoryPage), testHost+"/lista.html")

	for _, entries := range []map[string]DirectoryEntry{dir.Sections, dir.Teachers, dir.Rooms} {
		for name, entry := range entries {
			u, err := url.Parse(entry.URL)
			require.NoError(t, err)
			stem := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
			assert.Equal(t, stem, entry.Identifier, name)
		}
	}
}

func TestExtractDirectory_Rejected(t *testing.T) {
	e := newTestExtractor(nil)
	doc := mustDocument(t, directoryPage)

	tests := []struct {
		name      string
		sourceURL string
		nilDoc    bool
	}{
		{"no document", testHost + "/lista.html", true},
		{"relative URL", "/lista.html", false},
		{"other scheme", "ftp://plan.example.com/lista.html", false},
		{"foreign host", "https://evil.example.org/lista.html", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := doc
			if tt.nilDoc {
				d = nil
			}
			dir := e.ExtractDirectory(context.Background(), d, tt.sourceURL)
			assert.True(t, dir.Empty())
			assert.NotNil(t, dir.Sections)
			assert.NotNil(t, dir.Teachers)
			assert.NotNil(t, dir.Rooms)
		})
	}
}

func TestDirectory_Lookups(t *testing.T) {
	e := newTestExtractor(nil)
	dir := e.ExtractDirectory(context.Background(), mustDocument(t, directoryPage), testHost+"/lista.html")

	name, entry, ok := dir.SectionByIdentifier("o2")
	require.True(t, ok)
	assert.Equal(t, "2 B", name)
	assert.Equal(t, testHost+"/plany/o2.html", entry.URL)

	name, _, ok = dir.TeacherByIdentifier("n14")
	require.True(t, ok)
	assert.Equal(t, "A. Kowal-Zając", name)

	_, _, ok = dir.SectionByIdentifier("o99")
	assert.False(t, ok)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategorySection, CategoryOf("o1"))
	assert.Equal(t, CategoryTeacher, CategoryOf("n12"))
	assert.Equal(t, CategoryRoom, CategoryOf("s3"))
	assert.Equal(t, CategoryUnknown, CategoryOf("x1"))
	assert.Equal(t, CategoryUnknown, CategoryOf(""))
}

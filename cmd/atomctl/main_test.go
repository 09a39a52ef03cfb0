package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atom-api/atom/internal/config"
	"github.com/atom-api/atom/internal/logger"
	"github.com/atom-api/atom/internal/scraper"
	"github.com/atom-api/atom/internal/service"
)

const directoryPage = `<html><body>
<a href="plany/o1.html">1A 1A informatyczna</a>
<a href="plany/n12.html">J.Nowak (JN)</a>
</body></html>`

func testFactory(t *testing.T, calls *int) serviceFactory {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(directoryPage))
	}))
	t.Cleanup(srv.Close)

	return func(*options) (*service.Service, error) {
		*calls++
		return service.New(service.Options{
			Directory: config.Source{URL: srv.URL + "/lista.html", Encoding: "utf-8"},
			Plans:     config.Source{URL: srv.URL + "/plany/", Encoding: "utf-8"},
			Groups:    config.DefaultGroups,
			Fetcher:   scraper.NewClient(scraper.Options{}),
			Logger:    logger.Discard(),
		}), nil
	}
}

func run(t *testing.T, build serviceFactory, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, build)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestDirectoryCommand(t *testing.T) {
	var calls int
	out, err := run(t, testFactory(t, &calls), "directory")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	var dir struct {
		Sections map[string]struct {
			Identifier string `json:"identifier"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &dir))
	assert.Equal(t, "o1", dir.Sections["1 A"].Identifier)
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"timetable without id", []string{"timetable"}},
		{"substitutions with two ids", []string{"substitutions", "o1", "o2"}},
		{"directory with argument", []string{"directory", "o1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			_, err := run(t, testFactory(t, &calls), tt.args...)
			require.Error(t, err)
			assert.Zero(t, calls, "service is not built for rejected arguments")
		})
	}
}

func TestSubjectFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]bool
	}{
		{"unset", nil, nil},
		{"religion off", []string{"--religion=false"}, map[string]bool{"religia": false}},
		{"both", []string{"--religion=false", "--health"}, map[string]bool{"religia": false, "zdrowotna": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd(&bytes.Buffer{}, nil)
			require.NoError(t, root.ParseFlags(tt.args))

			opts := &options{}
			opts.religion, _ = root.Flags().GetBool("religion")
			opts.health, _ = root.Flags().GetBool("health")
			assert.Equal(t, tt.want, subjectFlags(root, opts))
		})
	}
}

func TestInvalidIdentifierIsReported(t *testing.T) {
	var calls int
	_, err := run(t, testFactory(t, &calls), "timetable", "x1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x1")
}

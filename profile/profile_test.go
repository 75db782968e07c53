package profile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsValidate(t *testing.T) {
	for _, name := range BuiltinNames() {
		t.Run(name, func(t *testing.T) {
			p, ok := Builtin(name)
			require.True(t, ok)
			require.NoError(t, p.Validate())
			assert.Equal(t, name, p.Name)
		})
	}
}

func TestBuiltinReturnsCopies(t *testing.T) {
	a, _ := Builtin("books")
	a.CardFields[0].Selector = "changed"
	b, _ := Builtin("books")
	assert.NotEqual(t, "changed", b.CardFields[0].Selector)
}

func TestBroadwayListTruncatesDescriptions(t *testing.T) {
	p, _ := Builtin("broadway")
	for _, f := range p.CardFields {
		if f.Name == "description" {
			assert.Equal(t, "truncate30", f.Transform)
			return
		}
	}
	t.Fatal("description field missing")
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr string
	}{
		{
			name:    "empty name",
			mutate:  func(p *Profile) { p.Name = "" },
			wantErr: "name",
		},
		{
			name:    "unknown engine",
			mutate:  func(p *Profile) { p.Engine = "curl" },
			wantErr: "engine",
		},
		{
			name:    "relative start url",
			mutate:  func(p *Profile) { p.StartURL = "/shows" },
			wantErr: "start URL",
		},
		{
			name:    "no card selector",
			mutate:  func(p *Profile) { p.Card = "" },
			wantErr: "card selector",
		},
		{
			name:    "no columns",
			mutate:  func(p *Profile) { p.Columns = nil },
			wantErr: "columns",
		},
		{
			name:    "unknown format",
			mutate:  func(p *Profile) { p.Format = "xml" },
			wantErr: "format",
		},
		{
			name:    "unknown transform",
			mutate:  func(p *Profile) { p.CardFields[0].Transform = "shout" },
			wantErr: "unknown transform",
		},
		{
			name:    "duplicate field",
			mutate:  func(p *Profile) { p.CardFields = append(p.CardFields, p.CardFields[0]) },
			wantErr: "duplicate field",
		},
		{
			name:    "required field not extracted",
			mutate:  func(p *Profile) { p.Required = []string{"venue"} },
			wantErr: "required field",
		},
		{
			name:    "bad step",
			mutate:  func(p *Profile) { p.Setup = []Step{{Action: "hover", Selector: "a"}} },
			wantErr: "unknown action",
		},
		{
			name:    "sleep without duration",
			mutate:  func(p *Profile) { p.Setup = []Step{{Action: ActionSleep}} },
			wantErr: "positive duration",
		},
		{
			name: "window status without layout",
			mutate: func(p *Profile) {
				p.Detail.Calendar.Status = StatusWindow
				p.Detail.Calendar.Window = time.Minute
			},
			wantErr: "layout",
		},
		{
			name:    "calendar without date source",
			mutate:  func(p *Profile) { p.Detail.Calendar.DateAttr = "" },
			wantErr: "date attribute",
		},
		{
			name:    "card click on static engine",
			mutate:  func(p *Profile) { p.Engine = EngineStatic; p.CardClick = "button" },
			wantErr: "browser engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := Builtin("broadway-calendar")
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidProfile))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

const profilesYAML = `
profiles:
  - name: local-shows
    engine: static
    start_url: http://example.test/shows
    card: div.show
    card_fields:
      - name: title
        selector: h2
      - name: link
        selector: a
        attr: href
        absolute: true
    required: [title]
    columns: [title, link, date, time, status]
    detail:
      ready: div.page
      calendar:
        entry: button.perf
        date_attr: aria-label
        layout: "2 January 2006 - 3:04 PM"
        status: window
        window: 5m
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesYAML), 0o644))

	profiles, err := Load(path)
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, "local-shows", p.Name)
	assert.Equal(t, EngineStatic, p.Engine)
	assert.True(t, p.CardFields[1].Absolute)
	require.NotNil(t, p.Detail)
	require.NotNil(t, p.Detail.Calendar)
	assert.Equal(t, 5*time.Minute, p.Detail.Calendar.Window)
	assert.Equal(t, StatusWindow, p.Detail.Calendar.Status)
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	bad := strings.Replace(profilesYAML, "card: div.show", "card: \"\"", 1)
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, BuiltinNames(), r.Names())

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownProfile)

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesYAML), 0o644))
	require.NoError(t, r.LoadFile(path))

	p, err := r.Get("local-shows")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/shows", p.StartURL)
	assert.Contains(t, r.Names(), "local-shows")
}

// Package dashboard renders Grafana dashboards for the GreptimeDB tables
// the station writes.
package dashboard

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"contourtrack/internal/telemetry"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Params fills the dashboard templates.
type Params struct {
	StationID   string
	SampleTable string
	EventTable  string
	Threshold   int
	// Window is the look-back of the "above threshold" stat, in SQL
	// interval syntax.
	Window string
}

func (p Params) withDefaults() Params {
	if p.StationID == "" {
		p.StationID = "station-01"
	}
	if p.SampleTable == "" {
		p.SampleTable = telemetry.SampleTableName
	}
	if p.EventTable == "" {
		p.EventTable = telemetry.EventTableName
	}
	if p.Window == "" {
		p.Window = "10 seconds"
	}
	return p
}

// Render writes every dashboard template to outDir. Templates read the
// Grafana datasource uid from GREPTIMEDB_DATASOURCE_UID.
func Render(outDir string, p Params) error {
	p = p.withDefaults()
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	names, err := fs.Glob(templateFS, "templates/*.tmpl")
	if err != nil {
		return err
	}
	for _, name := range names {
		t, err := template.New(filepath.Base(name)).Funcs(funcMap).ParseFS(templateFS, name)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(name), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, p); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

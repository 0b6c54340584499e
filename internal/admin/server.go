// Package admin serves the station's HTML status page and JSON control API.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"contourtrack/internal/grid"
	"contourtrack/internal/logging"
	"contourtrack/internal/station"
)

// Station is the part of the base station the admin server drives.
type Station interface {
	Snapshot() grid.Snapshot
	Motes() []station.MoteStatus
	Settings() station.Settings
	Stats() station.Counters
	SetInterval(ctx context.Context, n int) error
	SetThreshold(ctx context.Context, n int) error
	Clear()
}

type Server struct {
	St  Station
	tpl *template.Template
	mux *http.ServeMux
}

//go:embed templates/index.html
var content embed.FS

var funcs = template.FuncMap{
	// rows lays the cells out top row first, padding the last row.
	"rows": func(s grid.Snapshot) [][]*grid.Cell {
		if s.Dim == 0 {
			return nil
		}
		var out [][]*grid.Cell
		for r := s.Dim - 1; r >= 0; r-- {
			row := make([]*grid.Cell, s.Dim)
			for c := range row {
				if i := r*s.Dim + c; i < len(s.Cells) {
					row[c] = &s.Cells[i]
				}
			}
			out = append(out, row)
		}
		return out
	},
}

func NewServer(st Station) *Server {
	tpl := template.Must(template.New("index.html").Funcs(funcs).ParseFS(content, "templates/index.html"))
	s := &Server{St: st, tpl: tpl, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /grid", s.handleGrid)
	s.mux.HandleFunc("GET /motes", s.handleMotes)
	s.mux.HandleFunc("GET /settings", s.handleSettings)
	s.mux.HandleFunc("POST /interval", s.handleInterval)
	s.mux.HandleFunc("POST /threshold", s.handleThreshold)
	s.mux.HandleFunc("POST /clear", s.handleClear)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logging.FromContext(ctx).Info("admin server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("write admin response", "path", r.URL.Path, "err", err)
	}
}

type settingsView struct {
	station.Settings
	Counters station.Counters `json:"counters"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.St.Snapshot()
	data := struct {
		Snapshot grid.Snapshot
		Regions  int
		Motes    []station.MoteStatus
		Settings station.Settings
		Counters station.Counters
	}{
		Snapshot: snap,
		Regions:  len(snap.Blobs()),
		Motes:    s.St.Motes(),
		Settings: s.St.Settings(),
		Counters: s.St.Stats(),
	}
	if err := s.tpl.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Error("render admin page", "err", err)
	}
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.St.Snapshot())
}

func (s *Server) handleMotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.St.Motes())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, settingsView{Settings: s.St.Settings(), Counters: s.St.Stats()})
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	s.handleSet(w, r, s.St.SetInterval)
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	s.handleSet(w, r, s.St.SetThreshold)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request, set func(context.Context, int) error) {
	n, err := strconv.Atoi(r.URL.Query().Get("value"))
	if err != nil {
		http.Error(w, "value must be an integer", http.StatusBadRequest)
		return
	}
	if err := set(r.Context(), n); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, station.ErrInvalidInterval) || errors.Is(err, station.ErrInvalidThreshold) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, r, s.St.Settings())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.St.Clear()
	w.WriteHeader(http.StatusNoContent)
}

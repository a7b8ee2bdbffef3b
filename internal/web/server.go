// Package web serves the read-only status UI and JSON API over the record
// store and the event database.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/db"
	"github.com/f8ai/pubpipe/internal/store"
)

//go:embed templates
var templateFS embed.FS

var funcMap = template.FuncMap{
	"badgeClass": func(status article.Status) string {
		return "badge badge-" + strings.ReplaceAll(string(status), "_", "-")
	},
	"relTime": relTime,
	"score": func(s *float64) string {
		if s == nil {
			return "–"
		}
		return fmt.Sprintf("%.2f", *s)
	},
}

// Server is the read-only status server.
type Server struct {
	records store.RecordStore
	events  *db.DB
	port    int
	log     *slog.Logger

	dashboardTmpl *template.Template
	articleTmpl   *template.Template
}

// NewServer creates a Server with parsed templates. events may be nil; the
// activity pane is omitted then.
func NewServer(records store.RecordStore, events *db.DB, port int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		records:       records,
		events:        events,
		port:          port,
		log:           log,
		dashboardTmpl: mustParseTmpl("base.html", "dashboard.html"),
		articleTmpl:   mustParseTmpl("base.html", "article.html"),
	}
}

func mustParseTmpl(names ...string) *template.Template {
	patterns := make([]string, len(names))
	for i, n := range names {
		patterns[i] = "templates/" + n
	}
	return template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, patterns...))
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/":
			s.handleDashboard(w, r)
		case strings.HasPrefix(r.URL.Path, "/articles/"):
			s.handleArticle(w, r, strings.Trim(strings.TrimPrefix(r.URL.Path, "/articles/"), "/"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/articles/", func(w http.ResponseWriter, r *http.Request) {
		s.handleAPIArticle(w, r, strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/articles/"), "/"))
	})
	return mux
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("status ui listening", "addr", srv.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func relTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package web

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/db"
	"github.com/f8ai/pubpipe/internal/stats"
	"github.com/f8ai/pubpipe/internal/store"
)

// ---- view models ----

type DashboardData struct {
	Report   *stats.Report
	Rows     []ArticleRow
	Activity []db.ArticleEvent
}

type ArticleRow struct {
	PMID         string
	Title        string
	CurrentStage string
	Stages       []StageCell
	Score        *float64
	Categories   []string
	UpdatedAt    time.Time
	Blocked      bool
}

type StageCell struct {
	Stage  string
	Status article.Status
	Record *article.StageRecord
}

type ArticleData struct {
	Row     ArticleRow
	Article *article.Article
	Version int64
	History []db.ArticleEvent
}

func articleRow(snap *store.Snapshot) ArticleRow {
	a := snap.Article
	row := ArticleRow{
		PMID:         a.PMID,
		Title:        a.PMID,
		CurrentStage: string(a.CurrentStage()),
		Score:        a.RelevanceScore,
		Categories:   a.SearchCategories,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.Metadata != nil && a.Metadata.Title != "" {
		row.Title = a.Metadata.Title
	}
	for _, s := range article.Order {
		rec := a.Stage(s)
		if rec.Status == article.StatusFailed {
			row.Blocked = true
		}
		row.Stages = append(row.Stages, StageCell{Stage: string(s), Status: rec.Status, Record: rec})
	}
	return row
}

// ---- html handlers ----

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.records.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := DashboardData{Report: stats.Build(snaps)}
	for _, snap := range snaps {
		data.Rows = append(data.Rows, articleRow(snap))
	}
	sort.Slice(data.Rows, func(i, j int) bool {
		return data.Rows[i].UpdatedAt.After(data.Rows[j].UpdatedAt)
	})

	if s.events != nil {
		if recent, err := s.events.Recent(r.Context(), 20); err == nil {
			data.Activity = recent
		}
	}

	if err := s.dashboardTmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.Error("render dashboard", "error", err)
	}
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request, pmid string) {
	snap, err := s.records.Load(r.Context(), pmid)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := ArticleData{Row: articleRow(snap), Article: snap.Article, Version: snap.Version}
	if s.events != nil {
		if hist, err := s.events.History(r.Context(), pmid, 50); err == nil {
			data.History = hist
		}
	}
	if err := s.articleTmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.Error("render article", "pmid", pmid, "error", err)
	}
}

// ---- json handlers ----

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.records.ListPending(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.records.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	resp := map[string]any{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"report":       stats.Build(snaps),
	}
	if s.events != nil {
		if daily, err := stats.BuildDaily(r.Context(), s.events); err == nil {
			resp["daily"] = daily
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIArticle(w http.ResponseWriter, r *http.Request, pmid string) {
	snap, err := s.records.Load(r.Context(), pmid)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"article": snap.Article,
		"version": snap.Version,
	})
}

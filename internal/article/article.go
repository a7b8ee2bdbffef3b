package article

import (
	"sort"
	"time"
)

// Stage names one step of the enrichment pipeline.
type Stage string

const (
	StageMetadata Stage = "metadata"
	StageAbstract Stage = "abstract"
	StageFullText Stage = "fulltext"
	StageOcr      Stage = "ocr"
	StageRagIndex Stage = "rag"
)

// Order is the fixed pipeline order. Stages advance strictly left to right.
var Order = []Stage{StageMetadata, StageAbstract, StageFullText, StageOcr, StageRagIndex}

// TextBearing reports whether completing the stage contributes text that
// feeds the relevance scorer.
func TextBearing(s Stage) bool {
	switch s {
	case StageAbstract, StageFullText, StageOcr:
		return true
	}
	return false
}

// Status is the lifecycle state of one stage for one article.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// ErrorInfo describes the last failure recorded for a stage.
type ErrorInfo struct {
	Kind    string    `json:"kind"` // "transient" or "permanent"
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StageRecord tracks one stage's progress for one article.
type StageRecord struct {
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   *ErrorInfo `json:"last_error,omitempty"`
	ArtifactRef string     `json:"artifact_ref,omitempty"`
	// PDFBacked marks a fulltext artifact that is a PDF requiring optical
	// extraction rather than already-extracted text.
	PDFBacked   bool       `json:"pdf_backed,omitempty"`
	StartedAt   time.Time  `json:"started_at,omitzero"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Metadata is the structured record produced by the metadata stage.
// It is stored inline rather than as a blob.
type Metadata struct {
	Title           string   `json:"title"`
	Authors         []string `json:"authors,omitempty"`
	Journal         string   `json:"journal,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty"`
	DOI             string   `json:"doi,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	MeshTerms       []string `json:"mesh_terms,omitempty"`
	URL             string   `json:"url,omitempty"`
}

// Article is the persisted state for one tracked publication, keyed by PMID.
type Article struct {
	PMID             string                 `json:"pmid"`
	DiscoveredAt     time.Time              `json:"discovered_at"`
	SearchCategories []string               `json:"search_categories"`
	Metadata         *Metadata              `json:"metadata,omitempty"`
	Stages           map[Stage]*StageRecord `json:"stages"`
	RelevanceScore   *float64               `json:"relevance_score,omitempty"`
	// ScoreStage records which text-bearing stage produced the current score.
	ScoreStage Stage  `json:"score_stage,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// New creates an article in its initial state: every stage pending, zero
// attempts, categories deduplicated and sorted.
func New(pmid string, categories []string, now time.Time) *Article {
	a := &Article{
		PMID:         pmid,
		DiscoveredAt: now,
		Stages:       make(map[Stage]*StageRecord, len(Order)),
		UpdatedAt:    now,
	}
	for _, s := range Order {
		a.Stages[s] = &StageRecord{Status: StatusPending}
	}
	a.AddCategories(categories)
	return a
}

// AddCategories unions categories into the article's set, keeping the set
// sorted. Returns true if the set changed.
func (a *Article) AddCategories(categories []string) bool {
	seen := make(map[string]bool, len(a.SearchCategories))
	for _, c := range a.SearchCategories {
		seen[c] = true
	}
	changed := false
	for _, c := range categories {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		a.SearchCategories = append(a.SearchCategories, c)
		changed = true
	}
	if changed {
		sort.Strings(a.SearchCategories)
	}
	return changed
}

// Stage returns the record for a stage, creating a pending record if the
// snapshot predates the stage's introduction.
func (a *Article) Stage(s Stage) *StageRecord {
	rec, ok := a.Stages[s]
	if !ok {
		rec = &StageRecord{Status: StatusPending}
		if a.Stages == nil {
			a.Stages = make(map[Stage]*StageRecord)
		}
		a.Stages[s] = rec
	}
	return rec
}

// CurrentStage returns the highest stage marked done, or "" if none is.
func (a *Article) CurrentStage() Stage {
	var current Stage
	for _, s := range Order {
		if rec, ok := a.Stages[s]; ok && rec.Status == StatusDone {
			current = s
		}
	}
	return current
}

// Complete reports whether every stage is done or skipped.
func (a *Article) Complete() bool {
	for _, s := range Order {
		rec, ok := a.Stages[s]
		if !ok {
			return false
		}
		if rec.Status != StatusDone && rec.Status != StatusSkipped {
			return false
		}
	}
	return true
}

// satisfied reports whether a stage counts toward monotonicity.
func satisfied(st Status) bool {
	return st == StatusDone || st == StatusSkipped
}

// Package engine drives articles through the enrichment pipeline. Each tick
// advances one article by at most one stage: lease the stage through a
// compare-and-set on the record version, run the fetcher, persist the result.
// Workers never coordinate directly; the record store's version arbitrates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/blob"
	"github.com/f8ai/pubpipe/internal/fetch"
	"github.com/f8ai/pubpipe/internal/relevance"
	"github.com/f8ai/pubpipe/internal/store"
)

// EventLog receives pipeline events for the audit trail. Recording is best
// effort: a failed event write never fails the tick that produced it.
type EventLog interface {
	Record(ctx context.Context, pmid string, stage article.Stage, event, detail string) error
}

// Config tunes pipeline execution.
type Config struct {
	// MaxAttempts is the attempt count at which a transient failure is
	// escalated to failed.
	MaxAttempts int
	// LeaseTimeout is how long an in_progress stage is considered owned
	// before another worker may reclaim it.
	LeaseTimeout time.Duration
	// StageTimeout bounds a single fetcher invocation.
	StageTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 10 * time.Minute
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 90 * time.Second
	}
	return c
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Records   store.RecordStore
	Blobs     blob.Store
	Search    fetch.Searcher
	Metadata  fetch.MetadataFetcher
	Abstracts fetch.AbstractFetcher
	FullText  fetch.FullTextFetcher
	PDFs      fetch.PdfFetcher
	Ocr       fetch.OcrExtractor
	Events    EventLog
	Log       *slog.Logger
}

// Engine advances articles through the pipeline.
type Engine struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
	now  func() time.Time
}

// New creates an Engine. Zero config fields get defaults.
func New(deps Deps, cfg Config) *Engine {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		deps: deps,
		cfg:  cfg.withDefaults(),
		log:  log,
		now:  time.Now,
	}
}

// OutcomeKind classifies what a tick did.
type OutcomeKind int

const (
	// OutcomeIdle means nothing was runnable: the pipeline is complete or
	// blocked on a failed stage, or this worker lost the lease race.
	OutcomeIdle OutcomeKind = iota
	// OutcomeBusy means another worker holds a fresh lease.
	OutcomeBusy
	// OutcomeAdvanced means a stage completed (done or skipped).
	OutcomeAdvanced
	// OutcomeFailed means the attempted stage recorded a failure.
	OutcomeFailed
	// OutcomeCorrupt means the stored snapshot violates the pipeline
	// invariants and was left untouched.
	OutcomeCorrupt
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIdle:
		return "idle"
	case OutcomeBusy:
		return "busy"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeFailed:
		return "failed"
	case OutcomeCorrupt:
		return "corrupt"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome reports what a tick did to one article.
type Outcome struct {
	Kind  OutcomeKind
	Stage article.Stage
	Err   error
}

// Tick advances one article by at most one stage. It is safe to call from
// any number of workers: a stale snapshot loses the compare-and-set and the
// tick reports idle.
func (e *Engine) Tick(ctx context.Context, pmid string) (Outcome, error) {
	snap, err := e.deps.Records.Load(ctx, pmid)
	if err != nil {
		return Outcome{}, fmt.Errorf("load %s: %w", pmid, err)
	}
	a := snap.Article

	if err := article.Validate(a); err != nil {
		e.log.Error("corrupt article snapshot", "pmid", pmid, "error", err)
		return Outcome{Kind: OutcomeCorrupt, Err: err}, nil
	}

	stage, decision := article.Next(a, e.now(), e.cfg.LeaseTimeout)
	switch decision {
	case article.DecisionNone:
		return Outcome{Kind: OutcomeIdle}, nil
	case article.DecisionBusy:
		return Outcome{Kind: OutcomeBusy}, nil
	}

	version, err := e.lease(ctx, snap, stage)
	if errors.Is(err, store.ErrConflict) {
		// Another worker leased first; this tick has nothing to do.
		return Outcome{Kind: OutcomeIdle}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("lease %s stage %s: %w", pmid, stage, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	runErr := e.run(runCtx, a, stage)
	cancel()

	rec := a.Stage(stage)
	outcome := Outcome{Stage: stage}
	if runErr == nil {
		e.complete(a, stage)
		outcome.Kind = OutcomeAdvanced
	} else {
		e.fail(a, stage, runErr)
		outcome.Kind = OutcomeFailed
		outcome.Err = runErr
	}
	a.UpdatedAt = e.now()

	if _, err := e.deps.Records.CompareAndSet(ctx, pmid, version, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// The lease expired mid-run and another worker reclaimed the
			// stage. Their result stands; ours is discarded.
			e.log.Warn("discarding stage result after lost lease",
				"pmid", pmid, "stage", stage)
			return Outcome{Kind: OutcomeIdle}, nil
		}
		return Outcome{}, fmt.Errorf("persist %s stage %s: %w", pmid, stage, err)
	}

	e.record(ctx, pmid, stage, outcome, rec)
	return outcome, nil
}

// lease marks the stage in_progress and claims it through a compare-and-set,
// returning the new version on success.
func (e *Engine) lease(ctx context.Context, snap *store.Snapshot, stage article.Stage) (int64, error) {
	a := snap.Article
	rec := a.Stage(stage)
	rec.Status = article.StatusInProgress
	rec.Attempts++
	rec.StartedAt = e.now()
	a.UpdatedAt = e.now()
	return e.deps.Records.CompareAndSet(ctx, a.PMID, snap.Version, a)
}

// complete marks the stage done and applies its side effects on the
// snapshot: skipping OCR when there is no PDF to extract, and rescoring
// when the stage contributed text.
func (e *Engine) complete(a *article.Article, stage article.Stage) {
	rec := a.Stage(stage)
	rec.Status = article.StatusDone
	rec.LastError = nil
	now := e.now()
	rec.CompletedAt = &now

	if stage == article.StageFullText && !rec.PDFBacked {
		skip(a.Stage(article.StageOcr))
	}
}

// fail records a stage failure: transient failures return the stage to
// pending until attempts run out, permanent ones (and exhausted transients)
// mark it failed and block the stages after it.
func (e *Engine) fail(a *article.Article, stage article.Stage, err error) {
	rec := a.Stage(stage)
	kind := fetch.KindTransient
	if fetch.IsPermanent(err) {
		kind = fetch.KindPermanent
	}
	rec.LastError = &article.ErrorInfo{Kind: kind, Message: err.Error(), At: e.now()}

	if kind == fetch.KindPermanent || rec.Attempts >= e.cfg.MaxAttempts {
		rec.Status = article.StatusFailed
		if stage == article.StageFullText {
			// OCR without a fulltext artifact can never run.
			skip(a.Stage(article.StageOcr))
		}
		return
	}
	rec.Status = article.StatusPending
	rec.StartedAt = time.Time{}
}

func skip(rec *article.StageRecord) {
	if rec.Status == article.StatusPending {
		rec.Status = article.StatusSkipped
	}
}

// run executes the fetch side of one stage and applies its artifacts to the
// in-memory snapshot. The caller owns status transitions.
func (e *Engine) run(ctx context.Context, a *article.Article, stage article.Stage) error {
	switch stage {
	case article.StageMetadata:
		return e.runMetadata(ctx, a)
	case article.StageAbstract:
		return e.runAbstract(ctx, a)
	case article.StageFullText:
		return e.runFullText(ctx, a)
	case article.StageOcr:
		return e.runOcr(ctx, a)
	case article.StageRagIndex:
		return e.runRagIndex(ctx, a)
	}
	return fetch.Permanent(string(stage), fmt.Errorf("unknown stage"))
}

func (e *Engine) runMetadata(ctx context.Context, a *article.Article) error {
	md, err := e.deps.Metadata.FetchMetadata(ctx, a.PMID)
	if err != nil {
		return err
	}
	a.Metadata = md
	return nil
}

func (e *Engine) runAbstract(ctx context.Context, a *article.Article) error {
	text, err := e.deps.Abstracts.FetchAbstract(ctx, a.PMID)
	if err != nil {
		return err
	}
	ref, err := e.deps.Blobs.Put(ctx, []byte(text))
	if err != nil {
		return fmt.Errorf("store abstract: %w", err)
	}
	a.Stage(article.StageAbstract).ArtifactRef = ref
	e.rescore(a, article.StageAbstract, text, "")
	return nil
}

func (e *Engine) runFullText(ctx context.Context, a *article.Article) error {
	res, err := e.deps.FullText.FetchFullText(ctx, a.PMID)
	if err != nil {
		return err
	}
	if res == nil {
		return fetch.Permanent("fulltext", fmt.Errorf("fetcher returned no result"))
	}
	rec := a.Stage(article.StageFullText)

	if res.Text != "" {
		ref, err := e.deps.Blobs.Put(ctx, []byte(res.Text))
		if err != nil {
			return fmt.Errorf("store full text: %w", err)
		}
		rec.ArtifactRef = ref
		rec.PDFBacked = false
		abstract, _ := e.stageText(ctx, a, article.StageAbstract)
		e.rescore(a, article.StageFullText, abstract, res.Text)
		return nil
	}

	pdf, err := e.deps.PDFs.FetchPDF(ctx, res.PDFURL)
	if err != nil {
		return err
	}
	ref, err := e.deps.Blobs.Put(ctx, pdf)
	if err != nil {
		return fmt.Errorf("store pdf: %w", err)
	}
	rec.ArtifactRef = ref
	rec.PDFBacked = true
	return nil
}

func (e *Engine) runOcr(ctx context.Context, a *article.Article) error {
	ft := a.Stage(article.StageFullText)
	if !ft.PDFBacked || ft.ArtifactRef == "" {
		return fetch.Permanent("ocr", fmt.Errorf("no pdf artifact to extract"))
	}
	pdf, err := e.deps.Blobs.Get(ctx, ft.ArtifactRef)
	if err != nil {
		return fmt.Errorf("load pdf artifact: %w", err)
	}
	text, err := e.deps.Ocr.ExtractText(ctx, pdf)
	if err != nil {
		return err
	}
	ref, err := e.deps.Blobs.Put(ctx, []byte(text))
	if err != nil {
		return fmt.Errorf("store ocr text: %w", err)
	}
	a.Stage(article.StageOcr).ArtifactRef = ref
	abstract, _ := e.stageText(ctx, a, article.StageAbstract)
	e.rescore(a, article.StageOcr, abstract, text)
	return nil
}

func (e *Engine) runRagIndex(ctx context.Context, a *article.Article) error {
	abstract, err := e.stageText(ctx, a, article.StageAbstract)
	if err != nil {
		return fmt.Errorf("load abstract artifact: %w", err)
	}
	body, err := e.bodyText(ctx, a)
	if err != nil {
		return err
	}

	doc := buildRagDocument(a, abstract, body)
	if len(doc.Chunks) == 0 {
		return fetch.Permanent("rag", fmt.Errorf("no text to index"))
	}
	data, err := doc.marshal()
	if err != nil {
		return fmt.Errorf("encode rag document: %w", err)
	}
	ref, err := e.deps.Blobs.Put(ctx, data)
	if err != nil {
		return fmt.Errorf("store rag document: %w", err)
	}
	a.Stage(article.StageRagIndex).ArtifactRef = ref
	return nil
}

// bodyText returns the best available body text: OCR output when present,
// otherwise extracted full text.
func (e *Engine) bodyText(ctx context.Context, a *article.Article) (string, error) {
	if text, err := e.stageText(ctx, a, article.StageOcr); err != nil || text != "" {
		return text, err
	}
	if a.Stage(article.StageFullText).PDFBacked {
		// The fulltext artifact is raw PDF bytes, not text.
		return "", nil
	}
	return e.stageText(ctx, a, article.StageFullText)
}

// stageText loads the text artifact of a done stage, or "" if the stage has
// none.
func (e *Engine) stageText(ctx context.Context, a *article.Article, s article.Stage) (string, error) {
	rec := a.Stage(s)
	if rec.Status != article.StatusDone || rec.ArtifactRef == "" {
		return "", nil
	}
	data, err := e.deps.Blobs.Get(ctx, rec.ArtifactRef)
	if err != nil {
		return "", fmt.Errorf("artifact %s: %w", rec.ArtifactRef, err)
	}
	return string(data), nil
}

// rescore recomputes the relevance score from the richest text available
// after a text-bearing stage completes. The newest stage's score replaces
// any earlier one.
func (e *Engine) rescore(a *article.Article, stage article.Stage, abstract, body string) {
	in := relevance.Input{Abstract: abstract, Body: body}
	if a.Metadata != nil {
		in.Title = a.Metadata.Title
		in.Keywords = append(append([]string{}, a.Metadata.Keywords...), a.Metadata.MeshTerms...)
	}
	score := relevance.Score(in, a.SearchCategories)
	a.RelevanceScore = &score
	a.ScoreStage = stage
}

func (e *Engine) record(ctx context.Context, pmid string, stage article.Stage, outcome Outcome, rec *article.StageRecord) {
	if e.deps.Events == nil {
		return
	}
	event := "stage_done"
	detail := ""
	switch {
	case outcome.Kind == OutcomeFailed && rec.Status == article.StatusFailed:
		event = "stage_failed"
		detail = outcome.Err.Error()
	case outcome.Kind == OutcomeFailed:
		event = "stage_retry"
		detail = outcome.Err.Error()
	}
	if err := e.deps.Events.Record(ctx, pmid, stage, event, detail); err != nil {
		e.log.Warn("event log write failed", "pmid", pmid, "event", event, "error", err)
	}
}

// Process ticks one article until it stops advancing, returning the final
// outcome.
func (e *Engine) Process(ctx context.Context, pmid string) (Outcome, error) {
	return e.process(ctx, pmid, nil)
}

func (e *Engine) process(ctx context.Context, pmid string, advanced map[article.Stage]int) (Outcome, error) {
	for {
		outcome, err := e.Tick(ctx, pmid)
		if err != nil {
			return outcome, err
		}
		if outcome.Kind != OutcomeAdvanced {
			return outcome, nil
		}
		if advanced != nil {
			advanced[outcome.Stage]++
		}
		if snap, err := e.deps.Records.Load(ctx, pmid); err == nil && snap.Article.Complete() {
			return outcome, nil
		}
	}
}

// SweepStats summarizes one pass over the pending articles. ByStage counts
// every stage completion, including intermediate ones, so callers can batch
// downstream work (feed publishing) per stage.
type SweepStats struct {
	Articles int
	Advanced int
	Failed   int
	Corrupt  int
	ByStage  map[article.Stage]int
}

// Sweep processes every article with open stages once.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	pmids, err := e.deps.Records.ListPending(ctx)
	if err != nil {
		return SweepStats{}, fmt.Errorf("list pending: %w", err)
	}

	stats := SweepStats{Articles: len(pmids), ByStage: make(map[article.Stage]int)}
	for _, pmid := range pmids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		outcome, err := e.process(ctx, pmid, stats.ByStage)
		if err != nil {
			e.log.Error("article processing failed", "pmid", pmid, "error", err)
			stats.Failed++
			continue
		}
		switch outcome.Kind {
		case OutcomeAdvanced:
			stats.Advanced++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeCorrupt:
			stats.Corrupt++
		}
	}
	return stats, nil
}

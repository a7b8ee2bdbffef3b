package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/f8ai/pubpipe/internal/blob"
	"github.com/f8ai/pubpipe/internal/config"
	"github.com/f8ai/pubpipe/internal/db"
	"github.com/f8ai/pubpipe/internal/engine"
	"github.com/f8ai/pubpipe/internal/fetch"
	"github.com/f8ai/pubpipe/internal/store"
)

// app wires the configured stores, fetchers, and engine together for one
// command invocation.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	records store.RecordStore
	blobs   blob.Store
	events  *db.DB
	eng     *engine.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	p := &cfg.Pipeline
	log := newLogger()

	var records store.RecordStore
	switch p.Store {
	case "postgres":
		records, err = store.OpenPostgres(ctx, p.PostgresDSN())
	default:
		records, err = store.NewFileStore(p.DataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	blobs, err := blob.NewFileStore(p.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	events, err := openEventDB(p)
	if err != nil {
		return nil, err
	}

	entrez := fetch.NewEntrezClient(fetch.EntrezOpts{
		BaseURL:   p.Entrez.BaseURL,
		Email:     p.Entrez.Email,
		APIKey:    p.EntrezAPIKey(),
		StartYear: p.Entrez.StartYear,
		EndYear:   p.Entrez.EndYear,
	})
	pmc := fetch.NewPMCClient(p.PMCBaseURL, nil)
	ocr := fetch.NewOcrClient(p.Ocr.Endpoint, p.OcrAPIKey(), nil)

	eng := engine.New(engine.Deps{
		Records:   records,
		Blobs:     blobs,
		Search:    entrez,
		Metadata:  entrez,
		Abstracts: entrez,
		FullText:  pmc,
		PDFs:      pmc,
		Ocr:       ocr,
		Events:    events,
		Log:       log.With("component", "engine"),
	}, engine.Config{
		MaxAttempts:  p.MaxAttempts,
		LeaseTimeout: p.LeaseTimeout.Std(),
		StageTimeout: p.StageTimeout.Std(),
	})

	return &app{
		cfg:     cfg,
		log:     log,
		records: records,
		blobs:   blobs,
		events:  events,
		eng:     eng,
	}, nil
}

func (a *app) Close() {
	if a.events != nil {
		a.events.Close()
	}
	if pg, ok := a.records.(*store.PostgresStore); ok {
		pg.Close()
	}
}

func openEventDB(p *config.Pipeline) (*db.DB, error) {
	path := p.EventDB
	if path == "" {
		var err error
		path, err = db.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("event db path: %w", err)
		}
	}
	events, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	if err := events.Migrate(); err != nil {
		events.Close()
		return nil, fmt.Errorf("migrate event db: %w", err)
	}
	return events, nil
}

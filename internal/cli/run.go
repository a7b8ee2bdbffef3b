package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/engine"
	"github.com/f8ai/pubpipe/internal/feeds"
	"github.com/f8ai/pubpipe/internal/gitsync"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline daemon",
	Long: `Run the full pipeline in the foreground: discover new articles on a
schedule, advance pending articles through their enrichment stages with a
bounded worker pool, and regenerate the published feeds. Stops cleanly on
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		workers, _ := cmd.Flags().GetInt("workers")
		if workers < 1 {
			workers = 1
		}
		return newDaemon(a, workers).run(ctx)
	},
}

func init() {
	runCmd.Flags().Int("workers", 4, "Concurrent stage workers")
}

type daemon struct {
	app     *app
	workers int
	gen     *feeds.Generator
	sync    *gitsync.Syncer

	// stageDone holds running stage-completion totals since daemon start,
	// feeding the per-stage publish cadence. Touched only from the run loop.
	stageDone map[article.Stage]int
}

func newDaemon(a *app, workers int) *daemon {
	p := &a.cfg.Pipeline
	d := &daemon{
		app:     a,
		workers: workers,
		gen: feeds.NewGenerator(a.records, a.blobs,
			filepath.Join(p.DocsDir, "feeds"), p.Feeds.BaseURL,
			a.log.With("component", "feeds")),
		stageDone: make(map[article.Stage]int),
	}
	if p.Git.Enabled {
		d.sync = gitsync.NewSyncer(&gitsync.ExecGit{}, p.Git.RepoDir, p.Git.Branch,
			a.log.With("component", "gitsync"))
	}
	return d
}

func (d *daemon) run(ctx context.Context) error {
	p := &d.app.cfg.Pipeline
	log := d.app.log

	log.Info("daemon starting",
		"workers", d.workers,
		"discovery_interval", p.DiscoveryInterval.Std(),
		"tick_interval", p.TickInterval.Std(),
		"status_interval", p.StatusInterval.Std())

	// Catch up before the tickers start so a restart does not wait a full
	// interval to resume work.
	d.discover(ctx)
	d.sweep(ctx)
	d.publish(ctx)

	discovery := time.NewTicker(p.DiscoveryInterval.Std())
	defer discovery.Stop()
	tick := time.NewTicker(p.TickInterval.Std())
	defer tick.Stop()
	status := time.NewTicker(p.StatusInterval.Std())
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("daemon stopping")
			return nil
		case <-discovery.C:
			d.discover(ctx)
		case <-tick.C:
			d.sweep(ctx)
		case <-status.C:
			d.publish(ctx)
		}
	}
}

// discover runs every configured search term once.
func (d *daemon) discover(ctx context.Context) {
	p := &d.app.cfg.Pipeline
	for _, cat := range p.Categories {
		for _, term := range cat.Terms {
			if ctx.Err() != nil {
				return
			}
			res, err := d.app.eng.Discover(ctx, cat.Name, term, p.MaxResults)
			if err != nil {
				d.app.log.Error("discovery failed", "category", cat.Name, "term", term, "error", err)
				continue
			}
			if res.Created > 0 || res.Updated > 0 {
				d.app.log.Info("discovery",
					"category", cat.Name, "term", term,
					"created", res.Created, "updated", res.Updated)
			}
		}
	}
}

// sweep drains the pending list with a bounded worker pool. Each worker
// ticks whole articles; the store's compare-and-set keeps concurrent
// workers from double-running a stage. Stage completions are tallied and
// fed into the git publish cadence afterwards.
func (d *daemon) sweep(ctx context.Context) {
	pmids, err := d.app.records.ListPending(ctx)
	if err != nil {
		d.app.log.Error("list pending", "error", err)
		return
	}
	if len(pmids) == 0 {
		return
	}

	var mu sync.Mutex
	advanced := make(map[article.Stage]int)

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pmid := range work {
				for {
					out, err := d.app.eng.Tick(ctx, pmid)
					if err != nil {
						d.app.log.Error("tick", "pmid", pmid, "error", err)
						break
					}
					if out.Kind != engine.OutcomeAdvanced {
						break
					}
					mu.Lock()
					advanced[out.Stage]++
					mu.Unlock()
				}
			}
		}()
	}
	for _, pmid := range pmids {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return
		case work <- pmid:
		}
	}
	close(work)
	wg.Wait()

	d.recordStageBatches(advanced)
}

// recordStageBatches feeds stage completions into the publish cadence one
// completion at a time, so every commit and push threshold crossing is
// observed even when a sweep finishes a large batch at once.
func (d *daemon) recordStageBatches(advanced map[article.Stage]int) {
	if d.sync == nil {
		return
	}
	for _, stage := range article.Order {
		for i := 0; i < advanced[stage]; i++ {
			d.stageDone[stage]++
			if _, err := d.sync.SyncIfDue(string(stage), d.stageDone[stage]); err != nil {
				d.app.log.Error("git sync", "stage", stage, "error", err)
			}
		}
	}
}

// publish regenerates the feeds and, when git publishing is configured,
// lets the syncer decide whether this update is worth a commit or push.
func (d *daemon) publish(ctx context.Context) {
	if _, err := d.gen.GenerateAll(ctx); err != nil {
		d.app.log.Error("generate feeds", "error", err)
		return
	}
	if d.sync == nil {
		return
	}
	if _, err := d.sync.SyncIfDue(gitsync.TriggerStatusUpdate, 1); err != nil {
		d.app.log.Error("git sync", "error", err)
	}
}

package cli

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/f8ai/pubpipe/internal/article"
	"github.com/f8ai/pubpipe/internal/gitsync"
)

// recordingGit captures git invocations made through the publish cadence.
type recordingGit struct {
	mu    sync.Mutex
	calls [][]string
}

func (g *recordingGit) Run(dir string, args ...string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, args)
	g.mu.Unlock()
	return "", nil
}

func (g *recordingGit) commitMessages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var msgs []string
	for _, call := range g.calls {
		if len(call) >= 3 && call[0] == "commit" {
			msgs = append(msgs, call[2])
		}
	}
	return msgs
}

func newTestDaemon(git gitsync.GitRunner) *daemon {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &daemon{
		app:       &app{log: log},
		sync:      gitsync.NewSyncer(git, "/tmp/docs-repo", "main", log),
		stageDone: make(map[article.Stage]int),
	}
}

func hasPrefix(msgs []string, prefix string) bool {
	for _, m := range msgs {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func TestSweepBatchesDriveGitCadence(t *testing.T) {
	git := &recordingGit{}
	d := newTestDaemon(git)

	d.recordStageBatches(map[article.Stage]int{article.StageMetadata: 10})

	msgs := git.commitMessages()
	if !hasPrefix(msgs, "Add 10 article metadata entries") {
		t.Fatalf("no metadata batch commit at threshold, messages = %q", msgs)
	}
}

func TestStageTotalsCarryAcrossSweeps(t *testing.T) {
	git := &recordingGit{}
	d := newTestDaemon(git)

	// Neither sweep alone reaches the abstract commit threshold of 5.
	d.recordStageBatches(map[article.Stage]int{article.StageAbstract: 3})
	d.recordStageBatches(map[article.Stage]int{article.StageAbstract: 2})

	msgs := git.commitMessages()
	if !hasPrefix(msgs, "Process 5 article abstracts") {
		t.Fatalf("no abstract commit after totals reached threshold, messages = %q", msgs)
	}
}

func TestRecordStageBatchesWithoutGitIsANoop(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := &daemon{app: &app{log: log}, stageDone: make(map[article.Stage]int)}
	d.recordStageBatches(map[article.Stage]int{article.StageMetadata: 100})
	if len(d.stageDone) != 0 {
		t.Errorf("stage totals tracked with publishing disabled: %v", d.stageDone)
	}
}

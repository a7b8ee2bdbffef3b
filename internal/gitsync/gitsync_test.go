package gitsync

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
)

// fakeGit records git invocations and returns canned results.
type fakeGit struct {
	calls   [][]string
	clean   bool // nothing to commit
	pushErr error
}

func (g *fakeGit) Run(dir string, args ...string) (string, error) {
	g.calls = append(g.calls, args)
	switch args[0] {
	case "commit":
		if g.clean {
			return "nothing to commit, working tree clean", errors.New("exit status 1")
		}
		return "[main abc123] " + args[2], nil
	case "push":
		if g.pushErr != nil {
			return "", g.pushErr
		}
	}
	return "", nil
}

func newTestSyncer(git GitRunner) *Syncer {
	s := NewSyncer(git, "/tmp/docs-repo", "main", nil)
	// A recent push keeps the hourly rule out of threshold tests.
	s.lastPush = time.Now()
	return s
}

func TestSyncIfDueBelowThreshold(t *testing.T) {
	git := &fakeGit{}
	s := newTestSyncer(git)

	committed, err := s.SyncIfDue(string(article.StageMetadata), 7)
	if err != nil {
		t.Fatalf("SyncIfDue: %v", err)
	}
	if committed || len(git.calls) != 0 {
		t.Errorf("committed = %v calls = %v, want no git activity below threshold", committed, git.calls)
	}
}

func TestSyncIfDueCommitThresholds(t *testing.T) {
	tests := []struct {
		trigger string
		count   int
		commit  bool
		push    bool
	}{
		{string(article.StageMetadata), 10, true, false},
		{string(article.StageMetadata), 50, true, true},
		{string(article.StageAbstract), 25, true, true},
		{string(article.StageFullText), 3, true, false},
		{string(article.StageOcr), 10, true, true},
		{TriggerStatusUpdate, 1, true, true},
		{TriggerBatch, 42, true, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.trigger, tt.count), func(t *testing.T) {
			git := &fakeGit{}
			s := newTestSyncer(git)

			committed, err := s.SyncIfDue(tt.trigger, tt.count)
			if err != nil {
				t.Fatalf("SyncIfDue: %v", err)
			}
			if committed != tt.commit {
				t.Errorf("committed = %v, want %v", committed, tt.commit)
			}
			pushed := false
			for _, c := range git.calls {
				if c[0] == "push" {
					pushed = true
					if c[2] != "main" {
						t.Errorf("pushed to %q, want main", c[2])
					}
				}
			}
			if pushed != tt.push {
				t.Errorf("pushed = %v, want %v", pushed, tt.push)
			}
		})
	}
}

func TestSyncIfDueHourlyPush(t *testing.T) {
	git := &fakeGit{}
	s := NewSyncer(git, "/tmp/docs-repo", "main", nil)
	// No push has ever happened, so the hourly rule fires immediately.
	committed, err := s.SyncIfDue(string(article.StageMetadata), 1)
	if err != nil {
		t.Fatalf("SyncIfDue: %v", err)
	}
	if !committed {
		t.Error("expected commit for overdue hourly push")
	}
	pushed := false
	for _, c := range git.calls {
		if c[0] == "push" {
			pushed = true
		}
	}
	if !pushed {
		t.Error("expected push for overdue hourly push")
	}
	if s.lastPush.IsZero() {
		t.Error("lastPush not updated")
	}
}

func TestCommitNothingToCommit(t *testing.T) {
	git := &fakeGit{clean: true}
	s := newTestSyncer(git)

	committed, err := s.SyncIfDue(TriggerStatusUpdate, 1)
	if err != nil {
		t.Fatalf("SyncIfDue: %v", err)
	}
	if committed {
		t.Error("reported a commit on a clean tree")
	}
	for _, c := range git.calls {
		if c[0] == "push" {
			t.Error("pushed without a commit")
		}
	}
}

func TestForceSync(t *testing.T) {
	git := &fakeGit{}
	s := newTestSyncer(git)

	if err := s.ForceSync("Hourly backup - 12 articles processed"); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}
	want := []string{"add", "commit", "push"}
	if len(git.calls) != len(want) {
		t.Fatalf("calls = %v", git.calls)
	}
	for i, c := range git.calls {
		if c[0] != want[i] {
			t.Errorf("call %d = %s, want %s", i, c[0], want[i])
		}
	}
}

func TestForceSyncPushError(t *testing.T) {
	git := &fakeGit{pushErr: errors.New("remote unreachable")}
	s := newTestSyncer(git)

	if err := s.ForceSync("backup"); err == nil {
		t.Fatal("expected push error")
	}
}

func TestCommitMessages(t *testing.T) {
	s := newTestSyncer(&fakeGit{})
	if msg := s.message(string(article.StageAbstract), 5); !strings.HasPrefix(msg, "Process 5 article abstracts") {
		t.Errorf("message = %q", msg)
	}
	if msg := s.message(TriggerStatusUpdate, 0); !strings.HasPrefix(msg, "Update status page and metrics") {
		t.Errorf("message = %q", msg)
	}
}

// Package gitsync publishes the generated docs directory (feeds, status
// pages) by committing and pushing it on a cadence. Commit and push
// thresholds are per stage so that cheap stages batch more work per commit
// than expensive ones.
package gitsync

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/f8ai/pubpipe/internal/article"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.Command.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Trigger names the occasion for a sync besides a pipeline stage.
const (
	TriggerStatusUpdate = "status_update"
	TriggerBatch        = "batch_complete"
)

// Syncer commits and pushes the repository that holds the published docs.
type Syncer struct {
	git     GitRunner
	repoDir string
	branch  string
	log     *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	lastPush time.Time
}

// NewSyncer creates a Syncer for the repo at repoDir pushing to branch.
func NewSyncer(git GitRunner, repoDir, branch string, log *slog.Logger) *Syncer {
	if branch == "" {
		branch = "main"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		git:     git,
		repoDir: repoDir,
		branch:  branch,
		log:     log,
		now:     time.Now,
	}
}

// commitEvery returns the batch size at which a trigger warrants a commit;
// 1 means always, 0 means never.
func commitEvery(trigger string) int {
	switch trigger {
	case string(article.StageMetadata):
		return 10
	case string(article.StageAbstract):
		return 5
	case string(article.StageFullText):
		return 3
	case string(article.StageOcr):
		return 2
	case TriggerBatch, TriggerStatusUpdate:
		return 1
	}
	return 0
}

func pushEvery(trigger string) int {
	switch trigger {
	case string(article.StageMetadata):
		return 50
	case string(article.StageAbstract):
		return 25
	case string(article.StageFullText):
		return 10
	case string(article.StageOcr):
		return 5
	case TriggerBatch, TriggerStatusUpdate:
		return 1
	}
	return 0
}

// SyncIfDue commits and pushes when the trigger's thresholds are met.
// count is the running total of completions for the trigger. An overdue
// hourly push fires regardless of thresholds. Returns whether a commit was
// made.
func (s *Syncer) SyncIfDue(trigger string, count int) (bool, error) {
	every := commitEvery(trigger)
	shouldCommit := every > 0 && count%every == 0
	if !shouldCommit && !s.hourlyPushDue() {
		return false, nil
	}

	committed, err := s.commit(s.message(trigger, count))
	if err != nil {
		return false, err
	}

	pushDue := s.hourlyPushDue()
	if pe := pushEvery(trigger); pe > 0 && count%pe == 0 {
		pushDue = true
	}
	if committed && pushDue {
		if err := s.push(); err != nil {
			return true, err
		}
	}
	return committed, nil
}

// ForceSync commits and pushes unconditionally with a custom message.
func (s *Syncer) ForceSync(message string) error {
	committed, err := s.commit(message)
	if err != nil {
		return err
	}
	if !committed {
		return nil
	}
	return s.push()
}

// commit stages everything and commits, reporting whether there was
// anything to commit.
func (s *Syncer) commit(message string) (bool, error) {
	if _, err := s.git.Run(s.repoDir, "add", "-A"); err != nil {
		return false, fmt.Errorf("stage changes: %w", err)
	}
	out, err := s.git.Run(s.repoDir, "commit", "-m", message)
	if err != nil {
		if strings.Contains(out, "nothing to commit") {
			return false, nil
		}
		return false, fmt.Errorf("commit: %w", err)
	}
	s.log.Info("committed docs", "message", message)
	return true, nil
}

func (s *Syncer) push() error {
	if _, err := s.git.Run(s.repoDir, "push", "origin", s.branch); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	s.mu.Lock()
	s.lastPush = s.now()
	s.mu.Unlock()
	s.log.Info("pushed docs", "branch", s.branch)
	return nil
}

func (s *Syncer) hourlyPushDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPush.IsZero() || s.now().Sub(s.lastPush) > time.Hour
}

func (s *Syncer) message(trigger string, count int) string {
	ts := s.now().Format("2006-01-02 15:04:05")
	switch trigger {
	case string(article.StageMetadata):
		return fmt.Sprintf("Add %d article metadata entries - %s", count, ts)
	case string(article.StageAbstract):
		return fmt.Sprintf("Process %d article abstracts - %s", count, ts)
	case string(article.StageFullText):
		return fmt.Sprintf("Download %d full text articles - %s", count, ts)
	case string(article.StageOcr):
		return fmt.Sprintf("Complete OCR processing for %d articles - %s", count, ts)
	case TriggerBatch:
		return fmt.Sprintf("Complete batch processing - %d total articles - %s", count, ts)
	case TriggerStatusUpdate:
		return fmt.Sprintf("Update status page and metrics - %s", ts)
	}
	return fmt.Sprintf("Update %s - %d items - %s", trigger, count, ts)
}

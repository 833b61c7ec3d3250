// Package janitor reclaims terminal jobs and their on-disk artifacts after a
// retention window. Non-terminal jobs are never touched: a stuck job should
// stay visible, not be silently hidden.
package janitor

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pagepress/export-api/internal/job"
)

type Janitor struct {
	repo      job.Repository
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

type Option func(*Janitor)

func WithInterval(d time.Duration) Option {
	return func(j *Janitor) { j.interval = d }
}

func WithRetention(d time.Duration) Option {
	return func(j *Janitor) { j.retention = d }
}

// WithClock replaces the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

func New(repo job.Repository, opts ...Option) *Janitor {
	j := &Janitor{
		repo:      repo,
		interval:  time.Hour,
		retention: time.Hour,
		now:       time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Run sweeps on the configured interval until ctx is cancelled.
func (jan *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(jan.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jan.Sweep(ctx)
		}
	}
}

// Sweep deletes terminal jobs older than the retention window and best-effort
// removes their artifact directories. Individual removal failures are logged
// and never stop the sweep.
func (jan *Janitor) Sweep(ctx context.Context) {
	cutoff := jan.now().UTC().Add(-jan.retention)

	swept, err := jan.repo.SweepTerminal(ctx, cutoff)
	if err != nil {
		slog.Error("janitor: sweep failed", "error", err)
		return
	}
	if len(swept) == 0 {
		return
	}

	removed := 0
	for _, j := range swept {
		if j.ArtifactDir == "" {
			continue
		}
		if err := os.RemoveAll(j.ArtifactDir); err != nil {
			slog.Warn("janitor: remove artifact dir", "job", j.ID, "dir", j.ArtifactDir, "error", err)
			continue
		}
		removed++
	}

	slog.Info("janitor: swept terminal jobs", "jobs", len(swept), "dirsRemoved", removed)
}

package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	domain "github.com/pagepress/export-api/internal/job"
	"github.com/pagepress/export-api/internal/platform/sqlite"
	repo "github.com/pagepress/export-api/internal/repository/job"
	"github.com/pagepress/export-api/internal/spec"
)

func setup(t *testing.T) *repo.Repository {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repo.NewRepository(db.DB)
}

func seedJob(t *testing.T, r *repo.Repository, status domain.Status, dir string) *domain.Job {
	t.Helper()
	j := &domain.Job{
		ID:          uuid.NewString(),
		Status:      status,
		ArtifactDir: dir,
		Spec: spec.Document{
			Pages: []spec.Page{{Elements: []spec.Element{{Type: spec.ElementText}}}},
		},
	}
	if err := r.Create(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	return j
}

func TestSweep_RemovesOldTerminalJobs(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "export-old")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	done := seedJob(t, r, domain.StatusComplete, dir)
	stuck := seedJob(t, r, domain.StatusProcessing, "")

	// Clock two hours in the future: both rows are now "old".
	jan := New(r,
		WithRetention(time.Hour),
		WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) }),
	)
	jan.Sweep(ctx)

	if _, err := r.Get(ctx, done.ID); err == nil {
		t.Error("expected old complete job to be swept")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("expected artifact dir to be removed")
	}
	if _, err := r.Get(ctx, stuck.ID); err != nil {
		t.Errorf("processing job of the same age must survive: %v", err)
	}
}

func TestSweep_KeepsFreshTerminalJobs(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	fresh := seedJob(t, r, domain.StatusComplete, "")

	jan := New(r, WithRetention(time.Hour))
	jan.Sweep(ctx)

	if _, err := r.Get(ctx, fresh.ID); err != nil {
		t.Errorf("fresh terminal job must survive the sweep: %v", err)
	}
}

func TestSweep_ContinuesPastRemovalErrors(t *testing.T) {
	r := setup(t)
	ctx := context.Background()

	// First job points at a directory that cannot exist; second is sweepable.
	bad := seedJob(t, r, domain.StatusError, string([]byte{0}))
	okDir := filepath.Join(t.TempDir(), "export-ok")
	if err := os.MkdirAll(okDir, 0o755); err != nil {
		t.Fatal(err)
	}
	good := seedJob(t, r, domain.StatusComplete, okDir)

	jan := New(r,
		WithRetention(time.Hour),
		WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) }),
	)
	jan.Sweep(ctx)

	if _, err := r.Get(ctx, bad.ID); err == nil {
		t.Error("job with failing dir removal must still be deleted from the store")
	}
	if _, err := r.Get(ctx, good.ID); err == nil {
		// Deleted as expected.
	} else {
		t.Errorf("second job must be swept despite earlier removal error: %v", err)
	}
	if _, err := os.Stat(okDir); !os.IsNotExist(err) {
		t.Error("expected second artifact dir to be removed")
	}
}

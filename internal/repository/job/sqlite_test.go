package job

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pagepress/export-api/internal/apperror"
	domain "github.com/pagepress/export-api/internal/job"
	"github.com/pagepress/export-api/internal/platform/sqlite"
	"github.com/pagepress/export-api/internal/spec"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testJob() *domain.Job {
	return &domain.Job{
		ID:         uuid.NewString(),
		Status:     domain.StatusQueued,
		TotalPages: 3,
		Compress:   true,
		Spec: spec.Document{
			Pages: []spec.Page{
				{Elements: []spec.Element{{Type: spec.ElementText, Text: "a"}}},
				{Elements: []spec.Element{{Type: spec.ElementText, Text: "b"}}},
				{Elements: []spec.Element{{Type: spec.ElementText, Text: "c"}}},
			},
		},
	}
}

func TestCreate_And_Get(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	j := testJob()
	if err := repo.Create(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusQueued {
		t.Errorf("expected queued, got %s", got.Status)
	}
	if got.TotalPages != 3 {
		t.Errorf("expected 3 pages, got %d", got.TotalPages)
	}
	if len(got.Spec.Pages) != 3 {
		t.Errorf("expected spec round-trip with 3 pages, got %d", len(got.Spec.Pages))
	}
	if !got.Compress {
		t.Error("expected compress flag preserved")
	}
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)

	_, err := repo.Get(context.Background(), uuid.NewString())
	ae, ok := err.(*apperror.AppError)
	if !ok || ae.Code() != apperror.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdate_ProgressAndCompression(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	j := testJob()
	if err := repo.Create(ctx, j); err != nil {
		t.Fatal(err)
	}

	j.Status = domain.StatusComplete
	j.CurrentPage = 3
	j.FinalArtifactPath = "/tmp/out.pdf"
	j.Compression = &domain.CompressionInfo{Success: true, OriginalSize: 100, CompressedSize: 40, Ratio: 0.6}
	if err := repo.Update(ctx, j); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusComplete {
		t.Errorf("expected complete, got %s", got.Status)
	}
	if got.CurrentPage != 3 {
		t.Errorf("expected page 3, got %d", got.CurrentPage)
	}
	if got.Compression == nil || !got.Compression.Success || got.Compression.Ratio != 0.6 {
		t.Errorf("compression info not preserved: %+v", got.Compression)
	}
}

func TestUpdate_Missing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)

	j := testJob()
	err := repo.Update(context.Background(), j)
	ae, ok := err.(*apperror.AppError)
	if !ok || ae.Code() != apperror.NotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestList_FilterAndLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	for range 3 {
		if err := repo.Create(ctx, testJob()); err != nil {
			t.Fatal(err)
		}
	}
	done := testJob()
	done.Status = domain.StatusComplete
	if err := repo.Create(ctx, done); err != nil {
		t.Fatal(err)
	}

	jobs, err := repo.List(ctx, domain.StatusQueued, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 queued jobs, got %d", len(jobs))
	}

	jobs, err = repo.List(ctx, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(jobs))
	}
}

func TestSweepTerminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	old := testJob()
	old.Status = domain.StatusComplete
	old.ArtifactDir = "/tmp/old-job"
	if err := repo.Create(ctx, old); err != nil {
		t.Fatal(err)
	}

	stuck := testJob()
	stuck.Status = domain.StatusProcessing
	if err := repo.Create(ctx, stuck); err != nil {
		t.Fatal(err)
	}

	fresh := testJob()
	fresh.Status = domain.StatusError
	fresh.Error = "boom"
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	// Cutoff after the old job's update but before the fresh one would age out.
	swept, err := repo.SweepTerminal(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(swept) != 2 {
		t.Fatalf("expected 2 swept jobs, got %d", len(swept))
	}

	if _, err := repo.Get(ctx, old.ID); err == nil {
		t.Error("expected old terminal job to be deleted")
	}
	if _, err := repo.Get(ctx, stuck.ID); err != nil {
		t.Errorf("processing job must never be swept: %v", err)
	}

	// A cutoff in the past sweeps nothing.
	swept, err = repo.SweepTerminal(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 0 {
		t.Fatalf("expected no sweep with old cutoff, got %d", len(swept))
	}
}

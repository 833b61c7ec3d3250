package export

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pagepress/export-api/internal/apperror"
	"github.com/pagepress/export-api/internal/job"
	"github.com/pagepress/export-api/internal/queue"
	"github.com/pagepress/export-api/internal/spec"
)

type memRepo struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

func newMemRepo() *memRepo { return &memRepo{jobs: make(map[string]*job.Job)} }

func (m *memRepo) Create(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memRepo) Update(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	cp := *j
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, _ job.Status, _ int) ([]job.Job, error) { return nil, nil }

func (m *memRepo) SweepTerminal(_ context.Context, _ time.Time) ([]job.Job, error) {
	return nil, nil
}

type fakeGate struct {
	exceeded bool
	rss      uint64
}

func (g *fakeGate) HardExceeded() bool { return g.exceeded }
func (g *fakeGate) CurrentRSS() uint64 { return g.rss }

type fakeQueue struct {
	mu        sync.Mutex
	depth     int
	submitted []string
}

func (q *fakeQueue) Submit(id string, _ queue.Task) {
	q.mu.Lock()
	q.submitted = append(q.submitted, id)
	q.mu.Unlock()
}

func (q *fakeQueue) Depth() int { return q.depth }

type noopRunner struct{}

func (noopRunner) Run(context.Context, string) {}

func validDoc() spec.Document {
	return spec.Document{
		Pages: []spec.Page{
			{Elements: []spec.Element{{Type: spec.ElementText, Text: "hello"}}},
		},
	}
}

func TestSubmit_Accepted(t *testing.T) {
	repo := newMemRepo()
	q := &fakeQueue{depth: 1}
	svc := NewService(repo, q, &fakeGate{}, noopRunner{}, 3)

	j, err := svc.Submit(context.Background(), validDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Status != job.StatusQueued {
		t.Errorf("expected queued, got %s", j.Status)
	}
	if j.QueuePosition != 2 {
		t.Errorf("expected queuePosition 2, got %d", j.QueuePosition)
	}
	if j.TotalPages != 1 {
		t.Errorf("expected totalPages 1, got %d", j.TotalPages)
	}
	if !j.Compress {
		t.Error("compression should default to on")
	}

	if _, err := repo.Get(context.Background(), j.ID); err != nil {
		t.Errorf("job record must be persisted: %v", err)
	}
	if len(q.submitted) != 1 || q.submitted[0] != j.ID {
		t.Errorf("pipeline run must be enqueued, got %v", q.submitted)
	}
}

func TestSubmit_RejectsOnMemory_RegardlessOfQueue(t *testing.T) {
	svc := NewService(newMemRepo(), &fakeQueue{depth: 0}, &fakeGate{exceeded: true, rss: 900 << 20}, noopRunner{}, 3)

	_, err := svc.Submit(context.Background(), validDoc())
	ae, ok := err.(*apperror.AppError)
	if !ok || ae.Code() != apperror.Overloaded {
		t.Fatalf("expected Overloaded, got %v", err)
	}
}

func TestSubmit_RejectsOnQueueDepth_RegardlessOfMemory(t *testing.T) {
	q := &fakeQueue{depth: 3}
	svc := NewService(newMemRepo(), q, &fakeGate{}, noopRunner{}, 3)

	_, err := svc.Submit(context.Background(), validDoc())
	ae, ok := err.(*apperror.AppError)
	if !ok || ae.Code() != apperror.QueueFull {
		t.Fatalf("expected QueueFull, got %v", err)
	}
	if len(q.submitted) != 0 {
		t.Error("rejected submission must not enqueue work")
	}
}

func TestSubmit_MemoryCheckedBeforeQueue(t *testing.T) {
	// Both gates trip; the memory rejection wins because it is checked first.
	svc := NewService(newMemRepo(), &fakeQueue{depth: 10}, &fakeGate{exceeded: true}, noopRunner{}, 3)

	_, err := svc.Submit(context.Background(), validDoc())
	ae, ok := err.(*apperror.AppError)
	if !ok || ae.Code() != apperror.Overloaded {
		t.Fatalf("expected Overloaded to win, got %v", err)
	}
}

func TestSubmit_RejectsInvalidSpec(t *testing.T) {
	q := &fakeQueue{}
	svc := NewService(newMemRepo(), q, &fakeGate{}, noopRunner{}, 3)

	_, err := svc.Submit(context.Background(), spec.Document{})
	ae, ok := err.(*apperror.AppError)
	if !ok || ae.Code() != apperror.BadRequest {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if len(q.submitted) != 0 {
		t.Error("invalid spec must not enqueue work")
	}
}

func TestArtifact(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, &fakeQueue{}, &fakeGate{}, noopRunner{}, 3)
	ctx := context.Background()

	// Unknown id.
	_, err := svc.Artifact(ctx, uuid.NewString())
	if ae, ok := err.(*apperror.AppError); !ok || ae.Code() != apperror.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	// Not ready.
	j := &job.Job{ID: uuid.NewString(), Status: job.StatusProcessing}
	_ = repo.Create(ctx, j)
	_, err = svc.Artifact(ctx, j.ID)
	if ae, ok := err.(*apperror.AppError); !ok || ae.Code() != apperror.Conflict {
		t.Fatalf("expected Conflict, got %v", err)
	}

	// Ready with a real file.
	path := filepath.Join(t.TempDir(), "out.pdf")
	if err := os.WriteFile(path, []byte("pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	j.Status = job.StatusComplete
	j.FinalArtifactPath = path
	_ = repo.Update(ctx, j)

	got, err := svc.Artifact(ctx, j.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != path {
		t.Errorf("expected %q, got %q", path, got)
	}

	// Artifact reclaimed.
	_ = os.Remove(path)
	_, err = svc.Artifact(ctx, j.ID)
	if ae, ok := err.(*apperror.AppError); !ok || ae.Code() != apperror.NotFound {
		t.Fatalf("expected NotFound after reclaim, got %v", err)
	}
}

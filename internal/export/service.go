// Package export owns job admission: it decides synchronously whether a new
// export may be accepted, creates the job record, and hands the pipeline run
// to the execution queue. Heavy work never runs on the submission path.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/pagepress/export-api/internal/apperror"
	"github.com/pagepress/export-api/internal/job"
	"github.com/pagepress/export-api/internal/queue"
	"github.com/pagepress/export-api/internal/spec"
)

// MemoryGate is the admission view of the resource monitor.
type MemoryGate interface {
	HardExceeded() bool
	CurrentRSS() uint64
}

// TaskQueue is the admission view of the execution queue.
type TaskQueue interface {
	Submit(id string, task queue.Task)
	Depth() int
}

// Runner drives one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string)
}

type Service struct {
	repo          job.Repository
	queue         TaskQueue
	memory        MemoryGate
	runner        Runner
	maxQueueDepth int
}

func NewService(repo job.Repository, q TaskQueue, memory MemoryGate, runner Runner, maxQueueDepth int) *Service {
	if maxQueueDepth <= 0 {
		maxQueueDepth = 3
	}
	return &Service{
		repo:          repo,
		queue:         q,
		memory:        memory,
		runner:        runner,
		maxQueueDepth: maxQueueDepth,
	}
}

// Submit applies the admission rules in order (memory, queue depth, input)
// and, on acceptance, persists a queued job and enqueues its pipeline run.
// It returns quickly regardless of queue depth.
func (s *Service) Submit(ctx context.Context, doc spec.Document) (*job.Job, error) {
	if s.memory.HardExceeded() {
		slog.Warn("submission rejected: memory above hard threshold",
			"rssMB", s.memory.CurrentRSS()/(1<<20))
		return nil, apperror.New(apperror.Overloaded, "server is over its memory budget, try again later")
	}

	depth := s.queue.Depth()
	if depth >= s.maxQueueDepth {
		slog.Warn("submission rejected: queue full", "depth", depth, "max", s.maxQueueDepth)
		return nil, apperror.New(apperror.QueueFull, "export queue is full, try again later")
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	j := &job.Job{
		ID:            uuid.NewString(),
		Status:        job.StatusQueued,
		TotalPages:    len(doc.Pages),
		QueuePosition: depth + 1,
		Compress:      doc.CompressRequested(),
		Spec:          doc,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.queue.Submit(j.ID, func(runCtx context.Context) {
		s.runner.Run(runCtx, j.ID)
	})

	slog.Info("job accepted", "job", j.ID, "pages", j.TotalPages, "queuePosition", j.QueuePosition)
	return j, nil
}

// Artifact resolves the downloadable file for a job. Unknown ids are NotFound,
// unfinished jobs are Conflict, and a reclaimed artifact is NotFound again.
func (s *Service) Artifact(ctx context.Context, id string) (string, error) {
	req := job.GetJobRequest{ID: id}
	if err := req.Validate(); err != nil {
		return "", err
	}

	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if j.Status != job.StatusComplete || j.FinalArtifactPath == "" {
		return "", apperror.New(apperror.Conflict, "export is not ready for download")
	}
	if _, err := os.Stat(j.FinalArtifactPath); err != nil {
		return "", apperror.New(apperror.NotFound, "export artifact is no longer available")
	}
	return j.FinalArtifactPath, nil
}

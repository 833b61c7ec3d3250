// Package pipeline drives an accepted job through its stages: render each
// page in order, merge the page artifacts, compress the result if asked, and
// land the job in a terminal state. A Runner instance is shared across jobs;
// the execution queue guarantees a job never has two concurrent runs.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pagepress/export-api/internal/job"
	"github.com/pagepress/export-api/internal/spec"
)

// Renderer turns a single-page document slice into a PDF artifact on disk.
type Renderer interface {
	RenderPage(ctx context.Context, doc spec.Document, outPath string) error
}

// Merger concatenates ordered page artifacts, skipping unreadable ones, and
// reports how many pages made it into the output.
type Merger interface {
	Merge(ctx context.Context, pagePaths []string, outPath string) (int, error)
}

// Compressor shrinks a finished artifact. Available is false when the backend
// has no credentials configured; that degrades to "compression skipped".
type Compressor interface {
	Available() bool
	Compress(ctx context.Context, inPath, outPath string) error
}

type Runner struct {
	repo       job.Repository
	renderer   Renderer
	merger     Merger
	compressor Compressor

	workDir       string
	renderTimeout time.Duration
	cleanupDelay  time.Duration

	// schedule defers a cleanup func; replaced in tests to run inline.
	schedule func(d time.Duration, fn func())

	// onUpdate is invoked after every persisted state change (status stream).
	onUpdate func(*job.Job)
}

type Option func(*Runner)

func WithRenderTimeout(d time.Duration) Option {
	return func(r *Runner) { r.renderTimeout = d }
}

func WithCleanupDelay(d time.Duration) Option {
	return func(r *Runner) { r.cleanupDelay = d }
}

func WithScheduler(fn func(d time.Duration, fn func())) Option {
	return func(r *Runner) { r.schedule = fn }
}

func WithOnUpdate(fn func(*job.Job)) Option {
	return func(r *Runner) { r.onUpdate = fn }
}

func NewRunner(repo job.Repository, renderer Renderer, merger Merger, compressor Compressor, workDir string, opts ...Option) *Runner {
	r := &Runner{
		repo:          repo,
		renderer:      renderer,
		merger:        merger,
		compressor:    compressor,
		workDir:       workDir,
		renderTimeout: 60 * time.Second,
		cleanupDelay:  30 * time.Second,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run drives the job with the given id to a terminal state. It is executed
// from an execution-queue slot and is the only writer of the job's fields
// while the job is non-terminal.
func (r *Runner) Run(ctx context.Context, jobID string) {
	j, err := r.repo.Get(ctx, jobID)
	if err != nil {
		slog.Error("pipeline: load job", "job", jobID, "error", err)
		return
	}

	slog.Info("pipeline: starting", "job", j.ID, "pages", j.TotalPages, "compress", j.Compress)

	j.Status = job.StatusProcessing
	j.ArtifactDir = filepath.Join(r.workDir, "export-"+j.ID)
	if err := os.MkdirAll(j.ArtifactDir, 0o755); err != nil {
		r.fail(ctx, j, fmt.Errorf("create artifact dir: %w", err))
		return
	}
	r.save(ctx, j)

	pagePaths, ok := r.renderPages(ctx, j)
	if !ok {
		return
	}

	mergedPath := filepath.Join(j.ArtifactDir, "document.pdf")
	merged, err := r.merger.Merge(ctx, pagePaths, mergedPath)
	if err != nil || merged == 0 {
		if err == nil {
			err = fmt.Errorf("no pages survived merge")
		}
		r.fail(ctx, j, fmt.Errorf("merge: %w", err))
		return
	}
	if merged < len(pagePaths) {
		slog.Warn("pipeline: merged with skipped pages", "job", j.ID,
			"merged", merged, "rendered", len(pagePaths))
	}

	// Per-page artifacts are only needed briefly after the merge.
	r.schedule(r.cleanupDelay, func() {
		for _, p := range pagePaths {
			_ = os.Remove(p)
		}
	})

	finalPath := r.compressStage(ctx, j, mergedPath)

	// A job is complete only if the final artifact exists right now.
	if _, err := os.Stat(finalPath); err != nil {
		r.fail(ctx, j, fmt.Errorf("final artifact missing: %w", err))
		return
	}

	j.FinalArtifactPath = finalPath
	j.Status = job.StatusComplete
	r.save(ctx, j)
	slog.Info("pipeline: complete", "job", j.ID, "artifact", finalPath)
}

// renderPages renders every page in ascending order, aborting the job on the
// first failure. Progress is persisted page by page for polling clients.
func (r *Runner) renderPages(ctx context.Context, j *job.Job) ([]string, bool) {
	pagePaths := make([]string, 0, j.TotalPages)

	for i := range j.Spec.Pages {
		pageDoc := j.Spec.PageSlice(i)
		outPath := filepath.Join(j.ArtifactDir, fmt.Sprintf("page-%03d.pdf", i+1))

		pageCtx, cancel := context.WithTimeout(ctx, r.renderTimeout)
		err := r.renderer.RenderPage(pageCtx, pageDoc, outPath)
		cancel()
		if err != nil {
			// No retry: renderer failures tend to be deterministic for the
			// same broken input, and retries hold the only worker slot.
			r.fail(ctx, j, fmt.Errorf("render page %d: %w", i+1, err))
			return nil, false
		}

		pagePaths = append(pagePaths, outPath)
		j.CurrentPage = i + 1
		r.save(ctx, j)
	}

	return pagePaths, true
}

// compressOutcome is the exhaustive result of the compression stage.
type compressOutcome int

const (
	outcomeCompressed compressOutcome = iota
	outcomeFallbackCopy
	outcomeUnavailable
)

// compressStage applies the compression policy and returns the path to serve
// as the final artifact. Compression is best-effort: every outcome except a
// vanished source still completes the job.
func (r *Runner) compressStage(ctx context.Context, j *job.Job, mergedPath string) string {
	if !j.Compress || !r.compressor.Available() {
		if j.Compress {
			slog.Info("pipeline: compression backend unavailable, skipping", "job", j.ID)
		}
		j.Compression = &job.CompressionInfo{Skipped: true, Success: true, Ratio: 0}
		return mergedPath
	}

	j.Status = job.StatusCompressing
	r.save(ctx, j)

	outcome, path := r.compress(ctx, j, mergedPath)
	switch outcome {
	case outcomeCompressed:
		slog.Info("pipeline: compressed", "job", j.ID,
			"originalSize", j.Compression.OriginalSize,
			"compressedSize", j.Compression.CompressedSize)
	case outcomeFallbackCopy:
		slog.Warn("pipeline: compression failed, serving fallback copy",
			"job", j.ID, "error", j.Compression.Error)
	case outcomeUnavailable:
		slog.Warn("pipeline: compression impossible, serving uncompressed",
			"job", j.ID, "error", j.Compression.Error)
	}
	return path
}

func (r *Runner) compress(ctx context.Context, j *job.Job, mergedPath string) (compressOutcome, string) {
	info := &job.CompressionInfo{}
	j.Compression = info

	st, err := os.Stat(mergedPath)
	if err != nil {
		// Source vanished before compression could run. Non-fatal here; the
		// final existence check decides whether the job can still complete.
		info.FallbackImpossible = true
		info.Error = "source artifact missing at compression time"
		return outcomeUnavailable, mergedPath
	}
	info.OriginalSize = st.Size()

	compressedPath := filepath.Join(j.ArtifactDir, "document-compressed.pdf")
	if err := r.compressor.Compress(ctx, mergedPath, compressedPath); err == nil {
		if cst, serr := os.Stat(compressedPath); serr == nil && cst.Size() > 0 {
			info.Success = true
			info.CompressedSize = cst.Size()
			info.Ratio = 1 - float64(cst.Size())/float64(st.Size())
			return outcomeCompressed, compressedPath
		}
		err = fmt.Errorf("backend reported success but produced no artifact")
		info.Error = err.Error()
	} else {
		info.Error = err.Error()
	}

	// Backend failed: fall back to a plain copy of the original bytes so the
	// client still downloads from the expected final path.
	if copyErr := copyFile(mergedPath, compressedPath); copyErr == nil {
		info.FallbackUsed = true
		info.CompressedSize = info.OriginalSize
		return outcomeFallbackCopy, compressedPath
	}

	info.FallbackFailed = true
	return outcomeUnavailable, mergedPath
}

func (r *Runner) fail(ctx context.Context, j *job.Job, err error) {
	slog.Error("pipeline: job failed", "job", j.ID, "error", err)
	j.Status = job.StatusError
	j.Error = err.Error()
	r.save(ctx, j)
}

func (r *Runner) save(ctx context.Context, j *job.Job) {
	if err := r.repo.Update(ctx, j); err != nil {
		slog.Error("pipeline: persist job", "job", j.ID, "error", err)
	}
	if r.onUpdate != nil {
		r.onUpdate(j)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}

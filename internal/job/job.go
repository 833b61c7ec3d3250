package job

import (
	"time"

	"github.com/pagepress/export-api/internal/spec"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusProcessing  Status = "processing"
	StatusCompressing Status = "compressing"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// Terminal reports whether no further transition is possible. Terminal jobs
// are only ever touched again by the janitor.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// CompressionInfo records the outcome of the compression stage, including the
// fallback chain taken when the backend misbehaves.
type CompressionInfo struct {
	Success            bool    `json:"success"`
	OriginalSize       int64   `json:"originalSize,omitempty"`
	CompressedSize     int64   `json:"compressedSize,omitempty"`
	Ratio              float64 `json:"ratio"`
	Error              string  `json:"error,omitempty"`
	FallbackUsed       bool    `json:"fallbackUsed,omitempty"`
	FallbackFailed     bool    `json:"fallbackFailed,omitempty"`
	FallbackImpossible bool    `json:"fallbackImpossible,omitempty"`
	Skipped            bool    `json:"skipped,omitempty"`
}

// Job is one accepted export request. The pipeline run is the sole writer of
// a non-terminal job's fields; everything else reads snapshots.
type Job struct {
	ID          string
	Status      Status
	CurrentPage int
	TotalPages  int

	// QueuePosition is a best-effort hint captured at admission time and
	// never updated afterwards.
	QueuePosition int

	ArtifactDir       string
	FinalArtifactPath string
	Compression       *CompressionInfo
	Error             string

	Compress bool
	Spec     spec.Document

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the client-facing view of a job, served by status polling and
// the websocket stream. The render spec itself is not echoed back.
type Snapshot struct {
	ID            string           `json:"jobId"`
	Status        Status           `json:"status"`
	CurrentPage   int              `json:"currentPage"`
	TotalPages    int              `json:"totalPages"`
	QueuePosition int              `json:"queuePosition"`
	Compression   *CompressionInfo `json:"compressionInfo,omitempty"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		ID:            j.ID,
		Status:        j.Status,
		CurrentPage:   j.CurrentPage,
		TotalPages:    j.TotalPages,
		QueuePosition: j.QueuePosition,
		Compression:   j.Compression,
		Error:         j.Error,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

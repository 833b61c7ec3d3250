package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagepress/export-api/internal/apperror"
	domain "github.com/pagepress/export-api/internal/job"
	"github.com/pagepress/export-api/internal/spec"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const jobColumns = `id, status, current_page, total_pages, queue_position,
	artifact_dir, final_artifact_path, compression, error, compress, spec,
	created_at, updated_at`

func (r *Repository) Create(ctx context.Context, j *domain.Job) error {
	specJSON, err := json.Marshal(j.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	const query = `INSERT INTO jobs (id, status, current_page, total_pages,
		queue_position, artifact_dir, final_artifact_path, compression, error,
		compress, spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		j.ID, string(j.Status), j.CurrentPage, j.TotalPages, j.QueuePosition,
		j.ArtifactDir, j.FinalArtifactPath, marshalCompression(j.Compression),
		nullString(j.Error), boolToInt(j.Compress), string(specJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, j *domain.Job) error {
	now := time.Now().UTC()

	const query = `UPDATE jobs SET status = ?, current_page = ?,
		artifact_dir = ?, final_artifact_path = ?, compression = ?, error = ?,
		updated_at = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		string(j.Status), j.CurrentPage, j.ArtifactDir, j.FinalArtifactPath,
		marshalCompression(j.Compression), nullString(j.Error),
		now.Format(time.RFC3339), j.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.New(apperror.NotFound, "job not found")
	}
	j.UpdatedAt = now
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *Repository) List(ctx context.Context, status domain.Status, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *Repository) SweepTerminal(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sweep: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status IN ('complete', 'error') AND updated_at < ?`

	rows, err := tx.QueryContext(ctx, query, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("sweep: select: %w", err)
	}

	var swept []domain.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("sweep: scan: %w", scanErr)
		}
		swept = append(swept, *j)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("sweep: rows: %w", err)
	}
	_ = rows.Close()

	for _, j := range swept {
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID); err != nil {
			return nil, fmt.Errorf("sweep: delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sweep: commit: %w", err)
	}
	return swept, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	j := &domain.Job{}
	var status, specJSON, createdStr, updatedStr string
	var compression, dbErr sql.NullString
	var compress int

	err := row.Scan(
		&j.ID, &status, &j.CurrentPage, &j.TotalPages, &j.QueuePosition,
		&j.ArtifactDir, &j.FinalArtifactPath, &compression, &dbErr,
		&compress, &specJSON, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	j.Status = domain.Status(status)
	j.Compress = compress != 0
	if dbErr.Valid {
		j.Error = dbErr.String
	}
	if compression.Valid && compression.String != "" {
		info := &domain.CompressionInfo{}
		if err := json.Unmarshal([]byte(compression.String), info); err != nil {
			return nil, fmt.Errorf("unmarshal compression info: %w", err)
		}
		j.Compression = info
	}

	var doc spec.Document
	if err := json.Unmarshal([]byte(specJSON), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	j.Spec = doc

	j.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return j, nil
}

func marshalCompression(info *domain.CompressionInfo) any {
	if info == nil {
		return nil
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil
	}
	return string(data)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

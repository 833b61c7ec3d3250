package job

import (
	"github.com/google/uuid"

	"github.com/pagepress/export-api/internal/apperror"
)

type GetJobRequest struct {
	ID string
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if _, err := uuid.Parse(r.ID); err != nil {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}

type ListJobsRequest struct {
	Status string
	Limit  int
}

func (r ListJobsRequest) Validate() *apperror.AppError {
	switch Status(r.Status) {
	case "", StatusQueued, StatusProcessing, StatusCompressing, StatusComplete, StatusError:
	default:
		return apperror.New(apperror.BadRequest, "invalid status filter")
	}
	if r.Limit < 0 {
		return apperror.New(apperror.BadRequest, "limit must not be negative")
	}
	return nil
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pagepress/export-api/internal/apperror"
	"github.com/pagepress/export-api/internal/export"
	"github.com/pagepress/export-api/internal/job"
	"github.com/pagepress/export-api/internal/spec"
)

// maxSpecBytes bounds the render-spec payload; anything larger is an abuse of
// the inline-resource format, not a legitimate document.
const maxSpecBytes = 32 << 20

type handler struct {
	exportSvc *export.Service
	jobSvc    *job.Service
	hub       *Hub
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitResponse struct {
	JobID         string `json:"jobId"`
	Status        string `json:"status"`
	QueuePosition int    `json:"queuePosition"`
	TotalPages    int    `json:"totalPages"`
}

func (h *handler) submitExport(w http.ResponseWriter, r *http.Request) {
	var doc spec.Document
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSpecBytes))
	if err := dec.Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid render spec payload")
		return
	}

	j, err := h.exportSvc.Submit(r.Context(), doc)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:         j.ID,
		Status:        string(j.Status),
		QueuePosition: j.QueuePosition,
		TotalPages:    j.TotalPages,
	})
}

func (h *handler) getExport(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobSvc.Get(r.Context(), job.GetJobRequest{ID: r.PathValue("id")})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j.Snapshot())
}

func (h *handler) listExports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	jobs, err := h.jobSvc.List(r.Context(), job.ListJobsRequest{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	snapshots := make([]job.Snapshot, 0, len(jobs))
	for i := range jobs {
		snapshots = append(snapshots, jobs[i].Snapshot())
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (h *handler) downloadExport(w http.ResponseWriter, r *http.Request) {
	path, err := h.exportSvc.Artifact(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=export.pdf")
	http.ServeFile(w, r, path)
}

func (h *handler) statusStream(w http.ResponseWriter, r *http.Request) {
	h.hub.Serve(w, r)
}

func writeAppError(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperror.AppError); ok {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

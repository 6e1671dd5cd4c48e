package devserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shelfscan/internal/entity"
)

// maxUpload bounds the multipart memory buffer for image submissions.
const maxUpload = 32 << 20

type Handler struct {
	table *JobTable
	sim   *Simulator
}

func NewHandler(table *JobTable, sim *Simulator) *Handler {
	return &Handler{table: table, sim: sim}
}

// SubmitImage godoc
// @Summary Submit a shelf image for inference
// @Description Accepts one image as multipart field "file" and queues an inference job.
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "shelf photo"
// @Param planogram_id query string false "planogram to score compliance against"
// @Success 201 {object} entity.CreateJobResponse
// @Failure 400 {object} apiError
// @Router /v1/infer/image [post]
func (h *Handler) SubmitImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	job := entity.Job{
		JobID:       uuid.New().String(),
		Status:      entity.StatusQueued,
		PlanogramID: r.URL.Query().Get("planogram_id"),
	}
	h.table.create(job, image)
	h.sim.Enqueue(job.JobID)

	writeJSON(w, http.StatusCreated, entity.CreateJobResponse{JobID: job.JobID, Status: job.Status})
}

// GetJob godoc
// @Summary Get job status
// @Tags jobs
// @Produce json
// @Param id path string true "job id"
// @Success 200 {object} entity.JobStatusResponse
// @Failure 404 {object} apiError
// @Router /v1/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.table.get(id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, entity.JobStatusResponse{
		JobID:     job.JobID,
		Status:    job.Status,
		Stage:     job.Stage,
		UpdatedAt: job.UpdatedAt,
	})
}

// GetJobResults godoc
// @Summary Get job results
// @Tags jobs
// @Produce json
// @Param id path string true "job id"
// @Success 200 {object} entity.JobResult
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Router /v1/jobs/{id}/results [get]
func (h *Handler) GetJobResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.table.get(id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != entity.StatusSucceeded || job.Result == nil {
		writeErr(w, http.StatusConflict, "job not finished")
		return
	}
	writeJSON(w, http.StatusOK, job.Result)
}

// ListJobs godoc
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Param planogram_id query string false "scope filter"
// @Success 200 {object} jobsEnvelope
// @Router /v1/jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.table.list(r.URL.Query().Get("planogram_id"))
	writeJSON(w, http.StatusOK, jobsEnvelope{Jobs: jobs})
}

// DeleteJob godoc
// @Summary Delete a job
// @Tags jobs
// @Param id path string true "job id"
// @Success 204
// @Failure 404 {object} apiError
// @Router /v1/jobs/{id} [delete]
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.table.delete(id); err != nil {
		if errors.Is(err, errUnknownJob) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFile godoc
// @Summary Fetch a stored job artifact
// @Description Serves the uploaded original for every kind; a stand-in has no real annotated renders or crops.
// @Tags files
// @Produce octet-stream
// @Param id path string true "job id"
// @Param kind path string true "input, annotated or crops"
// @Param filename path string true "artifact file name"
// @Success 200
// @Failure 404 {object} apiError
// @Router /v1/jobs/{id}/files/{kind}/{filename} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	switch chi.URLParam(r, "kind") {
	case "input", "annotated", "crops":
	default:
		writeErr(w, http.StatusNotFound, "unknown file kind")
		return
	}
	image, err := h.table.image(id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "job not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

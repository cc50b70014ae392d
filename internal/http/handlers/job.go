package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prodpulse/prodpulse-backend/internal/ctxutil"
	"github.com/prodpulse/prodpulse-backend/internal/http/response"
	"github.com/prodpulse/prodpulse-backend/internal/services"
)

type JobHandler struct {
	ingestion services.IngestionService
}

func NewJobHandler(ingestion services.IngestionService) *JobHandler {
	return &JobHandler{ingestion: ingestion}
}

func requestUserID(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "missing_principal", errors.New("no request principal"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func jobIDParam(c *gin.Context) (uuid.UUID, bool) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return uuid.Nil, false
	}
	return jobID, true
}

func respondJobError(c *gin.Context, code string, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, services.ErrJobNotFound) {
		status = http.StatusNotFound
	}
	response.RespondError(c, status, code, err)
}

// POST /api/jobs
func (h *JobHandler) SubmitJob(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", err)
		return
	}
	defer file.Close()

	job, err := h.ingestion.Submit(c.Request.Context(), nil, userID, services.SubmitInput{
		Name:       header.Filename,
		SizeBytes:  header.Size,
		TargetKind: c.Query("target_kind"),
		Reader:     file,
	})
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "submit_job_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"job": job})
}

// GET /api/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	jobs, total, err := h.ingestion.ListJobs(c.Request.Context(), nil, userID, page, pageSize, c.Query("search"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_jobs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"jobs":      jobs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	job, err := h.ingestion.GetJob(c.Request.Context(), nil, userID, jobID)
	if err != nil {
		respondJobError(c, "job_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// DELETE /api/jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	if err := h.ingestion.DeleteJob(c.Request.Context(), nil, userID, jobID); err != nil {
		respondJobError(c, "delete_job_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": jobID})
}

// GET /api/jobs/:id/preview
func (h *JobHandler) PreviewJob(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	rows, _ := strconv.Atoi(c.DefaultQuery("rows", "10"))
	preview, err := h.ingestion.Preview(c.Request.Context(), nil, userID, jobID, rows)
	if err != nil {
		respondJobError(c, "preview_failed", err)
		return
	}
	response.RespondOK(c, preview)
}

// GET /api/jobs/:id/validate
func (h *JobHandler) ValidateJob(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	result, err := h.ingestion.ValidateJob(c.Request.Context(), nil, userID, jobID)
	if err != nil {
		respondJobError(c, "validate_failed", err)
		return
	}
	response.RespondOK(c, result)
}

// GET /api/jobs/:id/schema
func (h *JobHandler) JobSchema(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}
	schema, err := h.ingestion.SchemaForJob(c.Request.Context(), nil, userID, jobID)
	if err != nil {
		respondJobError(c, "schema_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"columns": schema})
}

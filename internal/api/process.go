package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbirkedal/vendorledger/internal/jobs"
	"github.com/mbirkedal/vendorledger/internal/pipeline"
)

// startProcessing handles POST /api/process. The uploaded CSV is screened for
// duplicates first; flagged rows go back to the client for confirmation and
// nothing is processed. A clean (or confirmed) upload is enqueued as a
// background job.
func (s *Server) startProcessing(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	excludedIndices, err := parseExcludedIndices(c.PostForm("excluded_indices"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uploadDir := s.config.UploadDir
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	path := filepath.Join(uploadDir, uuid.NewString()+".csv")
	if err := c.SaveUploadedFile(fileHeader, path); err != nil {
		s.logger.Error("failed to save upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload"})
		return
	}

	parsed, err := s.processor.ParseFile(path)
	if err != nil {
		_ = os.Remove(path)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	duplicates, err := s.processor.CheckDuplicates(c.Request.Context(), parsed.Transactions, excludedIndices)
	if err != nil {
		_ = os.Remove(path)
		s.logger.Error("duplicate check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "duplicate check failed"})
		return
	}
	if len(duplicates) > 0 {
		// The client resubmits the file with excluded_indices once the user
		// has confirmed which rows to import anyway.
		_ = os.Remove(path)
		c.JSON(http.StatusOK, gin.H{
			"requires_confirmation": true,
			"duplicates":            duplicates,
			"row_count":             len(parsed.Transactions),
		})
		return
	}

	job := &jobs.ProcessJob{
		FilePath:        path,
		Filename:        fileHeader.Filename,
		ExcludedIndices: excludedIndices,
	}
	if err := s.queue.Enqueue(c.Request.Context(), job); err != nil {
		_ = os.Remove(path)
		s.logger.Error("failed to enqueue processing job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue processing job"})
		return
	}

	s.logger.Info("processing job enqueued", "job_id", job.ID, "filename", job.Filename)
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":    job.ID,
		"status":    string(job.Status),
		"row_count": len(parsed.Transactions),
	})
}

// getJob handles GET /api/jobs/:id.
func (s *Server) getJob(c *gin.Context) {
	job, ok := s.jobStore.GetJob(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// listJobs handles GET /api/jobs.
func (s *Server) listJobs(c *gin.Context) {
	list := s.jobStore.ListJobs()
	c.JSON(http.StatusOK, gin.H{"jobs": list, "count": len(list)})
}

func parseExcludedIndices(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid excluded_indices value %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// NewProcessJobHandler builds the queue handler that runs uploaded CSVs
// through the pipeline, publishing progress through the job store. The
// uploaded temp file is removed when the job finishes.
func NewProcessJobHandler(processor *pipeline.Processor, store jobs.Store, logger *slog.Logger) jobs.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, job *jobs.ProcessJob) error {
		defer func() { _ = os.Remove(job.FilePath) }()

		result, err := processor.ProcessFile(ctx, job.FilePath, job.ExcludedIndices, func(percent int, stage string) {
			job.Progress = percent
			job.Stage = stage
			store.SaveJob(job)
		})
		if err != nil {
			logger.Error("processing job failed", "job_id", job.ID, "error", err)
			return err
		}

		job.Result = result
		return nil
	}
}

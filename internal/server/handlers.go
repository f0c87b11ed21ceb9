package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"photo-thumbnailer/internal/models"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrMetadataDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// bindJSON decodes the body into dst. Decode failures are reported as
// invalid requests.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "op", op, "error", err)
	}
	c.JSON(status, gin.H{"ok": false, "error": fmt.Sprintf("%s: %v", op, err)})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "metadata": s.proc.MetadataEnabled()})
}

func (s *Server) handleGenerate(c *gin.Context) {
	const op = "server.handleGenerate"

	var req models.GenerateRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, op, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(c, op, err)
		return
	}

	gp, err := s.proc.Generate(c.Request.Context(), req.Bucket, req.Target())
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, models.GenerateResponse{OK: true, GeneratedPaths: gp})
}

func (s *Server) handleEnqueue(c *gin.Context) {
	const op = "server.handleEnqueue"

	var req models.GenerateRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, op, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(c, op, err)
		return
	}

	id, err := s.producer.Enqueue(c.Request.Context(), req.Bucket, req.Target())
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "jobId": id})
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	const op = "server.handleDeleteJob"

	var req models.DeleteJobRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, op, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(c, op, err)
		return
	}

	if err := s.proc.DeleteJob(c.Request.Context(), req); err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleUploadURL answers with a bare {error} body on failure, unlike the
// other endpoints.
func (s *Server) handleUploadURL(c *gin.Context) {
	const op = "server.handleUploadURL"

	var req models.UploadURLRequest
	if err := bindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}

	resp, err := s.proc.SignUpload(c.Request.Context(), req.FileName)
	if err != nil {
		s.log.Error("request failed", "op", op, "error", err)
		c.JSON(statusFor(err), gin.H{"error": fmt.Sprintf("%s: %v", op, err)})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecordUpload(c *gin.Context) {
	const op = "server.handleRecordUpload"

	var req models.RecordUploadRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, op, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(c, op, err)
		return
	}

	img, err := s.proc.RecordUpload(c.Request.Context(), req)
	if err != nil {
		s.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": img.ID})
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brunobiangulo/clinextract"
)

type handler struct {
	engine *clinextract.Engine
}

func newHandler(e *clinextract.Engine) *handler {
	return &handler{engine: e}
}

// POST /v1/encounters
func (h *handler) handleProcessEncounter(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	var req clinextract.EncounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.engine.ProcessEncounter(ctx, req)
	if err != nil {
		writeEngineError(c, err, "processing encounter")
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// POST /v1/jobs/:job_id/cancel
func (h *handler) handleCancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if err := h.engine.CancelJob(jobID); err != nil {
		writeEngineError(c, err, "cancelling job")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// GET /v1/jobs/:job_id
func (h *handler) handleJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := h.engine.JobStatus(jobID)
	if err != nil {
		writeEngineError(c, err, "fetching job status")
		return
	}
	c.JSON(http.StatusOK, job)
}

// POST /v1/templates/validate
func (h *handler) handleValidateTemplates(c *gin.Context) {
	var req struct {
		Templates []clinextract.Template `json:"templates"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.ValidateTemplates(req.Templates); err != nil {
		writeEngineError(c, err, "validating templates")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "valid"})
}

// GET /v1/doctors/:doctor_id/preferences
func (h *handler) handleGetPreferences(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	doctorID := c.Param("doctor_id")
	prefs, err := h.engine.GetDoctorPreferences(ctx, doctorID)
	if err != nil {
		writeEngineError(c, err, "fetching doctor preferences")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// PUT /v1/doctors/:doctor_id/preferences
func (h *handler) handlePutPreferences(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	doctorID := c.Param("doctor_id")
	var entries map[string]clinextract.PreferenceEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.PutDoctorPreferences(ctx, doctorID, entries); err != nil {
		writeEngineError(c, err, "storing doctor preferences")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

// GET /health
func (h *handler) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.engine.Health(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// writeEngineError maps an unknown job to 404 and a
// clinextract.ExtractionError's taxonomy code to an HTTP status, falling
// back to 500 for anything unwrapped.
func writeEngineError(c *gin.Context, err error, action string) {
	slog.Error(action+" failed", "error", err)

	if errors.Is(err, clinextract.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var extractionErr *clinextract.ExtractionError
	if errors.As(err, &extractionErr) {
		switch extractionErr.Code {
		case clinextract.CodeInvalidRequest, clinextract.CodeInvalidTranscript:
			c.JSON(http.StatusBadRequest, gin.H{"error": extractionErr.Error()})
			return
		case clinextract.CodeDependencyUnavailable:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": extractionErr.Error()})
			return
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": extractionErr.Error()})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

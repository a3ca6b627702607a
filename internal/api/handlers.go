package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"callscribe/internal/audio"
	"callscribe/internal/ingest"
	"callscribe/internal/repository"
	"callscribe/internal/utils"
)

// healthCheck returns server health status
func (h *Handlers) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "callscribe-backend",
	})
}

// uploadCall ingests an audio file: the full pipeline runs within this
// request, and the response reports acceptance once a record exists even if
// transcription or analysis degraded.
func (h *Handlers) uploadCall(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "file is required: "+err.Error())
		return
	}

	src, err := file.Open()
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "failed to open uploaded file: "+err.Error())
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "failed to read uploaded file: "+err.Error())
		return
	}

	resp, err := h.pipeline.Process(c.Request.Context(), file.Filename, data)
	if err != nil {
		var vErr *ingest.ValidationError
		var dErr *ingest.DuplicateError
		var nErr *audio.NormalizationError
		switch {
		case errors.As(err, &vErr):
			utils.Error(c, http.StatusBadRequest, vErr.Detail)
		case errors.As(err, &dErr):
			utils.Error(c, http.StatusConflict, dErr.Error())
		case errors.As(err, &nErr):
			utils.Error(c, http.StatusInternalServerError, nErr.Error())
		default:
			h.log.WithFields(logrus.Fields{"filename": file.Filename, "error": err.Error()}).
				Error("upload failed")
			utils.Error(c, http.StatusInternalServerError, "failed to process upload")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// listCalls returns calls with optional tag filter and sort order
func (h *Handlers) listCalls(c *gin.Context) {
	tag := c.Query("tag")
	sortOrder := c.DefaultQuery("sort", "newest")

	resp, err := h.queries.ListCalls(c.Request.Context(), tag, sortOrder)
	if err != nil {
		h.log.WithField("error", err.Error()).Error("failed to list calls")
		utils.Error(c, http.StatusInternalServerError, "failed to list calls")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// listTags returns all distinct tags across calls
func (h *Handlers) listTags(c *gin.Context) {
	tags, err := h.queries.ListDistinctTags(c.Request.Context())
	if err != nil {
		h.log.WithField("error", err.Error()).Error("failed to list tags")
		utils.Error(c, http.StatusInternalServerError, "failed to list tags")
		return
	}

	c.JSON(http.StatusOK, tags)
}

// getCall returns a single call record
func (h *Handlers) getCall(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.queries.GetCall(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.Error(c, http.StatusNotFound, "Call not found")
			return
		}
		h.log.WithFields(logrus.Fields{"call_id": id, "error": err.Error()}).
			Error("failed to fetch call")
		utils.Error(c, http.StatusInternalServerError, "failed to fetch call")
		return
	}

	c.JSON(http.StatusOK, rec)
}

// getCallAudio streams the stored audio file for a call
func (h *Handlers) getCallAudio(c *gin.Context) {
	id := c.Param("id")

	path, mediaType, filename, err := h.queries.ResolveAudio(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.Error(c, http.StatusNotFound, "Audio file not found")
			return
		}
		h.log.WithFields(logrus.Fields{"call_id": id, "error": err.Error()}).
			Error("failed to resolve audio")
		utils.Error(c, http.StatusInternalServerError, "failed to resolve audio")
		return
	}

	c.Header("Content-Type", mediaType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.File(path)
}

// Package songs implements the library endpoints: listing, uploading, and
// deleting tracks. All persistent state lives in the storage bucket; these
// handlers are thin translations between HTTP and the B2 gateway.
package songs

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tunecrate/tunecrate/internal/b2"
	"github.com/tunecrate/tunecrate/internal/catalog"
	"github.com/tunecrate/tunecrate/internal/config"
	"github.com/tunecrate/tunecrate/internal/telemetry"
)

// Store is the slice of the B2 gateway the library endpoints need.
type Store interface {
	ListFiles(ctx context.Context) ([]b2.FileInfo, error)
	Upload(ctx context.Context, fileName, contentType string, data []byte) (*b2.UploadResult, error)
	Delete(ctx context.Context, fileName, fileID string) error
}

// Handler serves the /api/songs and /api/upload routes.
type Handler struct {
	store Store
	cfg   config.UploadConfig
}

// NewHandler creates a songs handler backed by the given store.
func NewHandler(store Store, cfg config.UploadConfig) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// List returns every playable track in the bucket.
//
// GET /api/songs → 200 {"songs": [...]}
func (h *Handler) List(c *gin.Context) {
	files, err := h.store.ListFiles(c.Request.Context())
	if err != nil {
		slog.Error("failed to list songs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch songs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"songs": catalog.FromFiles(files)})
}

// Upload stores one multipart file in the bucket under "<album>/<filename>".
//
// POST /api/upload (multipart fields: file, optional album)
// → 200 {"success": true, "fileName": ..., "fileId": ..., "message": ...}
func (h *Handler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	if fileHeader.Size > h.cfg.MaxUploadBytes() {
		telemetry.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !acceptableAudio(fileHeader.Filename, contentType) {
		telemetry.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only MP3 files are allowed"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues("error").Inc()
		slog.Error("failed to open uploaded file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer src.Close()

	// Buffer the file fully; B2 uploads need a known length and the size cap
	// keeps this bounded.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(src, h.cfg.MaxUploadBytes()+1)); err != nil {
		telemetry.UploadsTotal.WithLabelValues("error").Inc()
		slog.Error("failed to read uploaded file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	if int64(buf.Len()) > h.cfg.MaxUploadBytes() {
		telemetry.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	album := strings.TrimSpace(c.PostForm("album"))
	if album == "" {
		album = h.cfg.DefaultAlbum
	}
	objectName := album + "/" + path.Base(fileHeader.Filename)

	if contentType == "" {
		contentType = "audio/mpeg"
	}

	res, err := h.store.Upload(c.Request.Context(), objectName, contentType, buf.Bytes())
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues("error").Inc()
		slog.Error("failed to upload song", "file", objectName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file"})
		return
	}

	telemetry.UploadsTotal.WithLabelValues("success").Inc()
	slog.Info("song uploaded", "file", res.FileName, "file_id", res.FileID, "size", buf.Len())
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"fileName": res.FileName,
		"fileId":   res.FileID,
		"message":  "File uploaded successfully",
	})
}

// Delete removes one file version from the bucket. B2 addresses versions by a
// (fileName, fileId) pair, so the fileId query parameter is mandatory; a
// request without it never reaches upstream.
//
// DELETE /api/songs/*fileName?fileId=ID → 200 {"success": true, "message": ...}
func (h *Handler) Delete(c *gin.Context) {
	fileName := strings.TrimPrefix(c.Param("fileName"), "/")
	fileID := c.Query("fileId")

	if fileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName is required"})
		return
	}
	if fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileId is required"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), fileName, fileID); err != nil {
		telemetry.DeletesTotal.WithLabelValues("error").Inc()
		slog.Error("failed to delete song", "file", fileName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete file"})
		return
	}

	telemetry.DeletesTotal.WithLabelValues("success").Inc()
	slog.Info("song deleted", "file", fileName, "file_id", fileID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "File deleted successfully",
	})
}

// acceptableAudio accepts files that either declare an MP3 media type or carry
// the .mp3 extension. Browsers are inconsistent about which of the two they
// send, so either is sufficient.
func acceptableAudio(filename, contentType string) bool {
	switch contentType {
	case "audio/mpeg", "audio/mp3":
		return true
	}
	return catalog.IsMedia(filename)
}

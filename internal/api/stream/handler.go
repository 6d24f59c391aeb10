// Package stream relays audio bytes from the storage bucket to HTTP clients,
// forwarding Range headers upstream so players can seek without the server
// ever buffering a whole file.
package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tunecrate/tunecrate/internal/b2"
	"github.com/tunecrate/tunecrate/internal/telemetry"
)

// Downloader is the slice of the B2 gateway the relay needs.
type Downloader interface {
	OpenDownload(ctx context.Context, fileName, rangeHeader string) (*http.Response, error)
}

// relayedHeaders are the only upstream response headers forwarded to clients.
// Everything else B2 sends (its own request IDs, file metadata headers, cache
// directives) stays server-side.
var relayedHeaders = []string{
	"Content-Length",
	"Content-Type",
	"Content-Range",
	"Accept-Ranges",
}

// Handler serves GET /api/stream/*fileName.
type Handler struct {
	store Downloader
}

// NewHandler creates a stream handler backed by the given downloader.
func NewHandler(store Downloader) *Handler {
	return &Handler{store: store}
}

// Stream opens the upstream download and pipes it to the client. The upstream
// request inherits the client's request context, so a listener pressing stop
// tears down the B2 connection immediately.
//
// Status handling: upstream 200 and 206 are relayed verbatim along with the
// allow-listed headers; upstream 404 becomes a JSON 404; anything else becomes
// a JSON 500. Once the body copy has started no second response can be
// written, so mid-stream failures are only logged.
func (h *Handler) Stream(c *gin.Context) {
	fileName := strings.TrimPrefix(c.Param("fileName"), "/")
	if fileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName is required"})
		return
	}

	rangeHeader := c.GetHeader("Range")
	telemetry.StreamRequestsTotal.WithLabelValues(boolLabel(rangeHeader != "")).Inc()

	resp, err := h.store.OpenDownload(c.Request.Context(), fileName, rangeHeader)
	if err != nil {
		if b2.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		slog.Error("failed to open stream", "file", fileName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stream file"})
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		// fall through to the relay below
	case http.StatusNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	default:
		slog.Error("unexpected upstream status for stream",
			"file", fileName, "status", resp.StatusCode)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stream file"})
		return
	}

	header := c.Writer.Header()
	for _, name := range relayedHeaders {
		if v := resp.Header.Get(name); v != "" {
			header.Set(name, v)
		}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "audio/mpeg")
	}
	c.Status(resp.StatusCode)

	n, err := io.Copy(c.Writer, resp.Body)
	telemetry.StreamBytesRelayed.Add(float64(n))
	if err != nil {
		// Headers are already on the wire; a disconnecting client lands here
		// and there is nothing further to send.
		slog.Debug("stream interrupted", "file", fileName, "bytes", n, "error", err)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

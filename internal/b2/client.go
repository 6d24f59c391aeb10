// Package b2 implements a client for the Backblaze B2 native API, covering the
// five operations tunecrate needs: authorize, list, upload, delete, download.
//
// Authorization tokens are cached for the configured session TTL (B2 tokens
// live 24 hours; the default TTL is 23) and refreshed lazily on first use
// after expiry. Concurrent refreshes are coalesced through singleflight so a
// burst of requests arriving on a cold cache triggers exactly one
// b2_authorize_account call.
//
// Two separate HTTP clients are used: a 30-second timeout for API calls, no
// timeout for downloads. API calls should fail quickly when B2 is unreachable,
// while a download legitimately stays open for as long as a client keeps
// streaming audio. Download requests are still bounded by their request
// context, so an aborted playback tears the upstream connection down
// immediately.
package b2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tunecrate/tunecrate/internal/config"
	"github.com/tunecrate/tunecrate/internal/telemetry"
)

const apiPath = "/b2api/v2"

// FileInfo describes one file in the bucket as reported by b2_list_file_names.
type FileInfo struct {
	ID              string `json:"fileId"`
	Name            string `json:"fileName"`
	ContentLength   int64  `json:"contentLength"`
	UploadTimestamp int64  `json:"uploadTimestamp"` // milliseconds since epoch
}

// UploadResult describes a file stored by Upload.
type UploadResult struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

// session is one authorized B2 session. Immutable once created; the client
// swaps the whole struct under lock.
type session struct {
	token       string
	apiURL      string
	downloadURL string
	expires     time.Time
}

// Client talks to the B2 native API for a single bucket.
type Client struct {
	keyID      string
	appKey     string
	bucketID   string
	bucketName string
	authURL    string
	ttl        time.Duration

	api    *http.Client // JSON API calls (short timeout)
	stream *http.Client // downloads (no timeout; bounded by request context)

	mu   sync.RWMutex
	sess *session
	sf   singleflight.Group

	// now is replaceable in tests to exercise TTL expiry without sleeping.
	now func() time.Time
}

// New creates a B2 client from configuration. No network calls are made until
// the first operation needs an authorization token.
func New(cfg config.B2Config) *Client {
	return &Client{
		keyID:      cfg.KeyID,
		appKey:     cfg.ApplicationKey,
		bucketID:   cfg.BucketID,
		bucketName: cfg.BucketName,
		authURL:    strings.TrimRight(cfg.AuthURL, "/"),
		ttl:        cfg.SessionTTL,
		api: &http.Client{
			Timeout: 30 * time.Second,
		},
		stream: &http.Client{},
		now:    time.Now,
	}
}

// BucketName returns the configured bucket name.
func (c *Client) BucketName() string {
	return c.bucketName
}

// ---------------------------------------------------------------------------
// Session management
// ---------------------------------------------------------------------------

// session returns a live authorized session, reusing the cached one when it
// has not expired. A fresh session is fetched at most once at a time; callers
// racing on a cold or expired cache all wait for the same authorize call.
func (c *Client) session(ctx context.Context) (*session, error) {
	c.mu.RLock()
	s := c.sess
	c.mu.RUnlock()
	if s != nil && c.now().Before(s.expires) {
		return s, nil
	}

	v, err, _ := c.sf.Do("authorize", func() (interface{}, error) {
		// Another waiter may have refreshed while we queued.
		c.mu.RLock()
		s := c.sess
		c.mu.RUnlock()
		if s != nil && c.now().Before(s.expires) {
			return s, nil
		}

		fresh, err := c.authorize(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sess = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

// invalidate drops the cached session so the next operation re-authorizes.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
}

// authorize performs b2_authorize_account using the account key pair.
func (c *Client) authorize(ctx context.Context) (*session, error) {
	start := c.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL+apiPath+"/b2_authorize_account", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorize request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.appKey)

	resp, err := c.api.Do(req)
	if err != nil {
		telemetry.B2APICallErrorsTotal.WithLabelValues("authorize").Inc()
		return nil, fmt.Errorf("failed to authorize with b2: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telemetry.B2APICallErrorsTotal.WithLabelValues("authorize").Inc()
		return nil, apiError("authorize", resp)
	}

	var body struct {
		AuthorizationToken string `json:"authorizationToken"`
		APIURL             string `json:"apiUrl"`
		DownloadURL        string `json:"downloadUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode authorize response: %w", err)
	}

	telemetry.B2AuthRefreshesTotal.Inc()
	telemetry.B2APICallDuration.WithLabelValues("authorize").Observe(time.Since(start).Seconds())

	return &session{
		token:       body.AuthorizationToken,
		apiURL:      strings.TrimRight(body.APIURL, "/"),
		downloadURL: strings.TrimRight(body.DownloadURL, "/"),
		expires:     c.now().Add(c.ttl),
	}, nil
}

// ---------------------------------------------------------------------------
// JSON API operations
// ---------------------------------------------------------------------------

// call performs one authorized JSON API POST. A 401 response invalidates the
// cached session and surfaces as ErrNotAuthorized so the next call starts a
// fresh session.
func (c *Client) call(ctx context.Context, op string, payload interface{}, out interface{}) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+apiPath+"/b2_"+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", s.token)
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, err := c.api.Do(req)
	if err != nil {
		telemetry.B2APICallErrorsTotal.WithLabelValues(op).Inc()
		return fmt.Errorf("b2 %s request failed: %w", op, err)
	}
	defer resp.Body.Close()
	telemetry.B2APICallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidate()
		telemetry.B2APICallErrorsTotal.WithLabelValues(op).Inc()
		return ErrNotAuthorized
	}
	if resp.StatusCode != http.StatusOK {
		telemetry.B2APICallErrorsTotal.WithLabelValues(op).Inc()
		return apiError(op, resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}
	return nil
}

// ListFiles returns every file in the bucket, up to the B2 per-call maximum
// of 10000 names.
func (c *Client) ListFiles(ctx context.Context) ([]FileInfo, error) {
	var out struct {
		Files []FileInfo `json:"files"`
	}
	err := c.call(ctx, "list_file_names", map[string]interface{}{
		"bucketId":     c.bucketID,
		"maxFileCount": 10000,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Files, nil
}

// uploadTarget is one-shot upload coordinates from b2_get_upload_url. Each
// target admits one upload at a time; callers fetch a fresh one per upload.
type uploadTarget struct {
	UploadURL string `json:"uploadUrl"`
	Token     string `json:"authorizationToken"`
}

func (c *Client) getUploadTarget(ctx context.Context) (*uploadTarget, error) {
	var out uploadTarget
	err := c.call(ctx, "get_upload_url", map[string]interface{}{
		"bucketId": c.bucketID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload stores data under fileName in the bucket. B2 keys files by name, so
// uploading an existing name adds a new version that shadows the old one.
func (c *Client) Upload(ctx context.Context, fileName, contentType string, data []byte) (*UploadResult, error) {
	target, err := c.getUploadTarget(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", target.Token)
	req.Header.Set("X-Bz-File-Name", escapeFileName(fileName))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Bz-Content-Sha1", "do_not_verify")
	req.ContentLength = int64(len(data))

	start := c.now()
	resp, err := c.api.Do(req)
	if err != nil {
		telemetry.B2APICallErrorsTotal.WithLabelValues("upload").Inc()
		return nil, fmt.Errorf("b2 upload request failed: %w", err)
	}
	defer resp.Body.Close()
	telemetry.B2APICallDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidate()
		telemetry.B2APICallErrorsTotal.WithLabelValues("upload").Inc()
		return nil, ErrNotAuthorized
	}
	if resp.StatusCode != http.StatusOK {
		telemetry.B2APICallErrorsTotal.WithLabelValues("upload").Inc()
		return nil, apiError("upload", resp)
	}

	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &out, nil
}

// Delete removes one version of a file. B2 addresses versions by the
// (fileName, fileId) pair; both are required.
func (c *Client) Delete(ctx context.Context, fileName, fileID string) error {
	return c.call(ctx, "delete_file_version", map[string]interface{}{
		"fileName": fileName,
		"fileId":   fileID,
	}, nil)
}

// ---------------------------------------------------------------------------
// Downloads
// ---------------------------------------------------------------------------

// OpenDownload starts a download of fileName, forwarding rangeHeader upstream
// when non-empty. The returned response is bound to ctx: cancelling the
// request context aborts the transfer. The response is returned for ANY
// upstream status so the caller can relay 404s and 416s verbatim; the caller
// owns resp.Body and must close it.
func (c *Client) OpenDownload(ctx context.Context, fileName, rangeHeader string) (*http.Response, error) {
	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.downloadURL(s, fileName), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", s.token)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		telemetry.B2APICallErrorsTotal.WithLabelValues("download").Inc()
		return nil, fmt.Errorf("b2 download request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Token went stale mid-session; drop it so the next request recovers.
		c.invalidate()
	}
	return resp, nil
}

// DownloadURL composes the friendly download URL for a file in the bucket.
// It is pure string composition over the cached session and never triggers an
// authorization; it returns ErrNotAuthorized when no session has ever been
// established. An expired session still composes the URL, since the download
// host does not change between authorizations.
func (c *Client) DownloadURL(fileName string) (string, error) {
	c.mu.RLock()
	s := c.sess
	c.mu.RUnlock()
	if s == nil {
		return "", ErrNotAuthorized
	}
	return c.downloadURL(s, fileName), nil
}

// downloadURL composes the friendly download URL for a file in the bucket.
func (c *Client) downloadURL(s *session, fileName string) string {
	return s.downloadURL + "/file/" + c.bucketName + "/" + escapeFileName(fileName)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// escapeFileName percent-encodes a B2 file name for use in URLs and the
// X-Bz-File-Name header. Slashes separate folder segments and stay literal;
// everything else within a segment is escaped.
func escapeFileName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// apiError converts a non-2xx JSON API response into an *Error. The body is
// drained so the connection can be reused.
func apiError(op string, resp *http.Response) error {
	e := &Error{Op: op, Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" && e.Code == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

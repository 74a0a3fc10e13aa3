// ABOUTME: Multipart file upload on top of the resilient request path
// ABOUTME: POST with multipart body; progress reported on completion only

package apiclient

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/flashvault/go-client/models"
)

// ProgressFunc receives upload progress in bytes. Known limitation: net/http
// exposes no transfer progress events, so the callback fires exactly once
// with sent == total after the request completes.
type ProgressFunc func(sent, total int64)

// UploadFile POSTs the contents of r as a multipart form file. The
// content-type is the multipart boundary type, not JSON; everything else
// (auth, tracing headers, timeout, retry, status handling) matches Do.
func (c *Client) UploadFile(ctx context.Context, path, field, filename string, r io.Reader, progress ProgressFunc, rc *models.RequestConfig) *models.Envelope {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(field, filename)
	if err == nil {
		_, err = io.Copy(part, r)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		slog.Error("failed to build multipart body", "path", path, "error", err)
		return &models.Envelope{Success: false, Message: "Failed to prepare upload", Error: "upload_error"}
	}

	payload := buf.Bytes()
	env := c.send(ctx, http.MethodPost, path, payload, w.FormDataContentType(), rc)

	if progress != nil {
		progress(int64(len(payload)), int64(len(payload)))
	}
	return env
}

package stt

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 2048

// NewUploadRequest builds a multipart/form-data POST to url carrying the
// recording under field, plus any extra form fields (written in key order).
func NewUploadRequest(ctx context.Context, url, field string, a Audio, fields map[string]string) (*http.Request, error) {
	a = a.WithDefaults()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, a.Filename))
	h.Set("Content-Type", a.ContentType)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err := fw.Write(a.Data); err != nil {
		return nil, fmt.Errorf("stt: write audio: %w", err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("stt: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("stt: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("stt: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// TruncateBody shortens a response body for inclusion in a [StatusError].
func TruncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

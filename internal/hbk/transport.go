package hbk

import (
	"context"
	"io"
)

// Transport sends a single request to the backend.
// path is relative to the backend base (e.g. "/backups/abc/pin") and body,
// when non-nil, is sent as JSON. A non-nil error means no response was
// received; any received response, whatever its status, is returned with a
// nil error and the caller must close Body.
type Transport interface {
	Do(ctx context.Context, method, path string, body []byte) (*Response, error)
}

// Response is the part of a backend response the core inspects.
type Response struct {
	Status     int
	StatusText string
	Body       io.ReadCloser
}

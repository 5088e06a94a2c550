package testutil

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hbk-go/internal/fakeapi"
	"hbk-go/internal/transport"
)

// FakeBackend is a running fake backend plus a transport pointed at it.
type FakeBackend struct {
	*fakeapi.Server
	URL       string
	Transport *transport.HTTPTransport
}

// NewFakeBackend starts a fake backend on a local port. It is shut down
// when the test completes. Backup ids are "op-1", "op-2", etc.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := fakeapi.New(NewStubIDGenerator(), FixedClock(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	tr, err := transport.New(transport.Options{
		BaseURL: ts.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("creating transport: %v", err)
	}
	return &FakeBackend{Server: srv, URL: ts.URL, Transport: tr}
}

package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"hbk-go/internal/hbk"
)

// Call is a request observed by a StubTransport.
type Call struct {
	Method string
	Path   string
	Body   string
}

// StubReply is a scripted transport outcome. Err set means no response.
type StubReply struct {
	Status int
	Body   string
	Err    error
}

// ErrUnscripted is returned for requests with no scripted reply.
var ErrUnscripted = errors.New("stub transport: no reply scripted")

// StubTransport replays scripted replies keyed by "METHOD path" and records
// every call. Replies queued for the same key are consumed in order; the
// last one is repeated. Safe for concurrent use.
type StubTransport struct {
	mu      sync.Mutex
	replies map[string][]StubReply
	calls   []Call
	// Before, if set, runs at the start of every Do call.
	Before func(method, path string)
}

func NewStubTransport() *StubTransport {
	return &StubTransport{replies: make(map[string][]StubReply)}
}

// On queues a reply for method and path.
func (t *StubTransport) On(method, path string, reply StubReply) *StubTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := method + " " + path
	t.replies[key] = append(t.replies[key], reply)
	return t
}

// Calls returns the recorded calls in order.
func (t *StubTransport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallCount returns how many calls were made to method and path.
func (t *StubTransport) CallCount(method, path string) int {
	n := 0
	for _, c := range t.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (t *StubTransport) Do(ctx context.Context, method, path string, body []byte) (*hbk.Response, error) {
	if t.Before != nil {
		t.Before(method, path)
	}

	t.mu.Lock()
	t.calls = append(t.calls, Call{Method: method, Path: path, Body: string(body)})
	key := method + " " + path
	queue := t.replies[key]
	var reply StubReply
	found := len(queue) > 0
	if found {
		reply = queue[0]
		if len(queue) > 1 {
			t.replies[key] = queue[1:]
		}
	}
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnscripted
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &hbk.Response{
		Status:     reply.Status,
		StatusText: http.StatusText(reply.Status),
		Body:       io.NopCloser(bytes.NewBufferString(reply.Body)),
	}, nil
}

var _ hbk.Transport = (*StubTransport)(nil)

package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps archives in memory. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	archives map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{archives: make(map[string][]byte)}
}

func (m *MemoryStore) Create(_ context.Context, name string) (Writer, error) {
	return &memoryWriter{store: m, name: name}, nil
}

func (m *MemoryStore) Get(_ context.Context, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.archives[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (m *MemoryStore) Location(name string) string { return "memory:" + name }

// Names returns the committed archive names.
func (m *MemoryStore) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.archives))
	for k := range m.archives {
		out = append(out, k)
	}
	return out
}

type memoryWriter struct {
	store *MemoryStore
	name  string
	buf   bytes.Buffer
	done  bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("write to finished archive %s", w.name)
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Commit() error {
	if w.done {
		return fmt.Errorf("archive %s already finished", w.name)
	}
	w.done = true
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.archives[w.name] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

func (w *memoryWriter) Abort() { w.done = true }

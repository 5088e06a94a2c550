package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemStore writes archives into a directory. Archives are written to
// a temp file in the same directory and renamed into place on Commit, so a
// failed download never leaves a partial file under the final name.
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates root if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) Create(_ context.Context, name string) (Writer, error) {
	dest, err := s.path(name)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	return &fileWriter{f: tmp, dest: dest}, nil
}

func (s *FileSystemStore) Get(_ context.Context, name string, w io.Writer) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	return nil
}

func (s *FileSystemStore) Location(name string) string {
	return filepath.Join(s.root, name)
}

// path rejects names that would escape the root.
func (s *FileSystemStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid archive name %q", name)
	}
	return filepath.Join(s.root, name), nil
}

type fileWriter struct {
	f    *os.File
	dest string
	done bool
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *fileWriter) Commit() error {
	if w.done {
		return fmt.Errorf("archive %s already finished", w.dest)
	}
	w.done = true
	tmpPath := w.f.Name()
	if err := w.f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, w.dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving archive into place: %w", err)
	}
	return nil
}

func (w *fileWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.f.Close()
	os.Remove(w.f.Name())
}

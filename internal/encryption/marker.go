package encryption

import (
	"bytes"
	"fmt"
	"io"
)

// markerHeader is what MarkerEncryptor puts in front of the plaintext.
var markerHeader = []byte("HBKENC\x00\x00")

// MarkerEncryptor is a deterministic stand-in for tests. It prefixes the data
// with a fixed header instead of encrypting it, so output differs from the
// input and is trivially reversible.
type MarkerEncryptor struct{}

var _ Encryptor = (*MarkerEncryptor)(nil)

func NewMarkerEncryptor() *MarkerEncryptor { return &MarkerEncryptor{} }

func (*MarkerEncryptor) Setup(string) error { return nil }

func (*MarkerEncryptor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	if _, err := w.Write(markerHeader); err != nil {
		return nil, fmt.Errorf("writing marker header: %w", err)
	}
	return nopCloser{w}, nil
}

func (*MarkerEncryptor) Unlock(string) (DecryptionContext, error) {
	return markerDecryptor{}, nil
}

func (*MarkerEncryptor) IsConfigured() bool { return true }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type markerDecryptor struct{}

func (markerDecryptor) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(markerHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading marker header: %w", err)
	}
	if !bytes.Equal(header, markerHeader) {
		return fmt.Errorf("invalid marker header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

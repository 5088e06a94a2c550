// Package encryption encrypts downloaded backup archives before they are
// written to disk or uploaded.
package encryption

import (
	"fmt"
	"io"

	"hbk-go/internal/config"
)

// Encryptor encrypts archive streams to the configured key pair.
type Encryptor interface {
	// Setup creates the key pair, protecting the private key with passphrase.
	Setup(passphrase string) error
	// NewWriter returns a writer that encrypts everything written to it
	// into w. Close must be called to flush the final block.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// Unlock opens the private key for decryption.
	Unlock(passphrase string) (DecryptionContext, error)
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// NewEncryptorFromConfig returns the encryptor selected by cfg.Type, or nil
// when encryption is disabled.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (Encryptor, error) {
	switch cfg.Type {
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption needs public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "marker":
		return NewMarkerEncryptor(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

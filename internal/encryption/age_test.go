package encryption

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"hbk-go/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "keys", "hbk.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "hbk.key"),
	})
}

func encrypt(t *testing.T, e Encryptor, plain []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	w, err := e.NewWriter(&out)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return out.Bytes()
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if e.IsConfigured() {
		t.Fatal("IsConfigured() = true before Setup")
	}

	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}
	if err := e.Setup("correct horse"); err == nil {
		t.Error("second Setup() should refuse to overwrite keys")
	}
}

func TestAgeEncryptor_SetupEmptyPassphrase(t *testing.T) {
	t.Parallel()
	if err := newTestAgeEncryptor(t).Setup(""); err == nil {
		t.Error("Setup(\"\") should fail")
	}
}

func TestAgeEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "archive bytes", input: []byte("hbk-archive:abc")},
		{name: "empty", input: []byte{}},
		{name: "large", input: bytes.Repeat([]byte("tar"), 100000)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newTestAgeEncryptor(t)
			if err := e.Setup("pass"); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			cipher := encrypt(t, e, tt.input)
			if len(tt.input) > 0 && bytes.Contains(cipher, tt.input) {
				t.Error("ciphertext contains plaintext")
			}

			dc, err := e.Unlock("pass")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var plain bytes.Buffer
			if err := dc.Decrypt(bytes.NewReader(cipher), &plain); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain.Bytes(), tt.input) {
				t.Errorf("round trip got %d bytes, want %d", plain.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_WrongPassphrase(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if err := e.Setup("right"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := e.Unlock("wrong"); err == nil {
		t.Error("Unlock() with wrong passphrase should fail")
	}
}

func TestAgeEncryptor_BeforeSetup(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)

	if _, err := e.NewWriter(&bytes.Buffer{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewWriter() error = %v, want ErrNotConfigured", err)
	}
	if _, err := e.Unlock("x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Unlock() error = %v, want ErrNotConfigured", err)
	}
}

func TestMarkerEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()
	e := NewMarkerEncryptor()
	cipher := encrypt(t, e, []byte("data"))
	if bytes.Equal(cipher, []byte("data")) {
		t.Fatal("marker output equals input")
	}

	dc, _ := e.Unlock("")
	var plain bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(cipher), &plain); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain.String() != "data" {
		t.Errorf("Decrypt() = %q, want data", plain.String())
	}

	if err := dc.Decrypt(bytes.NewReader([]byte("plain data")), &plain); err == nil {
		t.Error("Decrypt() of unmarked data should fail")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EncryptionConfig
		wantNil bool
		wantErr bool
	}{
		{name: "disabled", cfg: config.EncryptionConfig{}, wantNil: true},
		{name: "none", cfg: config.EncryptionConfig{Type: "none"}, wantNil: true},
		{name: "marker", cfg: config.EncryptionConfig{Type: "marker"}},
		{name: "age", cfg: config.EncryptionConfig{Type: "age", PublicKeyPath: "/k.pub", PrivateKeyPath: "/k.key"}},
		{name: "age without paths", cfg: config.EncryptionConfig{Type: "age"}, wantErr: true},
		{name: "unknown", cfg: config.EncryptionConfig{Type: "gpg"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptorFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (got == nil) != tt.wantNil {
				t.Errorf("NewEncryptorFromConfig() = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}

package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSealOpen(t *testing.T) {
	key := []byte("thisis32byteslongsecretkey123456")
	plaintext := []byte(`{"access_token":"abc"}`)

	sealed, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if sealed == string(plaintext) {
		t.Fatal("Ciphertext should not be equal to plaintext")
	}

	opened, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Errorf("Expected %s, got %s", plaintext, opened)
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	key1 := []byte("thisis32byteslongsecretkey123456")
	key2 := []byte("another32byteslongsecretkey65432")

	sealed, err := Seal([]byte("Secret message"), key1)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if _, err := Open(sealed, key2); err != ErrDecrypt {
		t.Errorf("Expected ErrDecrypt with wrong key, got %v", err)
	}
}

func TestOpenTooShort(t *testing.T) {
	key := []byte("thisis32byteslongsecretkey123456")
	if _, err := Open("AAAA", key); err != ErrCiphertextTooShort {
		t.Errorf("Expected ErrCiphertextTooShort, got %v", err)
	}
	if _, err := Open("%%%not-base64", key); err == nil {
		t.Error("Expected decoding error")
	}
}

func TestSealInvalidKeySize(t *testing.T) {
	if _, err := Seal([]byte("x"), []byte("short")); err == nil {
		t.Error("Expected error for invalid key size")
	}
}

func TestDeriveKey_PurposeSeparation(t *testing.T) {
	secret := []byte("thisis32byteslongsecretkey123456")
	a, err := DeriveKey(secret, "session")
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	b, _ := DeriveKey(secret, "other")
	again, _ := DeriveKey(secret, "session")

	if len(a) != KeySize {
		t.Errorf("Expected %d byte key, got %d", KeySize, len(a))
	}
	if string(a) == string(b) {
		t.Error("Different purposes should derive different keys")
	}
	if string(a) != string(again) {
		t.Error("Derivation should be deterministic")
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "key")

	k1, err := LoadOrCreateKey(path, "session")
	if err != nil {
		t.Fatalf("LoadOrCreateKey failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected 0600 key file, got %v", info.Mode().Perm())
	}

	k2, err := LoadOrCreateKey(path, "session")
	if err != nil {
		t.Fatalf("second LoadOrCreateKey failed: %v", err)
	}
	if string(k1) != string(k2) {
		t.Error("Reloading the key file should yield the same key")
	}
}

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert failed: %v", err)
	}
	if len(cert.Certificate) != 1 {
		t.Fatalf("Expected one DER certificate, got %d", len(cert.Certificate))
	}
	if IsExpired(cert) {
		t.Error("Fresh certificate should not be expired")
	}
}

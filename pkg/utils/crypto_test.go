package utils

import (
	"strings"
	"testing"
)

var cryptoKey = []byte("0123456789abcdef0123456789abcdef")

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []string{
		"short",
		"",
		"a much longer secret with spaces and symbols !@#$%",
	}

	for _, plaintext := range tests {
		encrypted, err := Encrypt([]byte(plaintext), cryptoKey)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", plaintext, err)
		}
		if encrypted == plaintext && plaintext != "" {
			t.Fatalf("ciphertext equals plaintext for %q", plaintext)
		}

		decrypted, err := Decrypt(encrypted, cryptoKey)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if decrypted != plaintext {
			t.Fatalf("round trip got %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	t.Parallel()

	a, err := Encrypt([]byte("same input"), cryptoKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := Encrypt([]byte("same input"), cryptoKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same input produced identical output")
	}
}

func TestDecryptRejectsTamperedInput(t *testing.T) {
	t.Parallel()

	encrypted, err := Encrypt([]byte("secret"), cryptoKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := Decrypt("not base64 !!!", cryptoKey); err == nil {
		t.Fatal("Decrypt accepted invalid base64")
	}
	if _, err := Decrypt("c2hvcnQ=", cryptoKey); err == nil {
		t.Fatal("Decrypt accepted data shorter than a nonce")
	}

	tampered := strings.Replace(encrypted, encrypted[:1], "A", 1)
	if tampered != encrypted {
		if _, err := Decrypt(tampered, cryptoKey); err == nil {
			t.Fatal("Decrypt accepted tampered ciphertext")
		}
	}

	wrongKey := []byte("ffffffffffffffffffffffffffffffff")
	if _, err := Decrypt(encrypted, wrongKey); err == nil {
		t.Fatal("Decrypt accepted the wrong key")
	}
}

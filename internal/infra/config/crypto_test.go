package config

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	enc, err := EncryptValue("my-secret-value", "passphrase")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if !strings.Contains(enc, ":") {
		t.Errorf("encrypted value = %q, want salt:ciphertext format", enc)
	}

	plain, err := DecryptValue(enc, "passphrase")
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if plain != "my-secret-value" {
		t.Errorf("decrypted = %q", plain)
	}
}

func TestEncryptIsSalted(t *testing.T) {
	a, err := EncryptValue("same", "pass")
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncryptValue("same", "pass")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("identical ciphertexts for same plaintext, salt not applied")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	enc, err := EncryptValue("secret", "right")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptValue(enc, "wrong"); err == nil {
		t.Error("decryption succeeded with wrong passphrase")
	}
}

func TestDecryptMalformed(t *testing.T) {
	for _, input := range []string{"", "no-separator", "zzzz:zzzz", "abcd:12"} {
		if _, err := DecryptValue(input, "pass"); err == nil {
			t.Errorf("input %q: expected error", input)
		}
	}
}

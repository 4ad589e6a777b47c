package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

const hexKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := New(hexKey)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	plain := []byte("%PDF-1.3 payslip")
	sealed, err := svc.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatal("expected ciphertext not to contain plaintext")
	}
	opened, err := svc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Fatalf("expected %q, got %q", plain, opened)
	}
	if _, err := svc.Decrypt([]byte("short")); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestNewKeyFormats(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, 32)
	for _, key := range []string{hexKey, base64.StdEncoding.EncodeToString(raw), "payslip-documents-key-0123456789"} {
		svc, err := New(key)
		if err != nil {
			t.Fatalf("key %q: %v", key, err)
		}
		if !svc.Configured() {
			t.Fatalf("key %q: expected configured service", key)
		}
	}
	if _, err := New("too-short"); err == nil {
		t.Fatal("expected short key to be rejected")
	}
	svc, err := New("")
	if err != nil || svc.Configured() {
		t.Fatalf("expected empty key to disable encryption, err=%v", err)
	}
	out, _ := svc.Encrypt([]byte("plain"))
	if string(out) != "plain" {
		t.Fatalf("expected passthrough without key, got %q", out)
	}
}

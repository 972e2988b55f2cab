package utils

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	c, err := NewTokenCipher("not-a-real-secret")
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}

	sealed, err := c.Encrypt("AQX-access-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(sealed, "AQX") {
		t.Fatalf("ciphertext leaks plaintext: %q", sealed)
	}
	again, _ := c.Encrypt("AQX-access-token")
	if again == sealed {
		t.Fatal("two encryptions share a nonce")
	}

	plain, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "AQX-access-token" {
		t.Fatalf("Decrypt = %q", plain)
	}
}

func TestTokenCipherRejectsOtherKey(t *testing.T) {
	a, _ := NewTokenCipher("first")
	b, _ := NewTokenCipher("second")

	sealed, err := a.Encrypt("token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(sealed); err == nil {
		t.Fatal("expected decrypt with another key to fail")
	}
	if _, err := a.Decrypt("c2hvcnQ="); err == nil {
		t.Fatal("expected short ciphertext to fail")
	}
}

func TestTokenCipherEmpty(t *testing.T) {
	if _, err := NewTokenCipher(""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("NewTokenCipher(\"\") err = %v", err)
	}
	c, _ := NewTokenCipher("k")
	if s, err := c.Encrypt(""); err != nil || s != "" {
		t.Fatalf("Encrypt(\"\") = %q, %v", s, err)
	}
	if s, err := c.Decrypt(""); err != nil || s != "" {
		t.Fatalf("Decrypt(\"\") = %q, %v", s, err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", "cron", "automation", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken("secret", token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Name != "cron" || claims.Role != "automation" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ValidateToken("other", token); err == nil {
		t.Fatal("expected a wrong secret to fail")
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := GenerateToken("secret", "cron", "", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken("secret", token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	b, _ := GenerateSecret(32)
	if a == b || len(a) < 40 {
		t.Fatalf("secrets %q %q", a, b)
	}
}

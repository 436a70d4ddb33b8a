package auth

import (
	"net/http/httptest"
	"testing"
)

// TestVerifyPassword tests the password check including the locked-out
// empty-password configuration.
func TestVerifyPassword(t *testing.T) {
	verifier := NewVerifier("hunter2")
	if !verifier.VerifyPassword("hunter2") {
		t.Fatalf("expected matching password to verify")
	}
	if verifier.VerifyPassword("wrong") {
		t.Fatalf("expected mismatch to fail")
	}
	if verifier.VerifyPassword("") {
		t.Fatalf("expected empty supplied password to fail")
	}

	unset := NewVerifier("")
	if unset.VerifyPassword("") || unset.VerifyPassword("anything") {
		t.Fatalf("expected unset password to lock admin access out")
	}
}

// TestVerifyRequest tests bearer header extraction.
func TestVerifyRequest(t *testing.T) {
	verifier := NewVerifier("hunter2")

	req := httptest.NewRequest("GET", "/api/events", nil)
	if verifier.VerifyRequest(req) {
		t.Fatalf("expected missing header to fail")
	}

	req.Header.Set("Authorization", "Bearer hunter2")
	if !verifier.VerifyRequest(req) {
		t.Fatalf("expected valid bearer token to verify")
	}

	req.Header.Set("Authorization", "Basic hunter2")
	if verifier.VerifyRequest(req) {
		t.Fatalf("expected non-bearer scheme to fail")
	}
}

// TestToken tests the password-for-token exchange.
func TestToken(t *testing.T) {
	verifier := NewVerifier("hunter2")
	token, ok := verifier.Token("hunter2")
	if !ok || token == "" {
		t.Fatalf("expected token for valid password")
	}
	if _, ok := verifier.Token("wrong"); ok {
		t.Fatalf("expected no token for invalid password")
	}
}

package crypto

import "testing"

func TestRefreshTokensAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := NewRefreshToken(32)
		if err != nil {
			t.Fatalf("token error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated")
		}
		seen[token] = true
	}
}

func TestRefreshTokenSize(t *testing.T) {
	// base64url without padding: 4 characters per 3 bytes.
	token, err := NewRefreshToken(48)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("48-byte token encoded to %d chars, want 64", len(token))
	}

	// Undersized requests are floored, never honored.
	token, err = NewRefreshToken(4)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if len(token) != 43 {
		t.Fatalf("floored token encoded to %d chars, want 43", len(token))
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	token, err := NewRefreshToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if HashToken(token) != HashToken(token) {
		t.Fatalf("expected stable hash")
	}
	if HashToken(token) == token {
		t.Fatalf("hash must differ from the raw token")
	}
}

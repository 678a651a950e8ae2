package auth

import (
	"testing"
	"time"
)

func newTestManager(secret string, clock func() time.Time) *TokenManager {
	return NewTokenManager(TokenManagerConfig{
		SigningSecret: []byte(secret),
		Issuer:        "woodshed-auth",
		Audience:      "woodshed-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	manager := newTestManager("secret", clock)

	token, expiresIn, err := manager.IssueToken("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("unexpected expiry: %d", expiresIn)
	}

	subject, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("unexpected subject: %q", subject)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issueClock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	manager := newTestManager("secret", issueClock)

	token, _, err := manager.IssueToken("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lateClock := func() time.Time { return time.Unix(1700000000, 0).Add(2 * time.Hour).UTC() }
	late := newTestManager("secret", lateClock)
	if _, err := late.ValidateToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }
	manager := newTestManager("secret", clock)

	token, _, err := manager.IssueToken("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := newTestManager("different", clock)
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestIssueRequiresSubjectAndSecret(t *testing.T) {
	clock := func() time.Time { return time.Unix(1700000000, 0).UTC() }

	manager := newTestManager("secret", clock)
	if _, _, err := manager.IssueToken(""); err == nil {
		t.Fatalf("expected empty subject to be rejected")
	}

	unkeyed := NewTokenManager(TokenManagerConfig{Clock: clock})
	if _, _, err := unkeyed.IssueToken("user-1"); err == nil {
		t.Fatalf("expected missing secret to be rejected")
	}
}

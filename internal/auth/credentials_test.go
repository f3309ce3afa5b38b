package auth

import (
	"errors"
	"testing"
)

func TestCredentialCheckerVerify(t *testing.T) {
	checker, err := NewCredentialChecker("  connector-token-0123  ")
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	if err := checker.Verify("connector-token-0123"); err != nil {
		t.Fatalf("expected matching token to verify: %v", err)
	}
	for _, presented := range []string{"", "connector-token-012", "connector-token-01234", "CONNECTOR-TOKEN-0123"} {
		if err := checker.Verify(presented); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected %q to be rejected, got %v", presented, err)
		}
	}
}

func TestNewCredentialCheckerRequiresToken(t *testing.T) {
	if _, err := NewCredentialChecker("   "); err == nil {
		t.Fatalf("expected error for blank token")
	}
}

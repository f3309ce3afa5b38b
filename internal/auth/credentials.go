package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrInvalidCredentials indicates a connector token that does not match the configured one.
var ErrInvalidCredentials = errors.New("auth: invalid connector token")

var errMissingConnectorToken = errors.New("auth: connector token required")

// CredentialChecker compares the token an ERP client presents with the configured connector token.
type CredentialChecker struct {
	token []byte
}

// NewCredentialChecker constructs a CredentialChecker for token.
func NewCredentialChecker(token string) (*CredentialChecker, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errMissingConnectorToken
	}
	return &CredentialChecker{token: []byte(trimmed)}, nil
}

// Verify reports ErrInvalidCredentials unless presented equals the connector token. The
// comparison takes constant time.
func (c *CredentialChecker) Verify(presented string) error {
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), c.token) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

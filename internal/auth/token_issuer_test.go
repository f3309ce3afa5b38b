package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSigningSecret = "super-secret"
	testIssuer        = "erplink"
	testAudience      = "erplink-rpc"
	testSubject       = "connector"
)

func newTestIssuer(t *testing.T, clock func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	session, err := issuer.Issue(testSubject)
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if session.ExpiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", session.ExpiresIn)
	}
	if session.ID == "" {
		t.Fatalf("expected a session id")
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.NewParser().ParseWithClaims(session.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSigningSecret), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != testSubject {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != testIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != testAudience {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
	if claims.ID != session.ID {
		t.Fatalf("expected jti %s, got %s", session.ID, claims.ID)
	}

	other, err := issuer.Issue(testSubject)
	if err != nil {
		t.Fatalf("unexpected error issuing second token: %v", err)
	}
	if other.ID == session.ID {
		t.Fatalf("expected distinct session ids")
	}
}

func TestTokenIssuerValidatesIssuedTokens(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	session, err := issuer.Issue(testSubject)
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	claims, err := issuer.Validate(session.Token)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if claims.Subject != testSubject {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}

	if _, err := issuer.Validate("invalid.token"); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if _, err := issuer.Validate("  "); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return now })

	session, err := issuer.Issue(testSubject)
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	now = now.Add(31 * time.Minute)

	if _, err := issuer.Validate(session.Token); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestTokenIssuerRejectsForeignTokens(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	now := time.Now()

	cases := map[string]struct {
		method jwt.SigningMethod
		key    any
		claims jwt.RegisteredClaims
	}{
		"wrong secret": {
			method: jwt.SigningMethodHS256,
			key:    []byte("other-secret"),
			claims: jwt.RegisteredClaims{Subject: testSubject, Issuer: testIssuer, Audience: []string{testAudience}, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		},
		"wrong audience": {
			method: jwt.SigningMethodHS256,
			key:    []byte(testSigningSecret),
			claims: jwt.RegisteredClaims{Subject: testSubject, Issuer: testIssuer, Audience: []string{"billing-api"}, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		},
		"wrong algorithm": {
			method: jwt.SigningMethodHS512,
			key:    []byte(testSigningSecret),
			claims: jwt.RegisteredClaims{Subject: testSubject, Issuer: testIssuer, Audience: []string{testAudience}, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
		},
		"no expiry": {
			method: jwt.SigningMethodHS256,
			key:    []byte(testSigningSecret),
			claims: jwt.RegisteredClaims{Subject: testSubject, Issuer: testIssuer, Audience: []string{testAudience}},
		},
	}
	for name, testCase := range cases {
		signed, err := jwt.NewWithClaims(testCase.method, testCase.claims).SignedString(testCase.key)
		if err != nil {
			t.Fatalf("%s: failed to sign token: %v", name, err)
		}
		if _, err := issuer.Validate(signed); !errors.Is(err, ErrInvalidSessionToken) {
			t.Fatalf("%s: expected invalid token error, got %v", name, err)
		}
	}
}

func TestNewTokenIssuerValidatesConfig(t *testing.T) {
	base := TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        testIssuer,
		Audience:      testAudience,
		TokenTTL:      5 * time.Minute,
	}
	cases := map[string]struct {
		mutate func(*TokenIssuerConfig)
		want   error
	}{
		"missing secret":   {mutate: func(cfg *TokenIssuerConfig) { cfg.SigningSecret = nil }, want: ErrMissingSigningSecret},
		"missing issuer":   {mutate: func(cfg *TokenIssuerConfig) { cfg.Issuer = "" }, want: ErrMissingIssuer},
		"missing audience": {mutate: func(cfg *TokenIssuerConfig) { cfg.Audience = " " }, want: ErrMissingAudience},
		"zero ttl":         {mutate: func(cfg *TokenIssuerConfig) { cfg.TokenTTL = 0 }, want: ErrInvalidTokenTTL},
	}
	for name, testCase := range cases {
		cfg := base
		testCase.mutate(&cfg)
		if _, err := NewTokenIssuer(cfg); !errors.Is(err, testCase.want) {
			t.Fatalf("%s: expected %v, got %v", name, testCase.want, err)
		}
	}
}

func TestTokenIssuerRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	if _, err := issuer.Issue(" "); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

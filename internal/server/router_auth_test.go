package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/erplink/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodPost, "/rpc", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		tokens: stubSessionTokenManager{validateErr: auth.ErrExpiredSessionToken},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodPost, "/rpc", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		tokens: stubSessionTokenManager{validateErr: errors.New("signature mismatch")},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entries[0].Level)
	}
	if entries[0].Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entries[0].Message)
	}
}

func TestAuthorizeRequestRejectsMissingBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, header := range []string{"", "Basic abc", "Bearer   "} {
		recorder := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(recorder)
		request := httptest.NewRequest(http.MethodPost, "/rpc", http.NoBody)
		if header != "" {
			request.Header.Set("Authorization", header)
		}
		ctx.Request = request

		handler := &httpHandler{tokens: stubSessionTokenManager{}, logger: zap.NewNop()}
		handler.authorizeRequest(ctx)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, recorder.Code)
		}
		if !ctx.IsAborted() {
			t.Fatalf("header %q: expected the chain to abort", header)
		}
	}
}

func TestAuthorizeRequestStoresSessionClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodPost, "/rpc", http.NoBody)
	request.Header.Set("Authorization", "Bearer good-token")
	ctx.Request = request

	handler := &httpHandler{
		tokens: stubSessionTokenManager{claims: jwt.RegisteredClaims{Subject: connectorSubject, ID: "session-1"}},
		logger: zap.NewNop(),
	}
	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to pass, got status %d", recorder.Code)
	}
	if ctx.GetString(sessionSubjectContextKey) != connectorSubject {
		t.Fatalf("unexpected subject %q", ctx.GetString(sessionSubjectContextKey))
	}
	if ctx.GetString(sessionIDContextKey) != "session-1" {
		t.Fatalf("unexpected session id %q", ctx.GetString(sessionIDContextKey))
	}
}

func TestHandleAuthIssuesSessionForValidToken(t *testing.T) {
	env := newTestEnvironment(t)

	recorder := env.perform(http.MethodPost, "/auth", `{"token":"`+testConnectorToken+`"}`, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response authResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	if response.TokenType != "Bearer" || response.AccessToken == "" || response.SessionID == "" {
		t.Fatalf("unexpected auth response %+v", response)
	}
	if response.ExpiresIn != int64(testSessionTTL.Seconds()) {
		t.Fatalf("unexpected expires_in %d", response.ExpiresIn)
	}
	claims, err := env.tokens.Validate(response.AccessToken)
	if err != nil {
		t.Fatalf("issued token did not validate: %v", err)
	}
	if claims.Subject != connectorSubject {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestHandleAuthRejectsInvalidRequests(t *testing.T) {
	env := newTestEnvironment(t)
	testCases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed json", body: `{"token":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing token", body: `{}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "wrong token", body: `{"token":"not-the-token"}`, status: http.StatusUnauthorized, code: "unauthorized"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := env.perform(http.MethodPost, "/auth", testCase.body, "")
			if recorder.Code != testCase.status {
				t.Fatalf("expected %d, got %d: %s", testCase.status, recorder.Code, recorder.Body.String())
			}
			if !strings.Contains(recorder.Body.String(), `"error":"`+testCase.code+`"`) {
				t.Fatalf("expected error code %q, got %s", testCase.code, recorder.Body.String())
			}
		})
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	env := newTestEnvironment(t)
	testCases := []struct {
		name string
		deps Dependencies
		want error
	}{
		{name: "credentials", deps: Dependencies{TokenManager: env.tokens, Registry: env.registry}, want: errMissingCredentials},
		{name: "tokens", deps: Dependencies{Credentials: env.credentials, Registry: env.registry}, want: errMissingTokenManager},
		{name: "registry", deps: Dependencies{Credentials: env.credentials, TokenManager: env.tokens}, want: errMissingRegistry},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewHTTPHandler(testCase.deps); !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnvironment(t)
	recorder := env.perform(http.MethodGet, "/healthz", "", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

type stubSessionTokenManager struct {
	claims      jwt.RegisteredClaims
	validateErr error
}

func (s stubSessionTokenManager) Issue(string) (auth.Session, error) {
	return auth.Session{}, errors.New("not implemented")
}

func (s stubSessionTokenManager) Validate(string) (jwt.RegisteredClaims, error) {
	if s.validateErr != nil {
		return jwt.RegisteredClaims{}, s.validateErr
	}
	return s.claims, nil
}

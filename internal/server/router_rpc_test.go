package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/erplink/internal/auth"
	"github.com/MarcoPoloResearchLab/erplink/internal/connector"
	"github.com/MarcoPoloResearchLab/erplink/internal/database"
	"github.com/MarcoPoloResearchLab/erplink/internal/linking"
	"github.com/MarcoPoloResearchLab/erplink/internal/metrics"
	"github.com/MarcoPoloResearchLab/erplink/internal/storeerr"
	"github.com/MarcoPoloResearchLab/erplink/internal/storefront"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testConnectorToken = "connector-secret-token"
	testSessionTTL     = 15 * time.Minute
)

type testEnvironment struct {
	t           *testing.T
	db          *gorm.DB
	credentials *auth.CredentialChecker
	tokens      *auth.TokenIssuer
	registry    *connector.Registry
	handler     http.Handler
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{
		Driver:   database.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "server.db"),
		LogLevel: "silent",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	registry, err := connector.NewRegistry(connector.RegistryConfig{
		Database: db,
		Options:  connector.Options{IncludeCompletedOrders: true, ManageStock: true, PriceDecimals: 2},
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	credentials, err := auth.NewCredentialChecker(testConnectorToken)
	if err != nil {
		t.Fatalf("build credential checker: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("server-test-signing-secret"),
		Issuer:        "erplink",
		Audience:      "erplink-rpc",
		TokenTTL:      testSessionTTL,
	})
	if err != nil {
		t.Fatalf("build token issuer: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		Credentials:  credentials,
		TokenManager: tokens,
		Registry:     registry,
		Metrics:      metrics.NewRecorder(),
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return &testEnvironment{t: t, db: db, credentials: credentials, tokens: tokens, registry: registry, handler: handler}
}

func (e *testEnvironment) perform(method, path, body, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	request := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func (e *testEnvironment) session() string {
	e.t.Helper()
	session, err := e.tokens.Issue(connectorSubject)
	if err != nil {
		e.t.Fatalf("issue session: %v", err)
	}
	return session.Token
}

func (e *testEnvironment) call(method, params string) *httptest.ResponseRecorder {
	e.t.Helper()
	body := `{"method":"` + method + `"`
	if params != "" {
		body += `,"params":` + params
	}
	body += "}"
	return e.perform(http.MethodPost, "/rpc", body, e.session())
}

func decodeResult(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var envelope struct {
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Result, target); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestRPCRequiresSession(t *testing.T) {
	env := newTestEnvironment(t)
	recorder := env.perform(http.MethodPost, "/rpc", `{"method":"core.connector.features"}`, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestRPCFeaturesListsSupportedOperations(t *testing.T) {
	env := newTestEnvironment(t)
	var result struct {
		Entities map[string][]string `json:"entities"`
	}
	decodeResult(t, env.call("core.connector.features", ""), &result)

	if len(result.Entities) != 10 {
		t.Fatalf("expected 10 kinds, got %d: %v", len(result.Entities), result.Entities)
	}
	if got := strings.Join(result.Entities["product_price"], ","); got != "push" {
		t.Fatalf("unexpected product_price operations %q", got)
	}
}

func TestRPCShippingClassPushThenPull(t *testing.T) {
	env := newTestEnvironment(t)
	for _, class := range []storefront.ShippingClass{{ID: 1, Name: "Bulky", Slug: "bulky"}, {ID: 2, Name: "Letter", Slug: "letter"}} {
		if err := env.db.Create(&class).Error; err != nil {
			t.Fatalf("seed shipping class: %v", err)
		}
	}

	pushRecorder := env.call("shipping_class.push", `{"entities":[{"id":{"host":7},"name":"Bulky goods","slug":"bulky"}]}`)
	var pushed struct {
		Batch        string                    `json:"batch"`
		Entities     []connector.ShippingClass `json:"entities"`
		SoftFailures []json.RawMessage         `json:"soft_failures"`
	}
	decodeResult(t, pushRecorder, &pushed)
	if pushed.Batch == "" || pushRecorder.Header().Get(batchIDHeaderKey) != pushed.Batch {
		t.Fatalf("expected batch id in body and header, got %q and %q", pushed.Batch, pushRecorder.Header().Get(batchIDHeaderKey))
	}
	if len(pushed.Entities) != 1 || pushed.Entities[0].ID.Endpoint != "1" {
		t.Fatalf("unexpected pushed entities %+v", pushed.Entities)
	}
	if len(pushed.SoftFailures) != 0 {
		t.Fatalf("expected no soft failures, got %d", len(pushed.SoftFailures))
	}

	var pulled struct {
		Entities []connector.ShippingClass `json:"entities"`
	}
	decodeResult(t, env.call("shipping_class.pull", `{"limit":10}`), &pulled)
	if len(pulled.Entities) != 1 || pulled.Entities[0].Slug != "letter" {
		t.Fatalf("expected only the unlinked class, got %+v", pulled.Entities)
	}

	var statistic struct {
		Kind      string `json:"kind"`
		Available int64  `json:"available"`
	}
	decodeResult(t, env.call("shipping_class.statistic", ""), &statistic)
	if statistic.Kind != "shipping_class" || statistic.Available != 1 {
		t.Fatalf("unexpected statistic %+v", statistic)
	}
}

func TestRPCPushReportsSoftFailures(t *testing.T) {
	env := newTestEnvironment(t)
	var pushed struct {
		Entities     []connector.Category              `json:"entities"`
		SoftFailures []connector.SoftResolutionFailure `json:"soft_failures"`
	}
	decodeResult(t, env.call("category.push", `{"entities":[{"id":{"host":1},"parentCategoryId":{"host":2},"name":"Child"}]}`), &pushed)

	if len(pushed.SoftFailures) != 1 {
		t.Fatalf("expected one soft failure, got %+v", pushed.SoftFailures)
	}
	if pushed.SoftFailures[0].Missing.Host != 2 || pushed.SoftFailures[0].Reference != connector.KindCategory {
		t.Fatalf("unexpected soft failure %+v", pushed.SoftFailures[0])
	}
	if len(pushed.Entities) != 1 || pushed.Entities[0].ID.Endpoint != "" {
		t.Fatalf("expected the entity back unchanged, got %+v", pushed.Entities)
	}

	metricsBody := env.perform(http.MethodGet, "/metrics", "", "").Body.String()
	if !strings.Contains(metricsBody, `erplink_sync_soft_failures_total{kind="category",reference="category"} 1`) {
		t.Fatalf("expected soft failure metric, got:\n%s", metricsBody)
	}
}

func TestRPCAcknowledgeLinksPulledRecords(t *testing.T) {
	env := newTestEnvironment(t)
	if err := env.db.Create(&storefront.ShippingClass{ID: 2, Name: "Letter", Slug: "letter"}).Error; err != nil {
		t.Fatalf("seed shipping class: %v", err)
	}

	var acked struct {
		Linked   int                    `json:"linked"`
		Outcomes []connector.AckOutcome `json:"outcomes"`
	}
	decodeResult(t, env.call("core.linker.ack", `{"identities":[{"kind":"shipping_class","id":{"endpoint":"2","host":8}},{"kind":"shipping_class","id":{"endpoint":"","host":9}}]}`), &acked)
	if acked.Linked != 1 || len(acked.Outcomes) != 2 {
		t.Fatalf("unexpected ack result %+v", acked)
	}
	if acked.Outcomes[0].Error != "" || acked.Outcomes[1].Error == "" {
		t.Fatalf("expected only the second ack to fail, got %+v", acked.Outcomes)
	}

	var statistics struct {
		Statistics []connector.Statistic `json:"statistics"`
	}
	decodeResult(t, env.call("core.statistic", ""), &statistics)
	for _, statistic := range statistics.Statistics {
		if statistic.Kind == connector.KindShippingClass && statistic.Available != 0 {
			t.Fatalf("expected no unlinked shipping classes, got %d", statistic.Available)
		}
	}
}

func TestRPCRejectsInvalidCalls(t *testing.T) {
	env := newTestEnvironment(t)
	testCases := []struct {
		name   string
		method string
		params string
		status int
		code   string
	}{
		{name: "unknown kind", method: "widget.pull", params: `{"limit":1}`, status: http.StatusNotFound, code: "unknown_method"},
		{name: "unknown operation", method: "product.merge", params: `{}`, status: http.StatusNotFound, code: "unknown_method"},
		{name: "no operation", method: "product", status: http.StatusNotFound, code: "unknown_method"},
		{name: "unsupported operation", method: "tax_rate.push", params: `{"entities":[{}]}`, status: http.StatusBadRequest, code: "unsupported_operation"},
		{name: "limit too large", method: "product.pull", params: `{"limit":5000}`, status: http.StatusBadRequest, code: "invalid_params"},
		{name: "missing params", method: "product.pull", status: http.StatusBadRequest, code: "invalid_params"},
		{name: "empty entities", method: "category.push", params: `{"entities":[]}`, status: http.StatusBadRequest, code: "invalid_params"},
		{name: "undecodable entity", method: "category.push", params: `{"entities":[42]}`, status: http.StatusBadRequest, code: "invalid_payload"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := env.call(testCase.method, testCase.params)
			if recorder.Code != testCase.status {
				t.Fatalf("expected %d, got %d: %s", testCase.status, recorder.Code, recorder.Body.String())
			}
			if !strings.Contains(recorder.Body.String(), `"error":"`+testCase.code+`"`) {
				t.Fatalf("expected code %q, got %s", testCase.code, recorder.Body.String())
			}
		})
	}
}

func TestRPCReportsFailingEntityIndex(t *testing.T) {
	env := newTestEnvironment(t)
	recorder := env.call("category.push", `{"entities":[{"id":{"host":1},"name":"Root"},"broken"]}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var body struct {
		Error       string `json:"error"`
		EntityIndex int    `json:"entity_index"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "invalid_payload" || body.EntityIndex != 1 {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestRPCValidationDetailsUseJSONNames(t *testing.T) {
	env := newTestEnvironment(t)
	recorder := env.call("product.pull", `{"limit":-1}`)
	if !strings.Contains(recorder.Body.String(), `"field":"pullParams.limit"`) {
		t.Fatalf("expected json field name in details, got %s", recorder.Body.String())
	}
}

func TestClassifyMapsErrorsToStatus(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "conflict", err: &linking.ConflictError{}, status: http.StatusConflict, code: "identity_conflict"},
		{name: "transient", err: storeerr.New("links.upsert", "query_failed", errors.New("database is locked")), status: http.StatusServiceUnavailable, code: "store_unavailable"},
		{name: "unknown kind", err: connector.ErrUnknownKind, status: http.StatusNotFound, code: "unknown_method"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			failure := classify(testCase.err)
			if failure.status != testCase.status || failure.code != testCase.code {
				t.Fatalf("expected %d/%s, got %d/%s", testCase.status, testCase.code, failure.status, failure.code)
			}
		})
	}
}

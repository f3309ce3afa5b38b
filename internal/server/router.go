package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/erplink/internal/auth"
	"github.com/MarcoPoloResearchLab/erplink/internal/connector"
	"github.com/MarcoPoloResearchLab/erplink/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	sessionSubjectContextKey = "erplink_session_subject"
	sessionIDContextKey      = "erplink_session_id"
	connectorSubject         = "connector"
	maxRequestBytes          = 32 << 20
)

var (
	errMissingCredentials   = errors.New("credential checker dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingRegistry      = errors.New("connector registry dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// CredentialVerifier checks the connector token presented on /auth.
type CredentialVerifier interface {
	Verify(presented string) error
}

// SessionTokenManager issues and validates session tokens.
type SessionTokenManager interface {
	Issue(subject string) (auth.Session, error)
	Validate(token string) (jwt.RegisteredClaims, error)
}

// Dependencies wires the HTTP handler. Metrics is optional.
type Dependencies struct {
	Credentials  CredentialVerifier
	TokenManager SessionTokenManager
	Registry     *connector.Registry
	Metrics      *metrics.Recorder
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router serving /auth, the protected /rpc endpoint, /metrics and
// /healthz.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Credentials == nil {
		return nil, errMissingCredentials
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())

	handler := &httpHandler{
		credentials: deps.Credentials,
		tokens:      deps.TokenManager,
		registry:    deps.Registry,
		metrics:     deps.Metrics,
		validate:    newValidator(),
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.POST("/auth", bodyLimit(maxRequestBytes), handler.handleAuth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/rpc", bodyLimit(maxRequestBytes), handler.handleRPC)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Batch-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	credentials CredentialVerifier
	tokens      SessionTokenManager
	registry    *connector.Registry
	metrics     *metrics.Recorder
	validate    *validator.Validate
	logger      *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type authRequestPayload struct {
	Token string `json:"token" validate:"required"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	SessionID   string `json:"session_id"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.validate.Struct(request); err != nil {
		c.JSON(http.StatusBadRequest, validationResponse(err))
		return
	}

	if err := h.credentials.Verify(request.Token); err != nil {
		h.logger.Warn("connector authentication failed", zap.Error(err), zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	session, err := h.tokens.Issue(connectorSubject)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: session.Token,
		SessionID:   session.ID,
		ExpiresIn:   session.ExpiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionSubjectContextKey, claims.Subject)
	c.Set(sessionIDContextKey, claims.ID)
	c.Next()
}

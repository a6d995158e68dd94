package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Duration) error { return nil }
func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func newJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{Secret: "test-secret-key", Issuer: "stockledger"})
}

func mintToken(t *testing.T, svc *auth.JWTService, companyID, userID uuid.UUID, perms ...string) string {
	t.Helper()
	token, _, err := svc.GenerateAccessToken(auth.GenerateTokenInput{
		CompanyID:   companyID,
		UserID:      userID,
		Username:    "clerk",
		Permissions: perms,
	})
	require.NoError(t, err)
	return token
}

func TestJWTAuth(t *testing.T) {
	svc := newJWTService()
	revocations := auth.NewInMemoryRevocationList()
	companyID, userID := uuid.New(), uuid.New()

	type seen struct {
		company, actor, ctxCompany string
	}
	var got seen

	r := gin.New()
	r.Use(RequestID(), JWTAuth(JWTMiddlewareConfig{
		Validator:   svc,
		Revocations: revocations,
		SkipPaths:   []string{"/health"},
	}))
	handler := func(c *gin.Context) {
		cid, _ := CompanyID(c)
		aid, _ := ActorID(c)
		got = seen{company: cid.String(), actor: aid.String(), ctxCompany: logger.GetCompanyID(c.Request.Context())}
		c.Status(http.StatusOK)
	}
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/balances", handler)

	do := func(header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/balances", nil)
		if header != "" {
			req.Header.Set(AuthHeaderKey, header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("valid token binds company and actor", func(t *testing.T) {
		token := mintToken(t, svc, companyID, userID, auth.PermissionInventoryRead)
		w := do(BearerPrefix + token)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, companyID.String(), got.company)
		assert.Equal(t, userID.String(), got.actor)
		assert.Equal(t, companyID.String(), got.ctxCompany)
	})

	t.Run("skip path needs no token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	rejections := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeUnauthorized},
		{"wrong scheme", "Basic abc", dto.ErrCodeUnauthorized},
		{"empty bearer", BearerPrefix, dto.ErrCodeUnauthorized},
		{"garbage token", BearerPrefix + "not.a.jwt", dto.ErrCodeTokenInvalid},
	}
	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			w := do(tc.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}

	t.Run("expired token", func(t *testing.T) {
		short := auth.NewJWTService(config.JWTConfig{Secret: "test-secret-key", Issuer: "stockledger", AccessTokenExpiration: time.Nanosecond})
		token := mintToken(t, short, companyID, userID)
		time.Sleep(10 * time.Millisecond)

		w := do(BearerPrefix + token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenExpired, decodeResponse(t, w).Error.Code)
	})

	t.Run("revoked token", func(t *testing.T) {
		token := mintToken(t, svc, companyID, userID)
		claims, err := svc.ValidateAccessToken(token)
		require.NoError(t, err)
		require.NoError(t, revocations.Revoke(context.Background(), claims.ID, time.Minute))

		w := do(BearerPrefix + token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeTokenRevoked, decodeResponse(t, w).Error.Code)
	})
}

func TestJWTAuthRevocationLookupFailureLetsRequestThrough(t *testing.T) {
	svc := newJWTService()
	r := gin.New()
	r.Use(JWTAuth(JWTMiddlewareConfig{Validator: svc, Revocations: failingRevocations{}}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+mintToken(t, svc, uuid.New(), uuid.New()))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCompanyIDWithoutClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	id, ok := CompanyID(c)
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)

	_, ok = ActorID(c)
	assert.False(t, ok)
	assert.Nil(t, GetJWTClaims(c))
}

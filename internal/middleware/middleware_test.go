package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-appointment-api/internal/models"
	appErrors "github.com/noah-isme/office-appointment-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type auditRecorder struct {
	logs []models.AuditLog
	err  error
}

func (a *auditRecorder) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, *log)
	return a.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/busy-days/:date", handlers...)
	return r
}

func serve(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/busy-days/2024-05-07", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresValidBearer(t *testing.T) {
	tokens := stubValidator{claims: &models.JWTClaims{UserID: 1, Role: models.RoleAdmin}}
	r := newRouter(JWT(tokens), func(c *gin.Context) {
		require.NotNil(t, ClaimsFromContext(c))
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer bad").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "Bearer good").Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	tokens := stubValidator{claims: &models.JWTClaims{UserID: 1, Email: "staff@example.com"}}
	var seen *models.JWTClaims
	r := newRouter(OptionalJWT(tokens), func(c *gin.Context) {
		seen = ClaimsFromContext(c)
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, "Bearer bad").Code)
	assert.Nil(t, seen)
	assert.Equal(t, http.StatusOK, serve(r, "Bearer good").Code)
	require.NotNil(t, seen)
	assert.Equal(t, "staff@example.com", seen.Identifier())
}

func TestRequireRoles(t *testing.T) {
	for _, tc := range []struct {
		role models.UserRole
		want int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleSuperAdmin, http.StatusOK},
		{models.RoleStaff, http.StatusForbidden},
		{models.RoleCitizen, http.StatusForbidden},
	} {
		tokens := stubValidator{claims: &models.JWTClaims{UserID: 1, Role: tc.role}}
		r := newRouter(JWT(tokens), RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
		assert.Equal(t, tc.want, serve(r, "Bearer good").Code, tc.role)
	}

	r := newRouter(RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	tokens := stubValidator{claims: &models.JWTClaims{UserID: 9, Role: models.RoleAdmin}}
	recorder := &auditRecorder{}
	status := http.StatusOK
	r := newRouter(JWT(tokens), Audit(recorder, nil, models.AuditActionUnblockDay, "busy_day", "date"), func(c *gin.Context) {
		c.Status(status)
	})

	serve(r, "Bearer good")
	require.Len(t, recorder.logs, 1)
	entry := recorder.logs[0]
	assert.Equal(t, models.AuditActionUnblockDay, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, int64(9), *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "2024-05-07", *entry.ResourceID)

	status = http.StatusBadRequest
	serve(r, "Bearer good")
	assert.Len(t, recorder.logs, 1)

	status = http.StatusOK
	recorder.err = errors.New("insert failed")
	assert.Equal(t, http.StatusOK, serve(r, "Bearer good").Code)
}

func TestResponseMeta(t *testing.T) {
	var meta map[string]interface{}
	r := newRouter(WithResponseMeta(), func(c *gin.Context) {
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	serve(r, "")
	require.NotNil(t, meta)
	assert.Contains(t, meta, "processing_time_ms")
	assert.NotContains(t, meta, "started_at")
}

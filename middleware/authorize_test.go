// middleware/authorize_test.go
package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	logger "github.com/cloudgate-io/permcache/logging"
	"github.com/cloudgate-io/permcache/middleware"
	"github.com/cloudgate-io/permcache/model"
)

func TestMain(m *testing.M) {
	logger.InitTestLogger()
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubManager answers every check with a fixed decision.
type stubManager struct {
	decision model.Decision
	err      error
	lastReq  model.CheckRequest
}

func (s *stubManager) CheckPermission(_ context.Context, req model.CheckRequest) (model.Decision, error) {
	s.lastReq = req
	return s.decision, s.err
}

func (s *stubManager) CheckPermissionsBatch(_ context.Context, reqs []model.CheckRequest) ([]model.Decision, error) {
	return make([]model.Decision, len(reqs)), nil
}

func (s *stubManager) Warm(context.Context, string, string, []string) error { return nil }
func (s *stubManager) InvalidateUser(string) error                          { return nil }
func (s *stubManager) InvalidateTenant(string) error                        { return nil }
func (s *stubManager) InvalidatePermission(string) error                    { return nil }
func (s *stubManager) ClearAll() error                                      { return nil }
func (s *stubManager) Statistics() model.Stats                              { return model.Stats{} }
func (s *stubManager) Recommendations() []model.Recommendation              { return nil }
func (s *stubManager) L2Healthy() bool                                      { return true }

func protectedRouter(manager *stubManager) *gin.Engine {
	r := gin.New()
	r.GET("/documents/:id", middleware.RequirePermission(manager, "read_doc"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func TestRequirePermission_Allowed(t *testing.T) {
	manager := &stubManager{decision: model.Allow([]string{"viewer"}, time.Now())}
	router := protectedRouter(manager)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/documents/doc-7", nil)
	req.Header.Set("X-Principal-ID", "u1")
	req.Header.Set("X-Tenant-ID", "t1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.CheckRequest{
		TenantID:    "t1",
		PrincipalID: "u1",
		Permission:  "read_doc",
		ResourceID:  "doc-7",
	}, manager.lastReq)
}

func TestRequirePermission_Denied(t *testing.T) {
	manager := &stubManager{decision: model.Deny("role lacks permission", time.Now())}
	router := protectedRouter(manager)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/documents/doc-7", nil)
	req.Header.Set("X-Principal-ID", "u1")
	req.Header.Set("X-Tenant-ID", "t1")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermission_MissingIdentity(t *testing.T) {
	manager := &stubManager{decision: model.Allow(nil, time.Now())}
	router := protectedRouter(manager)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/documents/doc-7", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

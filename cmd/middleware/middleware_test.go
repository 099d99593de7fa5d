package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"iscrizioni/internal/service"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))

	// Helper endpoint that establishes a session with the given role.
	r.GET("/grant/:role", func(c *gin.Context) {
		sess := sessions.Default(c)
		sess.Set(service.SessionLoggedIn, true)
		sess.Set(service.SessionRole, c.Param("role"))
		_ = sess.Save()
		c.Status(http.StatusOK)
	})

	r.GET("/admin", RequireAdminPage(), func(c *gin.Context) {
		c.String(http.StatusOK, "dashboard")
	})
	r.POST("/admin/delete", RequireAdminJSON(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func grant(t *testing.T, r *gin.Engine, role string) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/grant/"+role, nil))
	return w.Result().Cookies()
}

func do(r *gin.Engine, method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAdminPageRedirectsAnonymous(t *testing.T) {
	r := newTestRouter()

	w := do(r, http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/login", w.Header().Get("Location"))
}

func TestRequireAdminPageAllowsAdmin(t *testing.T) {
	r := newTestRouter()
	cookies := grant(t, r, "admin")

	w := do(r, http.MethodGet, "/admin", cookies)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dashboard", w.Body.String())
}

func TestRequireAdminJSONWithoutSession(t *testing.T) {
	r := newTestRouter()

	w := do(r, http.MethodPost, "/admin/delete", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Non autorizzato")
}

func TestRequireAdminJSONRejectsNonAdminRole(t *testing.T) {
	r := newTestRouter()
	cookies := grant(t, r, "viewer")

	w := do(r, http.MethodPost, "/admin/delete", cookies)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Solo admin")
}

func TestRequireAdminJSONAllowsAdmin(t *testing.T) {
	r := newTestRouter()
	cookies := grant(t, r, "admin")

	w := do(r, http.MethodPost, "/admin/delete", cookies)
	assert.Equal(t, http.StatusOK, w.Code)
}

package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/zlog"

	"iscrizioni/internal/dto"
	"iscrizioni/internal/service"
)

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zlog.Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}

// RequireAdminPage gates HTML admin pages: anybody without an admin
// session is redirected to the login page.
func RequireAdminPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdminJSON gates JSON admin endpoints with 401/403 instead of a
// redirect.
func RequireAdminJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		logged, _ := sess.Get(service.SessionLoggedIn).(bool)
		if !logged {
			dto.DeleteErrorResponse(c, http.StatusUnauthorized, "Non autorizzato")
			c.Abort()
			return
		}
		role, _ := sess.Get(service.SessionRole).(string)
		if role != "admin" {
			dto.DeleteErrorResponse(c, http.StatusForbidden, "Solo admin può eliminare registrazioni")
			c.Abort()
			return
		}
		c.Next()
	}
}

func isAdmin(c *gin.Context) bool {
	sess := sessions.Default(c)
	logged, _ := sess.Get(service.SessionLoggedIn).(bool)
	role, _ := sess.Get(service.SessionRole).(string)
	return logged && role == "admin"
}

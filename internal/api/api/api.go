package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/wb-go/wbf/ginext"

	"iscrizioni/cmd/middleware"
	"iscrizioni/internal/service"
)

type Routers struct {
	Service       service.Service
	SessionSecret []byte
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	store := cookie.NewStore(r.SessionSecret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
	})
	app.Use(sessions.Sessions("iscrizioni_session", store))

	app.LoadHTMLGlob("templates/*.html")
	app.StaticFile("/manifest.json", "./frontend/manifest.json")
	app.StaticFile("/sw.js", "./frontend/sw.js")
	app.Static("/frontend", "./frontend")

	app.GET("/", r.Service.RegisterPage)
	app.POST("/", r.Service.Register)
	app.GET("/register", r.Service.RegisterPage)
	app.POST("/register", r.Service.Register)

	app.GET("/admin/login", r.Service.LoginPage)
	app.POST("/admin/login", r.Service.Login)
	app.GET("/admin/logout", r.Service.Logout)

	adminPages := app.Group("/admin", middleware.RequireAdminPage())
	adminPages.GET("", r.Service.Dashboard)
	adminPages.GET("/eventi", r.Service.EventList)
	adminPages.GET("/evento/:id", r.Service.EventDetail)
	adminPages.GET("/statistiche", r.Service.Statistics)
	adminPages.GET("/evento/crea", r.Service.CreateEventPage)
	adminPages.POST("/evento/crea", r.Service.CreateEvent)

	app.POST("/admin/delete", middleware.RequireAdminJSON(), r.Service.DeleteRegistration)

	return app
}

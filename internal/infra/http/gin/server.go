package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/infra/config"
	"slotkeeper/internal/infra/obs"
)

type Handlers struct {
	Resources     ResourceHandler
	Reservations  ReservationHandler
	Series        SeriesHandler
	Waitlist      WaitlistHandler
	Reassignments ReassignmentHandler
	Admin         AdminHandler
	Identity      gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter builds the gin engine without binding an address.
func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.App.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(corsConfig(cfg.App.CORSOrigins)))
	identity := h.Identity
	if identity == nil {
		identity = IdentityMiddleware()
	}
	router.Use(identity)

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")

	res := api.Group("/resources")
	res.GET("", h.Resources.List)
	res.POST("", h.Resources.Register)
	res.GET("/:id", h.Resources.Get)
	res.PUT("/:id/schedule", h.Resources.UpdateSchedule)
	res.POST("/:id/status", h.Resources.SetStatus)
	res.GET("/:id/calendar", h.Resources.Calendar)
	res.GET("/:id/calendar/export", h.Resources.Export)
	res.GET("/:id/availability", h.Reservations.Availability)
	res.GET("/:id/reservations", h.Reservations.ListByResource)
	res.GET("/:id/waitlist", h.Waitlist.ListByResource)
	res.GET("/:id/equivalents", h.Reassignments.Equivalents)

	rsv := api.Group("/reservations")
	rsv.POST("", h.Reservations.Book)
	rsv.GET("/:id", h.Reservations.Get)
	rsv.POST("/:id/confirm", h.Reservations.Confirm)
	rsv.POST("/:id/cancel", h.Reservations.Cancel)

	srs := api.Group("/series")
	srs.POST("", h.Series.Create)
	srs.GET("/:id", h.Series.Get)
	srs.POST("/:id/expand", h.Series.Expand)
	srs.PUT("/:id/times", h.Series.UpdateTimes)
	srs.POST("/:id/cancel", h.Series.Cancel)

	wl := api.Group("/waitlist")
	wl.POST("", h.Waitlist.Join)
	wl.POST("/promote", h.Waitlist.Promote)
	wl.GET("/:id", h.Waitlist.Get)
	wl.DELETE("/:id", h.Waitlist.Leave)
	wl.POST("/:id/accept", h.Waitlist.Accept)
	wl.POST("/:id/decline", h.Waitlist.Decline)

	ra := api.Group("/reassignments")
	ra.GET("", h.Reassignments.List)
	ra.POST("", h.Reassignments.Open)
	ra.GET("/:id", h.Reassignments.Get)
	ra.POST("/:id/auto-process", h.Reassignments.AutoProcess)
	ra.POST("/:id/respond", h.Reassignments.Respond)
	ra.POST("/:id/cancel", h.Reassignments.Cancel)

	admin := api.Group("/admin", RequireRole("admin"))
	admin.POST("/sweeps/:job", h.Admin.RunSweep)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", obs.RequestIDHeader, HeaderUserID, HeaderUserClass, HeaderUserRoles},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"Content-Disposition",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}

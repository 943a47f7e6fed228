package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"laundry-smart-queue/internal/auth"
	"laundry-smart-queue/internal/mw"
)

// RouterOptions carries the middleware and settings the router is built from.
type RouterOptions struct {
	Auth           *auth.Middleware
	Cache          *mw.ResponseCache
	RateLimiter    *mw.IPRateLimiter
	AllowedOrigins []string
	TrustedProxies []string
	Log            logrus.FieldLogger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Log != nil {
		r.Use(mw.Logger(opts.Log))
	}
	if len(opts.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
			h.log.WithError(err).Warn("ignoring invalid trusted proxies")
		}
	}

	caching := func(c *gin.Context) { c.Next() }
	if opts.Cache != nil {
		caching = opts.Cache.Middleware()
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API group
	api := r.Group("/api")
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Middleware())
	}
	{
		api.GET("/programs", caching, h.ListPrograms)
		api.GET("/machines", caching, h.ListMachines)
		api.GET("/machines/:id", caching, h.GetMachine)
		api.GET("/ws", h.Watch(opts.AllowedOrigins))

		session := api.Group("", opts.Auth.RequireSession())
		session.POST("/machines/:id/start", h.StartProgram)
		session.POST("/machines/:id/stop", h.StopProgram)

		admin := api.Group("/admin", opts.Auth.RequireSession(), opts.Auth.RequireAdmin())
		admin.GET("/usage", h.ListUsage)
		admin.GET("/usage/export", h.ExportUsage)
		admin.POST("/machines/:id/stop", h.ForceStop)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}

// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"bagdrop/internal/http/handlers"
	"bagdrop/internal/http/middleware"
	"bagdrop/internal/infra"
	"bagdrop/internal/logger"
	"bagdrop/internal/metrics"
	"bagdrop/internal/modules/contract"
	"bagdrop/internal/modules/feed"
	"bagdrop/internal/modules/location"
	"bagdrop/internal/modules/notify"
	"bagdrop/internal/modules/pricing"
	"bagdrop/internal/modules/profile"
	"bagdrop/internal/types"
)

type RouterDeps struct {
	Contracts   *contract.Service
	Profiles    *profile.Service
	Pricing     *pricing.Service
	Notify      *notify.Service
	Location    *location.Service
	Forwarder   *location.Forwarder
	Activator   handlers.ActivationChecker
	Hub         *feed.Hub
	Routes      handlers.RouteEstimator
	Verifier    infra.TokenVerifier
	AuthTimeout time.Duration
	Health      map[string]handlers.Pinger
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Log         logger.Logger
	Metrics     *metrics.Metrics
}

// NewRouter builds the gin engine and wraps it with CORS.
func NewRouter(d RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log), middleware.Metrics(d.Metrics))

	health := handlers.NewHealthHandler(d.Health)
	r.GET("/health", health.Live)
	r.GET("/ready", health.Ready)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", middleware.Auth(d.Verifier, d.Profiles, d.AuthTimeout))

	profiles := handlers.NewProfileHandler(d.Profiles)
	api.POST("/profiles", profiles.Register)
	api.GET("/profiles/me", profiles.Me)
	api.PATCH("/profiles/me", profiles.UpdateMe)
	api.PUT("/profiles/me/picture", profiles.SetPicture)
	api.POST("/session", profiles.SignIn)
	api.DELETE("/session", profiles.SignOut)

	pricingH := handlers.NewPricingHandler(d.Pricing)
	api.GET("/pricing/quote", pricingH.Quote)
	api.GET("/pricing", pricingH.List)

	contracts := handlers.NewContractHandler(d.Contracts, d.Routes)
	api.POST("/contracts", middleware.RequireRole(types.RoleAirline), contracts.Create)
	api.GET("/contracts", contracts.List)
	api.GET("/contracts/pending", middleware.RequireRole(types.RoleDelivery), contracts.ListPending)
	api.GET("/contracts/:id", contracts.Get)
	api.GET("/contracts/:id/history", contracts.History)
	api.GET("/contracts/:id/vicinity", middleware.RequireRole(types.RoleDelivery), contracts.Vicinity)
	api.GET("/contracts/:id/eta", contracts.ETA)
	api.POST("/contracts/:id/actions/:action", contracts.Act)

	loc := handlers.NewLocationHandler(d.Location, d.Forwarder, d.Activator)
	courier := api.Group("/location", middleware.RequireRole(types.RoleDelivery))
	courier.PUT("", loc.Update)
	courier.PUT("/permission", loc.Permission)
	courier.GET("/tracking", loc.Tracking)
	courier.POST("/tracking", loc.StartTracking)
	courier.DELETE("/tracking", loc.StopTracking)

	realtime := handlers.NewRealtimeHandler(d.Hub)
	api.GET("/realtime", realtime.Subscribe)

	admin := handlers.NewAdminHandler(d.Profiles, d.Notify, d.Location, d.Forwarder)
	adm := api.Group("/admin", middleware.RequireRole(types.RoleAdmin))
	adm.GET("/profiles", admin.ListProfiles)
	adm.PATCH("/profiles/:id", admin.UpdateProfile)
	adm.GET("/notifications", admin.Notifications)
	adm.PUT("/notifications", admin.SetNotifications)
	adm.GET("/couriers/nearby", admin.Nearby)
	adm.GET("/couriers/:id/history", admin.CourierHistory)
	adm.GET("/tracking", admin.Tracking)

	c := cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

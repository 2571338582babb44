// internal/api/routes/routes.go
package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"property-delivery-api-server/config"
	"property-delivery-api-server/internal/api/handlers"
	"property-delivery-api-server/internal/api/middleware"
	"property-delivery-api-server/internal/auth"
	"property-delivery-api-server/internal/delivery"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/repository"
	"property-delivery-api-server/internal/socket"
)

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			c.AllowCredentials = false
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}
	c.AllowOrigins = origins
	return c
}

// SetupRouter wires the handlers onto a gin engine.
func SetupRouter(
	cfg config.Config,
	workflow *delivery.Workflow,
	users repository.UserStore,
	issuer *auth.Issuer,
	identity *middleware.Identity,
	wsHub *socket.Hub,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	authHandler := &handlers.AuthHandler{Users: users, Issuer: issuer}
	deliveryHandler := &handlers.DeliveryHandler{Workflow: workflow}
	mobileHandler := &handlers.MobileHandler{Workflow: workflow}
	webSocketHandler := &handlers.WebSocketHandler{Hub: wsHub, Identity: identity}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ws", webSocketHandler.ServeWs)
		apiV1.POST("/auth/login", authHandler.Login)

		staff := middleware.Authorize(models.RoleManager, models.RoleFieldTechnician)

		deliveries := apiV1.Group("/deliveries")
		deliveries.Use(identity.Authenticate())
		{
			deliveries.GET("", deliveryHandler.Search)
			deliveries.GET("/report", staff, deliveryHandler.Report)
			deliveries.GET("/:id", deliveryHandler.Get)
			deliveries.GET("/:id/logs", deliveryHandler.Logs)
			deliveries.GET("/:id/issues", deliveryHandler.Issues)
			deliveries.GET("/:id/ledger", deliveryHandler.LedgerStatus)
			deliveries.POST("/:id/issues", deliveryHandler.ReportIssue)

			deliveries.POST("", staff, deliveryHandler.Register)
			deliveries.POST("/:id/assign", staff, deliveryHandler.Assign)
			deliveries.POST("/:id/collect", staff, deliveryHandler.Collect)
			deliveries.POST("/:id/status", staff, deliveryHandler.UpdateStatus)
			deliveries.POST("/:id/photos", staff, deliveryHandler.UploadPhoto)
		}

		// the tenant app; the access policy decides per delivery
		mobile := apiV1.Group("/mobile/deliveries")
		mobile.Use(identity.AuthenticateMobile())
		{
			mobile.POST("", mobileHandler.Register)
			mobile.GET("/by-hash/:hash", mobileHandler.GetByHash)
			mobile.POST("/:id/confirm", mobileHandler.ConfirmReceipt)
			mobile.POST("/:id/issues", mobileHandler.ReportIssue)
		}
	}

	return router
}

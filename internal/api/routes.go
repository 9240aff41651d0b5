package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.GET("/listings", handler.SearchListings)
		api.GET("/listings/:id", handler.GetListing)
		api.POST("/listings/:id/clicks", handler.RecordClick)
		api.GET("/categories", handler.ListCategories)
		api.GET("/region", handler.GetRegion)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/imports", handler.StartImport)
		admin.GET("/imports/pending", handler.GetPendingDecision)
		admin.POST("/imports/pending/decision", handler.ResolveDecision)
		admin.DELETE("/imports/pending", handler.AbandonImport)
		admin.POST("/listings", handler.CreateListing)
		admin.GET("/listings/:id/clicks", handler.GetClickStats)
		admin.GET("/notifications", handler.ListNotifications)
	}
}

// NewRouter builds the engine with recovery, request logging and CORS
func NewRouter(handler *Handler, allowedOrigins []string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(allowedOrigins))
	SetupRoutes(router, handler)
	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}

	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		return cors.New(cfg)
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = allowedOrigins
	return cors.New(cfg)
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("Handled request")
	}
}

package server

import (
	"time"

	"expense-validation-svc/src/clients"
	"expense-validation-svc/src/internal/dependency"
	"expense-validation-svc/src/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(enableCORS)

	setupHealthEndpoint(deps)
	setupValidationRoutes(router, deps)
	setupWebsocketRoute(router, deps)
	setupAdminRoutes(router, deps)
}

func setupHealthEndpoint(deps *dependency.Manager) {
	router := deps.Router
	mongodb := deps.Mongodb
	redisClient := deps.Redis
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		log.Info("Health check endpoint requested")

		mongoStatus := "ok"
		if err := mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
			mongoStatus = "error: " + err.Error()
		}

		redisStatus := "ok"
		if err := redisClient.Client.Ping(c.Request.Context()).Err(); err != nil {
			redisStatus = "error: " + err.Error()
		}

		c.JSON(200, gin.H{
			"status":    "ok",
			"service":   cfg.App.Name,
			"version":   cfg.App.Version,
			"mongodb":   mongoStatus,
			"redis":     redisStatus,
			"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	})

	router.GET("/health/detailed", func(c *gin.Context) {
		log.Info("Detailed health check endpoint requested")

		c.JSON(200, gin.H{
			"status":  "operational",
			"service": cfg.App.Name,
			"version": cfg.App.Version,
			"components": gin.H{
				"database": gin.H{
					"mongodb": getStatus(isMongoConnected(mongodb, c)),
					"redis":   getStatus(isRedisConnected(redisClient.Client, c)),
				},
				"sessions": gin.H{
					"active":      len(deps.Store.Snapshot()),
					"connections": deps.WsServer.ConnectionCount(),
				},
			},
		})
	})
}

func setupValidationRoutes(router *gin.Engine, deps *dependency.Manager) {
	handler := deps.ValidationHandler

	validation := router.Group("/api/v1/validation")
	{
		validation.POST("/session/create",
			setRouteName("createSession"),
			handler.CreateSession)

		validation.GET("/session/:id",
			setRouteName("getSession"),
			handler.GetSession)

		validation.POST("/analyze",
			setRouteName("analyzeImage"),
			handler.Analyze)
	}
}

func setupWebsocketRoute(router *gin.Engine, deps *dependency.Manager) {
	router.GET("/ws",
		setRouteName("websocket"),
		deps.WsServer.HandleConnection)
}

func setupAdminRoutes(router *gin.Engine, deps *dependency.Manager) {
	authMiddleware := middleware.NewAuthMiddleware(deps.Config.Security.JwtKey)
	handler := deps.ValidationHandler

	admin := router.Group("/api/v1/admin")
	{
		admin.GET("/sessions",
			setRouteName("getActiveSessions"),
			authMiddleware.RequireAuth(),
			authMiddleware.RequireAdminRights(),
			handler.GetActiveSessions)

		admin.GET("/validations",
			setRouteName("getRecentValidations"),
			authMiddleware.RequireAuth(),
			authMiddleware.RequireAdminRights(),
			handler.GetRecentValidations)
	}
}

func setRouteName(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("route_name", name)
		c.Next()
	}
}

func isMongoConnected(mongodb *clients.MongoDB, c *gin.Context) bool {
	if err := mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
		return false
	}
	return true
}

func isRedisConnected(redisClient *redis.Client, c *gin.Context) bool {
	if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
		return false
	}
	return true
}

func enableCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}

	c.Next()
}

func getStatus(b bool) string {
	if b {
		return "connected"
	}
	return "disconnected"
}

package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/shopchat/autoreply-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName     string
	EventHandler    *handlers.EventHandler
	SweepHandler    *handlers.SweepHandler
	OperatorHandler *handlers.OperatorHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/events", cfg.EventHandler.HandleInbound)
		api.POST("/sweep", cfg.SweepHandler.RunSweep)
	}

	operator := router.Group("/operator")
	{
		operator.POST("/gates/clear", cfg.OperatorHandler.ClearGate)
		operator.POST("/mutexes/release", cfg.OperatorHandler.ReleaseMutex)
	}

	return router
}

package routes

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"indeed-crawler/internal/api/handlers"
	"indeed-crawler/internal/api/middleware"
	"indeed-crawler/internal/background"
	"indeed-crawler/internal/config"
	"indeed-crawler/internal/crawler"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, svc *crawler.Service, taskManager background.TaskManager) {
	// Global middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSConfig())
	e.Use(middleware.TimeoutConfig(cfg.Server.ReadTimeout))

	// Health check routes
	health := e.Group("/health")
	{
		health.GET("", handlers.HealthHandler)
		health.GET("/ready", handlers.ReadinessHandler(taskManager))
		health.GET("/live", handlers.LivenessHandler)
	}

	// Status route
	e.GET("/status", handlers.StatusHandler(taskManager))

	// API v1 routes
	v1 := e.Group("/api/v1")
	{
		crawl := v1.Group("/crawl")
		{
			crawl.POST("", handlers.CrawlHandler(svc, taskManager))
			crawl.GET("", handlers.CrawlListHandler(taskManager))
			crawl.GET("/:process_id", handlers.CrawlStatusHandler(taskManager))
		}
	}

	// Root route
	e.GET("/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"service": "Indeed Crawler",
			"version": "1.0.0",
			"status":  "running",
		})
	})
}

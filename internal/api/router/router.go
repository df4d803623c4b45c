package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/podforge/podforge-be/internal/api/handler"
)

// AuthConfig carries the secrets the route middleware needs.
type AuthConfig struct {
	JWTSecret    string
	ServiceToken string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, auth AuthConfig) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "podforge-api-service",
		})
	})

	podcastHandler := handler.NewPodcastHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		podcasts := v1.Group("/podcasts")
		podcasts.Use(JWTAuthMiddleware(auth.JWTSecret))
		{
			// POST /api/v1/podcasts - Upload a PDF and start a job
			podcasts.POST("", podcastHandler.CreatePodcast)

			// GET /api/v1/podcasts - List the caller's jobs
			podcasts.GET("", podcastHandler.ListPodcasts)

			// GET /api/v1/podcasts/:job_id - Poll job status
			podcasts.GET("/:job_id", podcastHandler.GetPodcast)

			// POST /api/v1/podcasts/:job_id/cancel - Cancel a job
			podcasts.POST("/:job_id/cancel", podcastHandler.CancelPodcast)
		}

		admin := v1.Group("/admin")
		admin.Use(ServiceTokenMiddleware(auth.ServiceToken))
		{
			// POST /api/v1/admin/rescue - Requeue stalled jobs
			admin.POST("/rescue", podcastHandler.RescueSweep)
		}
	}

	return r
}

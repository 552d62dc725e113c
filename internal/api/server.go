package api

import (
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates the HTTP engine with all routes configured. When apiKey is
// empty the /api routes are open.
func NewServer(handler *Handler, apiKey string, accessLog io.Writer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	if accessLog == nil {
		accessLog = io.Discard
	}
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output: accessLog,
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))
	r.Use(gin.Recovery())

	setupRoutes(r, handler, apiKey)
	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiKey string) {
	r.GET("/health", handler.HealthCheck)

	api := r.Group("/api")
	if apiKey != "" {
		api.Use(authMiddleware(apiKey))
	}
	{
		api.GET("/runs", handler.ListRuns)
		api.GET("/runs/:id", handler.GetRun)
		api.POST("/runs", handler.TriggerRun)
		api.GET("/catalog/stats", handler.CatalogStats)
	}
}

// authMiddleware accepts the key in X-API-Key or as a bearer token.
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				provided = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}

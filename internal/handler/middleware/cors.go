package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"kairos/launch/internal/config"
)

func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		ExposeHeaders:    []string{"Retry-After", RequestIDHeader},
		MaxAge:           cfg.MaxAge,
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	}
	return cors.New(c)
}

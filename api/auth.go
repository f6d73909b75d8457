package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// apikeyAuthentication is a middleware that only lets requests carrying the configured
// Api-Token through. An empty key locks the route.
func (s *Server) apikeyAuthentication(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiToken := c.GetHeader("Api-Token")
		if key == "" || subtle.ConstantTimeCompare([]byte(apiToken), []byte(key)) != 1 {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

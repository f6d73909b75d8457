package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) fingerprint(c *gin.Context) {
	digest, err := s.device.Digest(c.Request.Context())
	if err != nil {
		status, resp := s.failureResponse(err, c.GetHeader("Accept-Language"))
		abortWithEncoding(c, status, resp, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_hash": digest,
	})
}

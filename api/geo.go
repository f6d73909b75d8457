package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formationdesk/checkin/geo"
	"github.com/formationdesk/checkin/submission"
)

const positionerKey = "positioner"

// geoPositionMiddleware lets a kiosk browser supply its own fix. A request carrying a
// Geo-Position or Geo-Position-Error header is located from the header instead of the
// configured positioner.
func (s *Server) geoPositionMiddleware(c *gin.Context) {
	h := geo.HeaderPositioner{
		Position: c.GetHeader(geo.GeoPositionHeader),
		Error:    c.GetHeader(geo.GeoPositionErrorHeader),
	}
	if h.Available() {
		c.Set(positionerKey, h)
	}
	c.Next()
}

// locator returns the location gate for the request.
func (s *Server) locator(c *gin.Context) submission.GateLocator {
	p := s.positioner
	if v, ok := c.Get(positionerKey); ok {
		p = v.(geo.Positioner)
	}

	opts := []geo.Option{geo.WithOptions(s.gate)}
	if ua := c.GetHeader("User-Agent"); ua != "" {
		opts = append(opts, geo.WithUserAgent(ua))
	}

	return submission.GateLocator{Positioner: p, Options: opts}
}

func (s *Server) location(c *gin.Context) {
	reading, err := s.locator(c).Locate(c.Request.Context())
	if err != nil {
		status, resp := s.failureResponse(err, c.GetHeader("Accept-Language"))
		abortWithEncoding(c, status, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"location": reading,
	})
}

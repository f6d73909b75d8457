package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formationdesk/checkin/submission"
)

// flow builds the submission flow for a request, located by the request's positioner.
func (s *Server) flow(c *gin.Context) *submission.Flow {
	return submission.NewFlow(s.locator(c), s.device, s.backend, s.journal)
}

func (s *Server) abortWithFailure(c *gin.Context, err error) {
	status, resp := s.failureResponse(err, c.GetHeader("Accept-Language"))
	if status >= http.StatusInternalServerError {
		abortWithEncoding(c, status, resp, err)
		return
	}
	abortWithEncoding(c, status, resp)
}

func (s *Server) markAttendance(c *gin.Context) {
	var params submission.AttendanceForm
	if err := c.ShouldBindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
		return
	}

	receipt, err := s.flow(c).MarkAttendance(c.Request.Context(), params)
	if err != nil {
		s.abortWithFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": receipt})
}

func (s *Server) registerDevice(c *gin.Context) {
	var params submission.DeviceForm
	if err := c.ShouldBindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
		return
	}

	receipt, err := s.flow(c).RegisterDevice(c.Request.Context(), params)
	if err != nil {
		s.abortWithFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": receipt})
}

func (s *Server) createVisit(c *gin.Context) {
	var params submission.VisitForm
	if err := c.ShouldBindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorCannotParseRequest, err)
		return
	}

	receipt, err := s.flow(c).CreateVisit(c.Request.Context(), params)
	if err != nil {
		s.abortWithFailure(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": receipt})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formationdesk/checkin/store"
)

type journalQueryParams struct {
	Limit int `form:"limit"`
}

func (s *Server) recentSubmissions(c *gin.Context) {
	var params journalQueryParams
	if err := c.ShouldBindQuery(&params); err != nil || params.Limit < 0 || params.Limit > store.MaxRecentLimit {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters)
		return
	}

	records, err := s.journal.Recent(c.Request.Context(), params.Limit)
	if shouldInterupt(err, c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": records,
	})
}

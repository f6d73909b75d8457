package api

import (
	"context"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/formationdesk/checkin/external/backend"
	"github.com/formationdesk/checkin/geo"
	"github.com/formationdesk/checkin/store"
	"github.com/formationdesk/checkin/submission"
	"github.com/formationdesk/checkin/utils"
)

var log *logrus.Entry

func init() {
	log = logrus.WithField("prefix", "gin")
}

// Server to run a http server instance
type Server struct {
	// Server instance
	server *http.Server

	// location source used when the browser sends no Geo-Position header
	positioner geo.Positioner
	gate       geo.Options

	device  submission.DeviceIdentifier
	backend backend.Caller
	journal store.SubmissionJournal

	// localized remediation copy
	catalog *utils.Catalog
}

// NewServer new instance of server
func NewServer(
	positioner geo.Positioner,
	gate geo.Options,
	device submission.DeviceIdentifier,
	caller backend.Caller,
	journal store.SubmissionJournal,
	catalog *utils.Catalog) *Server {
	return &Server{
		positioner: positioner,
		gate:       gate,
		device:     device,
		backend:    caller,
		journal:    journal,
		catalog:    catalog,
	}
}

// Run to run the server
func (s *Server) Run(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s.server.ListenAndServe()
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         10 * time.Second,
	}))

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept-Language", geo.GeoPositionHeader, geo.GeoPositionErrorHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if origins := viper.GetStringSlice("server.cors_origins"); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		// same-origin requests pass before this is consulted
		corsConfig.AllowOriginFunc = func(string) bool { return false }
	}

	// preflight requests never reach a route, so CORS has to sit on the engine
	r.Use(cors.New(corsConfig))

	apiRoute := r.Group("/api")
	apiRoute.Use(ginrus("API"))
	apiRoute.GET("/information", s.information)

	// api route other than `/information` will apply the following middleware
	apiRoute.Use(s.geoPositionMiddleware)

	apiRoute.GET("/location", s.location)
	apiRoute.GET("/fingerprint", s.fingerprint)

	apiRoute.POST("/attendance", s.markAttendance)
	apiRoute.POST("/devices", s.registerDevice)
	apiRoute.POST("/visits", s.createVisit)

	journalRoute := apiRoute.Group("/journal")
	journalRoute.Use(s.apikeyAuthentication(viper.GetString("server.apikey.journal")))
	{
		journalRoute.GET("", s.recentSubmissions)
	}

	r.GET("/healthz", s.healthz)

	return r
}

// Shutdown to shutdown the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// shouldInterupt sends error message and determine if it should interupt the current flow
func shouldInterupt(err error, c *gin.Context) bool {
	if err == nil {
		return false
	}

	log.Error(err)
	abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer)
	return true
}

func (s *Server) healthz(c *gin.Context) {
	// Ping db
	err := s.journal.Ping(c.Request.Context())
	if shouldInterupt(err, c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"version": viper.GetString("server.version"),
	})
}

func (s *Server) information(c *gin.Context) {
	languages := make([]string, 0)
	if s.catalog != nil {
		for _, tag := range s.catalog.Languages() {
			languages = append(languages, tag.String())
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"information": map[string]interface{}{
			"server": map[string]interface{}{
				"version": viper.GetString("server.version"),
			},
			"location": map[string]interface{}{
				"source":            viper.GetString("location.source"),
				"available":         s.positioner != nil && s.positioner.Available(),
				"high_accuracy":     s.gate.HighAccuracy,
				"timeout_ms":        s.gate.Timeout.Milliseconds(),
				"maximum_age_ms":    s.gate.MaximumAge.Milliseconds(),
				"required_accuracy": s.gate.RequiredAccuracy,
			},
			"languages": languages,
		},
	})
}

func responseWithEncoding(c *gin.Context, code int, obj ErrorResponse) {
	acceptEncoding := c.GetHeader("Accept-Encoding")
	switch acceptEncoding {
	default:
		c.JSON(code, obj)
	}
}

func abortWithEncoding(c *gin.Context, code int, obj ErrorResponse, errors ...error) {
	for _, err := range errors {
		_ = c.Error(err)
	}
	responseWithEncoding(c, code, obj)
	c.Abort()
}

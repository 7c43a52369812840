package router

import (
	"net/http"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/display"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/handlers"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/session"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// Options configures the station's HTTP surface.
type Options struct {
	Sessions        *session.Manager
	Board           *display.Board
	AssetRoot       string
	IntakeRateLimit uint
	ViewportWidth   float64
	ViewportHeight  float64
	// Records and Archive serve past sessions; nil disables their routes.
	Records handlers.RecordStore
	Archive handlers.SessionArchive
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": "Too many requests. Try again in " + time.Until(info.ResetTime).Round(time.Second).String(),
	})
}

func Setup(log *zap.Logger, o Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))
	router.Use(NonceMiddleware())

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	if o.AssetRoot != "" {
		router.Static("/assets", o.AssetRoot)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limit := o.IntakeRateLimit
	if limit == 0 {
		limit = 5
	}
	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: limit,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	sessionHandler := handlers.NewSessionHandler(log.Named("session"), o.Sessions, o.ViewportWidth, o.ViewportHeight)
	stationHandler := handlers.NewStationHandler(log.Named("station"), o.Sessions, o.Board)
	historyHandler := handlers.NewHistoryHandler(log.Named("history"), o.Records, o.Archive)

	api := router.Group("/api")
	{
		api.POST("/session", limiter, sessionHandler.Create)
		api.GET("/session", sessionHandler.Status)
		api.GET("/session/download", sessionHandler.Download)
		api.GET("/session/gaze-chart", sessionHandler.GazeChart)

		api.GET("/sessions/latest", historyHandler.Latest)
		api.GET("/sessions/recent", historyHandler.Recent)
		api.GET("/sessions/:id", historyHandler.Get)

		api.GET("/screen", stationHandler.Screen)
		api.POST("/calibration/start", stationHandler.StartCalibration)
		api.POST("/calibration/ack", stationHandler.Acknowledge)
		api.GET("/calibration/observations", stationHandler.Observations)
		api.POST("/gaze", stationHandler.PushGaze)
	}

	return router
}

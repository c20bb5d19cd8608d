package server

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Spinkelben/MarketDash/internal/metrics"
	"github.com/Spinkelben/MarketDash/protocol"
)

type RouterOptions struct {
	DebugHTTP bool

	// CORSOrigins lists the allowed origins, "*" allows any origin
	CORSOrigins []string

	// StaticDir holds the front-end, it is skipped when missing
	StaticDir string

	Log *zap.Logger
}

func NewRouter(market *Market, options RouterOptions) *gin.Engine {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	metrics.RegisterMetrics()

	gin.DisableConsoleColor()
	if !options.DebugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/api/health", "/metrics"},
	}))

	// Logs all panics to the error log, with stack traces
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.Use(requestMetrics())
	r.Use(cors.New(corsConfig(options.CORSOrigins)))

	h := handlers{market: market, log: log}

	api := r.Group("/api")
	api.GET("/vendors", h.vendors)
	api.GET("/menu/:vendorId", h.menu)
	api.POST("/timeslots", h.timeslots)
	api.GET("/health", h.health)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if options.StaticDir != "" {
		if info, err := os.Stat(options.StaticDir); err == nil && info.IsDir() {
			r.NoRoute(gin.WrapH(http.FileServer(http.Dir(options.StaticDir))))
		} else {
			log.Warn("Static directory not found, front-end is not served", zap.String("dir", options.StaticDir))
		}
	}

	return r
}

type handlers struct {
	market *Market
	log    *zap.Logger
}

func (h handlers) vendors(c *gin.Context) {
	data, err := h.market.Vendors(c.Request.Context())
	if err != nil {
		h.fail(c, "vendors", err)
		return
	}

	c.Data(http.StatusOK, gin.MIMEJSON, data)
}

func (h handlers) menu(c *gin.Context) {
	vendorID := c.Param("vendorId")

	data, err := h.market.Menu(c.Request.Context(), vendorID)
	if err != nil {
		h.fail(c, "menu", err, zap.String("vendorID", vendorID))
		return
	}

	c.Data(http.StatusOK, gin.MIMEJSON, data)
}

func (h handlers) timeslots(c *gin.Context) {
	var req TimeslotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := h.market.Timeslots(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "timeslots", err, zap.String("key", req.CacheKey()))
		return
	}

	if gjson.ValidBytes(data) {
		c.Data(http.StatusOK, gin.MIMEJSON, data)
		return
	}

	c.Data(http.StatusOK, gin.MIMEPlain, data)
}

func (h handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"connected": h.market.Connected(),
	})
}

func (h handlers) fail(c *gin.Context, what string, err error, fields ...zap.Field) {
	status := http.StatusBadGateway
	if errors.Is(err, protocol.ErrInvalidRoute) {
		status = http.StatusBadRequest
	}

	h.log.Error("Failed to serve "+what, append(fields, zap.Int("status", status), zap.Error(err))...)
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			// credentials rule out a literal "*", so echo the request origin
			config.AllowOriginFunc = func(string) bool { return true }
			return config
		}
	}

	if len(origins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
		return config
	}

	config.AllowOrigins = origins
	return config
}

// Observability middleware and the HTTP server for the API, metrics and profiling
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/nainya/pagefinder/internal/logger"
	"github.com/nainya/pagefinder/internal/metrics"
)

// GrpcMetricsInterceptor creates a gRPC interceptor for metrics and logging
func GrpcMetricsInterceptor(m *metrics.Metrics, log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		m.GrpcRequestsInFlight.Inc()
		defer m.GrpcRequestsInFlight.Dec()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		m.RecordGrpcRequest(info.FullMethod, status.Code(err).String(), duration)
		log.LogGrpcRequest(info.FullMethod, duration, err)

		return resp, err
	}
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Port        int
	GinMode     string
	CORSOrigins []string
}

// MetricsMiddleware records and logs every request by route template
func MetricsMiddleware(m *metrics.Metrics, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		m.RecordHTTPRequest(route, fmt.Sprintf("%d", c.Writer.Status()), duration)
		log.LogHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration)
	}
}

// NewRouter builds the gin engine serving the API, health probes, metrics
// and pprof.
func NewRouter(srv *Server, m *metrics.Metrics, log *logger.Logger, cfg HTTPConfig) *gin.Engine {
	if cfg.GinMode == gin.ReleaseMode || cfg.GinMode == gin.TestMode {
		gin.SetMode(cfg.GinMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(MetricsMiddleware(m, log))

	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		corsConfig.AllowCredentials = true
		router.Use(cors.New(corsConfig))
	}

	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "pagefinder"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if _, err := srv.Stats(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	debug := router.Group("/debug/pprof")
	debug.GET("/", gin.WrapF(pprof.Index))
	debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	debug.GET("/profile", gin.WrapF(pprof.Profile))
	debug.GET("/symbol", gin.WrapF(pprof.Symbol))
	debug.GET("/trace", gin.WrapF(pprof.Trace))
	for _, name := range []string{"heap", "goroutine", "threadcreate", "block", "mutex", "allocs"} {
		debug.GET("/"+name, gin.WrapH(pprof.Handler(name)))
	}

	api := router.Group("/api/v1")
	RegisterRoutes(api, srv)

	return router
}

// ObservabilityServer serves the HTTP router
type ObservabilityServer struct {
	server *http.Server
	log    *logger.Logger
}

// NewObservabilityServer creates the HTTP server for the API and observability
func NewObservabilityServer(srv *Server, m *metrics.Metrics, log *logger.Logger, cfg HTTPConfig) *ObservabilityServer {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(srv, m, log, cfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &ObservabilityServer{
		server: server,
		log:    log,
	}
}

// Start serves until Shutdown
func (o *ObservabilityServer) Start() error {
	o.log.Info("Starting HTTP server").
		Str("addr", o.server.Addr).
		Str("api", fmt.Sprintf("http://%s/api/v1/", o.server.Addr)).
		Str("metrics", fmt.Sprintf("http://%s/metrics", o.server.Addr)).
		Str("pprof", fmt.Sprintf("http://%s/debug/pprof/", o.server.Addr)).
		Send()

	if err := o.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (o *ObservabilityServer) Shutdown(ctx context.Context) error {
	o.log.Info("Shutting down HTTP server").Send()
	return o.server.Shutdown(ctx)
}

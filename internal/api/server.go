// Package api hosts the HTTP server: the v2 operator API and the
// Prometheus scrape endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apiv2 "github.com/faultwatch/faultwatch/internal/api/v2"
	"github.com/faultwatch/faultwatch/internal/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	// requestTimeout bounds requests that run alert rules.
	requestTimeout = 2 * time.Minute
)

// Server is the faultwatch HTTP server.
type Server struct {
	echo       *echo.Echo
	listen     string
	log        logger.Logger
	Controller *apiv2.Controller
}

// NewServer builds the server. gatherer backs GET /metrics; nil serves the
// default registry.
func NewServer(listen string, opts apiv2.Options, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	log = log.Module("http")
	opts.Logger = log

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, logger.Error(v.Error))...)
				return nil
			}
			log.Debug("request", fields...)
			return nil
		},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Server{
		echo:       e,
		listen:     listen,
		log:        log,
		Controller: apiv2.New(e, opts),
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.echo,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      requestTimeout,
	}
	s.log.Info("http server listening", logger.String("listen", s.listen))
	if err := s.echo.StartServer(srv); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

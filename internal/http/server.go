package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telebill/call-billing/internal/metrics"
	"github.com/telebill/call-billing/internal/service/pricing"
)

type Server struct{ e *echo.Echo }

// NewServer wires the ops endpoints and the call lifecycle hooks. The call
// endpoints are the producer boundary: the external call-handling system
// starts and finishes calls here, and a finish is acknowledged only after
// pricing committed. There is no auth on this surface.
func NewServer(pricingSvc *pricing.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	v1 := e.Group("/v1")
	v1.POST("/calls/start", startCallHandler(pricingSvc))
	v1.POST("/calls/:id/finish", finishCallHandler(pricingSvc))
	v1.GET("/calls/:id", getCallHandler(pricingSvc))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

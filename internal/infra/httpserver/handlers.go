package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitopia/gitopia-discord-bot/internal/services"
)

// HealthHandler returns service health.
func HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Stream        string `json:"stream"`
	Channels      int    `json:"channels"`
	Subscriptions int    `json:"subscriptions"`
}

// StatusHandler reports the stream state and registry size.
func StatusHandler(st StreamState, registry *services.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		channels, names := registry.Stats()
		return c.JSON(http.StatusOK, StatusResponse{
			Stream:        st.State().String(),
			Channels:      channels,
			Subscriptions: names,
		})
	}
}

// MetricsHandler serves the Prometheus exposition format.
func MetricsHandler(gatherer prometheus.Gatherer) echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

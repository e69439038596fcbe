// Package api assembles the HTTP surface: admin REST, viewer websocket, health checks and metrics.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/api/middleware"
	"github.com/kubilitics/kubeluma/internal/api/rest"
	"github.com/kubilitics/kubeluma/internal/api/websocket"
)

// Deps are the handlers the router mounts.
type Deps struct {
	Admin          *rest.Handler
	Health         *rest.HealthzHandler
	Viewer         *websocket.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter returns the full handler chain, CORS outermost.
func NewRouter(d Deps) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Recovery(d.Logger), middleware.StructuredLog(d.Logger))

	router.HandleFunc("/healthz/live", d.Health.Live).Methods(http.MethodGet)
	router.HandleFunc("/healthz/ready", d.Health.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// /ws stays outside the tracing chain; its span would last the whole connection.
	router.HandleFunc("/ws", d.Viewer.ServeWS).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.Tracing, middleware.RateLimitWrites(), middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))
	rest.SetupRoutes(apiRouter, d.Admin)

	router.Handle("/", middleware.SecureHeaders(http.HandlerFunc(rest.Index))).Methods(http.MethodGet)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.ResponseRequestIDHeader},
		ExposedHeaders: []string{middleware.ResponseRequestIDHeader, middleware.TraceIDHeader},
	})
	return c.Handler(router)
}

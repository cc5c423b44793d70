package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// RouterConfig collects what NewRouter needs besides the order handler.
type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *Metrics
	Ready          ReadinessCheck
	AllowedOrigins []string
}

// NewRouter builds the API handler: operational endpoints, order routes,
// recovery, logging and metrics middleware, wrapped in CORS.
func NewRouter(handler *Handler, cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(WithRecovery(cfg.Logger), WithLogging(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(WithMetrics(cfg.Metrics))
	}

	RegisterOperationalRoutes(router, cfg.Ready)
	handler.RegisterRoutes(router)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", headerUserID, headerUserRole, headerIdempotencyKey},
		ExposedHeaders: []string{headerReplayed},
	}).Handler(router)
}

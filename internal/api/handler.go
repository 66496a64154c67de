package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/clock"
	"github.com/kastelov/lexitrain/internal/gateway"
	"github.com/kastelov/lexitrain/internal/llm"
	"github.com/kastelov/lexitrain/internal/store"
)

// Handler holds dependencies for the operational HTTP endpoints.
type Handler struct {
	store  *store.Store
	rdb    *redis.Client
	llmGW  *llm.Gateway
	restGW *gateway.RESTAdapter
	gw     *gateway.Gateway
	clock  clock.Clock
	logger *zap.Logger
}

// NewHandler creates an API handler. rdb may be nil when the hot cache is
// disabled.
func NewHandler(st *store.Store, rdb *redis.Client, llmGW *llm.Gateway,
	restGW *gateway.RESTAdapter, gw *gateway.Gateway, clk clock.Clock, logger *zap.Logger) *Handler {
	return &Handler{
		store:  st,
		rdb:    rdb,
		llmGW:  llmGW,
		restGW: restGW,
		gw:     gw,
		clock:  clk,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/stats", h.globalStats)
		r.Mount("/gateway/rest", h.restGW.Routes())
	})
	return r
}

type componentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	components := map[string]componentHealth{}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		components["postgres"] = componentHealth{Status: "down", Detail: err.Error()}
		healthy = false
	} else {
		components["postgres"] = componentHealth{Status: "ok"}
	}

	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			components["redis"] = componentHealth{Status: "down", Detail: err.Error()}
		} else {
			components["redis"] = componentHealth{Status: "ok"}
		}
	} else {
		components["redis"] = componentHealth{Status: "disabled"}
	}

	breaker := h.llmGW.BreakerState()
	state := componentHealth{Status: "ok", Detail: breaker.String()}
	if breaker != llm.BreakerClosed {
		state.Status = "degraded"
	}
	components["model"] = state

	components["gateway"] = componentHealth{
		Status: "ok",
		Detail: "platforms: " + strings.Join(h.gw.Adapters(), ","),
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
		"time":       h.clock.Now(),
	})
}

func (h *Handler) globalStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()

	stats, err := h.store.GetGlobalStats(ctx, h.clock.Now())
	if err != nil {
		h.logger.Error("global stats failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

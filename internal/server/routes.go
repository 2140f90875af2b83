package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig lists what NewRouter mounts
type RouterConfig struct {
	API       *APIHandler
	Hub       *Hub
	AuthToken string
	Version   string
	Metrics   http.Handler // defaults to promhttp.Handler()
}

// NewRouter mounts the REST API, the WebSocket hub, health and metrics
func NewRouter(cfg RouterConfig) *http.ServeMux {
	api := cfg.API
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/trend", api.HandleTrend)
	mux.HandleFunc("GET /api/readings", api.HandleReadings)
	mux.HandleFunc("GET /api/history", api.HandleHistory)
	mux.HandleFunc("GET /api/trends", api.HandleTrends)
	mux.HandleFunc("GET /api/daily/stats", api.HandleDailyStats)
	mux.HandleFunc("GET /api/stats", api.HandleStats)
	mux.HandleFunc("GET /api/preferences", api.HandleGetPreferences)
	mux.HandleFunc("POST /api/preferences", requireAuth(cfg.AuthToken, api.HandlePostPreferences))
	mux.HandleFunc("POST /api/refresh", requireAuth(cfg.AuthToken, api.HandleRefresh))
	mux.HandleFunc("POST /api/broadcast", requireAuth(cfg.AuthToken, api.HandleBroadcast))

	if cfg.Hub != nil {
		mux.Handle("GET /ws", cfg.Hub)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": cfg.Version})
	})
	mux.Handle("GET /metrics", metrics)

	return mux
}

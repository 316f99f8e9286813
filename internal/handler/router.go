package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"chatline/internal/pkg/limiter"
	"chatline/internal/pkg/logx"
	"chatline/internal/pkg/resp"
)

// Router sets up the relay's routes and middleware. Background work started
// here (limiter cleanup) stops when ctx is done.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	verifyLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(deps.Config.VerifyRate), deps.Config.VerifyBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients send no Origin
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondOK(w, r, map[string]string{
			"status":  "ok",
			"service": "chatline relay",
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/messages", HandleListMessages(deps))
		api.With(verifyLimiter.Middleware).Post("/verify-admin", HandleVerifyAdmin(deps))
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}

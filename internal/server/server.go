package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"chgk-poll-bot/internal/config"
	"chgk-poll-bot/internal/metrics"
	"chgk-poll-bot/internal/util"
)

// Telegram updates are small; anything larger is not an update.
const maxUpdateSize = 1 << 20

type Bot interface {
	HandleUpdate(ctx context.Context, body []byte)
	Sweep(ctx context.Context) error
	EnsureWebhook(ctx context.Context) error
}

func New(cfg config.Config, bot Bot, m *metrics.Metrics, log logrus.FieldLogger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           Router(cfg, bot, m, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Router exposes the health check, the webhook, the sweep trigger for an
// external scheduler and metrics.
func Router(cfg config.Config, bot Bot, m *metrics.Metrics, log logrus.FieldLogger) http.Handler {
	log = log.WithField("component", "http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"mode": cfg.Mode,
			"ts":   util.NowISO(),
		})
	})

	r.Get("/setwebhook", func(w http.ResponseWriter, r *http.Request) {
		if err := bot.EnsureWebhook(r.Context()); err != nil {
			log.WithError(err).Warn("set webhook failed")
			http.Error(w, "set webhook failed", http.StatusBadGateway)
			return
		}
	})

	r.Get("/systemtic", func(w http.ResponseWriter, r *http.Request) {
		if err := bot.Sweep(r.Context()); err != nil {
			log.WithError(err).Warn("sweep failed")
		}
	})

	r.Post("/command{token}", func(w http.ResponseWriter, r *http.Request) {
		if !util.SecretEqual(chi.URLParam(r, "token"), cfg.ObfuscationToken) {
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateSize))
		if err != nil {
			log.WithError(err).Warn("read update")
			return
		}
		bot.HandleUpdate(r.Context(), body)
	})

	r.Method(http.MethodGet, "/metrics", m.Handler())

	return r
}

// requestLogger logs the route pattern rather than the path so the webhook
// token stays out of logs.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"route":      route,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}

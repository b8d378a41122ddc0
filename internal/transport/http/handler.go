package http

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"rewardgate/internal/observability/logger"
	"rewardgate/internal/provider"
	"rewardgate/internal/service"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	processor *service.RewardProcessor
	registry  *provider.Registry
	metrics   http.Handler
	log       *zap.Logger
}

func NewHandler(processor *service.RewardProcessor, registry *provider.Registry, metrics http.Handler, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		processor: processor,
		registry:  registry,
		metrics:   metrics,
		log:       log.Named("http"),
	}
}

// Register mounts one route per provider that has a secret configured.
func (h *Handler) Register(r chi.Router) {
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.requestLog)

	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	for _, a := range h.registry.All() {
		if !h.processor.Enabled(a.Name()) {
			h.log.Warn("provider disabled: no secret configured", zap.String("provider", a.Name()))
			continue
		}
		r.Method(a.Method(), "/postbacks/"+a.Name(), h.Postback(a))
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Postback runs the shared pipeline for one adapter and writes the outcome
// as a short status line.
func (h *Handler) Postback(a provider.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			var err error
			body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				h.respondText(w, service.OutcomeParseError.StatusCode(), service.OutcomeParseError.Message())
				return
			}
		}

		res := h.processor.Process(r.Context(), a, r, body)
		h.respondText(w, res.Outcome.StatusCode(), res.Outcome.Message())
	}
}

func (h *Handler) respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", logger.MaskQuery(r.URL.RawQuery)),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

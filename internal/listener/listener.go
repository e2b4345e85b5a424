// Package listener runs the local webhook receiver used to inspect what
// GitLab, GitHub, and Gitea actually deliver.
package listener

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/livereview/lrtool/internal/telemetry"
)

const maxPayloadBytes = 10 << 20

// Config configures the webhook listener.
type Config struct {
	Addr string
	// Secret signs GitHub/Gitea deliveries (X-Hub-Signature-256 /
	// X-Gitea-Signature). Empty disables signature checks.
	Secret string
	// GitlabToken is compared against X-Gitlab-Token. Falls back to
	// Secret when empty.
	GitlabToken string
	DedupTTL    time.Duration
}

// Deduper marks delivery IDs so redelivered events are reported once.
type Deduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Server receives webhook deliveries, verifies them, and logs a summary
// per event.
type Server struct {
	cfg      Config
	log      *zap.Logger
	dedup    Deduper
	registry *prometheus.Registry

	deliveries *prometheus.CounterVec
	rejections prometheus.Counter
}

// New creates a listener server. dedup may be nil to disable delivery
// deduplication.
func New(cfg Config, logger *zap.Logger, dedup Deduper) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.GitlabToken == "" {
		cfg.GitlabToken = cfg.Secret
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtool_webhook_deliveries_total",
		Help: "Webhook deliveries received, by source and event type.",
	}, []string{"source", "event", "status"})
	rejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lrtool_webhook_rejections_total",
		Help: "Deliveries rejected for bad or missing signatures.",
	})
	if err := registry.Register(deliveries); err != nil {
		return nil, fmt.Errorf("register deliveries counter: %w", err)
	}
	if err := registry.Register(rejections); err != nil {
		return nil, fmt.Errorf("register rejections counter: %w", err)
	}

	return &Server{
		cfg:        cfg,
		log:        logger,
		dedup:      dedup,
		registry:   registry,
		deliveries: deliveries,
		rejections: rejections,
	}, nil
}

// Handler returns the HTTP routes: POST /webhook, GET /healthz, and
// GET /metrics.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Post("/webhook", s.wrap("webhook", s.handleWebhook))
	router.Get("/healthz", s.wrap("healthz", s.handleHealthz))
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("webhook listener started", zap.String("addr", s.cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown listener: %w", err)
	}
	return nil
}

func (s *Server) wrap(route string, handler http.HandlerFunc) http.HandlerFunc {
	if !telemetry.ShouldTraceDependencies() {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("lrtool/internal/listener").Start(
			r.Context(),
			"http.server."+route,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	}
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	delivery := identifyDelivery(r.Header)

	if !s.verify(delivery, r.Header, body) {
		s.rejections.Inc()
		s.deliveries.WithLabelValues(delivery.Source, delivery.Event, "rejected").Inc()
		s.log.Warn("webhook rejected",
			zap.String("source", delivery.Source),
			zap.String("event", delivery.Event),
			zap.String("remote", r.RemoteAddr),
		)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature verification failed"})
		return
	}

	if s.dedup != nil && delivery.ID != "" && s.cfg.DedupTTL > 0 {
		first, err := s.dedup.MarkOnce(r.Context(), delivery.Source+":"+delivery.ID, s.cfg.DedupTTL)
		if err != nil {
			s.log.Warn("delivery dedup check failed", zap.Error(err))
		} else if !first {
			s.deliveries.WithLabelValues(delivery.Source, delivery.Event, "duplicate").Inc()
			s.log.Info("duplicate delivery skipped",
				zap.String("source", delivery.Source),
				zap.String("delivery_id", delivery.ID),
			)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duplicate": true})
			return
		}
	}

	summary := summarize(delivery, body)
	s.deliveries.WithLabelValues(delivery.Source, summary.Event, "accepted").Inc()
	s.log.Info("webhook received",
		zap.String("source", delivery.Source),
		zap.String("event", summary.Event),
		zap.String("action", summary.Action),
		zap.String("repo", summary.Repo),
		zap.String("sender", summary.Sender),
		zap.Int("number", summary.Number),
		zap.String("title", summary.Title),
		zap.String("delivery_id", delivery.ID),
	)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) verify(delivery deliveryInfo, header http.Header, body []byte) bool {
	switch delivery.Source {
	case "gitlab":
		if s.cfg.GitlabToken == "" {
			return true
		}
		return hmac.Equal([]byte(header.Get("X-Gitlab-Token")), []byte(s.cfg.GitlabToken))
	default:
		if s.cfg.Secret == "" {
			return true
		}
		signature := strings.TrimPrefix(header.Get("X-Hub-Signature-256"), "sha256=")
		if signature == "" {
			signature = header.Get("X-Gitea-Signature")
		}
		if signature == "" {
			return false
		}
		mac := hmac.New(sha256.New, []byte(s.cfg.Secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(signature), []byte(expected))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

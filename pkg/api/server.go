package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Steve-IX/Ezra/pkg/agent"
	"github.com/Steve-IX/Ezra/pkg/contracts"
	"github.com/Steve-IX/Ezra/pkg/llm"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes int64 = 1 << 20

// PlanService is the pipeline behind the agent endpoints.
type PlanService interface {
	GeneratePlan(ctx context.Context, req contracts.PlanRequest) (*contracts.PlanResult, error)
	Inspect(ctx context.Context, data json.RawMessage, sig contracts.Signature) agent.Verification
	PublicKey() string
	Algorithm() string
}

// ProviderRegistry reports provider availability.
type ProviderRegistry interface {
	Status() []llm.ProviderStatus
	ListAvailable() []string
}

// Server holds the HTTP handlers.
type Server struct {
	plans     PlanService
	providers ProviderRegistry
	version   string
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithVersion sets the version reported by /health.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger.With("component", "api") }
}

// NewServer builds the HTTP surface.
func NewServer(plans PlanService, providers ProviderRegistry, opts ...ServerOption) *Server {
	s := &Server{
		plans:     plans,
		providers: providers,
		version:   "dev",
		gatherer:  prometheus.DefaultGatherer,
		logger:    slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed endpoints without middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/agent/plan", allow(http.MethodPost, s.handleGeneratePlan))
	mux.Handle("/api/v1/agent/verify", allow(http.MethodPost, s.handleVerifyPlan))
	mux.Handle("/api/v1/crypto/public-key", allow(http.MethodGet, s.handlePublicKey))
	mux.Handle("/api/v1/llm/providers", allow(http.MethodGet, s.handleProviders))
	mux.Handle("/health", allow(http.MethodGet, s.handleHealth))
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "No such endpoint")
	})
	return mux
}

// allow rejects any method but m with a 405 problem.
func allow(m string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			WriteMethodNotAllowed(w, m)
			return
		}
		h(w, r)
	})
}

// Chain wraps h so that mws[0] is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

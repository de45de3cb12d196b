// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	service "github.com/okian/attest/internal/app"
	"github.com/okian/attest/internal/domain/prize"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/internal/domain/token"
	"github.com/okian/attest/pkg/logger"
)

const maxBodyBytes = 64 << 10

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	AttestText(ctx context.Context, text, claimant string) (service.AttestationResult, error)

	Spin(ctx context.Context, userID string) (service.SpinResult, error)
	CooldownStatus(ctx context.Context, userID string) (service.SpinStatus, time.Time, error)
	Catalog() *prize.Catalog

	Redeem(ctx context.Context, code string) (service.CouponView, error)
	Coupon(ctx context.Context, code string) (service.CouponView, error)
	CouponsByOwner(ctx context.Context, ownerID string) ([]service.CouponView, error)

	IssueToken(ctx context.Context, req token.Request) (token.Issued, error)
	RiskProfile(ctx context.Context, userID string, recompute bool) (risk.Profile, error)

	Stats(ctx context.Context) (service.StatsSnapshot, error)
	Ping(ctx context.Context) error
}

var _ Dependencies = (*service.Service)(nil)

// Server wires HTTP routes for the business API.
type Server struct {
	deps    Dependencies
	logger  logger.Logger
	limiter *RateLimiter
	docs    func(chi.Router)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRateLimit bounds attest and redeem requests per client address.
func WithRateLimit(cfg RateLimit) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(cfg) }
}

// WithDocs mounts API documentation routes.
func WithDocs(register func(chi.Router)) Option {
	return func(s *Server) { s.docs = register }
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, limiter: NewRateLimiter(RateLimit{})}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	r.Handle("/metrics", metricsHandler())
	r.Get("/stats", MetricsMiddleware(s.handleStats, "stats"))
	if s.docs != nil {
		s.docs(r)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(s.limiter.Middleware("attest")).
			Post("/attest", MetricsMiddleware(s.handleAttest, "attest"))

		r.Post("/spins", MetricsMiddleware(s.handleSpin, "spin"))
		r.Get("/spins/{user}", MetricsMiddleware(s.handleSpinStatus, "spin_status"))
		r.Get("/catalog", MetricsMiddleware(s.handleCatalog, "catalog"))

		r.With(s.limiter.Middleware("redeem")).
			Post("/coupons/{code}/redeem", MetricsMiddleware(s.handleRedeem, "redeem"))
		r.Get("/coupons/{code}", MetricsMiddleware(s.handleGetCoupon, "coupon"))
		r.Get("/users/{user}/coupons", MetricsMiddleware(s.handleListCoupons, "user_coupons"))

		r.Post("/tokens", MetricsMiddleware(s.handleIssueToken, "tokens"))
		r.Get("/risk/{user}", MetricsMiddleware(s.handleRisk, "risk"))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, nil)
	})
	return r
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps a client code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case service.CodeInvalidPayload, service.CodeInvalidRequest:
		return http.StatusBadRequest
	case service.CodeInvalidSignature:
		return http.StatusUnauthorized
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeAlreadyUsed, service.CodeAlreadyRedeemed:
		return http.StatusConflict
	case service.CodeExpired:
		return http.StatusGone
	case service.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders a service error. Internal details of 5xx errors
// are logged, not returned.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := service.Code(err)
	status := statusFor(code)
	resp := errorResponse{Code: code, Message: err.Error(), Retryable: service.Retryable(err)}
	if resp.Retryable {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.String("code", code),
			logger.Error(err),
		)
		resp.Message = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into v.
func decode(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return WrapKind(op, ErrBadRequest, errors.New("empty body"))
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, service.CodeInvalidRequest, err)
}

func missing(op, field string) error {
	return WrapKind(op, ErrBadRequest, fmt.Errorf("missing %s", field))
}

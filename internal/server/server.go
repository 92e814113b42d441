// Package server is the HTTP edge: routing, request validation, token
// extraction, and envelope projection. No business logic lives here.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ican-broker/internal/auth"
	"ican-broker/internal/broker"
	"ican-broker/internal/common/logger"
	"ican-broker/internal/common/observability"
)

// Lifecycle is the orchestrator surface the handlers call into.
type Lifecycle interface {
	GetLimit(ctx context.Context, token string, in broker.LimitInput) (*broker.LimitOutput, error)
	CreateContract(ctx context.Context, token string, in broker.ContractInput) (*broker.ContractOutput, error)
	VerifyOTP(ctx context.Context, token string, in broker.OTPInput) (*broker.MessageOutput, error)
	GetStatus(ctx context.Context, token, appID string) (*broker.StatusOutput, error)
	GetByID(ctx context.Context, token, appID string) (*broker.DetailOutput, error)
	DownloadSchedule(ctx context.Context, token, appID string) (*broker.ScheduleFile, error)
	DeleteProducts(ctx context.Context, token, appID string) (*broker.MessageOutput, error)
	Reject(ctx context.Context, token, appID string) (*broker.MessageOutput, error)
}

// Authenticator is the login surface.
type Authenticator interface {
	SignIn(ctx context.Context, creds auth.Credentials) (*auth.Token, error)
	BrokerLogin(ctx context.Context, key auth.BrokerKey) (*auth.Token, error)
}

type Server struct {
	lifecycle Lifecycle
	auth      Authenticator
	logger    logger.Logger
	obs       *observability.Observability
	router    chi.Router
}

func New(lifecycle Lifecycle, authenticator Authenticator, obs *observability.Observability, log logger.Logger) *Server {
	s := &Server{
		lifecycle: lifecycle,
		auth:      authenticator,
		logger:    log.WithFields(map[string]interface{}{"component": "server"}),
		obs:       obs,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth/broker", func(r chi.Router) {
		r.Post("/sign-in", s.handleSignIn)
		r.Post("/login", s.handleBrokerLogin)
	})

	r.Route("/application/broker", func(r chi.Router) {
		r.Post("/get-limit", s.handleGetLimit)
		r.Post("/add-product", s.handleCreateContract)
		r.Post("/add-period", s.handleGetStatus)
		r.Post("/confirm-contract-otp", s.handleVerifyOTP)
		r.Get("/get-contract/{id}", s.handleGetContract)
		r.Get("/get/{id}", s.handleGetByID)
		r.Delete("/delete-product/{id}", s.handleDeleteProducts)
		r.Delete("/reject/{id}", s.handleReject)
	})

	return r
}

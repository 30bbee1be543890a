package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/elitetrust/stepup-ledger/internal/api/handler"
	"github.com/elitetrust/stepup-ledger/internal/api/middleware"
	"github.com/elitetrust/stepup-ledger/internal/config"
	"github.com/elitetrust/stepup-ledger/internal/idempotency"
	"github.com/elitetrust/stepup-ledger/internal/notification"
	"github.com/elitetrust/stepup-ledger/internal/repository"
	"github.com/elitetrust/stepup-ledger/internal/service"
)

type Router struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *pgxpool.Pool
	store      *repository.Store
	idemStore  *idempotency.Store
	redis      redis.Cmdable
	dispatcher notification.Dispatcher
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	store *repository.Store,
	idemStore *idempotency.Store,
	redisClient redis.Cmdable,
	dispatcher notification.Dispatcher,
) *Router {
	return &Router{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      store,
		idemStore:  idemStore,
		redis:      redisClient,
		dispatcher: dispatcher,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	// Services
	policySvc := service.NewPolicyService(api.store)
	gate := service.NewCheckpointGate(api.store, policySvc, api.dispatcher)
	verifier := service.NewOtpVerifier(api.store, gate)
	transactionSvc := service.NewTransactionService(api.store)
	settlementEngine := service.NewSettlementEngine(api.store, api.dispatcher, api.cfg.InternalBankCode)
	accountSvc := service.NewAccountService(api.store)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	transactionHandler := handler.NewTransactionHandler(transactionSvc, gate, verifier, settlementEngine)
	policyHandler := handler.NewPolicyHandler(policySvc)
	accountHandler := handler.NewAccountHandler(accountSvc)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
	})
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		// Transaction workflow
		r.Post("/v1/transactions", transactionHandler.Open)
		r.Get("/v1/transactions/{id}", transactionHandler.Get)
		r.Get("/v1/transactions/{id}/checkpoint", transactionHandler.EvaluateCheckpoint)
		r.Post("/v1/transactions/{id}/otp/verify", transactionHandler.VerifyOtp)
		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).
			Post("/v1/transactions/{id}/complete", transactionHandler.Complete)

		// Accounts
		r.Get("/v1/accounts/{id}/balance", accountHandler.GetBalance)
		r.Get("/v1/accounts/{id}/statement", accountHandler.GetStatement)

		// Administrative
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Post("/v1/accounts", accountHandler.Create)
			r.Delete("/v1/transactions/{id}", transactionHandler.Delete)
			r.Put("/v1/customers/{id}/otp-policy", policyHandler.Upsert)
			r.Get("/v1/customers/{id}/otp-policy", policyHandler.Get)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "request/unknown-route", "route not found")
	})

	return r
}

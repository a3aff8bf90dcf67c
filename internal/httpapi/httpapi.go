package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"siampos/backend/internal/payment"
	"siampos/backend/internal/service"
	"siampos/backend/internal/store"
)

type API struct {
	service          *service.Service
	auth             *AuthManager
	policy           Policy
	allowedOrigin    string
	webhookSecret    string
	webhookTolerance time.Duration
	loginRateLimit   int
}

type Options struct {
	AllowedOrigin    string
	WebhookSecret    string
	WebhookTolerance time.Duration
	Policy           Policy
	LoginRateLimit   int
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	if opts.WebhookTolerance <= 0 {
		opts.WebhookTolerance = payment.DefaultTolerance
	}
	if opts.LoginRateLimit < 1 {
		opts.LoginRateLimit = 10
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		service:          svc,
		auth:             auth,
		policy:           opts.Policy,
		allowedOrigin:    opts.AllowedOrigin,
		webhookSecret:    opts.WebhookSecret,
		webhookTolerance: opts.WebhookTolerance,
		loginRateLimit:   opts.LoginRateLimit,
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{a.allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", payment.SignatureHeader},
		AllowCredentials: a.allowedOrigin != "*",
		MaxAge:           300,
	}))

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(a.loginRateLimit, time.Minute))
			r.Post("/auth/login", a.handleLogin)
		})
		r.Post("/payments/webhook", a.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapSalesWrite))
				r.Post("/sales", a.handleCheckout)
			})
			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapSalesRead))
				r.Get("/sales", a.handleListSales)
				r.Get("/sales/by-intent/{intentID}", a.handleSaleByIntent)
				r.Get("/sales/{id}", a.handleGetSale)
			})

			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapPayments))
				r.Post("/payments/promptpay-intent", a.handlePaymentIntent("qr"))
				r.Post("/payments/card-intent", a.handlePaymentIntent("card"))
			})

			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapStockWrite))
				r.Post("/stock/in", a.handleStockIn)
				r.Post("/stock/out", a.handleStockOut)
				r.Post("/stock/audit", a.handleStockAudit)
			})
			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapStockRead))
				r.Get("/stock/logs", a.handleStockLogs)
			})

			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapProductRead))
				r.Get("/products", a.handleListProducts)
				r.Get("/products/{id}", a.handleGetProduct)
			})
			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapProductWrite))
				r.Post("/products", a.handleCreateProduct)
				r.Patch("/products/{id}", a.handleUpdateProduct)
				r.Delete("/products/{id}", a.handleDeleteProduct)
			})

			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapRefundWrite))
				r.Post("/refunds", a.handleCreateRefund)
			})
			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapRefundRead))
				r.Get("/refunds", a.handleListRefunds)
				r.Get("/refunds/{id}", a.handleGetRefund)
			})

			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapReports))
				r.Get("/reports/daily", a.handleDailyReport)
				r.Get("/activity-logs", a.handleActivityLogs)
			})

			r.Group(func(r chi.Router) {
				r.Use(a.requireCapability(CapUserManage))
				r.Get("/users", a.handleListUsers)
				r.Post("/users", a.handleCreateUser)
				r.Post("/users/{username}/password", a.handleChangePassword)
			})
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(startedAt),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) requireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !a.policy.Allows(actor.Role, capability) {
				writeError(w, http.StatusForbidden, errors.New("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// statusForError maps service/store sentinels to HTTP status codes. Callers
// that need a richer body (insufficient stock) handle that before falling
// back here.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateInvoice):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidRequest), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic so internals never leak to clients.
	msg := err.Error()
	if status >= 500 {
		slog.Error("request failed", "status", status, "err", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

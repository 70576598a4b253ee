package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"tenantcore.org/api/spec"
	"tenantcore.org/internal/alerts"
	"tenantcore.org/internal/audit"
	"tenantcore.org/internal/identity"
	"tenantcore.org/internal/obs"
	"tenantcore.org/internal/risk"
)

// ReadyProbe — простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the services the HTTP layer exposes.
type Deps struct {
	Store    identity.Store
	Manager  *identity.Manager
	Roles    *identity.RoleDirectory
	Analyzer *risk.Analyzer
	Alerts   *alerts.Hub
	Attempts audit.AttemptWriter
	TokenTTL time.Duration

	// AnalysisPeriodDays is the default window when the request does not
	// carry period_days. Zero falls back to risk.DefaultPeriodDays.
	AnalysisPeriodDays int
}

// API — HTTP слой.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	store          identity.Store
	manager        *identity.Manager
	roles          *identity.RoleDirectory
	analyzer       *risk.Analyzer
	alerts         *alerts.Hub
	attempts       audit.AttemptWriter
	tokenTTL       time.Duration
	analysisPeriod int
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:            http.NewServeMux(),
		readyProbe:     rp,
		version:        version,
		store:          deps.Store,
		manager:        deps.Manager,
		roles:          deps.Roles,
		analyzer:       deps.Analyzer,
		alerts:         deps.Alerts,
		attempts:       deps.Attempts,
		tokenTTL:       deps.TokenTTL,
		analysisPeriod: deps.AnalysisPeriodDays,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 30 * time.Minute
	}
	if a.analysisPeriod < risk.MinPeriodDays || a.analysisPeriod > risk.MaxPeriodDays {
		a.analysisPeriod = risk.DefaultPeriodDays
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)

	// users: roles, tenants, claims, security
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)

	// roles
	a.mux.HandleFunc("/v1/roles", a.handleRolesCollection)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	// tenants
	a.mux.HandleFunc("/v1/tenants", a.handleTenantsCollection)

	// SSE alert stream
	a.mux.HandleFunc("/v1/security/stream", a.Stream)

	// (опционально) корень — 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает http.Handler для сервера (без доп. аргументов).
func (a *API) Handler() http.Handler {
	// оборачиваем mux авторизацией и метриками
	return obs.Instrument(a.withAuth(a.mux))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tenantcore-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "tenantcore-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"tenantcore.org/internal/audit"
	"tenantcore.org/internal/identity"
	"tenantcore.org/internal/ids"
	"tenantcore.org/internal/obs"
	"tenantcore.org/internal/token"
)

type loginRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Roles     []string  `json:"roles"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userName := strings.TrimSpace(req.UserName)
	if userName == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "user_name and password are required")
		return
	}

	meta := audit.MetaFromRequest(r)

	user, err := a.store.Users().FindByName(r.Context(), userName)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	if !user.Active {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !a.manager.CheckPassword(r.Context(), user, req.Password, meta) {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	principal, err := a.manager.BuildPrincipal(r.Context(), user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}
	roles := principal.Roles()

	tok, err := token.Generate(user.ID, user.TenantID, roles, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	// Successful logins feed the audit trail too; the risk heuristics that
	// work on successes (concurrent sessions, movement, new IP/device) need
	// them. Region stays empty, geo enrichment happens downstream.
	if a.attempts != nil {
		attempt := &audit.LoginAttempt{
			ID:       ids.New(),
			UserID:   user.ID,
			UserName: user.UserName,
			Provider: "local",
			IP:       meta.IP,
			Browser:  audit.Truncate(meta.UserAgent, audit.MaxBrowserLen),
			Success:  true,
			LoginAt:  time.Now().UTC(),
		}
		if err := a.attempts.Append(r.Context(), attempt); err != nil {
			obs.Error("record successful login attempt", err, map[string]any{"user_id": user.ID})
		}
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.login.success", map[string]any{
		"user_id":    user.ID,
		"user_name":  user.UserName,
		"ip":         meta.IP,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     tok,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Roles:     roles,
	})
}

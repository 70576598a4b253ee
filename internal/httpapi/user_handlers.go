package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tenantcore.org/internal/alerts"
	"tenantcore.org/internal/audit"
	"tenantcore.org/internal/identity"
	"tenantcore.org/internal/risk"
)

type assignRolesRequest struct {
	RoleName string   `json:"role_name"`
	Roles    []string `json:"roles"`
}

type userRolesResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

type inRoleResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	InRole bool   `json:"in_role"`
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]
	switch parts[1] {
	case "roles":
		switch len(parts) {
		case 2:
			a.handleUserRoles(w, r, userID)
		case 3:
			a.handleUserRoleMembership(w, r, userID, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "tenants":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleUserTenants(w, r, userID)
	case "claims":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleUserClaims(w, r, userID)
	case "security":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleUserSecurity(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermissions(w, r, identity.PermRolesManage) {
			return
		}
		a.assignRoles(w, r, userID)
	case http.MethodGet:
		if !a.ensurePermissions(w, r, identity.PermRolesView) {
			return
		}
		a.listUserRoles(w, r, userID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) assignRoles(w http.ResponseWriter, r *http.Request, userID string) {
	var req assignRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	names := req.Roles
	if single := strings.TrimSpace(req.RoleName); single != "" {
		names = append(names, single)
	}
	if len(names) == 0 {
		writeError(w, r, http.StatusBadRequest, "role_name or roles is required")
		return
	}

	user, ok := a.findUser(w, r, userID)
	if !ok {
		return
	}
	if err := a.manager.AddToRoles(r.Context(), user, names); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	a.audit(r.Context(), "identity.user.assign_roles", "user", userID, map[string]string{
		"roles": strings.Join(names, ","),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	user, ok := a.findUser(w, r, userID)
	if !ok {
		return
	}
	principal, err := a.manager.BuildPrincipal(r.Context(), user)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userRolesResponse{
		UserID: user.ID,
		Roles:  principal.Roles(),
	})
}

func (a *API) handleUserRoleMembership(w http.ResponseWriter, r *http.Request, userID, roleName string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, identity.PermRolesView) {
			return
		}
		user, ok := a.findUser(w, r, userID)
		if !ok {
			return
		}
		inRole, err := a.manager.IsInRole(r.Context(), user, roleName)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, inRoleResponse{
			UserID: user.ID,
			Role:   roleName,
			InRole: inRole,
		})
	case http.MethodDelete:
		if !a.ensurePermissions(w, r, identity.PermRolesManage) {
			return
		}
		user, ok := a.findUser(w, r, userID)
		if !ok {
			return
		}
		if err := a.manager.RemoveFromRole(r.Context(), user, roleName); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		a.audit(r.Context(), "identity.user.remove_role", "user", userID, map[string]string{
			"role": roleName,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleUserTenants(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, identity.PermTenantsView) {
		return
	}
	user, ok := a.findUser(w, r, userID)
	if !ok {
		return
	}
	tenants, err := a.manager.GetAllowedTenants(r.Context(), user)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"tenants": tenants,
	})
}

func (a *API) handleUserClaims(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, identity.PermUsersView) {
		return
	}
	user, ok := a.findUser(w, r, userID)
	if !ok {
		return
	}
	principal, err := a.manager.BuildPrincipal(r.Context(), user)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"claims":  principal.Claims,
	})
}

func (a *API) handleUserSecurity(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, identity.PermSecurityAnalyze) {
		return
	}

	opts := risk.DefaultOptions()
	period, err := parsePositiveInt(r.URL.Query().Get("period_days"), a.analysisPeriod, risk.MinPeriodDays, risk.MaxPeriodDays)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "period_days must be between 1 and 365")
		return
	}
	opts.PeriodDays = period
	if raw := strings.TrimSpace(r.URL.Query().Get("include_failed")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "include_failed must be a boolean")
			return
		}
		opts.IncludeFailedLogins = v
	}

	report, err := a.analyzer.Analyze(r.Context(), userID, opts)
	if err != nil {
		handleRiskError(w, r, err)
		return
	}

	if a.alerts != nil {
		if alert, ok := alerts.FromReport(report); ok {
			a.alerts.Publish(alert)
		}
	}

	a.audit(r.Context(), "security.analysis.run", "user", userID, map[string]string{
		"level":       report.Level.String(),
		"score":       strconv.Itoa(report.Score),
		"period_days": strconv.Itoa(report.PeriodDays),
	})
	writeJSON(w, http.StatusOK, report)
}

// findUser loads the addressed user or writes the error response.
func (a *API) findUser(w http.ResponseWriter, r *http.Request, userID string) (*identity.User, bool) {
	user, err := a.store.Users().Find(r.Context(), strings.TrimSpace(userID))
	if err != nil {
		handleIdentityError(w, r, err)
		return nil, false
	}
	return user, true
}

// --- helpers ---

func (a *API) audit(ctx context.Context, event, resource, id string, meta map[string]string) {
	fields := map[string]any{
		"resource":    resource,
		"resource_id": id,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("value must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("value out of range")
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	code := identity.Code(err)
	switch code {
	case "invalid_input":
		writeErrorCode(w, r, http.StatusBadRequest, code, err.Error())
	case "role_not_found", "not_found":
		writeErrorCode(w, r, http.StatusNotFound, code, err.Error())
	case "duplicate_role_name", "user_already_in_role", "conflict":
		writeErrorCode(w, r, http.StatusConflict, code, err.Error())
	default:
		writeErrorCode(w, r, http.StatusInternalServerError, "internal", "identity operation failed")
	}
}

func handleRiskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, risk.ErrInvalidPeriod):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, risk.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusRequestTimeout, "analysis cancelled")
	default:
		writeError(w, r, http.StatusInternalServerError, "security analysis failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

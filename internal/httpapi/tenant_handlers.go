package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"tenantcore.org/internal/identity"
	"tenantcore.org/internal/ids"
	"tenantcore.org/internal/token"
)

type createTenantRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

func (a *API) handleTenantsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermissions(w, r, identity.PermTenantsManage) {
			return
		}
		a.createTenant(w, r)
	case http.MethodGet:
		if !a.ensurePermissions(w, r, identity.PermTenantsView) {
			return
		}
		a.listTenants(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	kind, err := parseTenantKind(req.Kind)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	actorID, _ := token.UserIDFromContext(r.Context())
	now := time.Now().UTC()
	tenant := &identity.Tenant{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Kind:        kind,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedBy:   actorID,
		UpdatedAt:   now,
	}
	if err := a.store.Tenants().Create(r.Context(), tenant); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	a.audit(r.Context(), "identity.tenant.create", "tenant", tenant.ID, map[string]string{
		"name": tenant.Name,
		"kind": tenant.Kind.String(),
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", tenant.ID))
	writeJSON(w, http.StatusCreated, tenant)
}

func (a *API) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := a.store.Tenants().List(r.Context())
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tenants})
}

func parseTenantKind(raw string) (identity.TenantKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "customer":
		return identity.TenantKindCustomer, nil
	case "partner":
		return identity.TenantKindPartner, nil
	case "internal":
		return identity.TenantKindInternal, nil
	default:
		return 0, fmt.Errorf("unknown tenant kind %q", raw)
	}
}

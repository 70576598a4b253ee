package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"tenantcore.org/internal/identity"
)

type createRoleRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	TenantID    *string `json:"tenant_id"`
}

type renameRoleRequest struct {
	Name string `json:"name"`
}

type grantPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermissions(w, r, identity.PermRolesManage) {
			return
		}
		a.createRole(w, r)
	case http.MethodGet:
		if !a.ensurePermissions(w, r, identity.PermRolesView) {
			return
		}
		a.listRoles(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.TenantID != nil && strings.TrimSpace(*req.TenantID) == "" {
		req.TenantID = nil
	}
	role, err := a.roles.Create(r.Context(), req.TenantID, req.Name, req.Description)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	meta := map[string]string{"name": role.Name}
	if role.TenantID != nil {
		meta["tenant_id"] = *role.TenantID
	}
	a.audit(r.Context(), "identity.role.create", "role", role.ID, meta)
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	var tenantID *string
	if raw := strings.TrimSpace(r.URL.Query().Get("tenant_id")); raw != "" {
		tenantID = &raw
	}
	roles, err := a.store.Roles().ListByTenant(r.Context(), tenantID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		a.getRole(w, r, roleID)
	case len(parts) == 2 && parts[1] == "name":
		a.renameRole(w, r, roleID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.grantPermissions(w, r, roleID)
	case len(parts) == 3 && parts[1] == "permissions":
		a.revokePermission(w, r, roleID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, identity.PermRolesView) {
		return
	}
	role, err := a.store.Roles().Find(r.Context(), roleID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	claims, err := a.store.Roles().Claims(r.Context(), roleID)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	perms := make([]string, 0, len(claims))
	for _, c := range claims {
		if c.Type == identity.ClaimPermission {
			perms = append(perms, c.Value)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        role,
		"permissions": perms,
	})
}

func (a *API) renameRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermissions(w, r, identity.PermRolesManage) {
		return
	}
	var req renameRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.roles.Rename(r.Context(), roleID, req.Name)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	a.audit(r.Context(), "identity.role.rename", "role", roleID, map[string]string{
		"name": role.Name,
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) grantPermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermissions(w, r, identity.PermRolesManage) {
		return
	}
	var req grantPermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.roles.Grant(r.Context(), roleID, req.Permissions); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	a.audit(r.Context(), "identity.role.grant_permissions", "role", roleID, map[string]string{
		"count": fmt.Sprintf("%d", len(req.Permissions)),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) revokePermission(w http.ResponseWriter, r *http.Request, roleID, perm string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermissions(w, r, identity.PermRolesManage) {
		return
	}
	if err := a.roles.Revoke(r.Context(), roleID, perm); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	a.audit(r.Context(), "identity.role.revoke_permission", "role", roleID, map[string]string{
		"permission": perm,
	})
	w.WriteHeader(http.StatusNoContent)
}

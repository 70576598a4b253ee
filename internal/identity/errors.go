package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("identity: not found")
	ErrInvalidInput      = errors.New("identity: invalid input")
	ErrConflict          = errors.New("identity: resource conflict")
	ErrRoleNotFound      = errors.New("identity: role not found")
	ErrAlreadyInRole     = errors.New("identity: user already in role")
	ErrDuplicateRoleName = errors.New("identity: duplicate role name")
)

// MissingRolesError reports the role names absent from the target tenant
// during a bulk assignment. The whole assignment is rejected.
type MissingRolesError struct {
	Names []string
}

func (e *MissingRolesError) Error() string {
	return fmt.Sprintf("identity: roles not found in tenant: %s", strings.Join(e.Names, ", "))
}

// Is lets callers branch on errors.Is(err, ErrRoleNotFound).
func (e *MissingRolesError) Is(target error) bool {
	return target == ErrRoleNotFound
}

// Code maps an identity error to a stable machine-readable code for API
// responses. Unknown errors map to "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateRoleName):
		return "duplicate_role_name"
	case errors.Is(err, ErrAlreadyInRole):
		return "user_already_in_role"
	case errors.Is(err, ErrRoleNotFound):
		return "role_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}

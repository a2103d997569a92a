// Package auth maps chat roles onto the operations they may run.
package auth

import (
	"github.com/dbsmedya/logops/internal/apperr"
)

// Role names.
const (
	RoleAdmin   = "admin"
	RoleMonitor = "monitor"
)

// Operations a role can be granted.
const (
	OpSelect            = "select"
	OpArchive           = "archive"
	OpDeleteArchive     = "delete_archive"
	OpConfirmOperations = "confirm_operations"
)

var grants = map[string]map[string]bool{
	RoleAdmin: {
		OpSelect:            true,
		OpArchive:           true,
		OpDeleteArchive:     true,
		OpConfirmOperations: true,
	},
	RoleMonitor: {
		OpSelect: true,
	},
}

// IsValidRole reports whether the role is known.
func IsValidRole(role string) bool {
	_, ok := grants[role]
	return ok
}

// Can reports whether the role grants the operation. Unknown roles grant
// nothing.
func Can(role, operation string) bool {
	return grants[role][operation]
}

// Require returns a permission error when the role does not grant the
// operation.
func Require(role, operation string) error {
	if !Can(role, operation) {
		return apperr.PermissionDenied(role, operation)
	}
	return nil
}

// Operations lists the operations granted to a role, in a stable order.
func Operations(role string) []string {
	var out []string
	for _, op := range []string{OpSelect, OpArchive, OpDeleteArchive, OpConfirmOperations} {
		if grants[role][op] {
			out = append(out, op)
		}
	}
	return out
}

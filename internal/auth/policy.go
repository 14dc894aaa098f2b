package auth

import "github.com/oindividum/bankcards-service/internal/models"

// Operation names a class of protected operations.
type Operation string

const (
	OpManageCards     Operation = "cards:manage"
	OpManageUsers     Operation = "users:manage"
	OpViewOwnCards    Operation = "cards:view-own"
	OpViewProfile     Operation = "users:view-self"
	OpExportStatement Operation = "cards:statement"
	OpTransfer        Operation = "cards:transfer"
	OpRequestBlock    Operation = "cards:request-block"
)

// Policy maps each operation to the roles allowed to run it.
type Policy map[Operation][]models.Role

// DefaultPolicy is the static access table of the service.
var DefaultPolicy = Policy{
	OpManageCards:     {models.RoleAdmin},
	OpManageUsers:     {models.RoleAdmin},
	OpViewOwnCards:    {models.RoleUser, models.RoleAdmin},
	OpViewProfile:     {models.RoleUser, models.RoleAdmin},
	OpExportStatement: {models.RoleUser, models.RoleAdmin},
	OpTransfer:        {models.RoleUser},
	OpRequestBlock:    {models.RoleUser},
}

// Allows is fail-closed: unknown operations and empty role sets are denied.
func (p Policy) Allows(op Operation, roles []models.Role) bool {
	allowed, ok := p[op]
	if !ok {
		return false
	}
	for _, have := range roles {
		for _, want := range allowed {
			if have == want {
				return true
			}
		}
	}
	return false
}

package auth

import (
	"context"
	"slices"
)

const (
	PermPayrollRead     = "payroll.read"
	PermPayrollWrite    = "payroll.write"
	PermPayrollRun      = "payroll.run"
	PermPayrollFinalize = "payroll.finalize"
)

const (
	RolePayrollAdmin    = "payroll_admin"
	RolePayrollOperator = "payroll_operator"
	RolePayrollViewer   = "payroll_viewer"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermPayrollRun,
	PermPayrollFinalize,
}

var RolePermissions = map[string][]string{
	RolePayrollAdmin: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
		PermPayrollFinalize,
	},
	RolePayrollOperator: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
	},
	RolePayrollViewer: {
		PermPayrollRead,
	},
}

// RoleStore answers permission checks from the static role table.
type RoleStore struct{}

func (RoleStore) HasPermission(_ context.Context, roleName, permission string) (bool, error) {
	return slices.Contains(RolePermissions[roleName], permission), nil
}

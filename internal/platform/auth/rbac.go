package auth

import (
	"fmt"

	"github.com/clinicpos/clinicpos/internal/platform/apperr"
)

// Role is one of a closed set of staff roles. Roles are not ordered: each
// action lists the roles it admits.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleUser   Role = "User"
	RoleViewer Role = "Viewer"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleUser, RoleViewer}

// ParseRole accepts exactly one of the role names in Roles.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", apperr.InvalidInput("role must be one of: Admin, User, Viewer")
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Action names an operation subject to authorization.
type Action string

const (
	ActionCreatePatient       Action = "patients:create"
	ActionCreateAppointment   Action = "appointments:create"
	ActionListPatients        Action = "patients:list"
	ActionGetPatient          Action = "patients:get"
	ActionListAppointments    Action = "appointments:list"
	ActionCreateUser          Action = "users:create"
	ActionAssignRole          Action = "users:assign_role"
	ActionAssociateUserBranch Action = "users:associate_branch"
	ActionListUsers           Action = "users:list"
	ActionListBranches        Action = "branches:list"
)

// permissions is the complete policy. An action missing from the table, or a
// role missing from an action's row, is denied.
var permissions = map[Action]map[Role]bool{
	ActionCreatePatient:       {RoleAdmin: true, RoleUser: true},
	ActionCreateAppointment:   {RoleAdmin: true, RoleUser: true},
	ActionListPatients:        {RoleAdmin: true, RoleUser: true, RoleViewer: true},
	ActionGetPatient:          {RoleAdmin: true, RoleUser: true, RoleViewer: true},
	ActionListAppointments:    {RoleAdmin: true, RoleUser: true, RoleViewer: true},
	ActionListBranches:        {RoleAdmin: true, RoleUser: true, RoleViewer: true},
	ActionCreateUser:          {RoleAdmin: true},
	ActionAssignRole:          {RoleAdmin: true},
	ActionAssociateUserBranch: {RoleAdmin: true},
	ActionListUsers:           {RoleAdmin: true},
}

// CanPerform reports whether role may perform action.
func CanPerform(role Role, action Action) bool {
	return permissions[action][role]
}

// Authorize returns a Forbidden error when role may not perform action.
func Authorize(role Role, action Action) error {
	if CanPerform(role, action) {
		return nil
	}
	return apperr.Forbidden(fmt.Sprintf("role %q may not perform %s", role, action))
}

// Package authz implements the static role/resource/action permission table
// and the per-record ownership checks consumed by every CRUD handler.
package authz

import "github.com/compass-crm/compasscrm/internal/models"

// Resources subject to permission checks.
const (
	ResourceContact  = "contact"
	ResourceActivity = "activity"
	ResourceTask     = "task"
	ResourceDeal     = "deal"
	ResourceUser     = "user"
)

// Actions subject to permission checks.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// businessResources are the CRM record types every role can work with.
var businessResources = map[string]bool{
	ResourceContact:  true,
	ResourceActivity: true,
	ResourceTask:     true,
	ResourceDeal:     true,
}

// HasPermission reports whether a role may perform an action on a resource.
//
// Admins hold every permission. Managers hold full CRUD on business resources
// plus create and read on users. Reps hold full CRUD on business resources only.
func HasPermission(role, resource, action string) bool {
	switch role {
	case models.RoleAdmin:
		return validResource(resource) && validAction(action)
	case models.RoleManager:
		if businessResources[resource] {
			return validAction(action)
		}
		if resource == ResourceUser {
			return action == ActionCreate || action == ActionRead
		}
		return false
	case models.RoleRep:
		return businessResources[resource] && validAction(action)
	default:
		return false
	}
}

// CanAccessRecord applies the ownership layer after the role layer has passed.
// Admins bypass always; managers bypass for reads; everyone else is restricted
// to records they own. The returned reason is safe to show the caller.
func CanAccessRecord(role string, userID uint64, action string, ownerID uint64) (bool, string) {
	if role == models.RoleAdmin {
		return true, ""
	}
	if role == models.RoleManager && action == ActionRead {
		return true, ""
	}
	if ownerID == userID {
		return true, ""
	}
	return false, "you can only access your own records"
}

// ScopeToOwner reports whether list queries for the role and action must be
// restricted to records owned by the current user.
func ScopeToOwner(role, action string) bool {
	if role == models.RoleAdmin {
		return false
	}
	if role == models.RoleManager && action == ActionRead {
		return false
	}
	return true
}

// CanAccessAnalytics reports whether the role can view reporting dashboards.
func CanAccessAnalytics(role string) bool {
	return role == models.RoleAdmin || role == models.RoleManager
}

// validResource reports whether the resource name is known.
func validResource(resource string) bool {
	return businessResources[resource] || resource == ResourceUser
}

// validAction reports whether the action name is known.
func validAction(action string) bool {
	switch action {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

package authz

import (
	"testing"

	"github.com/compass-crm/compasscrm/internal/models"
)

func TestAdminHasEveryPermission(t *testing.T) {
	resources := []string{ResourceContact, ResourceActivity, ResourceTask, ResourceDeal, ResourceUser}
	actions := []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	for _, resource := range resources {
		for _, action := range actions {
			if !HasPermission(models.RoleAdmin, resource, action) {
				t.Fatalf("expected admin to hold %s:%s", resource, action)
			}
		}
	}
}

func TestManagerUserPermissionsLimited(t *testing.T) {
	if !HasPermission(models.RoleManager, ResourceUser, ActionCreate) {
		t.Fatalf("expected manager to create users")
	}
	if !HasPermission(models.RoleManager, ResourceUser, ActionRead) {
		t.Fatalf("expected manager to read users")
	}
	if HasPermission(models.RoleManager, ResourceUser, ActionUpdate) {
		t.Fatalf("expected manager update users denied")
	}
	if HasPermission(models.RoleManager, ResourceUser, ActionDelete) {
		t.Fatalf("expected manager delete users denied")
	}
}

func TestManagerAndRepBusinessPermissions(t *testing.T) {
	resources := []string{ResourceContact, ResourceActivity, ResourceTask, ResourceDeal}
	actions := []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	for _, role := range []string{models.RoleManager, models.RoleRep} {
		for _, resource := range resources {
			for _, action := range actions {
				if !HasPermission(role, resource, action) {
					t.Fatalf("expected %s to hold %s:%s", role, resource, action)
				}
			}
		}
	}
}

func TestRepHasNoUserPermissions(t *testing.T) {
	for _, action := range []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
		if HasPermission(models.RoleRep, ResourceUser, action) {
			t.Fatalf("expected rep user:%s denied", action)
		}
	}
}

func TestUnknownRoleResourceActionDenied(t *testing.T) {
	if HasPermission("intern", ResourceContact, ActionRead) {
		t.Fatalf("expected unknown role denied")
	}
	if HasPermission(models.RoleAdmin, "invoice", ActionRead) {
		t.Fatalf("expected unknown resource denied")
	}
	if HasPermission(models.RoleAdmin, ResourceContact, "export") {
		t.Fatalf("expected unknown action denied")
	}
}

func TestCanAccessRecordOwnership(t *testing.T) {
	if ok, _ := CanAccessRecord(models.RoleAdmin, 1, ActionDelete, 99); !ok {
		t.Fatalf("expected admin to bypass ownership")
	}
	if ok, _ := CanAccessRecord(models.RoleManager, 1, ActionRead, 99); !ok {
		t.Fatalf("expected manager to read any record")
	}
	if ok, _ := CanAccessRecord(models.RoleManager, 1, ActionUpdate, 99); ok {
		t.Fatalf("expected manager denied updating another user's record")
	}
	if ok, _ := CanAccessRecord(models.RoleRep, 7, ActionUpdate, 7); !ok {
		t.Fatalf("expected rep to update own record")
	}
	allowed, reason := CanAccessRecord(models.RoleRep, 7, ActionRead, 8)
	if allowed {
		t.Fatalf("expected rep denied reading another user's record")
	}
	if reason == "" {
		t.Fatalf("expected a denial reason")
	}
}

func TestScopeToOwner(t *testing.T) {
	if ScopeToOwner(models.RoleAdmin, ActionRead) {
		t.Fatalf("expected admin lists unscoped")
	}
	if ScopeToOwner(models.RoleManager, ActionRead) {
		t.Fatalf("expected manager read lists unscoped")
	}
	if !ScopeToOwner(models.RoleManager, ActionUpdate) {
		t.Fatalf("expected manager writes scoped to owner")
	}
	if !ScopeToOwner(models.RoleRep, ActionRead) {
		t.Fatalf("expected rep lists scoped to owner")
	}
}

func TestAnalyticsGate(t *testing.T) {
	if !CanAccessAnalytics(models.RoleAdmin) || !CanAccessAnalytics(models.RoleManager) {
		t.Fatalf("expected admin and manager analytics access")
	}
	if CanAccessAnalytics(models.RoleRep) {
		t.Fatalf("expected rep analytics access denied")
	}
}

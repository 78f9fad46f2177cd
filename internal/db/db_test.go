package db

import (
	"testing"

	"github.com/compass-crm/compasscrm/internal/models"
)

func TestOpenAndMigrateSQLiteMemory(t *testing.T) {
	conn, errOpen := Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	user := models.User{Name: "N", Email: "n@example.com", Password: "hash", Role: models.RoleRep, Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	if user.ID == 0 {
		t.Fatalf("expected assigned id")
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, errOpen := Open("  "); errOpen == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestDetectDialectFromDSN(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		{"postgres://u:p@localhost:5432/crm", DialectPostgres},
		{"host=localhost user=crm dbname=crm", DialectPostgres},
		{"file:crm.db?cache=shared", DialectSQLite},
		{"crm.db", DialectSQLite},
		{":memory:", DialectSQLite},
	}
	for _, tc := range cases {
		got, errDetect := detectDialectFromDSN(tc.dsn)
		if errDetect != nil {
			t.Fatalf("detect %q: %v", tc.dsn, errDetect)
		}
		if got != tc.want {
			t.Fatalf("detect %q: expected %q, got %q", tc.dsn, tc.want, got)
		}
	}
}

func TestNormalizeSQLiteDSN(t *testing.T) {
	if got := normalizeSQLiteDSN("sqlite://crm.db"); got != "file:crm.db" {
		t.Fatalf("expected file:crm.db, got %q", got)
	}
	if got := normalizeSQLiteDSN("crm.db"); got != "crm.db" {
		t.Fatalf("expected crm.db unchanged, got %q", got)
	}
}

func TestCaseInsensitiveLikeHelpers(t *testing.T) {
	conn, errOpen := Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	if expr := CaseInsensitiveLikeExpr(conn, "email"); expr != "LOWER(email) LIKE ?" {
		t.Fatalf("unexpected expression %q", expr)
	}
	if pattern := NormalizeLikePattern(conn, "%Ada%"); pattern != "%ada%" {
		t.Fatalf("unexpected pattern %q", pattern)
	}
}

package db

import (
	"net/url"
	"testing"
)

func TestWithMigrationsTable(t *testing.T) {
	got, err := withMigrationsTable("postgres://u:p@localhost:5432/certhub?sslmode=disable", "logs_schema_migrations")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	u, _ := url.Parse(got)
	if u.Query().Get("x-migrations-table") != "logs_schema_migrations" {
		t.Fatalf("migrations table not set: %s", got)
	}
	if u.Query().Get("sslmode") != "disable" {
		t.Fatalf("existing params dropped: %s", got)
	}
}

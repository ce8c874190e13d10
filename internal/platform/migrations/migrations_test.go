package migrations

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrationsParse(t *testing.T) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected schema to start at version 1, got %d", first)
	}

	// Every up migration must carry a matching down migration.
	for v := first; ; {
		if _, _, err := src.ReadUp(v); err != nil {
			t.Fatalf("read up %d: %v", v, err)
		}
		if _, _, err := src.ReadDown(v); err != nil {
			t.Fatalf("read down %d: %v", v, err)
		}
		next, err := src.Next(v)
		if err != nil {
			break
		}
		v = next
	}
}

package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"notebook.app/internal/db/migrations"
)

func TestNewManagerRequiresDB(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestEmbeddedMigrationsAreGooseFiles(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no migrations embedded")
	}
	for _, name := range files {
		data, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		body := string(data)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Fatalf("%s lacks goose annotations", name)
		}
	}

	initSQL, _ := fs.ReadFile(migrations.FS, "00001_init.sql")
	for _, table := range []string{"users", "notes", "refresh_tokens"} {
		if !strings.Contains(string(initSQL), "create table if not exists "+table) {
			t.Fatalf("initial migration does not create %s", table)
		}
	}
	if !strings.Contains(string(initSQL), "token_hash char(64)    not null unique") {
		t.Fatal("refresh token digest must be unique")
	}
}

package main

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	appmigrations "github.com/wolfman30/salon-voice-booking/migrations"
	"github.com/wolfman30/salon-voice-booking/pkg/logging"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args    []string
		want    migrateCommand
		wantErr bool
	}{
		{args: nil, want: migrateCommand{name: "up"}},
		{args: []string{"down"}, want: migrateCommand{name: "down"}},
		{args: []string{"version"}, want: migrateCommand{name: "version"}},
		{args: []string{"force", "3"}, want: migrateCommand{name: "force", version: 3}},
		{args: []string{"force"}, wantErr: true},
		{args: []string{"force", "x"}, wantErr: true},
		{args: []string{"sideways"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseCommand(%v): expected error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseCommand(%v): %v", tt.args, err)
		}
		if got != tt.want {
			t.Fatalf("parseCommand(%v) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	err := run("  ", nil, logging.Discard())
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, _ := fs.Glob(appmigrations.FS, "*.up.sql")
	downs, _ := fs.Glob(appmigrations.FS, "*.down.sql")
	if len(ups) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	if len(ups) != len(downs) {
		t.Fatalf("expected paired migrations, got %d up and %d down", len(ups), len(downs))
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(appmigrations.FS, down); err != nil {
			t.Fatalf("missing %s", down)
		}
	}
}

// Rows written in one transaction share now(); ordering by created_at needs
// the wall clock at insert time.
func TestOrderedTablesStampRowsAtInsert(t *testing.T) {
	sql, err := fs.ReadFile(appmigrations.FS, "000001_salon_schema.up.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	for _, table := range []string{"appointments", "outbox"} {
		block := regexp.MustCompile(`(?s)CREATE TABLE ` + table + ` \((.*?)\n\);`).FindSubmatch(sql)
		if block == nil {
			t.Fatalf("table %s not found", table)
		}
		created := regexp.MustCompile(`created_at\s+TIMESTAMPTZ NOT NULL DEFAULT (\w+)\(\)`).FindSubmatch(block[1])
		if created == nil {
			t.Fatalf("%s has no created_at default", table)
		}
		if got := string(created[1]); got != "clock_timestamp" {
			t.Fatalf("%s.created_at defaults to %s(), want clock_timestamp()", table, got)
		}
	}
}

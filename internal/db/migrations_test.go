package db

import (
	"path/filepath"
	"testing"
)

func TestOpenSQLiteWithMigrations_CreatesSnapshotTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chipdeck.db")
	gdb, err := OpenSQLiteWithMigrations(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLiteWithMigrations failed: %v", err)
	}
	defer Close(gdb)

	var got string
	if err := gdb.Raw(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, "render_snapshots").Scan(&got).Error; err != nil || got != "render_snapshots" {
		t.Fatalf("missing render_snapshots table: %q %v", got, err)
	}
	var timeout int
	if err := gdb.Raw(`PRAGMA busy_timeout;`).Scan(&timeout).Error; err != nil {
		t.Fatalf("query busy_timeout failed: %v", err)
	}
	if timeout < 5000 {
		t.Fatalf("expected busy_timeout >= 5000, got %d", timeout)
	}
}

func TestOpenSQLiteWithMigrations_IsIdempotentAndNormalizes(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chipdeck.db")
	gdb, err := OpenSQLiteWithMigrations(dbPath)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	rows := []RenderSnapshot{
		{WidgetID: "a", WidgetType: "custom:Custom-Battery", Visual: `{"content":"5%"}`, RenderedAt: 1},
		{WidgetID: "a", WidgetType: "template", Visual: "", RenderedAt: 2},
	}
	if err := gdb.Create(&rows).Error; err != nil {
		t.Fatalf("seed rows: %v", err)
	}
	_ = Close(gdb)

	gdb, err = OpenSQLiteWithMigrations(dbPath)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer Close(gdb)

	var got []RenderSnapshot
	if err := gdb.Order("id").Find(&got).Error; err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].WidgetType != "custom-battery" {
		t.Fatalf("unexpected rows after migration: %+v", got)
	}
}

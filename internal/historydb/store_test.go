package historydb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chipdeck/internal/chip"
	"chipdeck/internal/dashboard"
	dbmodel "chipdeck/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := dbmodel.OpenSQLiteWithMigrations(filepath.Join(t.TempDir(), "chipdeck.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbmodel.Close(gdb) })
	st, err := NewStore(gdb)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st
}

func TestStore_RecordSkipsIdenticalConsecutiveVisuals(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	visuals := []chip.Visual{{Content: "45%"}, {Content: "45%"}, {Content: "44%"}, {Content: "45%"}}
	var written int
	for i, v := range visuals {
		ok, err := st.Record(ctx, "batt", chip.TypeBattery, v, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if ok {
			written++
		}
	}
	if written != 3 {
		t.Fatalf("expected 3 rows written, got %d", written)
	}

	rows, err := st.List(ctx, "batt", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !strings.Contains(string(rows[0].Visual), `"content":"45%"`) || !rows[0].RenderedAt.Equal(base.Add(3*time.Second)) {
		t.Fatalf("expected newest first, got %+v", rows[0])
	}
	if _, err := st.Record(ctx, " ", "x", chip.Visual{}, base); err == nil {
		t.Fatalf("expected error for empty widget id")
	}
}

func TestStore_PruneKeepsNewestPerWidget(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		for _, id := range []string{"a", "b"} {
			v := chip.Visual{Content: id + string(rune('0'+i))}
			if _, err := st.Record(ctx, id, "template", v, base.Add(time.Duration(i)*time.Second)); err != nil {
				t.Fatalf("record: %v", err)
			}
		}
	}
	n, err := st.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 rows pruned, got %d", n)
	}
	rows, _ := st.List(ctx, "a", 10)
	if len(rows) != 2 || !strings.Contains(string(rows[1].Visual), "a3") {
		t.Fatalf("unexpected rows after prune: %+v", rows)
	}
	if err := st.Clear(ctx, "a"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if rows, _ := st.List(ctx, "a", 10); len(rows) != 0 {
		t.Fatalf("expected a cleared, got %d", len(rows))
	}
}

func TestRecorder_WritesPublishedRenders(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := NewRecorder(st, 10, nil)
	done := make(chan struct{})
	go func() {
		_ = rec.Run(ctx)
		close(done)
	}()

	rec.Publish(dashboard.Rendered{ID: "w", Type: "template", Visual: chip.Visual{Content: "hi"}, At: time.Unix(1700000000, 0)})
	deadline := time.Now().Add(2 * time.Second)
	for {
		rows, err := st.List(context.Background(), "w", 1)
		if err == nil && len(rows) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("render was not recorded: rows=%d err=%v", len(rows), err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

package migration

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

type step struct {
	name string
	run  func(*Migration) error
}

var (
	steps    []step
	initOnce sync.Once
)

// Migration is passed to each migration step. DB is set by RunAll.
type Migration struct {
	DB   *gorm.DB
	logs []string
}

func (m *Migration) Log(v ...interface{}) {
	m.logs = append(m.logs, fmt.Sprint(v...))
}

// Logs returns what the last step logged.
func (m *Migration) Logs() []string { return m.logs }

func register(name string, run func(*Migration) error) {
	steps = append(steps, step{name: name, run: run})
}

// Init registers the data migrations once per process.
func Init() {
	initOnce.Do(func() {
		register("normalize_widget_type", normalizeWidgetType)
		register("drop_empty_snapshots", dropEmptySnapshots)
	})
}

// RunAll runs all registered migrations in order. Every step must be safe to re-run.
func RunAll(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	ctx := &Migration{DB: db}
	for _, s := range steps {
		ctx.logs = nil
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", s.name, err)
		}
	}
	return nil
}

// normalizeWidgetType strips the frontend "custom:" prefix that early builds stored verbatim.
func normalizeWidgetType(m *Migration) error {
	res := m.DB.Exec(`UPDATE render_snapshots SET widget_type = lower(substr(widget_type, 8)) WHERE widget_type LIKE 'custom:%'`)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		m.Log("normalized widget types: ", res.RowsAffected)
	}
	return nil
}

func dropEmptySnapshots(m *Migration) error {
	res := m.DB.Exec(`DELETE FROM render_snapshots WHERE visual_json = ''`)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		m.Log("dropped empty snapshots: ", res.RowsAffected)
	}
	return nil
}

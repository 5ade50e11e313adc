// Package historydb keeps a bounded per-widget history of published renders.
package historydb

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	dbmodel "chipdeck/internal/db"

	"gorm.io/gorm"
)

type Entry struct {
	WidgetID   string          `json:"widget_id"`
	WidgetType string          `json:"widget_type"`
	Visual     json.RawMessage `json:"visual"`
	RenderedAt time.Time       `json:"rendered_at"`
}

type Store struct {
	db *gorm.DB
}

// NewStore wraps an open database. Caller owns the db.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db}, nil
}

// Record appends a render unless it equals the latest recorded visual of the widget.
// It reports whether a row was written.
func (s *Store) Record(ctx context.Context, widgetID, widgetType string, visual any, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("history store is not initialized")
	}
	id := strings.TrimSpace(widgetID)
	if id == "" {
		return false, errors.New("widget id is required")
	}
	raw, err := json.Marshal(visual)
	if err != nil {
		return false, err
	}
	written := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last []dbmodel.RenderSnapshot
		if err := tx.Where("widget_id = ?", id).Order("rendered_at DESC, id DESC").Limit(1).Find(&last).Error; err != nil {
			return err
		}
		if len(last) == 1 && last[0].Visual == string(raw) {
			return nil
		}
		written = true
		return tx.Create(&dbmodel.RenderSnapshot{
			WidgetID:   id,
			WidgetType: widgetType,
			Visual:     string(raw),
			RenderedAt: at.UTC().UnixMilli(),
		}).Error
	})
	return written && err == nil, err
}

// List returns the newest entries of a widget first.
func (s *Store) List(ctx context.Context, widgetID string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows := make([]dbmodel.RenderSnapshot, 0, limit)
	if err := s.db.WithContext(ctx).
		Where("widget_id = ?", strings.TrimSpace(widgetID)).
		Order("rendered_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			WidgetID:   row.WidgetID,
			WidgetType: row.WidgetType,
			Visual:     json.RawMessage(row.Visual),
			RenderedAt: time.UnixMilli(row.RenderedAt).UTC(),
		})
	}
	return entries, nil
}

// Prune keeps the newest keep rows per widget and returns how many rows were deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("history store is not initialized")
	}
	if keep < 0 {
		keep = 0
	}
	res := s.db.WithContext(ctx).Exec(`
DELETE FROM render_snapshots WHERE id IN (
	SELECT id FROM (
		SELECT id, ROW_NUMBER() OVER (PARTITION BY widget_id ORDER BY rendered_at DESC, id DESC) AS rn
		FROM render_snapshots
	) WHERE rn > ?
)`, keep)
	return res.RowsAffected, res.Error
}

// Clear removes every recorded render of widgetID.
func (s *Store) Clear(ctx context.Context, widgetID string) error {
	if s == nil || s.db == nil {
		return errors.New("history store is not initialized")
	}
	return s.db.WithContext(ctx).Where("widget_id = ?", widgetID).Delete(&dbmodel.RenderSnapshot{}).Error
}

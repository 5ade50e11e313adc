package db

// RenderSnapshot is one published render of one widget. Visual holds the JSON encoded visual.
type RenderSnapshot struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	WidgetID   string `gorm:"column:widget_id;not null;index:idx_render_snapshots_widget_rendered,priority:1"`
	WidgetType string `gorm:"column:widget_type;not null;default:''"`
	Visual     string `gorm:"column:visual_json;not null;default:''"`
	RenderedAt int64  `gorm:"column:rendered_at;not null;default:0;index:idx_render_snapshots_widget_rendered,priority:2,sort:desc"`
}

func (RenderSnapshot) TableName() string { return "render_snapshots" }

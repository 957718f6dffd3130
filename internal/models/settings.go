package models

// Setting is one key/value pair of the settings table
type Setting struct {
	Key   string `gorm:"column:key;primaryKey" json:"key"`
	Value string `gorm:"column:value" json:"value"`
}

// TableName pins the settings table name
func (Setting) TableName() string {
	return "settings"
}

const (
	// SettingGoalHours is the target total of rendered hours
	SettingGoalHours = "goal_hours"

	// SettingLastSyncAt records the last successful sync pass (ISOLayout).
	// It is local bookkeeping and never pushed.
	SettingLastSyncAt = "last_sync_at"

	// DefaultGoalHours applies when goal_hours is missing or unparsable
	DefaultGoalHours = 600.0
)

package db

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/balkashynov/dtr/internal/models"
)

// GetSettings returns every stored setting. goal_hours is always present.
func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return nil, s.queryErr("get_settings", err)
	}

	var rows []models.Setting
	if err := gdb.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, s.queryErr("get_settings", err)
	}

	settings := make(map[string]string, len(rows)+1)
	for _, r := range rows {
		settings[r.Key] = r.Value
	}
	if _, ok := settings[models.SettingGoalHours]; !ok {
		settings[models.SettingGoalHours] = strconv.FormatFloat(models.DefaultGoalHours, 'f', -1, 64)
	}
	return settings, nil
}

// SetSetting inserts or replaces one setting
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gdb, err := s.handle()
	if err != nil {
		return s.queryErr("set_setting", err)
	}

	err = gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
	if err != nil {
		return s.queryErr("set_setting", err)
	}

	s.persist(ctx)
	return nil
}

// GoalHours returns the configured goal, falling back to the default when
// the stored value is missing or not a positive number
func (s *Store) GoalHours(ctx context.Context) (float64, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	return ParseGoalHours(settings, s.log), nil
}

// ParseGoalHours reads goal_hours out of a settings map
func ParseGoalHours(settings map[string]string, log *zap.Logger) float64 {
	raw, ok := settings[models.SettingGoalHours]
	if !ok {
		return models.DefaultGoalHours
	}
	goal, err := strconv.ParseFloat(raw, 64)
	if err != nil || goal <= 0 {
		if log != nil {
			log.Warn("invalid goal_hours setting, using default", zap.String("value", raw))
		}
		return models.DefaultGoalHours
	}
	return goal
}

package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationClearPlaceholderAvatars = "2024-09-01_clear_placeholder_avatars"

	placeholderAvatarMarker = "your_uploadthing_app_id_here"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) (int64, error)
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClearPlaceholderAvatars, apply: clearPlaceholderAvatars},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		affected, err := migration.apply(db)
		if err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied",
				zap.String("migration", migration.name),
				zap.Int64("rows", affected))
		}
	}
	return nil
}

// clearPlaceholderAvatars drops avatar URLs that were saved while uploads pointed at an unconfigured app id.
func clearPlaceholderAvatars(db *gorm.DB) (int64, error) {
	result := db.Model(&users.User{}).
		Where("avatar_url LIKE ?", "%"+placeholderAvatarMarker+"%").
		Updates(map[string]interface{}{"avatar_url": "", "avatar_key": ""})
	return result.RowsAffected, result.Error
}

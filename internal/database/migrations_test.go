package database

import (
	"path/filepath"
	"testing"

	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsClearsPlaceholderAvatars(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&users.User{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	broken := users.User{
		ID:        "user-1",
		Username:  "broken",
		AvatarURL: "https://utfs.io/a/your_uploadthing_app_id_here/avatar.png",
		AvatarKey: "avatars/user-1.png",
	}
	healthy := users.User{
		ID:        "user-2",
		Username:  "healthy",
		AvatarURL: "https://cdn.example.com/avatars/user-2.png",
		AvatarKey: "avatars/user-2.png",
	}
	if err := database.Create(&[]users.User{broken, healthy}).Error; err != nil {
		testContext.Fatalf("failed to insert users: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored users.User
	if err := database.Where("id = ?", broken.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if stored.AvatarURL != "" || stored.AvatarKey != "" {
		testContext.Fatalf("expected placeholder avatar to be cleared, got %+v", stored)
	}
	if err := database.Where("id = ?", healthy.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if stored.AvatarURL != healthy.AvatarURL {
		testContext.Fatalf("expected healthy avatar to survive, got %q", stored.AvatarURL)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationClearPlaceholderAvatars).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database, err := gorm.Open(sqlite.Open("file:migrations_once?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&users.User{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	if err := applyMigrations(database, nil); err != nil {
		testContext.Fatalf("first run failed: %v", err)
	}

	late := users.User{ID: "user-3", Username: "late", AvatarURL: "https://x/your_uploadthing_app_id_here/a.png"}
	if err := database.Create(&late).Error; err != nil {
		testContext.Fatalf("failed to insert user: %v", err)
	}
	if err := applyMigrations(database, nil); err != nil {
		testContext.Fatalf("second run failed: %v", err)
	}

	var stored users.User
	if err := database.Where("id = ?", late.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if stored.AvatarURL != late.AvatarURL {
		testContext.Fatalf("expected recorded migration to be skipped")
	}
}

func TestOpenSQLiteCreatesSchema(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "huddle.db")
	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	for _, table := range []string{"users", "media", "posts", "comments", "likes", "bookmarks", "follows", "notifications", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s", table)
		}
	}
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}

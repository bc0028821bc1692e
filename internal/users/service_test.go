package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/serviceerror"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1_700_000_000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveViewerProvisionsOnce(t *testing.T) {
	service, db := newTestService(t)
	claims := auth.SessionClaims{UserID: "user-1", Username: "jane_smith", Email: "jane@example.com"}

	userID, err := service.ResolveViewer(context.Background(), claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id %q", userID)
	}

	// second call should hit cache and not create a duplicate record.
	if _, err := service.ResolveViewer(context.Background(), claims); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	var count int64
	db.Model(&User{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single user row, got %d", count)
	}

	user, err := service.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if user.DisplayName != "Jane Smith" || user.Username != "jane_smith" {
		t.Fatalf("unexpected provisioned user: %+v", user)
	}
	if user.CreatedAtMillis != 1_700_000_000_000 {
		t.Fatalf("unexpected creation time %d", user.CreatedAtMillis)
	}
}

func TestResolveViewerFallsBackWhenUsernameTaken(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.ResolveViewer(context.Background(), auth.SessionClaims{UserID: "first", Username: "jane"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if _, err := service.ResolveViewer(context.Background(), auth.SessionClaims{UserID: "abc-def", Username: "JANE"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	user, err := service.Get(context.Background(), "abc-def")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if user.Username != "user_abcdef" {
		t.Fatalf("expected derived username, got %q", user.Username)
	}
}

func TestResolveViewerRejectsBlankIdentity(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.ResolveViewer(context.Background(), auth.SessionClaims{UserID: "  "})
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity error, got %v", err)
	}
	if serviceerror.KindOf(err) != serviceerror.KindUnauthorized {
		t.Fatalf("expected unauthorized kind, got %s", serviceerror.KindOf(err))
	}
}

func TestGetByUsernameIsCaseInsensitive(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.ResolveViewer(context.Background(), auth.SessionClaims{UserID: "u1", Username: "Jane_Smith"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	user, err := service.GetByUsername(context.Background(), "jane_smith")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := service.GetByUsername(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateProfileValidatesFields(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.ResolveViewer(context.Background(), auth.SessionClaims{UserID: "u1", Username: "jane"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	testCases := []struct {
		name   string
		update ProfileUpdate
		reason string
	}{
		{name: "blank display name", update: ProfileUpdate{DisplayName: "   "}, reason: "display_name_required"},
		{name: "long bio", update: ProfileUpdate{DisplayName: "Jane", Bio: strings.Repeat("a", 1001)}, reason: "bio_too_long"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := service.UpdateProfile(context.Background(), "u1", testCase.update)
			var serviceErr *serviceerror.Error
			if !errors.As(err, &serviceErr) || serviceErr.Reason() != testCase.reason {
				t.Fatalf("expected %s, got %v", testCase.reason, err)
			}
		})
	}

	updated, err := service.UpdateProfile(context.Background(), "u1", ProfileUpdate{DisplayName: " Jane Doe ", Bio: "hello"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.DisplayName != "Jane Doe" || updated.Bio != "hello" {
		t.Fatalf("unexpected updated user %+v", updated)
	}

	if _, err := service.UpdateProfile(context.Background(), "missing", ProfileUpdate{DisplayName: "X"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}
}

func TestSetAvatarReturnsPreviousKey(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.ResolveViewer(context.Background(), auth.SessionClaims{UserID: "u1", Username: "jane"}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	previous, err := service.SetAvatar(context.Background(), "u1", "https://files.example.com/a.png", "avatars/a.png")
	if err != nil || previous != "" {
		t.Fatalf("unexpected first avatar result %q %v", previous, err)
	}
	previous, err = service.SetAvatar(context.Background(), "u1", "https://files.example.com/b.png", "avatars/b.png")
	if err != nil || previous != "avatars/a.png" {
		t.Fatalf("unexpected second avatar result %q %v", previous, err)
	}
	user, _ := service.Get(context.Background(), "u1")
	if user.AvatarURL != "https://files.example.com/b.png" {
		t.Fatalf("expected avatar url stored verbatim, got %q", user.AvatarURL)
	}
}

func TestEachBatchVisitsEveryUser(t *testing.T) {
	service, _ := newTestService(t)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if _, err := service.ResolveViewer(context.Background(), auth.SessionClaims{UserID: id, Username: "name_" + id}); err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
	}
	var batches, total int
	err := service.EachBatch(context.Background(), 2, func(batch []User) error {
		batches++
		total += len(batch)
		return nil
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if batches != 3 || total != 5 {
		t.Fatalf("unexpected batching: %d batches, %d users", batches, total)
	}
}

func TestGenerateDisplayName(t *testing.T) {
	testCases := map[string]string{
		"jane_smith": "Jane Smith",
		"BOB":        "Bob",
		"a-b c":      "A B C",
	}
	for input, expected := range testCases {
		if actual := GenerateDisplayName(input); actual != expected {
			t.Fatalf("GenerateDisplayName(%q) = %q, want %q", input, actual, expected)
		}
	}
}

package uploads

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/ids"
	"github.com/MarcoPoloResearchLab/huddle/internal/serviceerror"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000000000000000")

type recordingAvatarStore struct {
	urls        []string
	previousKey string
	err         error
}

func (s *recordingAvatarStore) SetAvatar(_ context.Context, _ string, avatarURL, objectKey string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.urls = append(s.urls, avatarURL)
	previous := s.previousKey
	s.previousKey = objectKey
	return previous, nil
}

type uploadsFixture struct {
	service *Service
	storage *LocalStorage
	avatars *recordingAvatarStore
	db      *gorm.DB
	now     time.Time
}

func newUploadsFixture(t *testing.T) *uploadsFixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Media{}); err != nil {
		t.Fatalf("failed to migrate media schema: %v", err)
	}
	storage, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	fixture := &uploadsFixture{
		storage: storage,
		avatars: &recordingAvatarStore{},
		db:      db,
		now:     time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC),
	}
	service, err := NewService(ServiceConfig{
		Database:     db,
		Storage:      storage,
		Avatars:      fixture.avatars,
		IDProvider:   &ids.Sequence{Prefix: "obj-"},
		Limits:       Limits{AvatarBytes: 64, ImageBytes: 128, VideoBytes: 256},
		OrphanMaxAge: time.Hour,
		Clock:        func() time.Time { return fixture.now },
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	fixture.service = service
	return fixture
}

func imageFile(payload []byte) File {
	return File{Name: "a.png", ContentType: "image/png", Size: int64(len(payload)), Body: bytes.NewReader(payload)}
}

func TestUploadAvatarStoresReturnedURLAndDeletesPrevious(t *testing.T) {
	fixture := newUploadsFixture(t)

	first, err := fixture.service.UploadAvatar(context.Background(), "u1", imageFile(pngHeader))
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if first != "http://localhost:8080/files/avatars/obj-000001.png" {
		t.Fatalf("unexpected avatar url %q", first)
	}
	if _, err := fixture.service.UploadAvatar(context.Background(), "u1", imageFile(pngHeader)); err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fixture.storage.Root(), "avatars", "obj-000001.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected previous avatar object to be deleted, stat err %v", err)
	}
	if _, err := os.Stat(filepath.Join(fixture.storage.Root(), "avatars", "obj-000002.png")); err != nil {
		t.Fatalf("expected new avatar object to exist: %v", err)
	}
	if fixture.avatars.urls[1] != "http://localhost:8080/files/avatars/obj-000002.png" {
		t.Fatalf("expected stored url to equal storage url, got %q", fixture.avatars.urls[1])
	}
}

func TestUploadAvatarRejectsInvalidFiles(t *testing.T) {
	fixture := newUploadsFixture(t)

	testCases := []struct {
		name   string
		file   File
		reason string
	}{
		{name: "video", file: File{ContentType: "video/mp4", Size: 4, Body: strings.NewReader("abcd")}, reason: "unsupported_type"},
		{name: "too large", file: imageFile(bytes.Repeat([]byte{1}, 65)), reason: "file_too_large"},
		{name: "empty", file: File{ContentType: "image/png", Body: strings.NewReader("")}, reason: "empty_file"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := fixture.service.UploadAvatar(context.Background(), "u1", testCase.file)
			var serviceErr *serviceerror.Error
			if !errors.As(err, &serviceErr) || serviceErr.Reason() != testCase.reason {
				t.Fatalf("expected %s, got %v", testCase.reason, err)
			}
			if serviceErr.Kind() != serviceerror.KindValidation {
				t.Fatalf("expected validation kind, got %s", serviceErr.Kind())
			}
		})
	}
}

func TestUploadAttachmentEnforcesLimitWhileStreaming(t *testing.T) {
	fixture := newUploadsFixture(t)
	payload := bytes.Repeat([]byte{2}, 200)

	// declared size lies; the stream guard still stops the write.
	file := File{ContentType: "image/png", Size: 10, Body: bytes.NewReader(payload)}
	_, err := fixture.service.UploadAttachment(context.Background(), "u1", file)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected file too large, got %v", err)
	}
	var count int64
	fixture.db.Model(&Media{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no media row, got %d", count)
	}
}

func TestUploadAttachmentSniffsUndeclaredType(t *testing.T) {
	fixture := newUploadsFixture(t)
	file := File{Size: int64(len(pngHeader)), Body: bytes.NewReader(pngHeader)}

	media, err := fixture.service.UploadAttachment(context.Background(), "u1", file)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if media.Type != MediaImage || media.PostID != nil {
		t.Fatalf("unexpected media %+v", media)
	}
	if !strings.HasSuffix(media.URL, "/attachments/"+media.ID+".png") {
		t.Fatalf("unexpected media url %q", media.URL)
	}
}

func TestClearOrphansRemovesOnlyStaleUnclaimedMedia(t *testing.T) {
	fixture := newUploadsFixture(t)

	stale, err := fixture.service.UploadAttachment(context.Background(), "u1", imageFile(pngHeader))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	claimed, err := fixture.service.UploadAttachment(context.Background(), "u1", imageFile(pngHeader))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	postID := "post-1"
	fixture.db.Model(&Media{}).Where("id = ?", claimed.ID).Update("post_id", postID)

	fixture.now = fixture.now.Add(2 * time.Hour)
	fresh, err := fixture.service.UploadAttachment(context.Background(), "u1", imageFile(pngHeader))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	cleared, err := fixture.service.ClearOrphans(context.Background())
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected one orphan cleared, got %d", cleared)
	}

	var remaining []Media
	fixture.db.Order("id ASC").Find(&remaining)
	if len(remaining) != 2 || remaining[0].ID != claimed.ID || remaining[1].ID != fresh.ID {
		t.Fatalf("unexpected remaining media %+v", remaining)
	}
	if _, err := os.Stat(filepath.Join(fixture.storage.Root(), filepath.FromSlash(stale.ObjectKey))); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stale object removed, stat err %v", err)
	}
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir(), "http://localhost/files")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	for _, key := range []string{"", "../etc/passwd", "a/../../b", "/abs"} {
		if _, err := storage.Put(context.Background(), key, "image/png", strings.NewReader("x")); !errors.Is(err, errInvalidObjectKey) {
			t.Fatalf("expected invalid key error for %q, got %v", key, err)
		}
	}
}

func TestDisabledStorageReportsDependencyFailure(t *testing.T) {
	fixture := newUploadsFixture(t)
	service, err := NewService(ServiceConfig{Database: fixture.db})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if service.Enabled() {
		t.Fatalf("expected uploads to be disabled")
	}
	_, err = service.UploadAttachment(context.Background(), "u1", imageFile(pngHeader))
	if !errors.Is(err, ErrStorageNotConfigured) {
		t.Fatalf("expected storage not configured, got %v", err)
	}
}

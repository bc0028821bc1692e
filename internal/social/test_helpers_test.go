package social

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/ids"
	"github.com/MarcoPoloResearchLab/huddle/internal/pagination"
	"github.com/MarcoPoloResearchLab/huddle/internal/uploads"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// steppingClock advances one millisecond on every reading so rows get distinct creation times.
type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Millisecond)
	return c.current
}

type recordingPublisher struct {
	mu        sync.Mutex
	delivered map[string][]NotificationView
}

func (p *recordingPublisher) PublishNotification(recipientID string, notification NotificationView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.delivered == nil {
		p.delivered = make(map[string][]NotificationView)
	}
	p.delivered[recipientID] = append(p.delivered[recipientID], notification)
}

func (p *recordingPublisher) count(recipientID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delivered[recipientID])
}

type socialFixture struct {
	service   *Service
	db        *gorm.DB
	publisher *recordingPublisher
	clock     *steppingClock
}

func newSocialFixture(t *testing.T) *socialFixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	models := append([]interface{}{&users.User{}, &uploads.Media{}}, Models()...)
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	fixture := &socialFixture{
		db:        db,
		publisher: &recordingPublisher{},
		clock:     &steppingClock{current: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)},
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      fixture.clock.Now,
		IDProvider: &ids.Sequence{Prefix: "id-"},
		Publisher:  fixture.publisher,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	fixture.service = service
	return fixture
}

func (f *socialFixture) createUser(t *testing.T, id, username, displayName string) users.User {
	t.Helper()
	user := users.User{
		ID:              id,
		Username:        username,
		DisplayName:     displayName,
		CreatedAtMillis: f.clock.Now().UnixMilli(),
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func (f *socialFixture) createPost(t *testing.T, authorID, content string) PostView {
	t.Helper()
	post, err := f.service.CreatePost(context.Background(), authorID, CreatePostInput{Content: content})
	if err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return post
}

func (f *socialFixture) count(t *testing.T, model interface{}, condition string, args ...interface{}) int64 {
	t.Helper()
	var total int64
	query := f.db.Model(model)
	if condition != "" {
		query = query.Where(condition, args...)
	}
	if err := query.Count(&total).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return total
}

// drain follows next cursors until the terminal page and returns every page.
func drain[T any](t *testing.T, fetch func(cursor string) (pagination.Page[T], error)) []pagination.Page[T] {
	t.Helper()
	var pages []pagination.Page[T]
	cursor := ""
	for guard := 0; guard < 50; guard++ {
		page, err := fetch(cursor)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		pages = append(pages, page)
		if page.NextCursor == nil {
			return pages
		}
		cursor = *page.NextCursor
	}
	t.Fatalf("pagination did not terminate")
	return nil
}

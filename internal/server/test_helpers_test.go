package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/chat"
	"github.com/MarcoPoloResearchLab/huddle/internal/database"
	"github.com/MarcoPoloResearchLab/huddle/internal/ids"
	"github.com/MarcoPoloResearchLab/huddle/internal/social"
	"github.com/MarcoPoloResearchLab/huddle/internal/uploads"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "huddle-auth"
	testCookieName    = "auth_session"
	testPublicBaseURL = "http://localhost:8080/uploads"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)

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

type stubChatClient struct {
	mu      sync.Mutex
	upserts []chat.User
	renames map[string]string
	unread  int64
}

func (s *stubChatClient) UpsertUsers(_ context.Context, batch []chat.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, batch...)
	return nil
}

func (s *stubChatClient) RenameUser(_ context.Context, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.renames == nil {
		s.renames = make(map[string]string)
	}
	s.renames[userID] = name
	return nil
}

func (s *stubChatClient) UnreadCount(context.Context, string) (int64, error) {
	return s.unread, nil
}

type fixtureOptions struct {
	chatClient *stubChatClient
	logger     *zap.Logger
}

type serverFixture struct {
	handler    http.Handler
	db         *gorm.DB
	sessions   *auth.SessionManager
	dispatcher *RealtimeDispatcher
	storage    *uploads.LocalStorage
}

func newServerFixture(t *testing.T, options fixtureOptions) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite("file:"+name+"?mode=memory&cache=shared", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := &steppingClock{current: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)}

	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
		TTL:           time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock.Now, Logger: logger})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	dispatcher := NewRealtimeDispatcher()
	socialService, err := social.NewService(social.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &ids.Sequence{Prefix: "id-"},
		Publisher:  dispatcher,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to create social service: %v", err)
	}
	storage, err := uploads.NewLocalStorage(t.TempDir(), testPublicBaseURL)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	uploadService, err := uploads.NewService(uploads.ServiceConfig{
		Database:   db,
		Storage:    storage,
		Avatars:    userService,
		IDProvider: &ids.Sequence{Prefix: "media-"},
		Clock:      clock.Now,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("failed to create uploads service: %v", err)
	}

	chatConfig := chat.ServiceConfig{Logger: logger}
	if options.chatClient != nil {
		issuer, err := chat.NewTokenIssuer("chat-secret", time.Hour, nil)
		if err != nil {
			t.Fatalf("failed to create chat issuer: %v", err)
		}
		chatConfig.Client = options.chatClient
		chatConfig.Tokens = issuer
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:          sessions,
		Users:             userService,
		Social:            socialService,
		Uploads:           uploadService,
		Chat:              chat.NewService(chatConfig),
		Realtime:          dispatcher,
		AllowedOrigins:    []string{"https://app.example.com"},
		UploadsDirectory:  storage.Root(),
		HeartbeatInterval: time.Hour,
		Logger:            logger,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &serverFixture{handler: handler, db: db, sessions: sessions, dispatcher: dispatcher, storage: storage}
}

func (f *serverFixture) sessionCookie(t *testing.T, userID, username string) *http.Cookie {
	t.Helper()
	token, expiresAt, err := f.sessions.Issue(auth.SessionClaims{UserID: userID, Username: username})
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	return f.sessions.Cookie(token, expiresAt)
}

// do sends a JSON request as userID and returns the recorded response.
func (f *serverFixture) do(t *testing.T, userID, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		request.AddCookie(f.sessionCookie(t, userID, userID))
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func (f *serverFixture) upload(t *testing.T, userID, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile(uploadFormField, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, path, &buffer)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.AddCookie(f.sessionCookie(t, userID, userID))
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return value
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}

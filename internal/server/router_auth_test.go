package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogsExpiredSessionAtInfoLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fixture := newServerFixture(t, fixtureOptions{logger: zap.New(core)})

	expiredIssuer, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
		TTL:           time.Minute,
		Clock:         func() time.Time { return time.Now().Add(-time.Hour) },
	})
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	token, expiresAt, err := expiredIssuer.Issue(auth.SessionClaims{UserID: "alice"})
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}

	request := httptest.NewRequest(http.MethodGet, "/posts/for-you", http.NoBody)
	request.AddCookie(expiredIssuer.Cookie(token, expiresAt))
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	expectStatus(t, recorder, http.StatusUnauthorized)
	entries := logs.FilterMessage("session validation failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired session, got %s", entry.Level)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired session error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsMissingSessionAtWarnLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fixture := newServerFixture(t, fixtureOptions{logger: zap.New(core)})

	recorder := fixture.do(t, "", http.MethodGet, "/notifications", nil)

	expectStatus(t, recorder, http.StatusUnauthorized)
	if recorder.Body.String() != `{"error":"unauthorized"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
	entries := logs.FilterMessage("session validation failed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", entries)
	}
}

func TestAuthorizeRequestRejectsForeignSignature(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	foreign, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte("some-other-secret"),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	token, expiresAt, err := foreign.Issue(auth.SessionClaims{UserID: "mallory"})
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/posts/for-you", http.NoBody)
	request.AddCookie(foreign.Cookie(token, expiresAt))
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	expectStatus(t, recorder, http.StatusUnauthorized)
	var total int64
	if err := fixture.db.Model(&users.User{}).Count(&total).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no account to be provisioned, got %d", total)
	}
}

func TestAuthorizeRequestProvisionsViewer(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})

	recorder := fixture.do(t, "alice", http.MethodGet, "/users/alice", nil)

	expectStatus(t, recorder, http.StatusOK)
	profile := decodeBody[map[string]interface{}](t, recorder)
	if profile["username"] != "alice" || profile["displayName"] != "Alice" {
		t.Fatalf("unexpected provisioned profile %v", profile)
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingSessionValidator) {
		t.Fatalf("expected missing session validator error, got %v", err)
	}
}

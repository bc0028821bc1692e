package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/social"
	"github.com/gorilla/websocket"
)

func TestNotificationStreamPushesCommittedNotifications(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	server := httptest.NewServer(fixture.handler)
	t.Cleanup(server.Close)

	post := decodeBody[social.PostView](t, fixture.do(t, "alice", http.MethodPost, "/posts", createPostRequest{Content: "hello"}))

	cookie := fixture.sessionCookie(t, "alice", "alice")
	header := http.Header{}
	header.Set("Cookie", cookie.Name+"="+cookie.Value)
	streamURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/notifications/stream"
	conn, response, err := websocket.DefaultDialer.Dial(streamURL, header)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if response.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected stream status: %d", response.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fixture.dispatcher.SubscriberCount("alice") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for stream subscription")
		}
		time.Sleep(5 * time.Millisecond)
	}

	expectStatus(t, fixture.do(t, "bob", http.MethodPost, "/posts/"+post.ID+"/likes", nil), http.StatusOK)

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var frame streamFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	if frame.Type != RealtimeEventNotification || frame.Notification == nil {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if frame.Notification.Type != social.NotificationLike || frame.Notification.Issuer.ID != "bob" {
		t.Fatalf("unexpected notification %+v", frame.Notification)
	}
	if frame.Notification.Post == nil || frame.Notification.Post.ID != post.ID {
		t.Fatalf("expected post excerpt for %s, got %+v", post.ID, frame.Notification.Post)
	}
}

func TestNotificationStreamRequiresSession(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	server := httptest.NewServer(fixture.handler)
	t.Cleanup(server.Close)

	streamURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/notifications/stream"
	_, response, err := websocket.DefaultDialer.Dial(streamURL, nil)
	if err == nil {
		t.Fatal("expected handshake to fail without a session")
	}
	if response == nil || response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %v", response)
	}
}

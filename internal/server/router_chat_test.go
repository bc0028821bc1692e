package server

import (
	"net/http"
	"testing"
)

func TestChatEndpointsWhenNotConfigured(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})

	token := fixture.do(t, "alice", http.MethodGet, "/chat/token", nil)
	expectStatus(t, token, http.StatusServiceUnavailable)
	if body := decodeBody[errorResponse](t, token); body.Error != "not_configured" {
		t.Fatalf("unexpected body %+v", body)
	}
	expectStatus(t, fixture.do(t, "alice", http.MethodPost, "/chat/users", nil), http.StatusServiceUnavailable)

	unread := fixture.do(t, "alice", http.MethodGet, "/messages/unread-count", nil)
	expectStatus(t, unread, http.StatusOK)
	if body := decodeBody[unreadMessagesResponse](t, unread); body.UnreadCount != 0 {
		t.Fatalf("expected zero unread messages, got %d", body.UnreadCount)
	}
}

func TestChatTokenUpsertsViewerOnce(t *testing.T) {
	chatClient := &stubChatClient{unread: 4}
	fixture := newServerFixture(t, fixtureOptions{chatClient: chatClient})

	for attempt := 0; attempt < 2; attempt++ {
		recorder := fixture.do(t, "alice", http.MethodGet, "/chat/token", nil)
		expectStatus(t, recorder, http.StatusOK)
		if body := decodeBody[chatTokenResponse](t, recorder); body.Token == "" {
			t.Fatalf("expected a chat token")
		}
	}
	if len(chatClient.upserts) != 1 || chatClient.upserts[0].ID != "alice" || chatClient.upserts[0].Name != "Alice" {
		t.Fatalf("expected a single upsert of alice, got %+v", chatClient.upserts)
	}

	unread := decodeBody[unreadMessagesResponse](t, fixture.do(t, "alice", http.MethodGet, "/messages/unread-count", nil))
	if unread.UnreadCount != 4 {
		t.Fatalf("expected 4 unread messages, got %d", unread.UnreadCount)
	}

	expectStatus(t, fixture.do(t, "alice", http.MethodPost, "/chat/users", nil), http.StatusOK)
	if len(chatClient.upserts) != 2 {
		t.Fatalf("expected explicit upsert to reach chat, got %d", len(chatClient.upserts))
	}
}

package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/huddle/internal/social"
	"github.com/MarcoPoloResearchLab/huddle/internal/users"
)

func TestUploadAvatarStoresReturnedURL(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})

	recorder := fixture.upload(t, "alice", "/uploads/avatar", "me.png", pngBytes)

	expectStatus(t, recorder, http.StatusOK)
	response := decodeBody[avatarResponse](t, recorder)
	if !strings.HasPrefix(response.AvatarURL, testPublicBaseURL+"/avatars/") {
		t.Fatalf("unexpected avatar url %q", response.AvatarURL)
	}
	var stored users.User
	if err := fixture.db.Where("id = ?", "alice").Take(&stored).Error; err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if stored.AvatarURL != response.AvatarURL {
		t.Fatalf("expected stored avatar %q, got %q", response.AvatarURL, stored.AvatarURL)
	}

	served := httptest.NewRecorder()
	fixture.handler.ServeHTTP(served, httptest.NewRequest(http.MethodGet, "/uploads/"+stored.AvatarKey, http.NoBody))
	expectStatus(t, served, http.StatusOK)
	if !bytes.Equal(served.Body.Bytes(), pngBytes) {
		t.Fatalf("expected served avatar to match upload")
	}
}

func TestUploadRejectsMissingAndUnsupportedFiles(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})

	missing := fixture.do(t, "alice", http.MethodPost, "/uploads/avatar", nil)
	expectStatus(t, missing, http.StatusBadRequest)
	if body := decodeBody[errorResponse](t, missing); body.Error != "invalid_request" {
		t.Fatalf("unexpected body %+v", body)
	}

	text := fixture.upload(t, "alice", "/uploads/attachments", "notes.txt", []byte("plain text is not media"))
	expectStatus(t, text, http.StatusBadRequest)
	if body := decodeBody[errorResponse](t, text); body.Error != "unsupported_type" {
		t.Fatalf("unexpected body %+v", body)
	}

	large := fixture.upload(t, "alice", "/uploads/avatar", "big.png", append(append([]byte{}, pngBytes...), make([]byte, 600<<10)...))
	expectStatus(t, large, http.StatusBadRequest)
	if body := decodeBody[errorResponse](t, large); body.Error != "file_too_large" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAttachmentIsClaimedByPost(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})

	uploaded := fixture.upload(t, "alice", "/uploads/attachments", "photo.png", pngBytes)
	expectStatus(t, uploaded, http.StatusCreated)
	media := decodeBody[attachmentResponse](t, uploaded)
	if media.MediaID == "" || media.Type != "IMAGE" {
		t.Fatalf("unexpected attachment %+v", media)
	}

	stolen := fixture.do(t, "bob", http.MethodPost, "/posts", createPostRequest{Content: "mine now", MediaIDs: []string{media.MediaID}})
	expectStatus(t, stolen, http.StatusBadRequest)

	created := fixture.do(t, "alice", http.MethodPost, "/posts", createPostRequest{Content: "look", MediaIDs: []string{media.MediaID}})
	expectStatus(t, created, http.StatusCreated)
	post := decodeBody[social.PostView](t, created)
	if len(post.Attachments) != 1 || post.Attachments[0].URL != media.URL {
		t.Fatalf("unexpected attachments %+v", post.Attachments)
	}
}

// Package apiclient is a Go client for the huddle HTTP API.
//
// It authenticates with the session cookie and decodes list endpoints into
// pagination.Page values, so callers page exactly like the browser does.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/pagination"
	"github.com/MarcoPoloResearchLab/huddle/internal/social"
)

const (
	defaultCookieName = "auth_session"
	defaultTimeout    = 30 * time.Second
)

var errMissingBaseURL = errors.New("apiclient: base url required")

// APIError is a non 2xx response decoded from the API error body.
type APIError struct {
	Status  int
	Reason  string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s: %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Reason)
}

// ReasonOf returns the snake case reason of an API error, or "" for other errors.
func ReasonOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason
	}
	return ""
}

// Config describes the API endpoint and the session used against it.
type Config struct {
	BaseURL      string
	SessionToken string
	CookieName   string
	HTTPClient   *http.Client
}

// Client calls the huddle API as one signed in user.
type Client struct {
	baseURL    string
	cookieName string
	session    string
	httpClient *http.Client
}

// New creates an API client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, cookieName: cookieName, session: cfg.SessionToken, httpClient: httpClient}, nil
}

// ForYouFeed returns one page of every post, newest first.
func (c *Client) ForYouFeed(ctx context.Context, cursor string) (pagination.Page[social.PostView], error) {
	return getPage[social.PostView](ctx, c, "/posts/for-you", cursor, nil)
}

// FollowingFeed returns one page of posts by followed users and the viewer.
func (c *Client) FollowingFeed(ctx context.Context, cursor string) (pagination.Page[social.PostView], error) {
	return getPage[social.PostView](ctx, c, "/posts/following", cursor, nil)
}

// BookmarkedFeed returns one page of the viewer's bookmarks.
func (c *Client) BookmarkedFeed(ctx context.Context, cursor string) (pagination.Page[social.PostView], error) {
	return getPage[social.PostView](ctx, c, "/posts/bookmarked", cursor, nil)
}

// UserPosts returns one page of posts written by userID.
func (c *Client) UserPosts(ctx context.Context, userID, cursor string) (pagination.Page[social.PostView], error) {
	return getPage[social.PostView](ctx, c, "/users/"+url.PathEscape(userID)+"/posts", cursor, nil)
}

// SearchPosts returns one page of posts matching query.
func (c *Client) SearchPosts(ctx context.Context, query, cursor string) (pagination.Page[social.PostView], error) {
	return getPage[social.PostView](ctx, c, "/posts/search", cursor, url.Values{"q": []string{query}})
}

// Comments returns one ascending page of a post's comments.
func (c *Client) Comments(ctx context.Context, postID, cursor string) (pagination.Page[social.CommentView], error) {
	return getPage[social.CommentView](ctx, c, "/posts/"+url.PathEscape(postID)+"/comments", cursor, nil)
}

// Notifications returns one page of the viewer's notifications.
func (c *Client) Notifications(ctx context.Context, cursor string) (pagination.Page[social.NotificationView], error) {
	return getPage[social.NotificationView](ctx, c, "/notifications", cursor, nil)
}

// Followers returns one page of the users following userID.
func (c *Client) Followers(ctx context.Context, userID, cursor string) (pagination.Page[social.UserView], error) {
	return getPage[social.UserView](ctx, c, "/users/"+url.PathEscape(userID)+"/followers", cursor, nil)
}

func (c *Client) GetPost(ctx context.Context, postID string) (social.PostView, error) {
	var post social.PostView
	err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID), nil, nil, &post)
	return post, err
}

func (c *Client) CreatePost(ctx context.Context, content string, mediaIDs []string) (social.PostView, error) {
	var post social.PostView
	body := map[string]interface{}{"content": content, "mediaIds": mediaIDs}
	err := c.do(ctx, http.MethodPost, "/posts", nil, body, &post)
	return post, err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID), nil, nil, nil)
}

func (c *Client) LikeInfo(ctx context.Context, postID string) (social.LikeInfo, error) {
	return c.likeRequest(ctx, http.MethodGet, postID)
}

func (c *Client) LikePost(ctx context.Context, postID string) (social.LikeInfo, error) {
	return c.likeRequest(ctx, http.MethodPost, postID)
}

func (c *Client) UnlikePost(ctx context.Context, postID string) (social.LikeInfo, error) {
	return c.likeRequest(ctx, http.MethodDelete, postID)
}

func (c *Client) likeRequest(ctx context.Context, method, postID string) (social.LikeInfo, error) {
	var info social.LikeInfo
	err := c.do(ctx, method, "/posts/"+url.PathEscape(postID)+"/likes", nil, nil, &info)
	return info, err
}

func (c *Client) BookmarkInfo(ctx context.Context, postID string) (social.BookmarkInfo, error) {
	return c.bookmarkRequest(ctx, http.MethodGet, postID)
}

func (c *Client) BookmarkPost(ctx context.Context, postID string) (social.BookmarkInfo, error) {
	return c.bookmarkRequest(ctx, http.MethodPost, postID)
}

func (c *Client) UnbookmarkPost(ctx context.Context, postID string) (social.BookmarkInfo, error) {
	return c.bookmarkRequest(ctx, http.MethodDelete, postID)
}

func (c *Client) bookmarkRequest(ctx context.Context, method, postID string) (social.BookmarkInfo, error) {
	var info social.BookmarkInfo
	err := c.do(ctx, method, "/posts/"+url.PathEscape(postID)+"/bookmark", nil, nil, &info)
	return info, err
}

func (c *Client) CreateComment(ctx context.Context, postID, content string) (social.CommentView, error) {
	var comment social.CommentView
	err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", nil, map[string]string{"content": content}, &comment)
	return comment, err
}

func (c *Client) DeleteComment(ctx context.Context, commentID string) (social.CommentView, error) {
	var comment social.CommentView
	err := c.do(ctx, http.MethodDelete, "/comments/"+url.PathEscape(commentID), nil, nil, &comment)
	return comment, err
}

func (c *Client) UserProfile(ctx context.Context, userID string) (social.UserView, error) {
	var user social.UserView
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, nil, &user)
	return user, err
}

func (c *Client) UserByUsername(ctx context.Context, username string) (social.UserView, error) {
	var user social.UserView
	err := c.do(ctx, http.MethodGet, "/users/username/"+url.PathEscape(username), nil, nil, &user)
	return user, err
}

func (c *Client) FollowerInfo(ctx context.Context, userID string) (social.FollowerInfo, error) {
	return c.followRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/followers/info")
}

func (c *Client) FollowUser(ctx context.Context, userID string) (social.FollowerInfo, error) {
	return c.followRequest(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/followers")
}

func (c *Client) UnfollowUser(ctx context.Context, userID string) (social.FollowerInfo, error) {
	return c.followRequest(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID)+"/followers")
}

func (c *Client) followRequest(ctx context.Context, method, path string) (social.FollowerInfo, error) {
	var info social.FollowerInfo
	err := c.do(ctx, method, path, nil, nil, &info)
	return info, err
}

// UpdateProfile replaces the viewer's display name and bio.
func (c *Client) UpdateProfile(ctx context.Context, displayName, bio string) (social.UserView, error) {
	var user social.UserView
	body := map[string]string{"displayName": displayName, "bio": bio}
	err := c.do(ctx, http.MethodPatch, "/users/me", nil, body, &user)
	return user, err
}

// UploadAvatar sends an avatar image and returns the stored URL.
func (c *Client) UploadAvatar(ctx context.Context, filename string, content io.Reader) (string, error) {
	var response struct {
		AvatarURL string `json:"avatarUrl"`
	}
	if err := c.upload(ctx, "/uploads/avatar", filename, content, &response); err != nil {
		return "", err
	}
	return response.AvatarURL, nil
}

// UploadAttachment sends a post attachment and returns its media id.
func (c *Client) UploadAttachment(ctx context.Context, filename string, content io.Reader) (string, error) {
	var response struct {
		MediaID string `json:"mediaId"`
	}
	if err := c.upload(ctx, "/uploads/attachments", filename, content, &response); err != nil {
		return "", err
	}
	return response.MediaID, nil
}

func (c *Client) UnreadNotificationCount(ctx context.Context) (int64, error) {
	return c.unreadCount(ctx, "/notifications/unread-count")
}

func (c *Client) UnreadMessageCount(ctx context.Context) (int64, error) {
	return c.unreadCount(ctx, "/messages/unread-count")
}

func (c *Client) unreadCount(ctx context.Context, path string) (int64, error) {
	var response struct {
		UnreadCount int64 `json:"unreadCount"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, nil, &response)
	return response.UnreadCount, err
}

func (c *Client) MarkNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/notifications/mark-as-read", nil, nil, nil)
}

func (c *Client) Suggestions(ctx context.Context) ([]social.UserView, error) {
	var suggestions []social.UserView
	err := c.do(ctx, http.MethodGet, "/users/suggestions", nil, nil, &suggestions)
	return suggestions, err
}

func (c *Client) Trends(ctx context.Context) ([]social.Trend, error) {
	var trends []social.Trend
	err := c.do(ctx, http.MethodGet, "/trends", nil, nil, &trends)
	return trends, err
}

func getPage[T any](ctx context.Context, c *Client, path, cursor string, query url.Values) (pagination.Page[T], error) {
	if query == nil {
		query = url.Values{}
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	var page pagination.Page[T]
	if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
		return pagination.Page[T]{}, err
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, result)
}

func (c *Client) upload(ctx context.Context, path, filename string, content io.Reader, result any) error {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buffer)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.send(req, result)
}

func (c *Client) send(req *http.Request, result any) error {
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.session})
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		apiErr.Reason = payload.Error
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		return apiErr
	}
	apiErr.Reason = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

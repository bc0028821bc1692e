package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

var errMissingBaseURL = errors.New("chat: base url required")

// User is the chat profile mirrored from a huddle account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
}

// Client is the hosted chat service.
type Client interface {
	UpsertUsers(ctx context.Context, users []User) error
	RenameUser(ctx context.Context, userID, name string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// StatusError reports a non 2xx response from the chat service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat: unexpected status %d: %s", e.Status, e.Body)
}

// HTTPClientConfig describes the hosted chat endpoint.
type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	Tokens     *TokenIssuer
	HTTPClient *http.Client
}

// HTTPClient talks to the hosted chat REST API with server tokens.
type HTTPClient struct {
	baseURL string
	apiKey  string
	tokens  *TokenIssuer
	http    *http.Client
}

// NewHTTPClient constructs a REST client for the hosted chat service.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Tokens == nil {
		return nil, errMissingAPISecret
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &HTTPClient{baseURL: baseURL, apiKey: cfg.APIKey, tokens: cfg.Tokens, http: httpClient}, nil
}

type upsertUsersRequest struct {
	Users map[string]User `json:"users"`
}

// UpsertUsers creates or replaces the given chat users.
func (c *HTTPClient) UpsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	payload := upsertUsersRequest{Users: make(map[string]User, len(users))}
	for _, user := range users {
		payload.Users[user.ID] = user
	}
	return c.do(ctx, http.MethodPost, "/users", nil, payload, nil)
}

type partialUpdateRequest struct {
	Users []partialUpdate `json:"users"`
}

type partialUpdate struct {
	ID  string            `json:"id"`
	Set map[string]string `json:"set"`
}

// RenameUser updates the display name of one chat user.
func (c *HTTPClient) RenameUser(ctx context.Context, userID, name string) error {
	payload := partialUpdateRequest{Users: []partialUpdate{{ID: userID, Set: map[string]string{"name": name}}}}
	return c.do(ctx, http.MethodPatch, "/users", nil, payload, nil)
}

type unreadResponse struct {
	TotalUnreadCount int64 `json:"total_unread_count"`
}

// UnreadCount returns the number of unread messages of userID.
func (c *HTTPClient) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var response unreadResponse
	query := url.Values{"user_id": []string{userID}}
	if err := c.do(ctx, http.MethodGet, "/unread", query, nil, &response); err != nil {
		return 0, err
	}
	return response.TotalUnreadCount, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	token, err := c.tokens.ServerToken()
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", token)
	request.Header.Set("Stream-Auth-Type", "jwt")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return &StatusError{Status: response.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}

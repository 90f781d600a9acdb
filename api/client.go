package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"thinkchat/config"
	"thinkchat/model"
	"thinkchat/stream"
)

var (
	// ErrUnauthorized is returned by Login for rejected credentials.
	ErrUnauthorized = errors.New("invalid email or password")
	// ErrSessionExpired is returned when the access token was rejected and
	// could not be refreshed.
	ErrSessionExpired = model.ErrSessionExpired
)

// TokenSource stores the server session. *config.TokenStore implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SaveLogin(ctx context.Context, email, access, refresh string) error
	SaveAccessToken(ctx context.Context, access string) error
	Clear(ctx context.Context) error
}

// Client talks to the conversation server. It implements model.Store,
// model.Backend and model.Authenticator.
type Client struct {
	baseURL    string
	httpClient *http.Client // JSON calls, bounded by the request timeout
	streamHTTP *http.Client // /llm_stream, bounded by the turn context only
	tokens     TokenSource
	streamOpts stream.Options

	refreshMu sync.Mutex
}

var (
	_ model.Store         = (*Client)(nil)
	_ model.Backend       = (*Client)(nil)
	_ model.Authenticator = (*Client)(nil)
)

func NewClient(cfg *config.Config, tokens TokenSource) *Client {
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Server.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		streamHTTP: &http.Client{},
		tokens:     tokens,
		streamOpts: stream.Options{
			MaxRetries:    cfg.Stream.MaxRetries,
			RetryInterval: cfg.Stream.RetryInterval,
		},
	}
}

func (c *Client) setHeaders(req *http.Request, token string, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    flexID `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type refreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a session and stores its tokens.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var resp loginResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", loginRequest{Email: email, Password: password}, &resp)
	var se *stream.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if !resp.Success || resp.AccessToken == "" {
		return ErrUnauthorized
	}

	if err := c.tokens.SaveLogin(ctx, email, resp.AccessToken, resp.RefreshToken); err != nil {
		return err
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[API] logged in as user %s", resp.User.ID)
	}
	return nil
}

// SignedIn reports whether a refreshable session is stored.
func (c *Client) SignedIn() bool {
	_, err := c.tokens.RefreshToken(context.Background())
	return err == nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.tokens.Clear(ctx)
}

// refresh obtains a new access token. stale is the token that was rejected;
// if another caller already replaced it the refresh is skipped.
func (c *Client) refresh(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current, err := c.tokens.AccessToken(ctx); err == nil && current != stale {
		return nil
	}

	refreshToken, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return ErrSessionExpired
	}

	var resp refreshResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/refresh", refreshToken, struct{}{}, &resp); err != nil || resp.AccessToken == "" {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[API] token refresh failed: %v", err)
		}
		c.signOut(ctx)
		return ErrSessionExpired
	}

	return c.tokens.SaveAccessToken(ctx, resp.AccessToken)
}

func (c *Client) signOut(ctx context.Context) {
	if err := c.tokens.Clear(ctx); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[API] failed to clear session: %v", err)
	}
}

// --- Conversations ---

func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var resp []wireConversation
	if err := c.authed(ctx, http.MethodGet, "/api/conversations/", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	convs := make([]model.Conversation, 0, len(resp))
	for _, wc := range resp {
		convs = append(convs, wc.toModel())
	}
	return convs, nil
}

func (c *Client) CreateConversation(ctx context.Context, title string) (model.Conversation, error) {
	req := struct {
		Title string `json:"title"`
		Date  string `json:"date"`
	}{Title: title, Date: time.Now().Format(time.RFC3339)}

	var resp wireConversation
	if err := c.authed(ctx, http.MethodPost, "/api/conversations/", req, &resp); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return resp.toModel(), nil
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.authed(ctx, http.MethodDelete, "/api/conversations/"+conversationID, nil, nil); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (c *Client) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	req := struct {
		Title string `json:"title"`
	}{Title: title}
	if err := c.authed(ctx, http.MethodPut, "/api/conversations/"+conversationID+"/title", req, nil); err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	return nil
}

// --- Messages ---

func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var resp []wireMessage
	if err := c.authed(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	msgs := make([]model.Message, 0, len(resp))
	for _, wm := range resp {
		msgs = append(msgs, wm.toModel(conversationID))
	}
	return msgs, nil
}

func (c *Client) CreateMessage(ctx context.Context, conversationID string, msg model.Message) (model.Message, error) {
	req := newMessageRequest{
		Type:    wireType(msg.Role),
		Content: msg.Content,
		Steps:   msg.Steps,
	}
	var resp wireMessage
	if err := c.authed(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/messages", req, &resp); err != nil {
		return model.Message{}, fmt.Errorf("failed to save message: %w", err)
	}
	return resp.toModel(conversationID), nil
}

// --- Streaming ---

type streamRequest struct {
	Prompt         string `json:"prompt"`
	ConversationID any    `json:"conversation_id"`
}

// OpenResponseStream posts the transcript to /llm_stream and returns the
// decoded event stream. A rejected token is refreshed once per connection
// attempt; if that fails the stream ends with ErrSessionExpired.
func (c *Client) OpenResponseStream(ctx context.Context, transcript, conversationID string) (model.EventSource, error) {
	if _, err := c.tokens.AccessToken(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(streamRequest{Prompt: transcript, ConversationID: wireConversationID(conversationID)})
	if err != nil {
		return nil, fmt.Errorf("marshaling stream request: %w", err)
	}

	var sentToken string
	newReq := func(ctx context.Context) (*http.Request, error) {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/llm_stream", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		c.setHeaders(req, token, true)
		sentToken = token
		return req, nil
	}
	inner := stream.HTTPOpener(c.streamHTTP, newReq)

	open := func(ctx context.Context) (io.ReadCloser, error) {
		rc, err := inner(ctx)
		if !isUnauthorized(err) {
			return rc, err
		}
		if err := c.refresh(ctx, sentToken); err != nil {
			return nil, stream.Permanent(err)
		}
		rc, err = inner(ctx)
		if isUnauthorized(err) {
			c.signOut(ctx)
			return nil, stream.Permanent(ErrSessionExpired)
		}
		return rc, err
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[API] opening response stream for conversation %s (%d byte transcript)", conversationID, len(transcript))
	}
	return stream.Open(ctx, open, c.streamOpts), nil
}

// --- Generic JSON helpers ---

// authed performs an authenticated JSON call, refreshing the access token
// once on 401.
func (c *Client) authed(ctx context.Context, method, path string, reqBody, result any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	err = c.doJSON(ctx, method, path, token, reqBody, result)
	if !isUnauthorized(err) {
		return err
	}

	if err := c.refresh(ctx, token); err != nil {
		return err
	}
	token, err = c.tokens.AccessToken(ctx)
	if err != nil {
		return ErrSessionExpired
	}

	err = c.doJSON(ctx, method, path, token, reqBody, result)
	if isUnauthorized(err) {
		c.signOut(ctx)
		return ErrSessionExpired
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, reqBody, result any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req, token, reqBody != nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &stream.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

func isUnauthorized(err error) bool {
	var se *stream.StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

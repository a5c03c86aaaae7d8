package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	var out Session
	if err := c.callData(ctx, "create session", http.MethodPost, "chat/sessions/create/", nil, req, &out); err != nil {
		return nil, err
	}
	if out.SessionID.IsZero() {
		return nil, fmt.Errorf("create session: %w: missing session_id", ErrUnexpectedShape)
	}
	return &out, nil
}

func (c *Client) ListSessions(ctx context.Context, userID ID) ([]Session, error) {
	var out []Session
	env, _, err := c.call(ctx, "list sessions", http.MethodGet, "chat/sessions/list/", url.Values{"user_id": {userID.String()}}, nil)
	if err != nil {
		return nil, err
	}
	if !env.hasData() {
		return nil, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w: %v", ErrUnexpectedShape, err)
	}
	return out, nil
}

func (c *Client) SessionDetail(ctx context.Context, sessionID ID) (*SessionDetail, error) {
	var out SessionDetail
	if err := c.callData(ctx, "session detail", http.MethodGet, "chat/session/detail/", url.Values{"session_id": {sessionID.String()}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage reads answer and sources from the top level of the response.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	if req.Sender == "" {
		req.Sender = "user"
	}
	_, raw, err := c.call(ctx, "send message", http.MethodPost, "chat/messages/send/", nil, req)
	if err != nil {
		return nil, err
	}
	var out SendMessageResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("send message: %w: %v", ErrUnexpectedShape, err)
	}
	return &out, nil
}

type sessionAction struct {
	SessionID ID     `json:"session_id"`
	UserID    ID     `json:"user_id"`
	Title     string `json:"title,omitempty"`
}

func (c *Client) DeleteSession(ctx context.Context, sessionID, userID ID) error {
	_, _, err := c.call(ctx, "delete session", http.MethodPost, "chat/sessions/delete/", nil,
		sessionAction{SessionID: sessionID, UserID: userID})
	return err
}

func (c *Client) RenameSession(ctx context.Context, sessionID, userID ID, title string) (*Session, error) {
	var out Session
	if err := c.callData(ctx, "rename session", http.MethodPost, "chat/sessions/rename/", nil,
		sessionAction{SessionID: sessionID, UserID: userID, Title: title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EndSession(ctx context.Context, sessionID, userID ID) (*Session, error) {
	var out Session
	if err := c.callData(ctx, "end session", http.MethodPost, "chat/sessions/end/", nil,
		sessionAction{SessionID: sessionID, UserID: userID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

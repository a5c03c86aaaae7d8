package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	return c.authenticate(ctx, "register", "accounts/register/", req)
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	return c.authenticate(ctx, "login", "accounts/login/", req)
}

func (c *Client) authenticate(ctx context.Context, action, path string, body interface{}) (*AuthResult, error) {
	_, raw, err := c.call(ctx, action, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	var out AuthResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	if out.Token == "" || out.UserID.IsZero() {
		return nil, fmt.Errorf("%s: %w: missing token or user_id", action, ErrUnexpectedShape)
	}
	return &out, nil
}

func (c *Client) AccountDetail(ctx context.Context) (*Account, error) {
	var out Account
	if err := c.callData(ctx, "account detail", http.MethodGet, "accounts/detail/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAccountRequest leaves nil fields unchanged. An empty Email clears it.
type UpdateAccountRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (c *Client) UpdateAccount(ctx context.Context, req UpdateAccountRequest) (*Account, error) {
	var out Account
	if err := c.callData(ctx, "update account", http.MethodPost, "accounts/update/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword returns the replacement token. Older backends only send new_token.
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*AuthResult, error) {
	const action = "change password"
	_, raw, err := c.call(ctx, action, http.MethodPost, "accounts/password/update/", nil, req)
	if err != nil {
		return nil, err
	}
	var out struct {
		AuthResult
		NewToken string `json:"new_token"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	if out.Token == "" {
		out.Token = out.NewToken
	}
	if out.Token == "" {
		return nil, fmt.Errorf("%s: %w: missing token", action, ErrUnexpectedShape)
	}
	return &out.AuthResult, nil
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	_, _, err := c.call(ctx, "delete account", http.MethodPost, "accounts/delete/", nil, struct{}{})
	return err
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"kbassist/internal/httpclient"
)

const statusSuccess = "success"

var (
	// ErrRemote marks a response whose envelope status is not "success".
	ErrRemote = errors.New("remote call failed")
	// ErrUnexpectedShape marks a 2xx response the client cannot decode.
	ErrUnexpectedShape = errors.New("unexpected response shape")
)

// Client exposes the backend's REST endpoints as typed calls.
type Client struct {
	http *httpclient.Client
}

func NewClient(hc *httpclient.Client) *Client {
	return &Client{http: hc}
}

type envelope struct {
	Status  string          `json:"status"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

func remoteError(action, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown error"
	}
	return fmt.Errorf("%s: %w: %s", action, ErrRemote, message)
}

// call runs a request and checks the envelope. It returns the envelope plus the raw
// body so callers can read flat fields beside status.
func (c *Client) call(ctx context.Context, action, method, path string, query url.Values, body interface{}) (*envelope, []byte, error) {
	raw, err := c.http.Do(ctx, method, path, query, body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", action, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	if env.Status != statusSuccess {
		return nil, nil, remoteError(action, env.Message)
	}
	return &env, raw, nil
}

// callData runs a request and decodes the envelope's data into out.
func (c *Client) callData(ctx context.Context, action, method, path string, query url.Values, body, out interface{}) error {
	env, _, err := c.call(ctx, action, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if !env.hasData() {
		return fmt.Errorf("%s: %w: missing data", action, ErrUnexpectedShape)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	return nil
}

// decodeList accepts a bare array, {"results": [...]} or an envelope whose data is
// an array.
func decodeList(action string, raw []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, out); err != nil {
			return fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
		}
		return nil
	}

	var wrapped struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Results json.RawMessage `json:"results"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	if wrapped.Status != "" && wrapped.Status != statusSuccess {
		return remoteError(action, wrapped.Message)
	}
	list := wrapped.Results
	if len(bytes.TrimSpace(list)) == 0 {
		list = wrapped.Data
	}
	if len(bytes.TrimSpace(list)) == 0 || bytes.Equal(bytes.TrimSpace(list), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(list, out); err != nil {
		return fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	return nil
}

func decodeLoose(raw []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(trimmed, out)
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) ListKnowledgeBases(ctx context.Context, userID ID) ([]KnowledgeBase, error) {
	raw, err := c.http.Do(ctx, http.MethodGet, "knowledge/list/", url.Values{"userid": {userID.String()}}, nil)
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	var out []KnowledgeBase
	if err := decodeList("list knowledge bases", raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateKnowledgeBase(ctx context.Context, req CreateKnowledgeBaseRequest) (*KnowledgeBase, error) {
	var out KnowledgeBase
	if err := c.callData(ctx, "create knowledge base", http.MethodPost, "knowledge/create/", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteKnowledgeBase(ctx context.Context, kbID ID) error {
	return c.deleteByQuery(ctx, "delete knowledge base", "knowledge/delete/", url.Values{"knowledge_base_id": {kbID.String()}})
}

// deleteByQuery treats any 2xx as success unless the body explicitly says otherwise.
func (c *Client) deleteByQuery(ctx context.Context, action, path string, query url.Values) error {
	raw, err := c.http.Do(ctx, http.MethodDelete, path, query, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	var env envelope
	if jsonErr := decodeLoose(raw, &env); jsonErr == nil && env.Status != "" && env.Status != statusSuccess {
		return remoteError(action, env.Message)
	}
	return nil
}

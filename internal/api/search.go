package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

type TagSearchRequest struct {
	Query string `json:"query"`
	KBIDs []ID   `json:"kb_ids,omitempty"`
}

type TagSearchResult struct {
	Query       string   `json:"query"`
	MatchedTags []string `json:"matched_tags"`
	Chunks      []Chunk  `json:"chunks"`
	Message     string   `json:"message"`
}

func (c *Client) ChunkDetail(ctx context.Context, chunkID ID) (*Chunk, error) {
	var out Chunk
	if err := c.callData(ctx, "chunk detail", http.MethodGet, "knowledge/markdown/detail/",
		url.Values{"markdownid": {chunkID.String()}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChunkByDocument fetches the chunk at position ord (0-based) of a document.
func (c *Client) ChunkByDocument(ctx context.Context, documentRef ID, ord int) (*Chunk, error) {
	var out Chunk
	q := url.Values{"documentid": {documentRef.String()}, "number": {strconv.Itoa(ord)}}
	if err := c.callData(ctx, "chunk detail", http.MethodGet, "knowledge/markdown/detail-by-document/", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TagSearch(ctx context.Context, req TagSearchRequest) (*TagSearchResult, error) {
	const action = "tag search"
	_, raw, err := c.call(ctx, action, http.MethodPost, "knowledge/tag/search/", nil, req)
	if err != nil {
		return nil, err
	}
	var out TagSearchResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	return &out, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"kbassist/internal/httpclient"
)

// UploadProgress reports one file's upload state.
type UploadProgress struct {
	Name    string
	Loaded  int64
	Total   int64
	Percent int
}

type UploadRequest struct {
	KBID     ID
	FileName string
	Title    string
	Reader   io.Reader
}

func (c *Client) ListDocuments(ctx context.Context, kbID ID) ([]Document, error) {
	raw, err := c.http.Do(ctx, http.MethodGet, "knowledge/documents/list/", url.Values{"kb_id": {kbID.String()}}, nil)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var out []Document
	if err := decodeList("list documents", raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DocumentDetail accepts a numeric id or a document uid. Both enveloped and flat
// bodies are understood.
func (c *Client) DocumentDetail(ctx context.Context, ref ID) (*Document, error) {
	const action = "document detail"
	raw, err := c.http.Do(ctx, http.MethodGet, "knowledge/documents/detail/", url.Values{"documentid": {ref.String()}}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	var env envelope
	if err := decodeLoose(raw, &env); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	if env.Status != "" && env.Status != statusSuccess {
		return nil, remoteError(action, env.Message)
	}
	body := raw
	if env.hasData() {
		body = env.Data
	}
	var out Document
	if err := json.Unmarshal(bytes.TrimSpace(body), &out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
	}
	return &out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, ref ID) error {
	return c.deleteByQuery(ctx, "delete document", "knowledge/documents/delete/", url.Values{"document_id": {ref.String()}})
}

// UploadDocument posts one file. The title defaults to the file name and the file
// type is derived from the extension.
func (c *Client) UploadDocument(ctx context.Context, req UploadRequest, onProgress func(UploadProgress)) (*Document, error) {
	const action = "upload document"
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.FileName
	}
	kb := req.KBID.String()
	fields := []httpclient.Field{
		{Name: "knowledge_base_id", Value: kb},
		{Name: "kb_id", Value: kb},
		{Name: "title", Value: title},
		{Name: "file_type", Value: FileTypeFromName(req.FileName)},
	}

	var progress httpclient.ProgressFunc
	if onProgress != nil {
		progress = func(sent, total int64) {
			p := UploadProgress{Name: req.FileName, Loaded: sent, Total: total}
			if total > 0 {
				p.Percent = int(sent * 100 / total)
			}
			onProgress(p)
		}
	}

	raw, err := c.http.Upload(ctx, "knowledge/documents/upload/", fields,
		httpclient.FilePart{Field: "file", FileName: req.FileName, Reader: req.Reader}, progress)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	var env envelope
	if err := decodeLoose(raw, &env); err != nil {
		// some backends answer an upload with an empty 201
		return &Document{Title: title, KnowledgeBaseID: req.KBID}, nil
	}
	if env.Status != "" && env.Status != statusSuccess {
		return nil, remoteError(action, env.Message)
	}
	doc := Document{Title: title, KnowledgeBaseID: req.KBID}
	if env.hasData() {
		if err := json.Unmarshal(env.Data, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", action, ErrUnexpectedShape, err)
		}
	}
	return &doc, nil
}

// FileTypeFromName maps a file extension to the file_type form value.
func FileTypeFromName(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "md", "markdown":
		return "markdown"
	case "txt":
		return "text"
	case "pdf":
		return "pdf"
	case "doc", "docx":
		return "docx"
	case "ppt", "pptx":
		return "pptx"
	case "xlsx", "xls", "csv":
		return "sheet"
	default:
		return "file"
	}
}

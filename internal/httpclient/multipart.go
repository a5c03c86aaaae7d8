package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Field is one plain multipart form field.
type Field struct {
	Name  string
	Value string
}

// FilePart is the single file carried by an upload.
type FilePart struct {
	Field    string
	FileName string
	Reader   io.Reader
}

// ProgressFunc receives bytes sent so far and the total body size.
type ProgressFunc func(sent, total int64)

// Upload posts a multipart form. The body is assembled up front so the total size is
// known and progress can be reported as it is written to the connection.
func (c *Client) Upload(ctx context.Context, path string, fields []Field, file FilePart, onProgress ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("write form field %s failed: %w", f.Name, err)
		}
	}
	fieldName := file.Field
	if fieldName == "" {
		fieldName = "file"
	}
	fw, err := mw.CreateFormFile(fieldName, file.FileName)
	if err != nil {
		return nil, fmt.Errorf("create form file failed: %w", err)
	}
	if _, err := io.Copy(fw, file.Reader); err != nil {
		return nil, fmt.Errorf("read upload file failed: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer failed: %w", err)
	}

	total := int64(buf.Len())
	body := &progressReader{r: &buf, total: total, fn: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Resolve(path, nil), body)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return c.send(req)
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbassist/internal/api"
	"kbassist/internal/httpclient"
)

type fakeDocs struct {
	failOn   string
	calls    []string
	contents []string
	deadline []bool
}

func (f *fakeDocs) UploadDocument(ctx context.Context, req api.UploadRequest, onProgress func(api.UploadProgress)) (*api.Document, error) {
	f.calls = append(f.calls, req.FileName)
	_, hasDeadline := ctx.Deadline()
	f.deadline = append(f.deadline, hasDeadline)
	body, _ := io.ReadAll(req.Reader)
	f.contents = append(f.contents, string(body))
	if req.FileName == f.failOn {
		return nil, errors.New("server said no")
	}
	for _, pct := range []int{30, 60, 100} {
		onProgress(api.UploadProgress{Name: req.FileName, Percent: pct})
	}
	return &api.Document{ID: api.ID(req.FileName), Title: req.FileName, KnowledgeBaseID: req.KBID}, nil
}

func memFile(name, content string) File {
	return File{Name: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}}
}

func TestUpload_ProgressIsMonotonicAndCompletesOnLastFile(t *testing.T) {
	docs := &fakeDocs{}
	u := NewUploader(docs, time.Second, nil)

	var seen []Progress
	res := u.Upload(context.Background(), "1", []File{
		memFile("a.md", "alpha"),
		memFile("b.txt", "beta"),
		memFile("c.pdf", "gamma"),
	}, func(p Progress) { seen = append(seen, p) })

	require.True(t, res.OK(), res.Error)
	assert.Len(t, res.Documents, 3)
	assert.Equal(t, []string{"a.md", "b.txt", "c.pdf"}, docs.calls)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, docs.contents)
	assert.Equal(t, []bool{true, true, true}, docs.deadline)

	require.NotEmpty(t, seen)
	last := 0
	for i, p := range seen {
		assert.GreaterOrEqual(t, p.Overall, last, "step %d", i)
		last = p.Overall
		if i < len(seen)-1 {
			assert.Less(t, p.Overall, 100, "step %d", i)
		}
		assert.Equal(t, 3, p.FileCount)
	}
	assert.Equal(t, 100, seen[len(seen)-1].Overall)
}

func TestUpload_FirstFailureStopsBatch(t *testing.T) {
	docs := &fakeDocs{failOn: "b.txt"}
	u := NewUploader(docs, time.Second, nil)

	var maxOverall int
	res := u.Upload(context.Background(), "1", []File{
		memFile("a.md", "alpha"),
		memFile("b.txt", "beta"),
		memFile("c.pdf", "gamma"),
	}, func(p Progress) { maxOverall = p.Overall })

	assert.False(t, res.OK())
	assert.Equal(t, "b.txt", res.Failed)
	assert.Contains(t, res.Error, "server said no")
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "a.md", res.Documents[0].Title)
	assert.Equal(t, []string{"a.md", "b.txt"}, docs.calls)
	assert.Less(t, maxOverall, 100)
}

func TestUpload_RejectsEmptyInput(t *testing.T) {
	u := NewUploader(&fakeDocs{}, 0, nil)
	assert.Equal(t, DefaultTimeout, u.timeout)

	res := u.Upload(context.Background(), "", []File{memFile("a.md", "x")}, nil)
	assert.Contains(t, res.Error, "knowledge base")

	res = u.Upload(context.Background(), "1", nil, nil)
	assert.Contains(t, res.Error, "no files")
}

func TestUpload_OpenFailureStopsBatch(t *testing.T) {
	docs := &fakeDocs{}
	u := NewUploader(docs, time.Second, nil)

	res := u.Upload(context.Background(), "1", []File{
		FromPath(filepath.Join(t.TempDir(), "missing.md")),
	}, nil)
	assert.Equal(t, "missing.md", res.Failed)
	assert.Contains(t, res.Error, "open file")
	assert.Empty(t, docs.calls)
}

func TestUpload_AgainstServer(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.Equal(t, "/knowledge/documents/upload/", r.URL.Path) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		got = append(got, r.FormValue("kb_id")+":"+r.FormValue("file_type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"status":"success","data":{"id":9,"title":"guide","knowledge_base_id":4}}`)
	}))
	defer srv.Close()

	hc, err := httpclient.New(srv.URL)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("# guide"), 0o600))

	var final Progress
	res := NewUploader(api.NewClient(hc), time.Second, nil).Upload(context.Background(), "4", []File{FromPath(path)}, func(p Progress) { final = p })
	require.True(t, res.OK(), res.Error)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, api.ID("9"), res.Documents[0].ID)
	assert.Equal(t, []string{"4:markdown"}, got)
	assert.Equal(t, 100, final.Overall)
}

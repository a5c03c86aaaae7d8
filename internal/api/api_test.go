package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbassist/internal/httpclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	hc, err := httpclient.New(srv.URL, httpclient.WithAuth("Bearer", func() string { return "tok" }))
	require.NoError(t, err)
	return NewClient(hc)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestID_JSON(t *testing.T) {
	var v struct {
		A ID   `json:"a"`
		B ID   `json:"b"`
		C ID   `json:"c"`
		D []ID `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":5,"b":"0b9f-aa","c":null,"d":[1,"2"]}`), &v))
	assert.Equal(t, ID("5"), v.A)
	assert.Equal(t, ID("0b9f-aa"), v.B)
	assert.True(t, v.C.IsZero())
	assert.Equal(t, []ID{"1", "2"}, v.D)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":5,"b":"0b9f-aa","c":null,"d":[1,2]}`, string(raw))

	n, ok := ID("42").Uint()
	assert.True(t, ok)
	assert.Equal(t, uint(42), n)
	assert.Equal(t, []ID{"1", "3"}, ParseIDs(" 1, ,3"))
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/login/", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"status":"success","token":"jwt","user_id":"7","username":"alice"}`)
	})
	res, err := c.Login(context.Background(), LoginRequest{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "jwt", res.Token)
	assert.Equal(t, ID("7"), res.UserID)
}

func TestLogin_Rejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"status":"error","message":"invalid username or password"}`)
	})
	_, err := c.Login(context.Background(), LoginRequest{Username: "alice", Password: "bad"})
	require.Error(t, err)
	se, ok := httpclient.AsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestRemoteStatusIsErrRemote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"error","message":"quota exceeded"}`)
	})
	_, err := c.SendMessage(context.Background(), SendMessageRequest{SessionID: "1", Content: "hi"})
	require.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestListDocuments_Shapes(t *testing.T) {
	bodies := []string{
		`[{"id":1,"title":"a.md","chunk_count":2}]`,
		`{"results":[{"id":1,"title":"a.md","chunk_count":2}]}`,
		`{"status":"success","data":[{"id":1,"title":"a.md","chunk_count":2}]}`,
	}
	for _, body := range bodies {
		body := body
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "3", r.URL.Query().Get("kb_id"))
			writeJSON(w, http.StatusOK, body)
		})
		docs, err := c.ListDocuments(context.Background(), "3")
		require.NoError(t, err, body)
		require.Len(t, docs, 1)
		assert.Equal(t, ID("1"), docs[0].ID)
		assert.Equal(t, 2, docs[0].ChunkCount)
	}
}

func TestDocumentDetail_FlatOrEnveloped(t *testing.T) {
	for _, body := range []string{
		`{"id":1,"title":"a.md","content":"hello"}`,
		`{"status":"success","data":{"id":1,"title":"a.md","content":"hello"}}`,
	} {
		body := body
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("documentid"))
			writeJSON(w, http.StatusOK, body)
		})
		doc, err := c.DocumentDetail(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, "hello", doc.Content)
	}
}

func TestDeleteKnowledgeBase(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "9", r.URL.Query().Get("knowledge_base_id"))
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeleteKnowledgeBase(context.Background(), "9"))
}

func TestUploadDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "3", r.FormValue("knowledge_base_id"))
		assert.Equal(t, "3", r.FormValue("kb_id"))
		assert.Equal(t, "guide.pdf", r.FormValue("title"))
		assert.Equal(t, "pdf", r.FormValue("file_type"))
		writeJSON(w, http.StatusCreated, `{"status":"success","data":{"id":12,"title":"guide.pdf","status":"pending"}}`)
	})

	var percents []int
	doc, err := c.UploadDocument(context.Background(), UploadRequest{
		KBID:     "3",
		FileName: "guide.pdf",
		Reader:   strings.NewReader("%PDF-1.4"),
	}, func(p UploadProgress) { percents = append(percents, p.Percent) })
	require.NoError(t, err)
	assert.Equal(t, ID("12"), doc.ID)
	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])
}

func TestFileTypeFromName(t *testing.T) {
	cases := map[string]string{
		"a.md": "markdown", "b.MARKDOWN": "markdown", "c.txt": "text", "d.pdf": "pdf",
		"e.doc": "docx", "f.pptx": "pptx", "g.csv": "sheet", "h.xls": "sheet", "i.zip": "file", "noext": "file",
	}
	for name, want := range cases {
		assert.Equal(t, want, FileTypeFromName(name), name)
	}
}

func TestChatEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/sessions/create/":
			var req map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, float64(1), req["kb_id"])
			assert.Equal(t, float64(5), req["user_id"])
			writeJSON(w, http.StatusOK, `{"status":"success","data":{"session_id":11,"title":"t","kb_id":1}}`)
		case "/chat/sessions/list/":
			assert.Equal(t, "5", r.URL.Query().Get("user_id"))
			writeJSON(w, http.StatusOK, `{"status":"success","data":[{"session_id":11},{"session_id":"12"}]}`)
		case "/chat/session/detail/":
			writeJSON(w, http.StatusOK, `{"status":"success","data":{"session_id":11,"kb_ids":[1,2],"messages":[{"id":1,"sender":"user","content":"hi"}]}}`)
		case "/chat/messages/send/":
			var req map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "user", req["sender"])
			assert.Equal(t, []interface{}{float64(1), float64(2)}, req["kb_ids"])
			writeJSON(w, http.StatusOK, `{"status":"success","answer":"X is Y","sources":[{"title":"doc1","snippet":"s","score":0.9}]}`)
		case "/chat/sessions/delete/":
			writeJSON(w, http.StatusOK, `{"status":"success","code":0,"message":"ok"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	s, err := c.CreateSession(ctx, CreateSessionRequest{UserID: "5", AIType: 1, KBID: "1", Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, ID("11"), s.SessionID)

	list, err := c.ListSessions(ctx, "5")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, ID("12"), list[1].SessionID)

	detail, err := c.SessionDetail(ctx, "11")
	require.NoError(t, err)
	assert.Equal(t, []ID{"1", "2"}, detail.KBIDs)
	require.Len(t, detail.Messages, 1)

	res, err := c.SendMessage(ctx, SendMessageRequest{SessionID: "11", UserID: "5", Content: "What is X?", KBID: "1", KBIDs: []ID{"1", "2"}})
	require.NoError(t, err)
	assert.Equal(t, "X is Y", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, 0.9, res.Sources[0].Score)

	require.NoError(t, c.DeleteSession(ctx, "11", "5"))
}

func TestAccountManagement(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch r.URL.Path {
		case "/accounts/update/":
			assert.Equal(t, map[string]interface{}{"email": ""}, req)
			writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":7,"username":"alice","email":""}}`)
		case "/accounts/password/update/":
			assert.Equal(t, "password1", req["old_password"])
			writeJSON(w, http.StatusOK, `{"status":"success","message":"password updated","new_token":"jwt2","user_id":7}`)
		case "/accounts/delete/":
			writeJSON(w, http.StatusOK, `{"status":"success","message":"account deleted"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	empty := ""
	acc, err := c.UpdateAccount(ctx, UpdateAccountRequest{Email: &empty})
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Username)

	res, err := c.ChangePassword(ctx, ChangePasswordRequest{OldPassword: "password1", NewPassword: "password2"})
	require.NoError(t, err)
	assert.Equal(t, "jwt2", res.Token)
	assert.Equal(t, ID("7"), res.UserID)

	require.NoError(t, c.DeleteAccount(ctx))
}

func TestChunksAndTagSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/knowledge/markdown/detail/":
			assert.Equal(t, "40", r.URL.Query().Get("markdownid"))
			writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":40,"document_id":3,"ord":2,"tag":"Install","content":"run it","word_count":6}}`)
		case "/knowledge/markdown/detail-by-document/":
			assert.Equal(t, "3", r.URL.Query().Get("documentid"))
			assert.Equal(t, "0", r.URL.Query().Get("number"))
			writeJSON(w, http.StatusOK, `{"status":"success","data":{"id":38,"document_id":3,"ord":0}}`)
		case "/knowledge/tag/search/":
			var req map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "setup", req["query"])
			writeJSON(w, http.StatusOK, `{"status":"success","query":"setup","matched_tags":["Install"],"chunks":[{"id":40,"tag":"Install"}],"message":"1 chunks matched"}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	chunk, err := c.ChunkDetail(ctx, "40")
	require.NoError(t, err)
	assert.Equal(t, "Install", chunk.Tag)
	assert.Equal(t, 6, chunk.WordCount)

	chunk, err = c.ChunkByDocument(ctx, "3", 0)
	require.NoError(t, err)
	assert.Equal(t, ID("38"), chunk.ID)

	found, err := c.TagSearch(ctx, TagSearchRequest{Query: "setup"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Install"}, found.MatchedTags)
	require.Len(t, found.Chunks, 1)
	assert.Equal(t, ID("40"), found.Chunks[0].ID)
}

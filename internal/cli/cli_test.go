package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kbassist/internal/api"
	"kbassist/internal/config"
	"kbassist/internal/credentials"
)

func newTestEnv(t *testing.T, mux *http.ServeMux) (*Env, *bytes.Buffer) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	env, err := NewEnv(config.ClientConfig{
		BaseURL:             srv.URL,
		AuthScheme:          "Bearer",
		CredentialsFile:     filepath.Join(t.TempDir(), "credentials.json"),
		TimeoutSeconds:      5,
		UploadTimeoutSecond: 5,
		PollIntervalSeconds: 1,
	}, zap.NewNop())
	require.NoError(t, err)

	out := &bytes.Buffer{}
	env.Out = out
	env.In = strings.NewReader("")
	env.Plain = true
	env.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return env, out
}

func signedIn(env *Env) {
	env.Auth.Set("tok", "7", "alice")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin_SavesCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		var body api.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body.Username)
		assert.Equal(t, "password1", body.Password)
		writeJSON(w, map[string]interface{}{"status": "success", "token": "tok", "user_id": 7, "username": "alice"})
	})
	env, out := newTestEnv(t, mux)

	require.NoError(t, Execute(context.Background(), env, []string{"login", "-u", "alice", "-p", "password1"}))
	assert.Contains(t, out.String(), "signed in as alice (user 7)")

	saved, err := env.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", saved.Token())
	assert.Equal(t, api.ID("7"), saved.UserID())

	require.NoError(t, Execute(context.Background(), env, []string{"logout"}))
	_, err = os.Stat(env.Store.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.ErrorIs(t, env.Auth.Validate(), credentials.ErrNotAuthenticated)
}

func TestLogin_PromptsForMissingFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		var body api.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob", body.Username)
		assert.Equal(t, "secret123", body.Password)
		writeJSON(w, map[string]interface{}{"status": "success", "token": "t2", "user_id": "9"})
	})
	env, out := newTestEnv(t, mux)
	env.In = strings.NewReader("bob\nsecret123\n")

	require.NoError(t, Execute(context.Background(), env, []string{"login"}))
	assert.Contains(t, out.String(), "username: ")
	assert.Contains(t, out.String(), "signed in as bob")
}

func TestCommandsRequireLogin(t *testing.T) {
	env, out := newTestEnv(t, http.NewServeMux())

	for _, args := range [][]string{{"whoami"}, {"kb", "list"}, {"chat", "sessions"}, {"docs", "list", "--kb", "1"}} {
		out.Reset()
		err := Execute(context.Background(), env, args)
		assert.ErrorIs(t, err, credentials.ErrNotAuthenticated, "%v", args)
		assert.Contains(t, out.String(), "error:")
	}
}

func TestKBList_SendsTokenAndUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/knowledge/list/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "7", r.URL.Query().Get("userid"))
		writeJSON(w, []map[string]interface{}{
			{"id": 1, "name": "Manuals", "document_count": 3, "storage_size": 2048},
			{"id": 2, "name": "Release Notes"},
		})
	})
	env, out := newTestEnv(t, mux)
	signedIn(env)

	require.NoError(t, Execute(context.Background(), env, []string{"kb", "list"}))
	assert.Contains(t, out.String(), "Manuals")
	assert.Contains(t, out.String(), "2.0 KB")
	assert.Contains(t, out.String(), "Release Notes")
}

func TestUnauthorizedResponseIsExplained(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/knowledge/list/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]interface{}{"status": "error", "message": "invalid token"})
	})
	env, out := newTestEnv(t, mux)
	signedIn(env)

	require.Error(t, Execute(context.Background(), env, []string{"kb", "list"}))
	assert.Contains(t, out.String(), "log in again")
}

func chatBackend(t *testing.T, created *api.CreateSessionRequest, sent *api.SendMessageRequest) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/knowledge/list/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]interface{}{{"id": 1, "name": "Manuals"}, {"id": 2, "name": "FAQ"}})
	})
	mux.HandleFunc("/chat/sessions/create/", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(created))
		writeJSON(w, map[string]interface{}{"status": "success", "data": map[string]interface{}{
			"session_id": 11, "title": created.Title, "kb_id": 1, "kb_ids": created.KBIDs,
		}})
	})
	mux.HandleFunc("/chat/messages/send/", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(sent))
		writeJSON(w, map[string]interface{}{
			"status": "success",
			"answer": "X is a widget.",
			"sources": []map[string]interface{}{
				{"title": "doc1", "snippet": "X is a widget used for ...", "score": 0.91},
			},
		})
	})
	return mux
}

func TestChatAsk_OpensSessionAndPrintsSources(t *testing.T) {
	var created api.CreateSessionRequest
	var sent api.SendMessageRequest
	env, out := newTestEnv(t, chatBackend(t, &created, &sent))
	signedIn(env)

	require.NoError(t, Execute(context.Background(), env, []string{"chat", "ask", "--kb", "1", "What", "is", "X?"}))

	assert.Equal(t, "与Manuals的对话", created.Title)
	assert.Equal(t, []api.ID{"1"}, created.KBIDs)
	assert.Equal(t, api.ID("11"), sent.SessionID)
	assert.Equal(t, "What is X?", sent.Content)
	assert.Equal(t, "user", sent.Sender)
	assert.Equal(t, api.ID("1"), sent.KBID)

	text := out.String()
	assert.Contains(t, text, "X is a widget.")
	assert.Contains(t, text, "[1] doc1 (0.91)")
}

func TestChatAsk_AllKnowledgeBasesByDefault(t *testing.T) {
	var created api.CreateSessionRequest
	var sent api.SendMessageRequest
	env, _ := newTestEnv(t, chatBackend(t, &created, &sent))
	signedIn(env)

	require.NoError(t, Execute(context.Background(), env, []string{"chat", "ask", "hello"}))
	assert.Equal(t, []api.ID{"1", "2"}, created.KBIDs)
	assert.Equal(t, []api.ID{"1", "2"}, sent.KBIDs)
}

func TestChatAsk_EmptyQuestionIsRejectedLocally(t *testing.T) {
	var created api.CreateSessionRequest
	var sent api.SendMessageRequest
	env, out := newTestEnv(t, chatBackend(t, &created, &sent))
	signedIn(env)

	err := Execute(context.Background(), env, []string{"chat", "ask", "--kb", "1", "   "})
	require.Error(t, err)
	assert.Contains(t, out.String(), "empty")
	assert.Empty(t, sent.Content)
}

func TestChatStart_InteractiveLoop(t *testing.T) {
	var created api.CreateSessionRequest
	var sent api.SendMessageRequest
	env, out := newTestEnv(t, chatBackend(t, &created, &sent))
	signedIn(env)
	env.In = strings.NewReader("What is X?\n/bogus\n/quit\nnever sent\n")

	require.NoError(t, Execute(context.Background(), env, []string{"chat", "start", "--kb", "1"}))
	text := out.String()
	assert.Contains(t, text, "与Manuals的对话")
	assert.Contains(t, text, "X is a widget.")
	assert.Contains(t, text, "unknown command /bogus")
	assert.Equal(t, "What is X?", sent.Content)
}

func TestChatSessions_FiltersAndFormats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/sessions/list/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("user_id"))
		writeJSON(w, map[string]interface{}{"status": "success", "data": []map[string]interface{}{
			{"session_id": 1, "title": "Release plan", "chat_count": 4, "update_at": "2026-03-10T11:55:00Z"},
			{"session_id": 2, "title": "与Manuals的对话", "chat_count": 2, "create_at": "2026-03-01T08:00:00Z"},
		}})
	})
	env, out := newTestEnv(t, mux)
	signedIn(env)

	require.NoError(t, Execute(context.Background(), env, []string{"chat", "sessions"}))
	assert.Contains(t, out.String(), "5 minutes ago")
	assert.Contains(t, out.String(), "03-01 08:00")

	out.Reset()
	require.NoError(t, Execute(context.Background(), env, []string{"chat", "sessions", "--search", "release"}))
	assert.Contains(t, out.String(), "Release plan")
	assert.NotContains(t, out.String(), "Manuals")
}

func TestDocsUpload_ReportsProgressAndStopsOnFailure(t *testing.T) {
	var uploaded []string
	mux := http.NewServeMux()
	mux.HandleFunc("/knowledge/documents/upload/", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		_, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		if header.Filename == "bad.txt" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]interface{}{"status": "error", "message": "unsupported file"})
			return
		}
		uploaded = append(uploaded, header.Filename)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]interface{}{"status": "success", "data": map[string]interface{}{"id": len(uploaded), "title": header.Filename}})
	})
	env, out := newTestEnv(t, mux)
	signedIn(env)

	dir := t.TempDir()
	write := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("content of "+name), 0o600))
		return p
	}
	good, bad, after := write("a.md"), write("bad.txt"), write("c.md")

	err := Execute(context.Background(), env, []string{"docs", "upload", "--kb", "1", good, bad, after})
	require.Error(t, err)
	assert.Equal(t, []string{"a.md"}, uploaded)
	text := out.String()
	assert.Contains(t, text, "uploaded a.md (1)")
	assert.Contains(t, text, "unsupported file")
	assert.NotContains(t, text, "[100%]")
}

func TestDocsShow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/knowledge/documents/detail/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "uid-1", r.URL.Query().Get("documentid"))
		writeJSON(w, map[string]interface{}{"status": "success", "data": map[string]interface{}{
			"id": 3, "title": "Guide", "file_type": "markdown", "chunk_count": 2, "status": "ready", "content": "# Guide\nhello",
		}})
	})
	env, out := newTestEnv(t, mux)
	signedIn(env)

	require.NoError(t, Execute(context.Background(), env, []string{"docs", "show", "uid-1"}))
	assert.Contains(t, out.String(), "Guide")
	assert.Contains(t, out.String(), "2 chunks")
	assert.Contains(t, out.String(), "hello")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "3.0 MB", formatBytes(3<<20))
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n b\t c", 10))
	assert.Equal(t, "abc…", oneLine("abcdef", 3))
}

func TestAccountPassword_SavesNewToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/password/update/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body api.ChangePasswordRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "password1", body.OldPassword)
		assert.Equal(t, "password2", body.NewPassword)
		writeJSON(w, map[string]interface{}{"status": "success", "token": "tok2", "new_token": "tok2", "user_id": 7})
	})
	env, out := newTestEnv(t, mux)
	signedIn(env)
	env.In = strings.NewReader("password1\npassword2\n")

	require.NoError(t, Execute(context.Background(), env, []string{"account", "password"}))
	assert.Contains(t, out.String(), "current password: ")
	assert.Contains(t, out.String(), "password updated")

	saved, err := env.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok2", saved.Token())
	assert.Equal(t, "alice", saved.Username())
}

func TestAccountUpdateAndDelete(t *testing.T) {
	var deleted bool
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/update/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"username": "alicia"}, body)
		writeJSON(w, map[string]interface{}{"status": "success", "data": map[string]interface{}{"id": 7, "username": "alicia"}})
	})
	mux.HandleFunc("/accounts/delete/", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		writeJSON(w, map[string]interface{}{"status": "success", "message": "account deleted"})
	})
	env, out := newTestEnv(t, mux)
	signedIn(env)

	require.Error(t, Execute(context.Background(), env, []string{"account", "update"}))

	require.NoError(t, Execute(context.Background(), env, []string{"account", "update", "-u", "alicia"}))
	assert.Contains(t, out.String(), "updated account alicia")
	assert.Equal(t, "alicia", env.Auth.Username())

	err := Execute(context.Background(), env, []string{"account", "delete"})
	require.Error(t, err)
	assert.False(t, deleted)

	require.NoError(t, Execute(context.Background(), env, []string{"account", "delete", "--yes"}))
	assert.True(t, deleted)
	assert.ErrorIs(t, env.Auth.Validate(), credentials.ErrNotAuthenticated)
}

func TestDocsChunkAndSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/knowledge/markdown/detail-by-document/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("documentid"))
		assert.Equal(t, "1", r.URL.Query().Get("number"))
		writeJSON(w, map[string]interface{}{"status": "success", "data": map[string]interface{}{
			"id": 40, "document_id": 3, "ord": 1, "tag": "Install", "content": "run the installer", "word_count": 17,
		}})
	})
	mux.HandleFunc("/knowledge/tag/search/", func(w http.ResponseWriter, r *http.Request) {
		var body api.TagSearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "install steps", body.Query)
		assert.Equal(t, []api.ID{"1", "2"}, body.KBIDs)
		writeJSON(w, map[string]interface{}{
			"status": "success", "query": body.Query, "matched_tags": []string{"Install"},
			"chunks":  []map[string]interface{}{{"id": 40, "document_id": 3, "ord": 1, "tag": "Install", "content": "run the installer"}},
			"message": "1 chunks matched",
		})
	})
	env, out := newTestEnv(t, mux)
	signedIn(env)

	require.NoError(t, Execute(context.Background(), env, []string{"docs", "chunk", "3", "--ord", "1"}))
	assert.Contains(t, out.String(), "Install")
	assert.Contains(t, out.String(), "17 characters")
	assert.Contains(t, out.String(), "run the installer")

	out.Reset()
	require.NoError(t, Execute(context.Background(), env, []string{"search", "install", "steps", "--kb", "1,2"}))
	assert.Contains(t, out.String(), "3/1")
	assert.Contains(t, out.String(), "1 chunks matched")
}

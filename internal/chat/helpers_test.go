package chat

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbassist/internal/api"
)

func TestValidateMessage(t *testing.T) {
	assert.Nil(t, ValidateMessage("hello"))
	assert.Nil(t, ValidateMessage(strings.Repeat("a", MaxMessageChars)))
	assert.Nil(t, ValidateMessage(strings.Repeat("知", MaxMessageChars)))

	for _, bad := range []string{"", " ", "\n\t ", strings.Repeat("a", MaxMessageChars+1)} {
		err := ValidateMessage(bad)
		require.NotNil(t, err, "%q", bad)
		assert.Equal(t, KindValidation, err.Kind)
	}
	assert.Contains(t, ValidateMessage(strings.Repeat("a", MaxMessageChars+1)).Error(), "4000")
	assert.Contains(t, ValidateMessage("").Error(), "empty")
}

func TestExtractKnowledgeRefs_DedupByTitle(t *testing.T) {
	sources := []api.Source{
		{Title: "doc1", Snippet: "first", Score: 0.9, Source: "documents/5/0b9fa2c4-aaaa-bbbb-cccc-0123456789ab.pdf"},
		{Title: "doc2", DocumentID: "44"},
		{Title: "doc1", Snippet: "second"},
		{Name: "named", DocID: "x1"},
		{KBID: "3"},
		{Title: "doc2", ID: "99"},
	}
	refs := ExtractKnowledgeRefs(sources)
	require.Len(t, refs, 4)

	assert.Equal(t, "doc1", refs[0].Name)
	assert.Equal(t, "first", refs[0].Snippet)
	assert.Equal(t, 0.9, refs[0].Score)
	assert.Equal(t, "0b9fa2c4-aaaa-bbbb-cccc-0123456789ab", refs[0].ID)

	assert.Equal(t, "doc2", refs[1].Name)
	assert.Equal(t, "44", refs[1].ID)

	assert.Equal(t, "named", refs[2].Name)
	assert.Equal(t, "x1", refs[2].ID)

	assert.Equal(t, "Document 5", refs[3].Name)
	assert.Equal(t, "3", refs[3].ID)
	assert.Equal(t, api.ID("3"), refs[3].KBID)

	assert.Empty(t, ExtractKnowledgeRefs(nil))
}

func TestExtractKnowledgeRefs_IDFieldPrecedence(t *testing.T) {
	refs := ExtractKnowledgeRefs([]api.Source{{Title: "t", Source: "uploads/a.pdf", ID: "1", DocumentID: "2", DocID: "3", KBID: "4"}})
	require.Len(t, refs, 1)
	assert.Equal(t, "1", refs[0].ID)
}

func TestMessageSources(t *testing.T) {
	sourcesJSON := `[{"title":"doc1","snippet":"s"}]`
	metaObject := json.RawMessage(`{"sources":` + sourcesJSON + `}`)
	metaString, err := json.Marshal(string(metaObject))
	require.NoError(t, err)

	cases := []struct {
		name string
		msg  api.Message
		ok   bool
	}{
		{"tagged metadata", api.Message{SourcesFormat: SourcesFormatMetadata, Metadata: metaObject}, true},
		{"tagged sources", api.Message{SourcesFormat: SourcesFormatSources, Sources: json.RawMessage(sourcesJSON)}, true},
		{"tagged metadata string", api.Message{SourcesFormat: SourcesFormatMetadataString, Metadata: metaString}, true},
		{"tagged none", api.Message{SourcesFormat: SourcesFormatNone, Metadata: metaObject}, false},
		{"legacy metadata object", api.Message{Metadata: metaObject}, true},
		{"legacy raw sources", api.Message{Sources: json.RawMessage(sourcesJSON)}, true},
		{"legacy metadata string", api.Message{Metadata: metaString}, true},
		{"unparsable metadata string", api.Message{Metadata: json.RawMessage(`"{not json"`)}, false},
		{"nothing", api.Message{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := messageSources(tc.msg)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Len(t, got, 1)
				assert.Equal(t, "doc1", got[0].Title)
			}
		})
	}
}

func TestMessageSources_LegacyFirstMatchWins(t *testing.T) {
	msg := api.Message{
		Metadata: json.RawMessage(`{"sources":[{"title":"from-metadata"}]}`),
		Sources:  json.RawMessage(`[{"title":"from-sources"}]`),
	}
	got, ok := messageSources(msg)
	require.True(t, ok)
	assert.Equal(t, "from-metadata", got[0].Title)
}

func TestOrdered_InterleavesByPair(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "u1", Role: RoleUser, Time: base, Index: 0},
		{ID: "u2", Role: RoleUser, Time: base.Add(time.Second), Index: 1},
		{ID: "a1", Role: RoleAssistant, Time: base.Add(2 * time.Second), Index: 2},
		{ID: "a2", Role: RoleAssistant, Time: base.Add(3 * time.Second), Index: 3},
		{ID: "u3", Role: RoleUser, Index: 4},
	}
	var ids []string
	for _, m := range Ordered(msgs) {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"u1", "a1", "u2", "a2", "u3"}, ids)
}

func TestOrdered_IndexFallbackOnEqualTimes(t *testing.T) {
	ts := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "a", Role: RoleAssistant, Time: ts, Index: 1},
		{ID: "u", Role: RoleUser, Time: ts, Index: 0},
	}
	got := Ordered(msgs)
	assert.Equal(t, "u", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestBuildMessages(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	n := 0
	newID := func() string { n++; return "gen" }
	msgs := buildMessages([]api.Message{
		{Sender: "user", Content: "q"},
		{ID: "2", Sender: "ai", Content: "a", CreateAt: "2026-01-01 09:00:00", Sources: json.RawMessage(`[{"title":"doc"}]`)},
		{ID: "3", Sender: "system", Content: "note"},
	}, now, newID)

	require.Len(t, msgs, 3)
	assert.Equal(t, "gen", msgs[0].ID)
	assert.Equal(t, 1, n)
	assert.Equal(t, now, msgs[0].Time)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, 2026, msgs[1].Time.Year())
	require.Len(t, msgs[1].KBRefs, 1)
	assert.Equal(t, RoleAssistant, msgs[2].Role)
	assert.Equal(t, 2, msgs[2].Index)
}

func TestHistoryHelpers(t *testing.T) {
	sessions := []api.Session{
		{SessionID: "1", Title: "Release Notes", CreateAt: "2026-01-01T00:00:00Z"},
		{SessionID: "2", Title: "与Manuals的对话", CreateAt: "2026-01-01T00:00:00Z", UpdateAt: "2026-01-05T00:00:00Z"},
		{SessionID: "3", Title: "release plan", CreateAt: "2026-01-03T00:00:00Z"},
	}

	assert.Len(t, FilterByTitle(sessions, "RELEASE"), 2)
	assert.Len(t, FilterByTitle(sessions, "  "), 3)
	assert.Len(t, FilterByTitle(sessions, "manuals"), 1)

	s, ok := FindSession(sessions, "3")
	require.True(t, ok)
	assert.Equal(t, "release plan", s.Title)
	_, ok = FindSession(sessions, "9")
	assert.False(t, ok)

	recent := RecentSessions(sessions, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, api.ID("2"), recent[0].SessionID)
	assert.Equal(t, api.ID("3"), recent[1].SessionID)
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", FormatRelative(now.Add(-10*time.Second), now))
	assert.Equal(t, "5 minutes ago", FormatRelative(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3 hours ago", FormatRelative(now.Add(-3*time.Hour), now))
	assert.Equal(t, "03-01 08:30", FormatRelative(time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), now))
	assert.Equal(t, "2025-12-31 23:00", FormatRelative(time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC), now))
}

func TestSessionTitle(t *testing.T) {
	assert.Equal(t, "与Manuals的对话", SessionTitle("Manuals"))
}

package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"kbassist/internal/api"
)

// FilterByTitle keeps sessions whose title contains query, ignoring case. A blank
// query keeps everything.
func FilterByTitle(sessions []api.Session, query string) []api.Session {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return sessions
	}
	var out []api.Session
	for _, s := range sessions {
		if strings.Contains(strings.ToLower(s.Title), query) {
			out = append(out, s)
		}
	}
	return out
}

func FindSession(sessions []api.Session, id api.ID) (api.Session, bool) {
	for _, s := range sessions {
		if s.SessionID == id {
			return s, true
		}
	}
	return api.Session{}, false
}

// RecentSessions orders by update_at, falling back to create_at, newest first.
func RecentSessions(sessions []api.Session, limit int) []api.Session {
	out := append([]api.Session(nil), sessions...)
	sort.SliceStable(out, func(i, j int) bool {
		return activityTime(out[i]).After(activityTime(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func activityTime(s api.Session) time.Time {
	if t, ok := api.ParseTime(s.UpdateAt); ok {
		return t
	}
	t, _ := api.ParseTime(s.CreateAt)
	return t
}

// FormatRelative renders t relative to now for session lists.
func FormatRelative(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff/time.Hour))
	case t.Year() == now.Year():
		return t.Format("01-02 15:04")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

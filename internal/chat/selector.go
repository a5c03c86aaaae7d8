package chat

import (
	"context"
	"sync"

	"kbassist/internal/api"
)

// Selector tracks the knowledge bases picked for a conversation.
type Selector struct {
	coord *Coordinator

	mu       sync.Mutex
	selected []api.KnowledgeBase
	database string
}

func NewSelector(coord *Coordinator) *Selector {
	return &Selector{coord: coord}
}

// Toggle adds kb, or removes it when already selected.
func (s *Selector) Toggle(kb api.KnowledgeBase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.selected {
		if existing.ID == kb.ID {
			s.selected = append(s.selected[:i:i], s.selected[i+1:]...)
			return
		}
	}
	s.selected = append(s.selected, kb)
}

func (s *Selector) Replace(kbs []api.KnowledgeBase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = append([]api.KnowledgeBase(nil), kbs...)
}

func (s *Selector) Clear() {
	s.Replace(nil)
}

func (s *Selector) Selected() []api.KnowledgeBase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.KnowledgeBase(nil), s.selected...)
}

func (s *Selector) IDs() []api.ID {
	return knowledgeBaseIDs(s.Selected())
}

func (s *Selector) Names() []string {
	selected := s.Selected()
	names := make([]string, 0, len(selected))
	for _, kb := range selected {
		names = append(names, kb.Name)
	}
	return names
}

// Database is the auxiliary store choice passed with the last Confirm.
func (s *Selector) Database() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.database
}

// Confirm applies the final selection. Without a current session it opens one on
// the first knowledge base; otherwise it rebinds the current session locally.
// It reports whether the selection took effect.
func (s *Selector) Confirm(ctx context.Context, kbs []api.KnowledgeBase, database string) bool {
	s.mu.Lock()
	s.selected = append([]api.KnowledgeBase(nil), kbs...)
	s.database = database
	s.mu.Unlock()

	if s.coord.Snapshot().Current == nil {
		title := defaultSessionTitle
		if len(kbs) > 0 {
			title = SessionTitle(kbs[0].Name)
		}
		return s.coord.CreateSessionWithKB(ctx, kbs, title) != nil
	}
	s.coord.UpdateSessionKBs(kbs)
	return true
}

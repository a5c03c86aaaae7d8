package chat

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"kbassist/internal/api"
	"kbassist/internal/credentials"
)

const defaultSessionTitle = "新对话"

// API is the slice of the backend the coordinator talks to.
type API interface {
	ListSessions(ctx context.Context, userID api.ID) ([]api.Session, error)
	CreateSession(ctx context.Context, req api.CreateSessionRequest) (*api.Session, error)
	SessionDetail(ctx context.Context, sessionID api.ID) (*api.SessionDetail, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (*api.SendMessageResult, error)
	DeleteSession(ctx context.Context, sessionID, userID api.ID) error
	RenameSession(ctx context.Context, sessionID, userID api.ID, title string) (*api.Session, error)
}

// State is a point-in-time view of the coordinator.
type State struct {
	Sessions     []api.Session
	Current      *api.Session
	Messages     []Message
	CurrentKBIDs []api.ID

	LoadingSessions bool
	Selecting       bool
	Creating        bool
	Sending         bool
	Err             *Error
}

func (s State) clone() State {
	out := s
	out.Sessions = make([]api.Session, len(s.Sessions))
	for i, sess := range s.Sessions {
		out.Sessions[i] = cloneSession(sess)
	}
	if s.Current != nil {
		cur := cloneSession(*s.Current)
		out.Current = &cur
	}
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.clone()
	}
	out.CurrentKBIDs = append([]api.ID(nil), s.CurrentKBIDs...)
	return out
}

func cloneSession(s api.Session) api.Session {
	s.KBIDs = append([]api.ID(nil), s.KBIDs...)
	return s
}

// mutation is a reversible change to State. Both halves run under the state lock.
type mutation struct {
	apply  func(*State)
	revert func(*State)
}

// Coordinator owns chat session state and mediates every chat call to the backend.
// It is safe for concurrent use; the lock is never held across a network call.
// Operations report failures through the error slot instead of returning them.
type Coordinator struct {
	api    API
	auth   *credentials.AuthContext
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu              sync.Mutex
	state           State
	loadingSessions bool
	selectedID      api.ID
	selectingID     api.ID
	// navSeq orders create/select requests; only the latest one may apply.
	navSeq uint64
	// generation changes whenever the current session is replaced or cleared.
	generation uint64
	listeners  []func(State)
}

// NewCoordinator fails when auth does not carry a token and user id.
func NewCoordinator(client API, auth *credentials.AuthContext, logger *zap.Logger) (*Coordinator, error) {
	if err := auth.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		api:    client,
		auth:   auth,
		logger: logger,
		now:    time.Now,
		newID:  GenerateMessageID,
	}, nil
}

// OnChange registers fn to receive a snapshot after every state change.
func (c *Coordinator) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// update runs fn under the lock and notifies listeners afterwards.
func (c *Coordinator) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snap := c.state.clone()
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (c *Coordinator) fail(e *Error) {
	c.logger.Debug("chat action failed", zap.String("kind", e.Kind.String()), zap.Error(e))
	c.update(func(s *State) { s.Err = e })
}

func (c *Coordinator) ClearError() {
	c.update(func(s *State) { s.Err = nil })
}

// LoadSessions fetches the user's sessions. A call made while another load is in
// flight returns immediately.
func (c *Coordinator) LoadSessions(ctx context.Context) {
	c.mu.Lock()
	if c.loadingSessions {
		c.mu.Unlock()
		return
	}
	c.loadingSessions = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loadingSessions = false
		c.mu.Unlock()
	}()

	c.update(func(s *State) {
		s.LoadingSessions = true
		s.Err = nil
	})

	sessions, err := c.api.ListSessions(ctx, c.auth.UserID())
	c.update(func(s *State) {
		s.LoadingSessions = false
		if err != nil {
			s.Sessions = nil
			s.Err = classify("failed to load sessions", err)
			return
		}
		s.Sessions = sessions
	})
}

// CreateSessionWithKB opens a session on the first of kbs and makes all of kbs the
// current knowledge base context. It returns nil on failure.
func (c *Coordinator) CreateSessionWithKB(ctx context.Context, kbs []api.KnowledgeBase, title string) *api.Session {
	if len(kbs) == 0 {
		c.fail(validationError("select at least one knowledge base to start a conversation"))
		return nil
	}
	if strings.TrimSpace(title) == "" {
		title = defaultSessionTitle
	}
	kbIDs := knowledgeBaseIDs(kbs)

	seq := c.nextNavSeq()
	c.update(func(s *State) {
		s.Creating = true
		s.Err = nil
	})

	created, err := c.api.CreateSession(ctx, api.CreateSessionRequest{
		UserID: c.auth.UserID(),
		AIType: 1,
		KBID:   kbs[0].ID,
		KBIDs:  kbIDs,
		Title:  title,
	})
	if err != nil {
		c.update(func(s *State) {
			s.Creating = false
			s.Err = classify("failed to create session", err)
		})
		return nil
	}

	session := cloneSession(*created)
	session.KBIDs = kbIDs
	c.update(func(s *State) {
		s.Creating = false
		s.Sessions = append([]api.Session{cloneSession(session)}, s.Sessions...)
		if seq != c.navSeq {
			return
		}
		c.selectedID = session.SessionID
		c.selectingID = ""
		c.generation++
		s.Selecting = false
		cur := cloneSession(session)
		s.Current = &cur
		s.Messages = []Message{}
		s.CurrentKBIDs = append([]api.ID(nil), kbIDs...)
	})
	return &session
}

// SelectSession loads a session's messages and makes it current. Selecting the
// session that is already current, or already being fetched, does nothing.
func (c *Coordinator) SelectSession(ctx context.Context, id api.ID) {
	c.mu.Lock()
	if id == c.selectedID || id == c.selectingID {
		c.mu.Unlock()
		return
	}
	c.navSeq++
	seq := c.navSeq
	c.selectingID = id
	c.mu.Unlock()

	c.update(func(s *State) {
		s.Selecting = true
		s.Err = nil
	})

	detail, err := c.api.SessionDetail(ctx, id)

	var (
		session  api.Session
		kbIDs    []api.ID
		messages []Message
	)
	if err == nil {
		session = cloneSession(detail.Session)
		if session.SessionID.IsZero() {
			session.SessionID = id
		}
		kbIDs = session.KBIDs
		if len(kbIDs) == 0 && !session.KBID.IsZero() {
			kbIDs = []api.ID{session.KBID}
		}
		messages = buildMessages(detail.Messages, c.now(), c.newID)
	}

	stale := false
	c.update(func(s *State) {
		if c.selectingID == id {
			c.selectingID = ""
		}
		s.Selecting = !c.selectingID.IsZero()
		if seq != c.navSeq {
			stale = true
			return
		}
		if err != nil {
			s.Err = classify("failed to load session", err)
			return
		}
		// only a successful fetch replaces the current session
		c.selectedID = id
		c.generation++
		s.Current = &session
		s.CurrentKBIDs = append([]api.ID(nil), kbIDs...)
		s.Messages = messages
	})
	if stale {
		c.logger.Debug("discarding stale session detail", zap.String("session_id", id.String()))
	}
}

// SendMessage appends the user's message straight away, then asks the backend for
// an answer. On failure the optimistic message is taken back out.
func (c *Coordinator) SendMessage(ctx context.Context, content string) bool {
	if verr := ValidateMessage(content); verr != nil {
		c.fail(verr)
		return false
	}

	c.mu.Lock()
	current := c.state.Current
	var sessionID api.ID
	if current != nil {
		sessionID = current.SessionID
	}
	kbIDs := append([]api.ID(nil), c.state.CurrentKBIDs...)
	gen := c.generation
	c.mu.Unlock()

	if sessionID.IsZero() {
		c.fail(validationError("select knowledge bases to start a conversation first"))
		return false
	}
	if len(kbIDs) == 0 {
		c.fail(validationError("select at least one knowledge base first"))
		return false
	}

	userMsg := Message{
		ID:      c.newID(),
		Role:    RoleUser,
		Content: content,
		Time:    c.now(),
	}
	optimistic := appendMessage(userMsg)
	c.update(func(s *State) {
		s.Sending = true
		s.Err = nil
		optimistic.apply(s)
	})

	res, err := c.api.SendMessage(ctx, api.SendMessageRequest{
		SessionID: sessionID,
		UserID:    c.auth.UserID(),
		Sender:    senderUser,
		Content:   content,
		KBID:      kbIDs[0],
		KBIDs:     kbIDs,
	})
	if err != nil {
		c.update(func(s *State) {
			s.Sending = false
			optimistic.revert(s)
			s.Err = classify("failed to send message", err)
		})
		return false
	}

	now := c.now()
	c.update(func(s *State) {
		s.Sending = false
		touchSession(s.Sessions, sessionID, content, now)
		if gen != c.generation {
			return
		}
		assistant := Message{
			ID:         c.newID(),
			Role:       RoleAssistant,
			Content:    res.Answer,
			Time:       now,
			RawSources: res.Sources,
			KBIDs:      kbIDs,
		}
		if res.Sources != nil {
			assistant.KBRefs = ExtractKnowledgeRefs(res.Sources)
		}
		appendMessage(assistant).apply(s)
		if s.Current != nil && s.Current.SessionID == sessionID {
			s.Current.ChatCount += 2
			s.Current.LastMessage = content
			s.Current.UpdateAt = now.Format(time.RFC3339)
		}
	})
	return true
}

// DeleteSession removes a session. Deleting the current one clears the
// conversation and the knowledge base context.
func (c *Coordinator) DeleteSession(ctx context.Context, id api.ID) bool {
	c.update(func(s *State) { s.Err = nil })

	if err := c.api.DeleteSession(ctx, id, c.auth.UserID()); err != nil {
		c.fail(classify("failed to delete session", err))
		return false
	}

	c.update(func(s *State) {
		wasCurrent := s.Current != nil && s.Current.SessionID == id
		if wasCurrent {
			c.generation++
			c.selectedID = ""
		}
		if c.selectingID == id {
			c.navSeq++
			c.selectingID = ""
			s.Selecting = false
		}
		kept := s.Sessions[:0:0]
		for _, sess := range s.Sessions {
			if sess.SessionID != id {
				kept = append(kept, sess)
			}
		}
		s.Sessions = kept
		if wasCurrent {
			s.Current = nil
			s.Messages = []Message{}
			s.CurrentKBIDs = nil
		}
	})
	return true
}

// RenameSession sets a 1 to 50 character title.
func (c *Coordinator) RenameSession(ctx context.Context, id api.ID, title string) bool {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n == 0 || n > MaxTitleChars {
		c.fail(validationError("title must be 1 to 50 characters"))
		return false
	}

	updated, err := c.api.RenameSession(ctx, id, c.auth.UserID(), title)
	if err != nil {
		c.fail(classify("failed to rename session", err))
		return false
	}
	if updated != nil && strings.TrimSpace(updated.Title) != "" {
		title = updated.Title
	}

	c.update(func(s *State) {
		s.Err = nil
		for i := range s.Sessions {
			if s.Sessions[i].SessionID == id {
				s.Sessions[i].Title = title
			}
		}
		if s.Current != nil && s.Current.SessionID == id {
			s.Current.Title = title
		}
	})
	return true
}

// UpdateSessionKBs changes the knowledge base context locally. The backend learns
// about it with the next message.
func (c *Coordinator) UpdateSessionKBs(kbs []api.KnowledgeBase) {
	ids := knowledgeBaseIDs(kbs)
	c.update(func(s *State) {
		s.CurrentKBIDs = ids
		if s.Current != nil {
			s.Current.KBIDs = append([]api.ID(nil), ids...)
		}
	})
}

func (c *Coordinator) nextNavSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navSeq++
	return c.navSeq
}

func appendMessage(m Message) mutation {
	return mutation{
		apply: func(s *State) {
			m.Index = len(s.Messages)
			s.Messages = append(s.Messages, m)
		},
		revert: func(s *State) {
			kept := s.Messages[:0:0]
			for _, existing := range s.Messages {
				if existing.ID != m.ID {
					kept = append(kept, existing)
				}
			}
			s.Messages = kept
		},
	}
}

func touchSession(sessions []api.Session, id api.ID, lastMessage string, now time.Time) {
	for i := range sessions {
		if sessions[i].SessionID == id {
			sessions[i].ChatCount += 2
			sessions[i].LastMessage = lastMessage
			sessions[i].UpdateAt = now.Format(time.RFC3339)
		}
	}
}

func knowledgeBaseIDs(kbs []api.KnowledgeBase) []api.ID {
	ids := make([]api.ID, 0, len(kbs))
	for _, kb := range kbs {
		ids = append(ids, kb.ID)
	}
	return ids
}

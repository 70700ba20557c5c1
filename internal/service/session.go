package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the coarse position of a session in the quiz flow.
type Phase int

const (
	PhaseAwaitingGender Phase = iota
	PhaseAwaitingRealm
	PhaseQuestion
	PhaseCompleted
)

// Step is a session's exact position. Question is only meaningful in
// PhaseQuestion.
type Step struct {
	Phase    Phase
	Question int
}

var (
	StepAwaitingGender = Step{Phase: PhaseAwaitingGender}
	StepAwaitingRealm  = Step{Phase: PhaseAwaitingRealm}
	StepCompleted      = Step{Phase: PhaseCompleted}
)

// QuestionStep returns the step for question n (zero-based).
func QuestionStep(n int) Step {
	return Step{Phase: PhaseQuestion, Question: n}
}

// Terminal reports whether the step ends the quiz.
func (s Step) Terminal() bool {
	return s.Phase == PhaseCompleted
}

// Before reports whether s comes strictly before other in the flow.
func (s Step) Before(other Step) bool {
	if s.Phase != other.Phase {
		return s.Phase < other.Phase
	}
	return s.Phase == PhaseQuestion && s.Question < other.Question
}

func (s Step) String() string {
	switch s.Phase {
	case PhaseAwaitingGender:
		return "awaiting_gender"
	case PhaseAwaitingRealm:
		return "awaiting_realm"
	case PhaseQuestion:
		return fmt.Sprintf("question_%d", s.Question)
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase_%d", int(s.Phase))
	}
}

// Describe renders the step for users.
func (s Step) Describe() string {
	switch s.Phase {
	case PhaseAwaitingGender:
		return "gender selection"
	case PhaseAwaitingRealm:
		return "realm selection"
	case PhaseQuestion:
		return fmt.Sprintf("question %d", s.Question+1)
	default:
		return "the end of the quiz"
	}
}

// Session is the in-progress quiz state of one user.
type Session struct {
	ID          string
	UserID      int64
	ChannelID   int64
	DisplayName string
	Step        Step
	Answers     []string
	Gender      string
	Realm       string
	StartedAt   time.Time
}

func (s *Session) clone() *Session {
	cp := *s
	cp.Answers = append([]string(nil), s.Answers...)
	return &cp
}

// SessionStore maps user ids to their live session. Callers get copies;
// changes go through Update.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

// Create starts a fresh session at gender selection. It fails with an
// *AlreadyActiveError while a non-terminal session exists for the user.
func (s *SessionStore) Create(userID, channelID int64, displayName string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[userID]; ok && !existing.Step.Terminal() {
		return nil, &AlreadyActiveError{Step: existing.Step}
	}

	session := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChannelID:   channelID,
		DisplayName: displayName,
		Step:        StepAwaitingGender,
		Answers:     make([]string, 0),
		StartedAt:   s.now(),
	}
	s.sessions[userID] = session
	return session.clone(), nil
}

// Get returns a copy of the user's session.
func (s *SessionStore) Get(userID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return session.clone(), nil
}

// Update runs fn on a copy of the session and stores the copy only when
// fn succeeds. The committed session is returned.
func (s *SessionStore) Update(userID int64, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	draft := session.clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	s.sessions[userID] = draft
	return draft.clone(), nil
}

// Remove deletes the user's session. Removing a missing session is a no-op.
func (s *SessionStore) Remove(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// RemoveIf deletes the session when match returns nil and returns the
// removed session. Otherwise the session is left in place.
func (s *SessionStore) RemoveIf(userID int64, match func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := match(session.clone()); err != nil {
		return nil, err
	}
	delete(s.sessions, userID)
	return session.clone(), nil
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

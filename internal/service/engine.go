package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// EngineOptions wires the engine's collaborators. Store, Catalog and
// Gateway are required; the rest get defaults.
type EngineOptions struct {
	Store    *SessionStore
	Catalog  *Catalog
	Gateway  Gateway
	Recorder ResultRecorder
	Names    *NameGenerator
	Logger   *slog.Logger
	Now      func() time.Time
}

// Engine drives sessions from gender selection through the questions to
// the result. Events for one user are handled one at a time; every event
// is validated, then applied, then announced through the gateway.
type Engine struct {
	store    *SessionStore
	catalog  *Catalog
	gateway  Gateway
	recorder ResultRecorder
	names    *NameGenerator
	logger   *slog.Logger
	now      func() time.Time
	locks    *userLocks
}

func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{
		store:    opts.Store,
		catalog:  opts.Catalog,
		gateway:  opts.Gateway,
		recorder: opts.Recorder,
		names:    opts.Names,
		logger:   opts.Logger,
		now:      opts.Now,
		locks:    newUserLocks(),
	}
	if e.recorder == nil {
		e.recorder = NewMemoryRecorder()
	}
	if e.names == nil {
		e.names = NewNameGenerator(e.catalog.Prefixes, e.catalog.Suffixes)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Catalog returns the quiz content the engine serves.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Recorder returns the result history.
func (e *Engine) Recorder() ResultRecorder { return e.recorder }

// ActiveSessions returns the number of unfinished quizzes.
func (e *Engine) ActiveSessions() int { return e.store.Len() }

// HandleStart creates a session and asks for the user's gender.
func (e *Engine) HandleStart(ctx context.Context, ev StartRequested) (*Session, error) {
	unlock := e.locks.Lock(ev.UserID)
	defer unlock()

	session, err := e.store.Create(ev.UserID, ev.ChannelID, ev.DisplayName)
	if err != nil {
		e.logger.Info("Blocked quiz start", "user_id", ev.UserID, "error", err)
		return nil, err
	}
	log := e.sessionLogger(session)
	log.Info("New quiz session initialized")

	text := fmt.Sprintf("Welcome, %s! To discover your inner fairy, first, let's set the stage... How do you identify?", displayName(session))
	if err := e.present(ctx, session, text, e.catalog.Genders); err != nil {
		e.store.Remove(session.UserID)
		log.Error("Failed to send gender selection", "error", err)
		e.deliver(ctx, session.UserID, session.ChannelID,
			"Sorry, something went wrong while trying to start the quiz. Please try again later.", nil)
		return nil, fmt.Errorf("%w: %w", ErrUndelivered, err)
	}
	return session, nil
}

// HandleSelection maps a raw option pick to the event for the prompt's step.
func (e *Engine) HandleSelection(ctx context.Context, sel Selection) error {
	p := sel.Prompt
	switch p.Step.Phase {
	case PhaseAwaitingGender:
		return e.HandleGender(ctx, GenderChosen{
			Actor: sel.Actor, Owner: p.UserID, SessionID: p.SessionID,
			Value: optionAt(e.catalog.Genders, sel.Option),
		})
	case PhaseAwaitingRealm:
		return e.HandleRealm(ctx, RealmChosen{
			Actor: sel.Actor, Owner: p.UserID, SessionID: p.SessionID,
			Value: optionAt(e.catalog.Realms, sel.Option),
		})
	case PhaseQuestion:
		return e.HandleAnswer(ctx, AnswerChosen{
			Actor: sel.Actor, Owner: p.UserID, SessionID: p.SessionID,
			QuestionIndex: p.Step.Question, OptionIndex: sel.Option,
		})
	default:
		return ErrStaleInteraction
	}
}

// HandleGender records the gender and moves on to realm selection.
func (e *Engine) HandleGender(ctx context.Context, ev GenderChosen) error {
	if ev.Actor != ev.Owner {
		return ErrStaleInteraction
	}
	unlock := e.locks.Lock(ev.Owner)
	defer unlock()

	session, err := e.store.Update(ev.Owner, func(s *Session) error {
		if err := checkPrompt(s, ev.SessionID, StepAwaitingGender); err != nil {
			return err
		}
		if !contains(e.catalog.Genders, ev.Value) {
			return fmt.Errorf("%w: unknown gender %q", ErrMalformedChoice, ev.Value)
		}
		s.Gender = ev.Value
		s.Step = StepAwaitingRealm
		return nil
	})
	if err != nil {
		return e.rejected(ev.Owner, StepAwaitingGender, err)
	}
	e.sessionLogger(session).Info("Gender selection processed", "gender", session.Gender)

	text := fmt.Sprintf("You've chosen %s! Now, which mythic realm calls to you?", session.Gender)
	return e.presentOrAbort(ctx, session, text, e.catalog.Realms)
}

// HandleRealm records the realm and asks the first question.
func (e *Engine) HandleRealm(ctx context.Context, ev RealmChosen) error {
	if ev.Actor != ev.Owner {
		return ErrStaleInteraction
	}
	unlock := e.locks.Lock(ev.Owner)
	defer unlock()

	session, err := e.store.Update(ev.Owner, func(s *Session) error {
		if err := checkPrompt(s, ev.SessionID, StepAwaitingRealm); err != nil {
			return err
		}
		if !contains(e.catalog.Realms, ev.Value) {
			return fmt.Errorf("%w: unknown realm %q", ErrMalformedChoice, ev.Value)
		}
		s.Realm = ev.Value
		s.Step = QuestionStep(0)
		return nil
	})
	if err != nil {
		return e.rejected(ev.Owner, StepAwaitingRealm, err)
	}
	e.sessionLogger(session).Info("Realm selection processed", "realm", session.Realm)

	return e.presentQuestion(ctx, session)
}

// HandleAnswer credits the chosen option's score tag and advances to the
// next question, or to the result after the last one.
func (e *Engine) HandleAnswer(ctx context.Context, ev AnswerChosen) error {
	if ev.Actor != ev.Owner {
		return ErrStaleInteraction
	}
	unlock := e.locks.Lock(ev.Owner)
	defer unlock()

	want := QuestionStep(ev.QuestionIndex)
	session, err := e.store.Update(ev.Owner, func(s *Session) error {
		if err := checkPrompt(s, ev.SessionID, want); err != nil {
			return err
		}
		q := e.catalog.Questions[ev.QuestionIndex]
		if ev.OptionIndex < 0 || ev.OptionIndex >= len(q.Options) {
			return fmt.Errorf("%w: option %d of question %d", ErrMalformedChoice, ev.OptionIndex, ev.QuestionIndex+1)
		}
		s.Answers = append(s.Answers, q.Options[ev.OptionIndex].ScoreTag)
		s.Step = e.after(s.Step)
		return nil
	})
	if err != nil {
		return e.rejected(ev.Owner, want, err)
	}
	e.sessionLogger(session).Info("Quiz answer processed",
		"question", ev.QuestionIndex+1, "option", ev.OptionIndex)

	if session.Step.Terminal() {
		e.complete(ctx, session)
		return nil
	}
	return e.presentQuestion(ctx, session)
}

// HandleTimeout drops the session if it is still at the step whose prompt
// expired. A timeout for a step the user already left changes nothing.
func (e *Engine) HandleTimeout(ctx context.Context, ev Timeout) error {
	unlock := e.locks.Lock(ev.UserID)
	defer unlock()

	session, err := e.store.RemoveIf(ev.UserID, func(s *Session) error {
		return checkPrompt(s, ev.SessionID, ev.AtStep)
	})
	if err != nil {
		e.logger.Debug("Ignored stale timeout", "user_id", ev.UserID, "step", ev.AtStep.String(), "error", err)
		return err
	}
	e.sessionLogger(session).Info("Cleared quiz session due to timeout")

	text := capitalize(ev.AtStep.Describe()) + " timed out. Please use /startquiz to begin again."
	e.deliver(ctx, session.UserID, session.ChannelID, text, nil)
	return nil
}

func (e *Engine) complete(ctx context.Context, session *Session) {
	log := e.sessionLogger(session)
	fairyType := Plurality(session.Answers)
	result := Result{
		SessionID:   session.ID,
		UserID:      session.UserID,
		DisplayName: displayName(session),
		FairyType:   fairyType,
		FairyName:   e.names.Name(fairyType),
		Lore:        e.catalog.LoreFor(fairyType),
		Gender:      session.Gender,
		Realm:       session.Realm,
		Answers:     append([]string(nil), session.Answers...),
		CompletedAt: e.now(),
	}

	e.store.Remove(session.UserID)
	log.Info("Quiz completed", "fairy_type", fairyType)

	if err := e.recorder.Record(ctx, result); err != nil {
		log.Error("Failed to record result", "error", err)
	}
	e.deliver(ctx, session.UserID, session.ChannelID, "✨ Your Inner Fairy Revealed! ✨", &result)
}

func (e *Engine) after(step Step) Step {
	next := QuestionStep(step.Question + 1)
	if next.Question >= len(e.catalog.Questions) {
		return StepCompleted
	}
	return next
}

func (e *Engine) presentQuestion(ctx context.Context, session *Session) error {
	n := session.Step.Question
	q := e.catalog.Questions[n]
	text := fmt.Sprintf("❓ Question %d/%d\n\n%s", n+1, len(e.catalog.Questions), q.Prompt)
	return e.presentOrAbort(ctx, session, text, q.Labels())
}

// presentOrAbort shows the next prompt of an already advanced session. A
// prompt that never reaches the user can never time out, so on failure the
// session is dropped and the user told to start over.
func (e *Engine) presentOrAbort(ctx context.Context, session *Session, text string, options []string) error {
	err := e.present(ctx, session, text, options)
	if err == nil {
		return nil
	}
	e.store.Remove(session.UserID)
	e.sessionLogger(session).Error("Failed to present prompt, session dropped", "error", err)
	e.deliver(ctx, session.UserID, session.ChannelID,
		"There was an issue with your quiz progression. Please try /startquiz again.", nil)
	return fmt.Errorf("%w: %w", ErrUndelivered, err)
}

func (e *Engine) present(ctx context.Context, session *Session, text string, options []string) error {
	_, err := e.gateway.PresentChoices(ctx, Prompt{
		PromptContext: PromptContext{
			UserID:    session.UserID,
			SessionID: session.ID,
			Step:      session.Step,
		},
		ChannelID: session.ChannelID,
		Text:      text,
		Options:   options,
	})
	return err
}

// deliver sends to the channel and falls back to the user directly when the
// channel refuses us.
func (e *Engine) deliver(ctx context.Context, userID, channelID int64, text string, result *Result) {
	target := Target{ChannelID: channelID, UserID: userID, Direct: channelID == 0}
	err := e.gateway.SendMessage(ctx, target, text, result)
	if errors.Is(err, ErrDeliveryDenied) && !target.Direct {
		e.logger.Warn("Channel delivery denied, messaging user directly", "user_id", userID, "channel_id", channelID)
		err = e.gateway.SendMessage(ctx, Target{UserID: userID, Direct: true}, text, result)
	}
	if err != nil {
		e.logger.Error("Failed to deliver message", "user_id", userID, "channel_id", channelID, "error", err)
	}
}

func (e *Engine) rejected(userID int64, want Step, err error) error {
	if errors.Is(err, ErrMalformedChoice) {
		e.logger.Error("Malformed choice from gateway", "user_id", userID, "step", want.String(), "error", err)
	} else {
		e.logger.Warn("Rejected interaction", "user_id", userID, "step", want.String(), "error", err)
	}
	return err
}

func (e *Engine) sessionLogger(s *Session) *slog.Logger {
	return e.logger.With("user_id", s.UserID, "session_id", s.ID, "step", s.Step.String())
}

// checkPrompt verifies an event belongs to the session's current prompt.
func checkPrompt(s *Session, sessionID string, want Step) error {
	if sessionID != s.ID {
		return fmt.Errorf("%w: prompt belongs to an earlier quiz", ErrStaleInteraction)
	}
	if s.Step != want {
		if want.Before(s.Step) {
			return fmt.Errorf("%w: %s already answered", ErrStaleInteraction, want)
		}
		return fmt.Errorf("%w: session at %s, prompt for %s", ErrStaleInteraction, s.Step, want)
	}
	return nil
}

func optionAt(values []string, i int) string {
	if i < 0 || i >= len(values) {
		return ""
	}
	return values[i]
}

func displayName(s *Session) string {
	if s.DisplayName == "" {
		return "Mysterious Soul"
	}
	return s.DisplayName
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

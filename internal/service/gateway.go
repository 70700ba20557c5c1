package service

import (
	"context"
	"fmt"
	"strings"
)

// PromptContext ties a prompt to the session step it was shown for.
// Gateways hand it back with every event the prompt produces.
type PromptContext struct {
	UserID    int64
	SessionID string
	Step      Step
}

type Prompt struct {
	PromptContext
	ChannelID int64
	Text      string
	Options   []string
}

// PromptHandle identifies a presented prompt within its gateway.
type PromptHandle string

// Target is where a message goes: the channel, or the user directly.
type Target struct {
	ChannelID int64
	UserID    int64
	Direct    bool
}

// Gateway is the chat platform seen from the engine.
type Gateway interface {
	// PresentChoices shows a prompt. The gateway later reports the user's
	// pick (or a timeout) back to the engine with the prompt's context.
	PresentChoices(ctx context.Context, prompt Prompt) (PromptHandle, error)

	// SendMessage delivers a notice, or a result card when result is set.
	// It returns ErrDeliveryDenied when the platform refuses the target.
	SendMessage(ctx context.Context, target Target, text string, result *Result) error
}

// StartRequested is a user asking for a new quiz.
type StartRequested struct {
	UserID      int64
	ChannelID   int64
	DisplayName string
}

type GenderChosen struct {
	Actor     int64
	Owner     int64
	SessionID string
	Value     string
}

type RealmChosen struct {
	Actor     int64
	Owner     int64
	SessionID string
	Value     string
}

type AnswerChosen struct {
	Actor         int64
	Owner         int64
	SessionID     string
	QuestionIndex int
	OptionIndex   int
}

// Timeout reports that the prompt shown at AtStep went unanswered.
type Timeout struct {
	UserID    int64
	SessionID string
	AtStep    Step
}

// Selection is a raw pick of option Option on a prompt. Gateways send
// these; the engine turns them into the typed events above.
type Selection struct {
	Actor  int64
	Prompt PromptContext
	Option int
}

// Summary renders the result as plain text.
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s's Fairy Form\n", r.DisplayName)
	fmt.Fprintf(&b, "Fairy Type: %s\n", r.FairyType)
	fmt.Fprintf(&b, "Your Fairy Name: %s\n", r.FairyName)
	if r.Gender != "" {
		fmt.Fprintf(&b, "Gender Chosen: %s\n", r.Gender)
	}
	if r.Realm != "" {
		fmt.Fprintf(&b, "Realm Chosen: %s\n", r.Realm)
	}
	fmt.Fprintf(&b, "About Your Kind: %s", r.Lore)
	return b.String()
}

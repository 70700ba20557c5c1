package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	groupChat int64 = -100
	owner     int64 = 7
	stranger  int64 = 8
)

type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	messages []tgbotapi.MessageConfig
	edits    []tgbotapi.Chattable
	answers  []tgbotapi.CallbackConfig
	denied   map[int64]bool

	// sent, if set, runs after a message is recorded and before Send returns.
	sent func(messageID int)
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		f.edits = append(f.edits, c)
		f.mu.Unlock()
		return tgbotapi.Message{}, nil
	}
	if f.denied[msg.ChatID] {
		f.mu.Unlock()
		return tgbotapi.Message{}, &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	}
	f.nextID++
	id := f.nextID
	f.messages = append(f.messages, msg)
	hook := f.sent
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return tgbotapi.Message{MessageID: id, Chat: &tgbotapi.Chat{ID: msg.ChatID}}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.answers = append(f.answers, cb)
	} else {
		f.edits = append(f.edits, c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeAPI) last(t *testing.T) (int, tgbotapi.MessageConfig) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages)
	return f.nextID, f.messages[len(f.messages)-1]
}

func (f *fakeAPI) lastAnswer(t *testing.T) tgbotapi.CallbackConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.answers)
	return f.answers[len(f.answers)-1]
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Text
	}
	return out
}

type testBot struct {
	bot      *Bot
	api      *fakeAPI
	engine   *service.Engine
	recorder *service.MemoryRecorder
}

func newTestBot(t *testing.T, timeout time.Duration) *testBot {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &fakeAPI{denied: map[int64]bool{}}
	rec := service.NewMemoryRecorder()
	bot := newBot(api, Options{PromptTimeout: timeout, Results: rec, Logger: logger})

	catalog := service.DefaultCatalog()
	engine := service.NewEngine(service.EngineOptions{
		Store:    service.NewSessionStore(),
		Catalog:  catalog,
		Gateway:  bot,
		Recorder: rec,
		Names:    service.NewSeededNameGenerator(catalog.Prefixes, catalog.Suffixes, 1),
		Logger:   logger,
	})
	bot.Attach(engine)
	t.Cleanup(bot.shutdown)
	return &testBot{bot: bot, api: api, engine: engine, recorder: rec}
}

func command(userID, chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Aoife"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func tap(userID, chatID int64, messageID int, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      fmt.Sprintf("cb-%d-%d", userID, messageID),
		From:    &tgbotapi.User{ID: userID, FirstName: "Someone"},
		Message: &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

// choose taps option i on the newest prompt as its owner.
func (tb *testBot) choose(t *testing.T, i int) {
	t.Helper()
	id, _ := tb.api.last(t)
	tb.bot.handleUpdate(context.Background(), tap(owner, groupChat, id, choicePrefix+fmt.Sprint(i)))
}

func TestBotFullQuiz(t *testing.T) {
	tb := newTestBot(t, time.Minute)
	ctx := context.Background()

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/startquiz"))
	_, msg := tb.api.last(t)
	assert.Equal(t, groupChat, msg.ChatID)
	assert.Contains(t, msg.Text, "Welcome, Aoife!")
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "Woman", kb.InlineKeyboard[1][0].Text)
	assert.Equal(t, "choice:1", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, 1, tb.bot.ActivePrompts())

	tb.choose(t, 1) // Woman
	_, msg = tb.api.last(t)
	assert.Contains(t, msg.Text, "chosen Woman")
	assert.Equal(t, 1, tb.bot.ActivePrompts())

	tb.choose(t, 2) // Druids
	_, msg = tb.api.last(t)
	assert.Contains(t, msg.Text, "Question 1/3")

	tb.choose(t, 1) // Leprechaun
	tb.choose(t, 2) // Banshee
	tb.choose(t, 0) // Aos Sí

	_, msg = tb.api.last(t)
	assert.Equal(t, groupChat, msg.ChatID)
	assert.Contains(t, msg.Text, "Aoife's Fairy Form")
	assert.Contains(t, msg.Text, "<b>Fairy Type:</b> Leprechaun")
	assert.Contains(t, msg.Text, "<i>Druids</i>")
	assert.Equal(t, 0, tb.bot.ActivePrompts())
	assert.Equal(t, 0, tb.engine.ActiveSessions())

	latest, err := tb.recorder.Latest(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Leprechaun", latest.FairyType)
	assert.Len(t, latest.Answers, 3)

	tb.api.mu.Lock()
	edit, ok := tb.api.edits[0].(tgbotapi.EditMessageTextConfig)
	tb.api.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 1, edit.MessageID)
	assert.Contains(t, edit.Text, "You chose: <b>Woman</b>")
}

func TestBotTapBeforePromptRegistered(t *testing.T) {
	tb := newTestBot(t, time.Minute)
	ctx := context.Background()

	var (
		once sync.Once
		done = make(chan struct{})
	)
	tb.api.sent = func(id int) {
		once.Do(func() {
			go func() {
				defer close(done)
				tb.bot.handleUpdate(ctx, tap(owner, groupChat, id, choicePrefix+"1"))
			}()
			time.Sleep(30 * time.Millisecond)
		})
	}

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/startquiz"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tap was not handled")
	}
	assert.Empty(t, tb.api.lastAnswer(t).Text)
	_, msg := tb.api.last(t)
	assert.Contains(t, msg.Text, "chosen Woman")
	assert.Equal(t, 1, tb.bot.ActivePrompts())
}

func TestBotPromptAfterShutdownIsNotTimed(t *testing.T) {
	tb := newTestBot(t, 10*time.Millisecond)
	ctx := context.Background()

	tb.bot.shutdown()
	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/startquiz"))

	_, msg := tb.api.last(t)
	assert.Contains(t, msg.Text, "Welcome, Aoife!")
	assert.Equal(t, 0, tb.bot.ActivePrompts())
	assert.Never(t, func() bool { return tb.engine.ActiveSessions() == 0 }, 60*time.Millisecond, 5*time.Millisecond)
}

func TestBotRejectsForeignTap(t *testing.T) {
	tb := newTestBot(t, time.Minute)
	ctx := context.Background()

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/startquiz"))
	id, _ := tb.api.last(t)

	tb.bot.handleUpdate(ctx, tap(stranger, groupChat, id, "choice:0"))
	answer := tb.api.lastAnswer(t)
	assert.True(t, answer.ShowAlert)
	assert.Equal(t, "This is not your quiz.", answer.Text)
	assert.Equal(t, 1, tb.api.messageCount())
	assert.Equal(t, 1, tb.bot.ActivePrompts())
}

func TestBotRejectsRetiredPrompt(t *testing.T) {
	tb := newTestBot(t, time.Minute)
	ctx := context.Background()

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/startquiz"))
	tb.choose(t, 0)
	require.Equal(t, 2, tb.api.messageCount())

	tb.bot.handleUpdate(ctx, tap(owner, groupChat, 1, "choice:2"))
	answer := tb.api.lastAnswer(t)
	assert.Equal(t, service.UserMessage(service.ErrStaleInteraction), answer.Text)
	assert.Equal(t, 2, tb.api.messageCount())

	s, err := tb.engine.Recorder().Latest(ctx, owner)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestBotRejectsMalformedCallback(t *testing.T) {
	tb := newTestBot(t, time.Minute)
	ctx := context.Background()

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/startquiz"))
	id, _ := tb.api.last(t)

	tb.bot.handleUpdate(ctx, tap(owner, groupChat, id, "choice:9"))
	answer := tb.api.lastAnswer(t)
	assert.True(t, answer.ShowAlert)
	assert.Equal(t, 1, tb.api.messageCount())
	assert.Equal(t, 1, tb.engine.ActiveSessions())
}

func TestBotPromptTimeout(t *testing.T) {
	tb := newTestBot(t, 20*time.Millisecond)

	tb.bot.handleUpdate(context.Background(), command(owner, groupChat, "/startquiz"))

	assert.Eventually(t, func() bool {
		return tb.engine.ActiveSessions() == 0 && tb.api.messageCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, tb.bot.ActivePrompts())

	_, msg := tb.api.last(t)
	assert.Equal(t, "Gender selection timed out. Please use /startquiz to begin again.", msg.Text)

	tb.api.mu.Lock()
	defer tb.api.mu.Unlock()
	require.NotEmpty(t, tb.api.edits)
	_, ok := tb.api.edits[0].(tgbotapi.EditMessageReplyMarkupConfig)
	assert.True(t, ok)
}

func TestBotFallsBackToDirectMessage(t *testing.T) {
	tb := newTestBot(t, time.Minute)
	tb.api.denied[groupChat] = true

	tb.bot.handleUpdate(context.Background(), command(owner, groupChat, "/startquiz"))

	require.Equal(t, 1, tb.api.messageCount())
	_, msg := tb.api.last(t)
	assert.Equal(t, owner, msg.ChatID)
	assert.Contains(t, msg.Text, "something went wrong while trying to start the quiz")
	assert.Equal(t, 0, tb.engine.ActiveSessions())
}

func TestBotStartWhileActive(t *testing.T) {
	tb := newTestBot(t, time.Minute)
	ctx := context.Background()

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/startquiz"))
	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/startquiz"))

	require.Equal(t, 2, tb.api.messageCount())
	_, msg := tb.api.last(t)
	assert.Contains(t, msg.Text, "tg://user?id=7")
	assert.Contains(t, msg.Text, "already have a quiz in progress (at gender selection)")
	assert.Equal(t, 1, tb.bot.ActivePrompts())
}

func TestBotHistoryCommands(t *testing.T) {
	tb := newTestBot(t, time.Minute)
	ctx := context.Background()

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/mytype"))
	_, msg := tb.api.last(t)
	assert.Contains(t, msg.Text, "discovered your fairy yet")

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/census"))
	_, msg = tb.api.last(t)
	assert.Contains(t, msg.Text, "No fairies have been revealed yet")

	require.NoError(t, tb.recorder.Record(ctx, service.Result{
		SessionID: "s-1", UserID: owner, DisplayName: "Aoife", FairyType: "Selkie",
		FairyName: "Fae Fogdrift", Lore: "Dreamy.", Answers: []string{"Selkie"}, CompletedAt: time.Now(),
	}))

	tb.bot.handleUpdate(ctx, command(owner, groupChat, "/mytype"))
	_, msg = tb.api.last(t)
	assert.Contains(t, msg.Text, "<b>Fairy Type:</b> Selkie")
	assert.Contains(t, msg.Text, "Fae Fogdrift")

	tb.bot.handleUpdate(ctx, tap(owner, groupChat, 99, "census"))
	_, msg = tb.api.last(t)
	assert.Contains(t, msg.Text, "🥇 <b>Selkie</b>: 1")
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		data    string
		want    int
		wantErr bool
	}{
		{"choice:0", 0, false},
		{"choice:12", 12, false},
		{"choice:-1", 0, true},
		{"choice:", 0, true},
		{"choice:x", 0, true},
		{"start_quiz", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := parseChoice(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, service.ErrMalformedChoice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatCensus(t *testing.T) {
	text := formatCensus([]service.TypeCount{
		{FairyType: "Banshee", Count: 3},
		{FairyType: "Pooka", Count: 2},
		{FairyType: "Selkie", Count: 1},
		{FairyType: "Dullahan", Count: 1},
	}, 3)
	assert.Contains(t, text, "🥇 <b>Banshee</b>: 3")
	assert.Contains(t, text, "🥉 <b>Selkie</b>: 1")
	assert.NotContains(t, text, "Dullahan")
}

func TestClassifyForbidden(t *testing.T) {
	err := classify(5, &tgbotapi.Error{Code: 403, Message: "Forbidden"})
	assert.ErrorIs(t, err, service.ErrDeliveryDenied)

	err = classify(5, &tgbotapi.Error{Code: 400, Message: "Bad Request"})
	assert.NotErrorIs(t, err, service.ErrDeliveryDenied)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Aoife Byrne", displayName(&tgbotapi.User{FirstName: "Aoife", LastName: "Byrne"}))
	assert.Equal(t, "@fae", displayName(&tgbotapi.User{UserName: "fae"}))
	assert.Contains(t, mention(&tgbotapi.User{ID: 3, FirstName: "<b>"}), "&lt;b&gt;")
}

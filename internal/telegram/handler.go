package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// QuizHandler receives the quiz events the bot produces.
type QuizHandler interface {
	HandleStart(ctx context.Context, ev service.StartRequested) (*service.Session, error)
	HandleSelection(ctx context.Context, sel service.Selection) error
	HandleTimeout(ctx context.Context, ev service.Timeout) error
}

// sender is the part of tgbotapi.BotAPI the bot needs for outgoing calls.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is the Telegram side of the quiz: it renders prompts as inline
// keyboards, turns taps into engine events and owns the prompt timers.
type Bot struct {
	api     sender
	client  *tgbotapi.BotAPI
	handler QuizHandler
	results service.ResultRecorder
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	prompts map[promptKey]*pendingPrompt
	closed  bool
	ctx     context.Context
	wg      sync.WaitGroup

	// presenting is read-held across send and register in PresentChoices.
	presenting sync.RWMutex
}

// Options configures a Bot.
type Options struct {
	Token         string
	Debug         bool
	PromptTimeout time.Duration
	Results       service.ResultRecorder
	Logger        *slog.Logger
}

func NewBot(opts Options) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = opts.Debug

	b := newBot(api, opts)
	b.client = api
	return b, nil
}

func newBot(api sender, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	results := opts.Results
	if results == nil {
		results = service.NewMemoryRecorder()
	}
	return &Bot{
		api:     api,
		results: results,
		timeout: opts.PromptTimeout,
		logger:  logger.With("component", "telegram"),
		prompts: make(map[promptKey]*pendingPrompt),
		ctx:     context.Background(),
	}
}

// Attach sets the handler that receives quiz events. It must be called
// before Run.
func (b *Bot) Attach(handler QuizHandler) {
	b.handler = handler
}

// Run polls Telegram for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.client == nil {
		return errors.New("telegram client not connected")
	}
	if b.handler == nil {
		return errors.New("no quiz handler attached")
	}
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.logger.Info("Authorised on account", "username", b.client.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.client.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			b.shutdown()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.shutdown()
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// shutdown stops pending prompt timers and waits for in-flight updates.
// Prompts presented after this point are sent but never timed.
func (b *Bot) shutdown() {
	b.mu.Lock()
	b.closed = true
	for key, p := range b.prompts {
		p.stop()
		delete(b.prompts, key)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	}
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.sendMainMenu(chatID)
	case "startquiz", "quiz":
		b.startQuiz(ctx, chatID, msg.From)
	case "mytype":
		b.handleMyType(ctx, chatID, msg.From)
	case "census":
		b.handleCensus(ctx, chatID)
	case "info", "help":
		b.handleInfo(chatID)
	default:
		b.sendText(chatID, "Unknown command. Use /startquiz to discover your inner fairy.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.From == nil || callback.Message == nil || callback.Message.Chat == nil {
		b.answerCallback(callback.ID, "", false)
		return
	}
	chatID := callback.Message.Chat.ID
	data := callback.Data

	switch {
	case strings.HasPrefix(data, choicePrefix):
		b.handleChoice(ctx, callback)
		return
	case data == "start_quiz":
		b.answerCallback(callback.ID, "", false)
		b.startQuiz(ctx, chatID, callback.From)
	case data == "census":
		b.answerCallback(callback.ID, "", false)
		b.handleCensus(ctx, chatID)
	case data == "mytype":
		b.answerCallback(callback.ID, "", false)
		b.handleMyType(ctx, chatID, callback.From)
	case data == "info":
		b.answerCallback(callback.ID, "", false)
		b.handleInfo(chatID)
	case data == "back_to_menu":
		b.answerCallback(callback.ID, "", false)
		b.sendMainMenu(chatID)
	default:
		b.logger.Warn("Unknown callback data", "data", data, "user_id", callback.From.ID)
		b.answerCallback(callback.ID, "Unknown action", false)
	}
}

// handleChoice maps a tap on a prompt keyboard to an engine selection.
func (b *Bot) handleChoice(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	key := promptKey{chatID: callback.Message.Chat.ID, messageID: callback.Message.MessageID}
	actor := callback.From.ID

	option, err := parseChoice(callback.Data)
	if err != nil {
		b.logger.Error("Invalid choice callback", "data", callback.Data, "user_id", actor, "error", err)
		b.answerCallback(callback.ID, service.UserMessage(err), true)
		return
	}

	p, ok := b.lookup(key)
	if !ok {
		p, ok = b.await(key)
	}
	if !ok {
		b.answerCallback(callback.ID, service.UserMessage(service.ErrStaleInteraction), true)
		return
	}

	err = b.handler.HandleSelection(ctx, service.Selection{Actor: actor, Prompt: p.ctx, Option: option})
	if err != nil {
		if actor == p.ctx.UserID && (errors.Is(err, service.ErrStaleInteraction) || errors.Is(err, service.ErrNotFound)) {
			b.retire(key, "")
		}
		text := service.UserMessage(err)
		if actor != p.ctx.UserID {
			text = "This is not your quiz."
		}
		b.answerCallback(callback.ID, text, true)
		return
	}

	b.answerCallback(callback.ID, "", false)
	label := ""
	if option < len(p.options) {
		label = p.options[option]
	}
	b.retire(key, fmt.Sprintf("✅ You chose: <b>%s</b>\n\n%s", html.EscapeString(label), html.EscapeString(p.text)))
}

func (b *Bot) startQuiz(ctx context.Context, chatID int64, user *tgbotapi.User) {
	name := displayName(user)
	b.logger.Info("Quiz start requested", "user_id", user.ID, "chat_id", chatID)

	_, err := b.handler.HandleStart(ctx, service.StartRequested{UserID: user.ID, ChannelID: chatID, DisplayName: name})
	if err == nil || errors.Is(err, service.ErrUndelivered) {
		return
	}
	b.sendHTML(chatID, mention(user)+", "+html.EscapeString(service.UserMessage(err)), nil)
}

func (b *Bot) sendMainMenu(chatID int64) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧚 Discover your fairy", "start_quiz"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔮 My fairy", "mytype"),
			tgbotapi.NewInlineKeyboardButtonData("🏆 Census", "census"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ About", "info"),
		),
	)
	b.sendHTML(chatID, "📋 <b>Main menu</b>", kb)
}

func (b *Bot) handleMyType(ctx context.Context, chatID int64, user *tgbotapi.User) {
	result, err := b.results.Latest(ctx, user.ID)
	if errors.Is(err, service.ErrNotFound) {
		b.sendText(chatID, "You haven't discovered your fairy yet. Use /startquiz to begin!")
		return
	}
	if err != nil {
		b.logger.Error("Failed to load latest result", "user_id", user.ID, "error", err)
		b.sendText(chatID, "Couldn't look up your fairy right now. Please try again later.")
		return
	}
	b.sendHTML(chatID, formatResult("🔮 Your Fairy Form", *result), menuKeyboard())
}

func (b *Bot) handleCensus(ctx context.Context, chatID int64) {
	counts, err := b.results.Census(ctx)
	if err != nil {
		b.logger.Error("Failed to load census", "error", err)
		b.sendText(chatID, "Couldn't count the fairies right now. Please try again later.")
		return
	}
	b.sendHTML(chatID, formatCensus(counts, 10), menuKeyboard())
}

func (b *Bot) handleInfo(chatID int64) {
	text := "🧚 <b>Fairy Quiz</b>\n\n" +
		"Answer a few questions and discover which creature of Irish myth you are.\n\n" +
		"/startquiz – begin the quiz\n" +
		"/mytype – show your last result\n" +
		"/census – see how the fairies are distributed"
	b.sendHTML(chatID, text, tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "back_to_menu"),
		),
	))
}

func (b *Bot) sendText(chatID int64, text string) {
	b.sendHTML(chatID, html.EscapeString(text), nil)
}

func (b *Bot) sendHTML(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Error sending message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answerCallback(id, text string, alert bool) {
	cfg := tgbotapi.NewCallback(id, text)
	if alert && text != "" {
		cfg = tgbotapi.NewCallbackWithAlert(id, text)
	}
	if _, err := b.api.Request(cfg); err != nil {
		b.logger.Warn("Error answering callback", "error", err)
	}
}

func menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎯 Start again", "start_quiz"),
			tgbotapi.NewInlineKeyboardButtonData("🔙 Menu", "back_to_menu"),
		),
	)
}

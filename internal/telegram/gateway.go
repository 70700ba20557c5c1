package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var _ service.Gateway = (*Bot)(nil)

type promptKey struct {
	chatID    int64
	messageID int
}

type pendingPrompt struct {
	ctx     service.PromptContext
	text    string
	options []string
	timer   *time.Timer
}

func (p *pendingPrompt) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// PresentChoices sends the prompt with one button per option and arms its
// timeout. A tap that lands before the prompt is registered waits for it in
// handleChoice.
func (b *Bot) PresentChoices(ctx context.Context, p service.Prompt) (service.PromptHandle, error) {
	msg := tgbotapi.NewMessage(p.ChannelID, html.EscapeString(p.Text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = choiceKeyboard(p.Options)

	b.presenting.RLock()
	defer b.presenting.RUnlock()

	sent, err := b.api.Send(msg)
	if err != nil {
		return "", classify(p.ChannelID, err)
	}

	key := promptKey{chatID: p.ChannelID, messageID: sent.MessageID}
	pending := &pendingPrompt{
		ctx:     p.PromptContext,
		text:    p.Text,
		options: append([]string(nil), p.Options...),
	}

	b.mu.Lock()
	closed := b.closed
	if !closed {
		if b.timeout > 0 {
			pending.timer = time.AfterFunc(b.timeout, func() { b.expire(key) })
		}
		b.prompts[key] = pending
	}
	b.mu.Unlock()

	if closed {
		b.logger.Debug("Prompt sent during shutdown, not tracked",
			"user_id", p.UserID, "session_id", p.SessionID, "message_id", sent.MessageID)
	} else {
		b.logger.Debug("Prompt presented",
			"user_id", p.UserID, "session_id", p.SessionID, "step", p.Step.String(), "message_id", sent.MessageID)
	}
	return service.PromptHandle(fmt.Sprintf("%d:%d", key.chatID, key.messageID)), nil
}

// SendMessage delivers a notice or a result card.
func (b *Bot) SendMessage(ctx context.Context, to service.Target, text string, result *service.Result) error {
	chatID := to.ChannelID
	if to.Direct || chatID == 0 {
		chatID = to.UserID
	}

	var msg tgbotapi.MessageConfig
	if result != nil {
		msg = tgbotapi.NewMessage(chatID, formatResult(text, *result))
		msg.ReplyMarkup = menuKeyboard()
	} else {
		msg = tgbotapi.NewMessage(chatID, html.EscapeString(text))
	}
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := b.api.Send(msg); err != nil {
		return classify(chatID, err)
	}
	return nil
}

// ActivePrompts returns how many prompts are waiting for a tap.
func (b *Bot) ActivePrompts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prompts)
}

func (b *Bot) lookup(key promptKey) (*pendingPrompt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.prompts[key]
	return p, ok
}

// await looks a prompt up again once every in-flight PresentChoices call
// has registered its message.
func (b *Bot) await(key promptKey) (*pendingPrompt, bool) {
	b.presenting.Lock()
	defer b.presenting.Unlock()
	return b.lookup(key)
}

// retire forgets a prompt and strips its keyboard. A non-empty text
// replaces the message body.
func (b *Bot) retire(key promptKey, text string) {
	b.mu.Lock()
	p, ok := b.prompts[key]
	if ok {
		p.stop()
		delete(b.prompts, key)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	b.stripKeyboard(key, text)
}

// expire runs when a prompt's timer fires.
func (b *Bot) expire(key promptKey) {
	b.mu.Lock()
	p, ok := b.prompts[key]
	if ok {
		delete(b.prompts, key)
	}
	ctx := b.ctx
	b.mu.Unlock()
	if !ok || b.handler == nil {
		return
	}

	b.stripKeyboard(key, "")

	err := b.handler.HandleTimeout(ctx, service.Timeout{
		UserID:    p.ctx.UserID,
		SessionID: p.ctx.SessionID,
		AtStep:    p.ctx.Step,
	})
	if err != nil {
		b.logger.Warn("Prompt timeout not applied",
			"user_id", p.ctx.UserID, "session_id", p.ctx.SessionID, "step", p.ctx.Step.String(), "error", err)
	}
}

func (b *Bot) stripKeyboard(key promptKey, text string) {
	var edit tgbotapi.Chattable
	if text != "" {
		cfg := tgbotapi.NewEditMessageText(key.chatID, key.messageID, text)
		cfg.ParseMode = tgbotapi.ModeHTML
		edit = cfg
	} else {
		edit = tgbotapi.NewEditMessageReplyMarkup(key.chatID, key.messageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	}
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Warn("Error editing prompt", "chat_id", key.chatID, "message_id", key.messageID, "error", err)
	}
}

// classify maps Telegram refusals to service.ErrDeliveryDenied.
func classify(chatID int64, err error) error {
	if isForbidden(err) {
		return fmt.Errorf("send to chat %d: %w: %w", chatID, service.ErrDeliveryDenied, err)
	}
	return fmt.Errorf("send to chat %d: %w", chatID, err)
}

func isForbidden(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && tgErr.Code == 403
}

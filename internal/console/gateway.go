// Package console plays the quiz in a terminal, one numbered prompt at a
// time.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
)

// QuizHandler receives the events typed at the console.
type QuizHandler interface {
	HandleStart(ctx context.Context, ev service.StartRequested) (*service.Session, error)
	HandleSelection(ctx context.Context, sel service.Selection) error
}

// ErrQuit is returned by Run when the player types "q".
var ErrQuit = errors.New("player quit")

// Gateway renders prompts as numbered lists and reads the answer number
// from its input. Console prompts never expire.
type Gateway struct {
	out    io.Writer
	in     io.Reader
	userID int64
	logger *slog.Logger

	mu      sync.Mutex
	pending *service.Prompt
}

var _ service.Gateway = (*Gateway)(nil)

func NewGateway(in io.Reader, out io.Writer, userID int64, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{in: in, out: out, userID: userID, logger: logger.With("component", "console")}
}

func (g *Gateway) PresentChoices(_ context.Context, p service.Prompt) (service.PromptHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s\n", p.Text)
	for i, option := range p.Options {
		fmt.Fprintf(&sb, "  %d) %s\n", i+1, option)
	}
	if _, err := io.WriteString(g.out, sb.String()); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	prompt := p
	prompt.Options = append([]string(nil), p.Options...)
	g.pending = &prompt
	return service.PromptHandle(p.Step.String()), nil
}

func (g *Gateway) SendMessage(_ context.Context, _ service.Target, text string, result *service.Result) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	body := "\n" + text + "\n"
	if result != nil {
		body += "\n" + result.Summary() + "\n"
	}
	if _, err := io.WriteString(g.out, body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Run starts a quiz for the console user and feeds it answers until the
// result is shown. It returns io.ErrUnexpectedEOF if input ends first.
func (g *Gateway) Run(ctx context.Context, handler QuizHandler, displayName string) error {
	if _, err := handler.HandleStart(ctx, service.StartRequested{UserID: g.userID, DisplayName: displayName}); err != nil {
		g.notify(service.UserMessage(err))
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(g.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		prompt := g.takePending()
		if prompt == nil {
			return nil
		}
		g.write("> ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
			if !ok {
				return io.ErrUnexpectedEOF
			}
		}

		line = strings.TrimSpace(line)
		if strings.EqualFold(line, "q") || strings.EqualFold(line, "quit") {
			return ErrQuit
		}

		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(prompt.Options) {
			g.notify(fmt.Sprintf("Please enter a number between 1 and %d.", len(prompt.Options)))
			g.restore(prompt)
			continue
		}

		err = handler.HandleSelection(ctx, service.Selection{Actor: g.userID, Prompt: prompt.PromptContext, Option: n - 1})
		switch {
		case err == nil:
		case errors.Is(err, service.ErrUndelivered):
			return err
		case errors.Is(err, service.ErrMalformedChoice):
			g.logger.Error("Selection rejected", "step", prompt.Step.String(), "error", err)
			g.notify(service.UserMessage(err))
			g.restore(prompt)
		default:
			g.notify(service.UserMessage(err))
			return err
		}
	}
}

// takePending hands out the current prompt and clears it, so a prompt
// shown while handling the answer is the next one read.
func (g *Gateway) takePending() *service.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.pending
	g.pending = nil
	return p
}

func (g *Gateway) restore(p *service.Prompt) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		g.pending = p
	}
}

func (g *Gateway) notify(text string) {
	g.write(text + "\n")
}

func (g *Gateway) write(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := io.WriteString(g.out, text); err != nil {
		g.logger.Warn("Console write failed", "error", err)
	}
}

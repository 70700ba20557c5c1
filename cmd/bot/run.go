package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
	"github.com/PoluyanbIch/FairyQuizBot/internal/status"
	"github.com/PoluyanbIch/FairyQuizBot/internal/telegram"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the quiz on Telegram",
		Long: `Serve the quiz on Telegram until interrupted.

Requires TELEGRAM_BOT_TOKEN. When STATUS_ADDR is set an HTTP status server
with /healthz, /census and /results/{userID} runs alongside the bot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBot(cmd)
		},
	}
}

func (a *app) runBot(cmd *cobra.Command) error {
	if err := a.cfg.RequireTelegram(); err != nil {
		return err
	}

	catalog := service.LoadCatalog(a.cfg.CatalogPath, a.logger)

	recorder, closeRecorder, err := a.openRecorder()
	if err != nil {
		return err
	}
	defer closeRecorder()

	bot, err := telegram.NewBot(telegram.Options{
		Token:         a.cfg.TelegramToken,
		Debug:         a.cfg.TelegramDebug,
		PromptTimeout: a.cfg.PromptTimeout,
		Results:       recorder,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}

	engine := service.NewEngine(service.EngineOptions{
		Store:    service.NewSessionStore(),
		Catalog:  catalog,
		Gateway:  bot,
		Recorder: recorder,
		Logger:   a.logger,
	})
	bot.Attach(engine)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return bot.Run(ctx)
	})
	if a.cfg.StatusAddr != "" {
		router := status.NewRouter(engine, recorder, a.logger)
		g.Go(func() error {
			return status.Serve(ctx, a.cfg.StatusAddr, router, a.logger)
		})
	}

	a.logger.Info("Bot is starting",
		"questions", len(catalog.Questions), "prompt_timeout", a.cfg.PromptTimeout, "status_addr", a.cfg.StatusAddr)
	err = g.Wait()
	a.logger.Info("Bot stopped", "active_sessions", engine.ActiveSessions())
	return err
}

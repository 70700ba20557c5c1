package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/PoluyanbIch/FairyQuizBot/internal/config"
	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
	"github.com/PoluyanbIch/FairyQuizBot/internal/store"
)

// app is the state shared by all subcommands once the root has loaded
// configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	catalogPath string
	dbPath      string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "bot",
		Short: "Fairy quiz bot",
		Long: `bot runs the fairy quiz: a short questionnaire that reveals which
creature of Irish myth you are. It can serve the quiz on Telegram, play it
in the terminal, and report on past results.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.catalogPath, "config", "", "quiz catalog YAML file (overrides QUIZ_CONFIG)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite results database (overrides DB_PATH)")

	root.AddCommand(
		newRunCmd(a),
		newPlayCmd(a),
		newCatalogCmd(a),
		newResultsCmd(a),
	)
	return root
}

func (a *app) load() error {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.catalogPath != "" {
		cfg.CatalogPath = a.catalogPath
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}

	a.cfg = cfg
	a.logger = cfg.NewLogger()
	slog.SetDefault(a.logger)

	if errors.Is(envErr, fs.ErrNotExist) {
		a.logger.Debug("No .env file found, using environment variables")
	} else if envErr != nil {
		a.logger.Warn("Failed to read .env file", "error", envErr)
	}
	return nil
}

// openRecorder returns the SQLite recorder when a database path is
// configured and an in-memory one otherwise.
func (a *app) openRecorder() (service.ResultRecorder, func(), error) {
	if a.cfg.DBPath == "" {
		a.logger.Info("Using in-memory results; they are lost on restart")
		return service.NewMemoryRecorder(), func() {}, nil
	}

	db, err := store.NewSQLite(a.cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open results database: %w", err)
	}
	a.logger.Info("Results database opened", "path", a.cfg.DBPath)
	return db, func() {
		if err := db.Close(); err != nil {
			a.logger.Error("Failed to close results database", "error", err)
		}
	}, nil
}

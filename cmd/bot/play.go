package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PoluyanbIch/FairyQuizBot/internal/console"
	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
)

func newPlayCmd(a *app) *cobra.Command {
	var (
		name   string
		userID int64
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Take the quiz in the terminal",
		Long: `Take the quiz in the terminal by typing the number of each answer.
Type q to give up. Results are saved when --db or DB_PATH is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recorder, closeRecorder, err := a.openRecorder()
			if err != nil {
				return err
			}
			defer closeRecorder()

			gw := console.NewGateway(cmd.InOrStdin(), cmd.OutOrStdout(), userID, a.logger)
			engine := service.NewEngine(service.EngineOptions{
				Store:    service.NewSessionStore(),
				Catalog:  service.LoadCatalog(a.cfg.CatalogPath, a.logger),
				Gateway:  gw,
				Recorder: recorder,
				Logger:   a.logger,
			})

			err = gw.Run(cmd.Context(), engine, name)
			if errors.Is(err, console.ErrQuit) {
				fmt.Fprintln(cmd.OutOrStdout(), "Farewell, the mists will wait for you.")
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name to greet you by")
	cmd.Flags().Int64Var(&userID, "user-id", 1, "user id results are saved under")
	return cmd
}

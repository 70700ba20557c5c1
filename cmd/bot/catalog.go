package main

import (
	"github.com/spf13/cobra"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
)

func newCatalogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Validate and print the quiz catalog",
		Long: `Validate the quiz catalog named by --config or QUIZ_CONFIG and print it
as YAML. Without a file the built-in catalog is printed, which makes a
good starting point for a custom one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := service.DefaultCatalog()
			if a.cfg.CatalogPath != "" {
				c, err := service.ParseCatalog(a.cfg.CatalogPath)
				if err != nil {
					return err
				}
				catalog = c
			}

			data, err := service.EncodeCatalog(catalog)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

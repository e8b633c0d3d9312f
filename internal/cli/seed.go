package cli

import (
	"github.com/spf13/cobra"

	"voice-quiz-control/internal/config"
	"voice-quiz-control/internal/infra/memory"
	"voice-quiz-control/internal/infra/postgres"
)

// NewSeedCmd writes a question catalog into Postgres, replacing what is stored.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quiz questions into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Quiz.Catalog
			}

			questions := memory.DefaultCatalog()
			if file != "" {
				if questions, err = config.LoadCatalogFile(file); err != nil {
					return err
				}
			}

			db, err := openBunDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrateDB(cmd.Context(), db, log); err != nil {
				return err
			}
			if err := postgres.SeedCatalog(cmd.Context(), db, questions); err != nil {
				return err
			}
			log.Info("catalog seeded", "questions", len(questions), "source", sourceName(file))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML question file (defaults to quiz.catalog, then the built-in set)")
	return cmd
}

func sourceName(file string) string {
	if file == "" {
		return "built-in"
	}
	return file
}

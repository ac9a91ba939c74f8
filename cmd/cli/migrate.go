package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/RyanKung/snaprag/core"
	"github.com/RyanKung/snaprag/pkg/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "install or update the projection schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		lg := newLogger()
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		db, err := core.NewDatabase(cmd.Context(), core.PoolConfig{
			URL:            cfg.Database.URL,
			MaxConnections: cfg.Database.MaxConnections,
			MinConnections: cfg.Database.MinConnections,
			ConnectTimeout: cfg.ConnectionTimeout(),
		}, lg)
		if err != nil {
			return err
		}
		defer db.Close()

		bootstrap := core.NewSchemaBootstrap(db, core.SchemaConfig{
			EmbeddingDimension: cfg.Embeddings.Dimension,
			IndexesEnabled:     cfg.Embeddings.IndexesEnabled,
			IndexLists:         cfg.Embeddings.IndexLists,
		}, lg)
		if err := bootstrap.Install(cmd.Context()); err != nil {
			return err
		}
		cmd.Println("schema up to date")
		return nil
	},
}

// NewMigrateCommand exposes the migrate command.
func NewMigrateCommand() *cobra.Command { return migrateCmd }

// newLogger builds the process logger from the configured logging.level
// (SNAPRAG_LOGGING_LEVEL in the environment).
func newLogger() *logrus.Logger {
	lg := logrus.New()
	if lvl, err := logrus.ParseLevel(levelFromEnv()); err == nil {
		lg.SetLevel(lvl)
	}
	return lg
}

func levelFromEnv() string {
	if cfg, err := config.LoadFromEnv(); err == nil && cfg.Logging.Level != "" {
		return cfg.Logging.Level
	}
	return "info"
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/RyanKung/snaprag/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "inspect the effective configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "load and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromEnv()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.Printf("database: url set, pool %d-%d, connect timeout %s\n",
			cfg.Database.MinConnections, cfg.Database.MaxConnections, cfg.ConnectionTimeout())
		cmd.Printf("snapchain: grpc %s http %s\n", cfg.Snapchain.GRPCEndpoint, cfg.Snapchain.HTTPEndpoint)
		cmd.Printf("sync: shards %v batch %d interval %s workers %d historical=%t realtime=%t\n",
			cfg.Sync.ShardIDs, cfg.Sync.BatchSize, cfg.SyncInterval(),
			cfg.Sync.WorkersPerShard, cfg.Sync.EnableHistoricalSync, cfg.Sync.EnableRealtimeSync)
		cmd.Printf("embeddings: model %s dim %d ann=%t lists=%d\n",
			cfg.Embeddings.Model, cfg.Embeddings.Dimension,
			cfg.Embeddings.IndexesEnabled, cfg.Embeddings.IndexLists)
		cmd.Println("configuration ok")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}

// NewConfigCommand exposes the config command tree.
func NewConfigCommand() *cobra.Command { return configCmd }

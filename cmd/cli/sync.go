package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RyanKung/snaprag/core"
	"github.com/RyanKung/snaprag/pkg/config"
	"github.com/RyanKung/snaprag/pkg/utils"
)

var (
	syncFrom       uint64
	syncTo         uint64
	syncShards     string
	syncWorkers    uint32
	syncBatch      uint32
	syncIntervalMS uint64
	syncStatusAddr string
	syncForce      bool
	syncTestShard  uint32
	syncTestBlock  uint64
)

func init() {
	start := &cobra.Command{
		Use:   "start",
		Short: "run historical + realtime synchronization",
		RunE:  runSyncStart,
	}
	start.Flags().Uint64Var(&syncFrom, "from", 0, "start block height (overrides cursor)")
	start.Flags().Uint64Var(&syncTo, "to", 0, "stop block height (0 = follow the tip)")
	start.Flags().StringVar(&syncShards, "shard", "", "comma separated shard ids (default: config)")
	start.Flags().Uint32Var(&syncWorkers, "workers", 0, "parallel fetchers per shard")
	start.Flags().Uint32Var(&syncBatch, "batch", 0, "blocks per fetch window")
	start.Flags().Uint64Var(&syncIntervalMS, "interval", 0, "poll interval in ms at tip")
	start.Flags().StringVar(&syncStatusAddr, "status-addr", "127.0.0.1:3390", "bind address for the status/metrics endpoint")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "stop a running sync daemon",
		RunE:  runSyncStop,
	}
	stop.Flags().BoolVar(&syncForce, "force", false, "cancel in-flight fetches instead of finishing the current commit")
	stop.Flags().StringVar(&syncStatusAddr, "status-addr", "127.0.0.1:3390", "address of the running daemon")

	status := &cobra.Command{
		Use:   "status",
		Short: "print per-shard sync progress",
		RunE:  runSyncStatus,
	}
	status.Flags().StringVar(&syncStatusAddr, "status-addr", "127.0.0.1:3390", "address of the running daemon")

	test := &cobra.Command{
		Use:   "test",
		Short: "fetch and apply a single block without touching the cursor",
		RunE:  runSyncTest,
	}
	test.Flags().Uint32Var(&syncTestShard, "shard", 1, "shard id")
	test.Flags().Uint64Var(&syncTestBlock, "block", 0, "block height")
	_ = test.MarkFlagRequired("block")

	syncCmd.AddCommand(start, stop, status, test)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "drive the shard ingestion pipeline",
}

// NewSyncCommand exposes the sync command tree.
func NewSyncCommand() *cobra.Command { return syncCmd }

// buildService wires config, store, client and driver for in-process runs.
func buildService(ctx context.Context, lg *logrus.Logger) (*core.SyncService, *core.Database, *core.GRPCHubClient, *config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	applySyncOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, nil, err
	}

	db, err := core.NewDatabase(ctx, core.PoolConfig{
		URL:            cfg.Database.URL,
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MinConnections,
		ConnectTimeout: cfg.ConnectionTimeout(),
	}, lg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	zlog, _ := zap.NewProduction()
	client, err := core.NewGRPCHubClient(cfg.Snapchain.GRPCEndpoint, cfg.Sync.BatchSize, zlog)
	if err != nil {
		db.Close()
		return nil, nil, nil, nil, err
	}

	opts := core.SyncOptions{
		ShardIDs:         cfg.Sync.ShardIDs,
		BatchSize:        cfg.Sync.BatchSize,
		WorkersPerShard:  cfg.Sync.WorkersPerShard,
		SyncInterval:     cfg.SyncInterval(),
		EnableHistorical: cfg.Sync.EnableHistoricalSync,
		EnableRealtime:   cfg.Sync.EnableRealtimeSync,
	}
	if syncFrom > 0 {
		from := syncFrom
		opts.StartBlockHeight = &from
	}
	if syncTo > 0 {
		to := syncTo
		opts.StopBlockHeight = &to
	}

	writer := core.NewWriter(db.Pool(), lg)
	cursors := core.NewCursorStore(db.Pool(), lg)
	metrics := core.NewMetrics(nil)
	svc := core.NewSyncService(client, writer, cursors, opts, metrics, lg)
	return svc, db, client, cfg, nil
}

// applySyncOverrides folds command-line flags into the loaded config.
func applySyncOverrides(cfg *config.Config) {
	if ids := utils.ParseShardIDs(syncShards); len(ids) > 0 {
		cfg.Sync.ShardIDs = ids
	}
	if syncBatch > 0 {
		cfg.Sync.BatchSize = syncBatch
	}
	if syncWorkers > 0 {
		cfg.Sync.WorkersPerShard = syncWorkers
	}
	if syncIntervalMS > 0 {
		cfg.Sync.IntervalMS = syncIntervalMS
	}
}

func runSyncStart(cmd *cobra.Command, args []string) error {
	lg := newLogger()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc, db, client, cfg, err := buildService(ctx, lg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer client.Close()

	bootstrap := core.NewSchemaBootstrap(db, core.SchemaConfig{
		EmbeddingDimension: cfg.Embeddings.Dimension,
		IndexesEnabled:     cfg.Embeddings.IndexesEnabled,
		IndexLists:         cfg.Embeddings.IndexLists,
	}, lg)
	if err := bootstrap.Install(ctx); err != nil {
		return err
	}

	statusSrv := core.NewStatusServer(syncStatusAddr, db, svc, lg)
	statusSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = statusSrv.Shutdown(shutdownCtx)
	}()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case sig := <-sigCh:
		lg.WithField("signal", sig.String()).Info("shutting down")
		svc.Stop(false)
		svc.Wait()
	case <-done:
	}
	printStatusTable(cmd, svc.Status())
	return nil
}

func runSyncStop(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("http://%s/stop", syncStatusAddr)
	if syncForce {
		url += "?force=true"
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return utils.Wrap(err, "reach sync daemon")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sync daemon refused stop: %s", resp.Status)
	}
	if syncForce {
		cmd.Println("force stop requested")
	} else {
		cmd.Println("graceful stop requested")
	}
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("http://%s/status", syncStatusAddr)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return utils.Wrap(err, "reach sync daemon")
	}
	defer resp.Body.Close()
	var payload struct {
		RunID  string                        `json:"run_id"`
		Shards map[uint32]core.ShardSnapshot `json:"shards"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return utils.Wrap(err, "decode status")
	}
	if payload.RunID != "" {
		cmd.Printf("run: %s\n", payload.RunID)
	}
	printStatusTable(cmd, payload.Shards)
	return nil
}

func printStatusTable(cmd *cobra.Command, shards map[uint32]core.ShardSnapshot) {
	ids := make([]uint32, 0, len(shards))
	for id := range shards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		snap := shards[id]
		line := fmt.Sprintf("shard %d: %s cursor=%d blocks=%d msgs=%d",
			id, snap.Status, snap.Cursor, snap.BlocksProcessed, snap.MessagesProcessed)
		if n := len(snap.Errors); n > 0 {
			line += fmt.Sprintf(" last_error=%q", snap.Errors[n-1])
		}
		cmd.Println(line)
	}
}

func runSyncTest(cmd *cobra.Command, args []string) error {
	lg := newLogger()
	ctx := cmd.Context()
	svc, db, client, _, err := buildService(ctx, lg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer client.Close()

	batch, err := svc.PollOnce(ctx, syncTestShard, syncTestBlock)
	if err != nil {
		return err
	}
	cmd.Printf("shard %d block %d: rows=%d msgs=%d warnings=%d\n",
		syncTestShard, syncTestBlock, batch.RowCount(), batch.MessageCount, batch.DecodeWarnings)
	return nil
}

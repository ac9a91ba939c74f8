package core

// Per-shard durable progress plus ephemeral run stats. The cursor lives in
// the projection database. The driver advances it in a small transaction
// committed right after the batch commit; a crash between the two re-applies
// at most one batch on restart, which hash idempotency makes a no-op.

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/RyanKung/snaprag/pkg/utils"
)

const (
	loadCursorSQL = `SELECT last_applied_block FROM shard_cursors WHERE shard_id = $1`

	loadAllCursorsSQL = `SELECT shard_id, last_applied_block FROM shard_cursors ORDER BY shard_id`

	advanceCursorSQL = `INSERT INTO shard_cursors (shard_id, last_applied_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (shard_id) DO UPDATE
		SET last_applied_block = EXCLUDED.last_applied_block, updated_at = now()
		WHERE shard_cursors.last_applied_block < EXCLUDED.last_applied_block`
)

// cursorConn is satisfied by *pgxpool.Pool and by test fakes.
type cursorConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// CursorStore persists shard cursors.
type CursorStore struct {
	db     cursorConn
	logger *logrus.Logger
}

// NewCursorStore wires the store.
func NewCursorStore(db cursorConn, lg *logrus.Logger) *CursorStore {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &CursorStore{db: db, logger: lg}
}

// Load returns the last applied block for the shard; ok is false when the
// shard has never committed.
func (s *CursorStore) Load(ctx context.Context, shardID uint32) (uint64, bool, error) {
	var block int64
	err := s.db.QueryRow(ctx, loadCursorSQL, int32(shardID)).Scan(&block)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, utils.Wrap(err, "load cursor")
	}
	return uint64(block), true, nil
}

// LoadAll returns every shard cursor.
func (s *CursorStore) LoadAll(ctx context.Context) (map[uint32]uint64, error) {
	rows, err := s.db.Query(ctx, loadAllCursorsSQL)
	if err != nil {
		return nil, utils.Wrap(err, "load cursors")
	}
	defer rows.Close()
	out := make(map[uint32]uint64)
	for rows.Next() {
		var shard int32
		var block int64
		if err := rows.Scan(&shard, &block); err != nil {
			return nil, utils.Wrap(err, "scan cursor")
		}
		out[uint32(shard)] = uint64(block)
	}
	return out, rows.Err()
}

// Advance moves the cursor forward. It is strictly monotonic: a newBlock at
// or below the stored value returns ErrCursorRegression, which callers
// treat as fatal for the shard — it indicates a driver bug, not bad input.
func (s *CursorStore) Advance(ctx context.Context, shardID uint32, newBlock uint64) error {
	tag, err := s.db.Exec(ctx, advanceCursorSQL, int32(shardID), int64(newBlock))
	if err != nil {
		return utils.Wrap(err, "advance cursor")
	}
	if tag.RowsAffected() == 0 {
		return utils.Wrapf(ErrCursorRegression, "shard %d block %d", shardID, newBlock)
	}
	return nil
}

//---------------------------------------------------------------------
// Run stats and shard state
//---------------------------------------------------------------------

// ShardStatus is the lifecycle state of one shard driver.
type ShardStatus string

const (
	StatusNotStarted ShardStatus = "NotStarted"
	StatusCatchingUp ShardStatus = "CatchingUp"
	StatusRealtime   ShardStatus = "Realtime"
	StatusPaused     ShardStatus = "Paused"
	StatusCompleted  ShardStatus = "Completed"
	StatusFailed     ShardStatus = "Failed"
)

// errorsTailSize bounds the per-shard error ring buffer.
const errorsTailSize = 16

// ShardSnapshot is the externally visible state of one shard.
type ShardSnapshot struct {
	ShardID           uint32      `json:"shard_id"`
	Status            ShardStatus `json:"status"`
	Cursor            uint64      `json:"cursor"`
	BlocksProcessed   uint64      `json:"blocks_processed"`
	MessagesProcessed uint64      `json:"messages_processed"`
	LastBlockNumber   *uint64     `json:"last_block_number,omitempty"`
	Errors            []string    `json:"errors,omitempty"`
}

// shardState is the mutable per-shard record inside SyncState.
type shardState struct {
	status            ShardStatus
	cursor            uint64
	blocksProcessed   uint64
	messagesProcessed uint64
	lastBlockNumber   *uint64
	errors            []string
}

// SyncState tracks every driven shard for status reporting. All methods are
// safe for concurrent use by the shard drivers.
type SyncState struct {
	mu     sync.RWMutex
	runID  string
	shards map[uint32]*shardState
}

// NewSyncState returns an empty state tagged with the run id.
func NewSyncState(runID string) *SyncState {
	return &SyncState{
		runID:  runID,
		shards: make(map[uint32]*shardState),
	}
}

// RunID identifies this sync run in status output.
func (s *SyncState) RunID() string { return s.runID }

func (s *SyncState) shard(shardID uint32) *shardState {
	st, ok := s.shards[shardID]
	if !ok {
		st = &shardState{status: StatusNotStarted}
		s.shards[shardID] = st
	}
	return st
}

// SetStatus transitions the shard's lifecycle state.
func (s *SyncState) SetStatus(shardID uint32, status ShardStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shard(shardID).status = status
}

// Status returns the shard's current lifecycle state.
func (s *SyncState) Status(shardID uint32) ShardStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.shards[shardID]; ok {
		return st.status
	}
	return StatusNotStarted
}

// SetCursor records the committed cursor for status output.
func (s *SyncState) SetCursor(shardID uint32, block uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shard(shardID).cursor = block
}

// RecordChunk updates the ephemeral counters after one committed chunk.
// lastBlock keeps the maximum block number seen.
func (s *SyncState) RecordChunk(shardID uint32, blockNumber *uint64, msgCount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.shard(shardID)
	st.blocksProcessed++
	st.messagesProcessed += msgCount
	if blockNumber != nil {
		if st.lastBlockNumber == nil || *blockNumber > *st.lastBlockNumber {
			v := *blockNumber
			st.lastBlockNumber = &v
		}
	}
}

// RecordError appends to the shard's bounded error tail.
func (s *SyncState) RecordError(shardID uint32, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.shard(shardID)
	st.errors = append(st.errors, msg)
	if len(st.errors) > errorsTailSize {
		st.errors = st.errors[len(st.errors)-errorsTailSize:]
	}
}

// Snapshot returns a copy of every shard's state keyed by shard id; the map
// carries no ordering.
func (s *SyncState) Snapshot() map[uint32]ShardSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint32]ShardSnapshot, len(s.shards))
	for id, st := range s.shards {
		snap := ShardSnapshot{
			ShardID:           id,
			Status:            st.status,
			Cursor:            st.cursor,
			BlocksProcessed:   st.blocksProcessed,
			MessagesProcessed: st.messagesProcessed,
			Errors:            append([]string(nil), st.errors...),
		}
		if st.lastBlockNumber != nil {
			v := *st.lastBlockNumber
			snap.LastBlockNumber = &v
		}
		out[id] = snap
	}
	return out
}

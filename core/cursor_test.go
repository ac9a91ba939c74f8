package core

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeCursorConn mimics the shard_cursors table semantics.
type fakeCursorConn struct {
	cursors map[int32]int64
}

func newFakeCursorConn() *fakeCursorConn {
	return &fakeCursorConn{cursors: make(map[int32]int64)}
}

func (c *fakeCursorConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	shard := args[0].(int32)
	block := args[1].(int64)
	cur, ok := c.cursors[shard]
	if ok && cur >= block {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	c.cursors[shard] = block
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (c *fakeCursorConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	shard := args[0].(int32)
	cur, ok := c.cursors[shard]
	if !ok {
		return &fakeCursorRow{err: pgx.ErrNoRows}
	}
	return &fakeCursorRow{block: cur}
}

func (c *fakeCursorConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

type fakeCursorRow struct {
	block int64
	err   error
}

func (r *fakeCursorRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.block
	return nil
}

func TestCursorLoadAdvance(t *testing.T) {
	ctx := context.Background()
	store := NewCursorStore(newFakeCursorConn(), nil)

	if _, ok, err := store.Load(ctx, 1); err != nil || ok {
		t.Fatalf("fresh load: ok=%t err=%v", ok, err)
	}
	if err := store.Advance(ctx, 1, 10); err != nil {
		t.Fatalf("advance: %v", err)
	}
	block, ok, err := store.Load(ctx, 1)
	if err != nil || !ok || block != 10 {
		t.Fatalf("load: block=%d ok=%t err=%v", block, ok, err)
	}
	if err := store.Advance(ctx, 1, 11); err != nil {
		t.Fatalf("advance 11: %v", err)
	}

	// Regression attempts are fatal.
	for _, bad := range []uint64{11, 5} {
		err := store.Advance(ctx, 1, bad)
		if !errors.Is(err, ErrCursorRegression) {
			t.Fatalf("advance to %d: err=%v want ErrCursorRegression", bad, err)
		}
	}

	// Other shards are independent.
	if err := store.Advance(ctx, 2, 3); err != nil {
		t.Fatalf("shard 2 advance: %v", err)
	}
}

func TestSyncStateRecordChunk(t *testing.T) {
	s := NewSyncState("test-run")
	b5, b3 := uint64(5), uint64(3)
	s.RecordChunk(1, &b5, 10)
	s.RecordChunk(1, &b3, 2)
	s.RecordChunk(1, nil, 1)

	snap := s.Snapshot()[1]
	if snap.BlocksProcessed != 3 {
		t.Fatalf("blocks=%d want 3", snap.BlocksProcessed)
	}
	if snap.MessagesProcessed != 13 {
		t.Fatalf("messages=%d want 13", snap.MessagesProcessed)
	}
	if snap.LastBlockNumber == nil || *snap.LastBlockNumber != 5 {
		t.Fatalf("last block=%v want 5", snap.LastBlockNumber)
	}
}

func TestSyncStateErrorsTail(t *testing.T) {
	s := NewSyncState("test-run")
	for i := 0; i < errorsTailSize+5; i++ {
		s.RecordError(1, "boom")
	}
	if n := len(s.Snapshot()[1].Errors); n != errorsTailSize {
		t.Fatalf("errors tail=%d want %d", n, errorsTailSize)
	}
}

func TestSyncStateStatusTransitions(t *testing.T) {
	s := NewSyncState("test-run")
	if got := s.Status(1); got != StatusNotStarted {
		t.Fatalf("initial status=%s", got)
	}
	for _, st := range []ShardStatus{StatusCatchingUp, StatusRealtime, StatusPaused, StatusCompleted, StatusFailed} {
		s.SetStatus(1, st)
		if got := s.Status(1); got != st {
			t.Fatalf("status=%s want %s", got, st)
		}
	}
}

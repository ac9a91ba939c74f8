package core

// Error taxonomy for the ingestion pipeline. Transient errors are retried
// locally (bounded, jittered); permanent errors surface to the driver and
// mark the shard Failed. Cursor regression is fatal: it indicates a bug, not
// an environmental condition.

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrCursorRegression reports an attempt to advance a shard cursor to a
	// block at or below its current value.
	ErrCursorRegression = errors.New("cursor advance is not monotonic")

	// ErrStopped reports that a shard driver observed its stop signal.
	ErrStopped = errors.New("sync stopped")

	// ErrShardUnknown reports a shard id the hub does not serve.
	ErrShardUnknown = errors.New("shard not reported by hub")
)

// IsTransientRPC reports whether a hub error is worth retrying.
func IsTransientRPC(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
			codes.Aborted, codes.Internal:
			return true
		}
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsPermanentRPC reports an upstream error that retrying cannot fix.
func IsPermanentRPC(err error) bool {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.InvalidArgument, codes.Unimplemented:
			return true
		}
	}
	return false
}

// IsTransientStore reports a store error safe to retry at the transaction
// boundary: serialization failures, deadlocks, and dropped connections. The
// whole batch is re-applied; hash idempotency makes that safe.
func IsTransientStore(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08") // connection_exception class
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

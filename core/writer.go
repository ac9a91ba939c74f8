package core

// Projection writer: applies one BatchedData atomically. Statement
// construction is pure (buildStatements) so the fixed dependency order is
// testable without a store; Apply wraps it in a transaction and layers the
// last-writer-wins profile pass on top. The writer never advances the
// cursor — that is the driver's job, after commit.

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/RyanKung/snaprag/pkg/utils"
)

// txBeginner is satisfied by *pgxpool.Pool and by test fakes.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// statement is one parameterized SQL command.
type statement struct {
	SQL  string
	Args []any
}

const (
	insertPlaceholderProfileSQL = `INSERT INTO user_profiles (fid) VALUES ($1) ON CONFLICT (fid) DO NOTHING`

	insertCastSQL = `INSERT INTO casts
		(hash, fid, text, "timestamp", parent_hash, parent_fid, mentions, embeds, shard_id, block_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hash) DO NOTHING`

	insertLinkSQL = `INSERT INTO links
		(hash, fid, target_fid, link_type, "timestamp", shard_id, block_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO NOTHING`

	insertReactionSQL = `INSERT INTO reactions
		(hash, fid, target_cast_hash, target_fid, reaction_type, "timestamp", shard_id, block_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (hash) DO NOTHING`

	insertVerificationSQL = `INSERT INTO verifications
		(hash, fid, address, claim_signature, block_hash, verification_type, chain_id, "timestamp", shard_id, block_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hash) DO NOTHING`

	insertActivitySQL = `INSERT INTO activities
		(fid, activity_type, activity_data, "timestamp", message_hash, shard_id, block_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_hash) DO NOTHING`

	insertUsernameProofSQL = `INSERT INTO username_proofs
		(hash, fid, name, owner, proof_type, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hash) DO NOTHING`

	selectProfileFieldSQL = `SELECT %s FROM user_profiles WHERE fid = $1`

	// The update applies only when no audit row for (fid, field) already
	// carries a greater-or-equal (timestamp, hash). Because the matching
	// audit row is inserted after this statement, replaying the same batch
	// finds its own earlier audit row and becomes a no-op.
	updateProfileFieldSQL = `UPDATE user_profiles SET %s = $2, updated_at = now()
		WHERE fid = $1 AND NOT EXISTS (
			SELECT 1 FROM user_data_changes c
			WHERE c.fid = $1 AND c.field_name = $3
			  AND (c."timestamp" > $4 OR (c."timestamp" = $4 AND c.message_hash >= $5))
		)`

	insertProfileSnapshotSQL = `INSERT INTO profile_snapshots (fid, snapshot, "timestamp", message_hash)
		SELECT fid, to_jsonb(user_profiles.*) - 'bio_embedding', $2, $3
		FROM user_profiles WHERE fid = $1
		ON CONFLICT (message_hash) DO NOTHING`

	insertUserDataChangeSQL = `INSERT INTO user_data_changes
		(fid, field_name, old_value, new_value, "timestamp", message_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_hash) DO NOTHING`
)

// profileColumns is the closed set of mutable user_profiles columns. Field
// names always come from userDataFieldNames, but the writer re-checks before
// splicing one into SQL.
var profileColumns = func() map[string]struct{} {
	cols := make(map[string]struct{}, len(userDataFieldNames))
	for _, name := range userDataFieldNames {
		cols[name] = struct{}{}
	}
	return cols
}()

// buildStatements produces the bulk-upsert statements of a batch in the
// fixed dependency order: placeholder profiles first, then the immutable
// row kinds. Profile updates are excluded; they need read-back and run
// after these inside the same transaction.
func buildStatements(b *BatchedData) []statement {
	var stmts []statement

	fids := make([]int64, 0, len(b.FIDsToEnsure))
	for fid := range b.FIDsToEnsure {
		fids = append(fids, fid)
	}
	sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })
	for _, fid := range fids {
		stmts = append(stmts, statement{insertPlaceholderProfileSQL, []any{fid}})
	}

	for _, c := range b.Casts {
		stmts = append(stmts, statement{insertCastSQL, []any{
			c.Hash, c.FID, c.Text, c.Timestamp, nilIfEmpty(c.ParentHash), c.ParentFID,
			c.Mentions, c.Embeds, int32(c.Block.ShardID), int64(c.Block.BlockHeight),
		}})
	}
	for _, l := range b.Links {
		stmts = append(stmts, statement{insertLinkSQL, []any{
			l.Hash, l.FID, l.TargetFID, l.LinkType, l.Timestamp,
			int32(l.Block.ShardID), int64(l.Block.BlockHeight),
		}})
	}
	for _, r := range b.Reactions {
		stmts = append(stmts, statement{insertReactionSQL, []any{
			r.Hash, r.FID, r.TargetCastHash, r.TargetFID, r.ReactionType,
			r.Timestamp, int32(r.Block.ShardID), int64(r.Block.BlockHeight),
		}})
	}
	for _, v := range b.Verifications {
		stmts = append(stmts, statement{insertVerificationSQL, []any{
			v.Hash, v.FID, v.Address, nilIfEmpty(v.ClaimSignature), nilIfEmpty(v.BlockHash),
			v.VerificationType, v.ChainID, v.Timestamp,
			int32(v.Block.ShardID), int64(v.Block.BlockHeight),
		}})
	}
	for _, a := range b.Activities {
		stmts = append(stmts, statement{insertActivitySQL, []any{
			a.FID, a.ActivityType, a.ActivityData, a.Timestamp, a.Hash,
			a.ShardID, a.BlockHeight,
		}})
	}
	for _, u := range b.UsernameProofs {
		stmts = append(stmts, statement{insertUsernameProofSQL, []any{
			u.Hash, u.FID, u.Name, u.Owner, u.ProofType, u.Timestamp,
		}})
	}
	return stmts
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// sortProfileUpdates orders updates by (fid, field, timestamp, hash) so that
// in-batch sequences replay the audit trail in last-writer-wins order and
// the final stored value matches the greatest (timestamp, hash).
func sortProfileUpdates(updates []ProfileUpdate) {
	sort.SliceStable(updates, func(i, j int) bool {
		a, b := updates[i], updates[j]
		if a.FID != b.FID {
			return a.FID < b.FID
		}
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return bytes.Compare(a.Hash, b.Hash) < 0
	})
}

// Writer applies batches to the projection store.
type Writer struct {
	db     txBeginner
	logger *logrus.Logger
}

// NewWriter wires a writer over the shared pool (or a fake in tests).
func NewWriter(db txBeginner, lg *logrus.Logger) *Writer {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Writer{db: db, logger: lg}
}

// Apply commits the batch in one transaction, retrying whole-batch on
// transient store failures. Re-running with the same input yields the same
// final state.
func (w *Writer) Apply(ctx context.Context, batch *BatchedData) error {
	if batch == nil || batch.IsEmpty() {
		return nil
	}
	op := func() error {
		err := w.applyOnce(ctx, batch)
		if err == nil {
			return nil
		}
		if IsTransientStore(err) && ctx.Err() == nil {
			w.logger.WithError(err).Warn("batch apply retrying")
			return err
		}
		return backoff.Permanent(err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx))
}

func (w *Writer) applyOnce(ctx context.Context, batch *BatchedData) (err error) {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return utils.Wrap(err, "begin batch tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	pb := &pgx.Batch{}
	for _, stmt := range buildStatements(batch) {
		pb.Queue(stmt.SQL, stmt.Args...)
	}
	if pb.Len() > 0 {
		br := tx.SendBatch(ctx, pb)
		for i := 0; i < pb.Len(); i++ {
			if _, execErr := br.Exec(); execErr != nil {
				_ = br.Close()
				return utils.Wrap(execErr, "bulk upsert")
			}
		}
		if err = br.Close(); err != nil {
			return utils.Wrap(err, "close batch results")
		}
	}

	updates := append([]ProfileUpdate(nil), batch.ProfileUpdates...)
	sortProfileUpdates(updates)
	for _, u := range updates {
		if err = w.applyProfileUpdate(ctx, tx, u); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return utils.Wrap(err, "commit batch")
	}
	return nil
}

// applyProfileUpdate performs one guarded last-writer-wins field mutation
// plus its audit row. Order within matters: the guard compares against
// audit rows, so the audit insert comes last.
func (w *Writer) applyProfileUpdate(ctx context.Context, tx pgx.Tx, u ProfileUpdate) error {
	if _, ok := profileColumns[u.Field]; !ok {
		return fmt.Errorf("profile update for unknown column %q", u.Field)
	}

	var oldValue *string
	selectSQL := fmt.Sprintf(selectProfileFieldSQL, u.Field)
	if err := tx.QueryRow(ctx, selectSQL, u.FID).Scan(&oldValue); err != nil && err != pgx.ErrNoRows {
		return utils.Wrap(err, "read profile field")
	}

	updateSQL := fmt.Sprintf(updateProfileFieldSQL, u.Field)
	tag, err := tx.Exec(ctx, updateSQL, u.FID, u.Value, u.Field, u.Timestamp, u.Hash)
	if err != nil {
		return utils.Wrap(err, "update profile field")
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx, insertProfileSnapshotSQL, u.FID, u.Timestamp, u.Hash); err != nil {
			return utils.Wrap(err, "insert profile snapshot")
		}
	}

	if _, err := tx.Exec(ctx, insertUserDataChangeSQL,
		u.FID, u.Field, oldValue, u.Value, u.Timestamp, u.Hash); err != nil {
		return utils.Wrap(err, "insert user data change")
	}
	return nil
}

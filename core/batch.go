package core

import "encoding/json"

// ShardBlockInfo records where a row was observed, for provenance columns.
type ShardBlockInfo struct {
	ShardID     uint32
	BlockHeight uint64
}

// CastRow is one row destined for the casts table.
type CastRow struct {
	FID        int64
	Text       string
	Timestamp  int64
	Hash       []byte
	ParentHash []byte
	ParentFID  *int64
	Mentions   json.RawMessage
	Embeds     json.RawMessage
	Block      ShardBlockInfo
}

// LinkRow is one graph edge. Hash disambiguates re-adds of the same
// (fid, target_fid, link_type) edge.
type LinkRow struct {
	FID       int64
	TargetFID int64
	LinkType  string
	Timestamp int64
	Hash      []byte
	Block     ShardBlockInfo
}

// ReactionRow targets a cast by hash.
type ReactionRow struct {
	FID            int64
	TargetCastHash []byte
	TargetFID      *int64
	ReactionType   int16
	Timestamp      int64
	Hash           []byte
	Block          ShardBlockInfo
}

// VerificationRow proves ownership of an external address. Address is stored
// normalized (lower-case, 0x-prefixed).
type VerificationRow struct {
	FID              int64
	Address          string
	ClaimSignature   []byte
	BlockHash        []byte
	VerificationType *int16
	ChainID          *int32
	Timestamp        int64
	Hash             []byte
	Block            ShardBlockInfo
}

// ActivityRow is a denormalized timeline entry with an opaque JSON payload.
type ActivityRow struct {
	FID          int64
	ActivityType string
	ActivityData json.RawMessage
	Timestamp    int64
	Hash         []byte
	ShardID      *int32
	BlockHeight  *int64
}

// ProfileUpdate is one last-writer-wins mutation of a user_profiles field.
// The same tuple is also written to the user_data_changes audit trail.
type ProfileUpdate struct {
	FID       int64
	Field     string
	Value     *string
	Timestamp int64
	Hash      []byte
}

// UsernameProofRow records a name-ownership proof or fname transfer.
type UsernameProofRow struct {
	FID       int64
	Name      string
	Owner     string
	Timestamp int64
	ProofType int16
	Hash      []byte
}

// BatchedData accumulates the decoded rows of one chunk (or one worker
// window). It is populated by the Processor and consumed whole by the
// Writer; it never touches the store itself.
type BatchedData struct {
	Casts          []CastRow
	Links          []LinkRow
	Reactions      []ReactionRow
	Verifications  []VerificationRow
	Activities     []ActivityRow
	UsernameProofs []UsernameProofRow
	ProfileUpdates []ProfileUpdate

	// FIDsToEnsure lists every fid referenced by any collected row; the
	// Writer materializes placeholder profiles for them first.
	FIDsToEnsure map[int64]struct{}

	// UnknownTypes counts skipped messages by their unrecognised type.
	UnknownTypes map[uint32]uint64
	// DecodeWarnings counts messages dropped for malformed bodies.
	DecodeWarnings uint64

	// MaxBlock is the highest block number observed while filling the batch.
	MaxBlock uint64
	// MessageCount is the number of user messages inspected.
	MessageCount uint64
}

// NewBatchedData returns an empty accumulator.
func NewBatchedData() *BatchedData {
	return &BatchedData{
		FIDsToEnsure: make(map[int64]struct{}),
		UnknownTypes: make(map[uint32]uint64),
	}
}

// EnsureFID registers a fid for placeholder materialization. Zero fids are
// ignored; the hub uses 0 as "absent".
func (b *BatchedData) EnsureFID(fid int64) {
	if fid > 0 {
		b.FIDsToEnsure[fid] = struct{}{}
	}
}

// IsEmpty reports whether the batch carries no writable rows.
func (b *BatchedData) IsEmpty() bool {
	return len(b.Casts) == 0 && len(b.Links) == 0 && len(b.Reactions) == 0 &&
		len(b.Verifications) == 0 && len(b.Activities) == 0 &&
		len(b.UsernameProofs) == 0 && len(b.ProfileUpdates) == 0 &&
		len(b.FIDsToEnsure) == 0
}

// RowCount totals the writable rows across all buckets.
func (b *BatchedData) RowCount() int {
	return len(b.Casts) + len(b.Links) + len(b.Reactions) +
		len(b.Verifications) + len(b.Activities) +
		len(b.UsernameProofs) + len(b.ProfileUpdates)
}

// Merge appends other's buckets into b. Used when a worker window spans
// several chunks committed as one batch.
func (b *BatchedData) Merge(other *BatchedData) {
	if other == nil {
		return
	}
	b.Casts = append(b.Casts, other.Casts...)
	b.Links = append(b.Links, other.Links...)
	b.Reactions = append(b.Reactions, other.Reactions...)
	b.Verifications = append(b.Verifications, other.Verifications...)
	b.Activities = append(b.Activities, other.Activities...)
	b.UsernameProofs = append(b.UsernameProofs, other.UsernameProofs...)
	b.ProfileUpdates = append(b.ProfileUpdates, other.ProfileUpdates...)
	for fid := range other.FIDsToEnsure {
		b.FIDsToEnsure[fid] = struct{}{}
	}
	for typ, n := range other.UnknownTypes {
		b.UnknownTypes[typ] += n
	}
	b.DecodeWarnings += other.DecodeWarnings
	if other.MaxBlock > b.MaxBlock {
		b.MaxBlock = other.MaxBlock
	}
	b.MessageCount += other.MessageCount
}

package core

// Wire model for the snapchain HubService. The proto is compiled separately
// upstream; the structs here mirror it field-for-field (see hub_wire.go for
// the encoding) so the client does not depend on generated code. JSON tags
// follow the hub's HTTP representation.

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType enumerates user message kinds. The enum is closed but
// extensible: unknown values are carried through and skipped by the
// processor rather than rejected.
type MessageType uint32

const (
	MessageTypeNone             MessageType = 0
	MessageTypeCastAdd          MessageType = 1
	MessageTypeCastRemove       MessageType = 2
	MessageTypeReactionAdd      MessageType = 3
	MessageTypeReactionRemove   MessageType = 4
	MessageTypeLinkAdd          MessageType = 5
	MessageTypeLinkRemove       MessageType = 6
	MessageTypeVerificationAdd  MessageType = 7
	MessageTypeUserDataAdd      MessageType = 11
	MessageTypeUsernameProof    MessageType = 12
	MessageTypeFrameAction      MessageType = 13
	MessageTypeLinkCompactState MessageType = 14
	MessageTypeLendStorage      MessageType = 15
)

var messageTypeNames = map[string]MessageType{
	"MESSAGE_TYPE_CAST_ADD":               MessageTypeCastAdd,
	"MESSAGE_TYPE_CAST_REMOVE":            MessageTypeCastRemove,
	"MESSAGE_TYPE_REACTION_ADD":           MessageTypeReactionAdd,
	"MESSAGE_TYPE_REACTION_REMOVE":        MessageTypeReactionRemove,
	"MESSAGE_TYPE_LINK_ADD":               MessageTypeLinkAdd,
	"MESSAGE_TYPE_LINK_REMOVE":            MessageTypeLinkRemove,
	"MESSAGE_TYPE_VERIFICATION_ADD_ETH_ADDRESS": MessageTypeVerificationAdd,
	"MESSAGE_TYPE_USER_DATA_ADD":          MessageTypeUserDataAdd,
	"MESSAGE_TYPE_USERNAME_PROOF":         MessageTypeUsernameProof,
	"MESSAGE_TYPE_FRAME_ACTION":           MessageTypeFrameAction,
	"MESSAGE_TYPE_LINK_COMPACT_STATE":     MessageTypeLinkCompactState,
	"MESSAGE_TYPE_LEND_STORAGE":           MessageTypeLendStorage,
}

// UnmarshalJSON accepts both the numeric enum and the hub's string form.
func (t *MessageType) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if v, ok := messageTypeNames[s]; ok {
			*t = v
			return nil
		}
		// Unknown string kinds map to zero; the processor counts them.
		*t = MessageTypeNone
		return nil
	}
	var n uint32
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = MessageType(n)
	return nil
}

// OnChainEventType enumerates system message kinds delivered by the chain.
type OnChainEventType uint32

const (
	OnChainEventTypeSigner         OnChainEventType = 1
	OnChainEventTypeSignerMigrated OnChainEventType = 2
	OnChainEventTypeIDRegister     OnChainEventType = 3
	OnChainEventTypeStorageRent    OnChainEventType = 4
	OnChainEventTypeTierPurchase   OnChainEventType = 5
)

// Name returns the activity-type string the projection stores for an
// on-chain event.
func (t OnChainEventType) Name() string {
	switch t {
	case OnChainEventTypeSigner:
		return "on_chain_signer"
	case OnChainEventTypeSignerMigrated:
		return "on_chain_signer_migrated"
	case OnChainEventTypeIDRegister:
		return "on_chain_id_register"
	case OnChainEventTypeStorageRent:
		return "on_chain_storage_rent"
	case OnChainEventTypeTierPurchase:
		return "on_chain_tier_purchase"
	default:
		return fmt.Sprintf("on_chain_unknown_%d", uint32(t))
	}
}

// HexBytes is a byte slice rendered as 0x-prefixed hex in JSON, matching the
// hub's HTTP representation of hashes, addresses and signatures.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("hex field: %w", err)
	}
	*h = raw
	return nil
}

// BlockHeight identifies a block within a shard. Block numbers are
// shard-local.
type BlockHeight struct {
	ShardIndex  uint32 `json:"shard_index"`
	BlockNumber uint64 `json:"block_number"`
}

// ShardHeader carries chunk-level metadata.
type ShardHeader struct {
	Height     *BlockHeight `json:"height"`
	Timestamp  uint64       `json:"timestamp"`
	ParentHash HexBytes     `json:"parent_hash,omitempty"`
	ShardRoot  HexBytes     `json:"shard_root,omitempty"`
}

// ShardChunk is the unit of upstream delivery: the ordered transactions of
// one shard at one block height. Immutable once observed.
type ShardChunk struct {
	Header       *ShardHeader   `json:"header"`
	Hash         HexBytes       `json:"hash,omitempty"`
	Transactions []*Transaction `json:"transactions"`
}

// BlockNumber returns the chunk's block height, or false when the header is
// absent (malformed chunks from a lagging hub).
func (c *ShardChunk) BlockNumber() (uint64, bool) {
	if c == nil || c.Header == nil || c.Header.Height == nil {
		return 0, false
	}
	return c.Header.Height.BlockNumber, true
}

// MessageCount counts the user messages across the chunk's transactions.
func (c *ShardChunk) MessageCount() uint64 {
	if c == nil {
		return 0
	}
	var n uint64
	for _, tx := range c.Transactions {
		if tx != nil {
			n += uint64(len(tx.UserMessages))
		}
	}
	return n
}

// Transaction groups the user and system messages applied for one fid at one
// block. It has no independent identity in the projection.
type Transaction struct {
	FID            uint64           `json:"fid"`
	UserMessages   []*UserMessage   `json:"user_messages"`
	SystemMessages []*SystemMessage `json:"system_messages"`
}

// UserMessage is a signed social-graph message. Hash is the content address
// and the projection's idempotency key.
type UserMessage struct {
	Data *MessageData `json:"data"`
	Hash HexBytes     `json:"hash"`
}

// MessageData is the typed payload of a user message. Exactly one body is
// set for known types; unknown types keep their undecoded bytes in RawBody.
type MessageData struct {
	Type      MessageType `json:"type"`
	FID       uint64      `json:"fid"`
	Timestamp uint64      `json:"timestamp"`
	Network   uint32      `json:"network,omitempty"`

	CastAddBody          *CastAddBody          `json:"cast_add_body,omitempty"`
	ReactionBody         *ReactionBody         `json:"reaction_body,omitempty"`
	LinkBody             *LinkBody             `json:"link_body,omitempty"`
	VerificationAddBody  *VerificationAddBody  `json:"verification_add_address_body,omitempty"`
	UserDataBody         *UserDataBody         `json:"user_data_body,omitempty"`
	UsernameProofBody    *UsernameProofBody    `json:"username_proof_body,omitempty"`
	FrameActionBody      *FrameActionBody      `json:"frame_action_body,omitempty"`
	LinkCompactStateBody *LinkCompactStateBody `json:"link_compact_state_body,omitempty"`
	LendStorageBody      *LendStorageBody      `json:"lend_storage_body,omitempty"`

	RawBody []byte `json:"-"`
}

// CastID addresses a cast by author and hash.
type CastID struct {
	FID  uint64   `json:"fid"`
	Hash HexBytes `json:"hash"`
}

// CastAddBody is the payload of a new cast.
type CastAddBody struct {
	Text              string   `json:"text"`
	Mentions          []uint64 `json:"mentions,omitempty"`
	MentionsPositions []uint32 `json:"mentions_positions,omitempty"`
	ParentCastID      *CastID  `json:"parent_cast_id,omitempty"`
	ParentURL         string   `json:"parent_url,omitempty"`
	Embeds            []*Embed `json:"embeds,omitempty"`
}

// Embed is either a URL or a cast reference attached to a cast.
type Embed struct {
	URL    string  `json:"url,omitempty"`
	CastID *CastID `json:"cast_id,omitempty"`
}

// ReactionBody targets a cast (or URL) with a typed reaction.
type ReactionBody struct {
	Type         uint32  `json:"type"`
	TargetCastID *CastID `json:"target_cast_id,omitempty"`
	TargetURL    string  `json:"target_url,omitempty"`
}

// LinkBody is a directed graph edge between fids.
type LinkBody struct {
	Type             string `json:"type,omitempty"`
	DisplayTimestamp uint64 `json:"display_timestamp,omitempty"`
	TargetFID        uint64 `json:"target_fid"`
}

// VerificationAddBody proves ownership of an external address.
type VerificationAddBody struct {
	Address          HexBytes `json:"address"`
	ClaimSignature   HexBytes `json:"claim_signature,omitempty"`
	BlockHash        HexBytes `json:"block_hash,omitempty"`
	VerificationType uint32   `json:"verification_type,omitempty"`
	ChainID          uint32   `json:"chain_id,omitempty"`
	Protocol         uint32   `json:"protocol,omitempty"`
}

// UserDataBody sets one profile field; Type is the UserDataAdd subtype that
// selects which of the 12 profile fields it is (see userDataFieldNames).
type UserDataBody struct {
	Type  uint32 `json:"type"`
	Value string `json:"value"`
}

// UsernameProofBody carries a name-ownership proof.
type UsernameProofBody struct {
	Timestamp uint64   `json:"timestamp"`
	Name      []byte   `json:"name"`
	Owner     HexBytes `json:"owner,omitempty"`
	Signature HexBytes `json:"signature,omitempty"`
	FID       uint64   `json:"fid"`
	Type      uint32   `json:"type,omitempty"`
}

// FrameActionBody records an interaction with a frame.
type FrameActionBody struct {
	URL          []byte  `json:"url,omitempty"`
	ButtonIndex  uint32  `json:"button_index,omitempty"`
	CastID       *CastID `json:"cast_id,omitempty"`
	InputText    []byte  `json:"input_text,omitempty"`
	State        []byte  `json:"state,omitempty"`
	TransactionID HexBytes `json:"transaction_id,omitempty"`
}

// LinkCompactStateBody is the compacted form of a fid's link set.
type LinkCompactStateBody struct {
	Type       string   `json:"type,omitempty"`
	TargetFIDs []uint64 `json:"target_fids,omitempty"`
}

// LendStorageBody lends storage units to another fid.
type LendStorageBody struct {
	ToFID uint64 `json:"to_fid"`
	Units uint64 `json:"units,omitempty"`
}

// SystemMessage is a validator-level message: at most one of the fields is
// set.
type SystemMessage struct {
	OnChainEvent  *OnChainEvent  `json:"on_chain_event,omitempty"`
	FnameTransfer *FnameTransfer `json:"fname_transfer,omitempty"`
}

// OnChainEvent mirrors a contract event observed by the hub.
type OnChainEvent struct {
	Type            OnChainEventType `json:"type"`
	ChainID         uint32           `json:"chain_id,omitempty"`
	BlockNumber     uint64           `json:"block_number,omitempty"`
	BlockHash       HexBytes         `json:"block_hash,omitempty"`
	BlockTimestamp  uint64           `json:"block_timestamp,omitempty"`
	TransactionHash HexBytes         `json:"transaction_hash,omitempty"`
	LogIndex        uint32           `json:"log_index,omitempty"`
	FID             uint64           `json:"fid"`
	TxIndex         uint32           `json:"tx_index,omitempty"`
	Version         uint32           `json:"version,omitempty"`
}

// FnameTransfer moves a registered fname between fids.
type FnameTransfer struct {
	ID      uint64             `json:"id,omitempty"`
	FromFID uint64             `json:"from_fid,omitempty"`
	Proof   *UsernameProofBody `json:"proof,omitempty"`
}

// ShardInfo reports one shard's tip as seen by the hub.
type ShardInfo struct {
	ShardID     uint32 `json:"shard_id"`
	MaxHeight   uint64 `json:"max_height"`
	NumMessages uint64 `json:"num_messages,omitempty"`
}

// GetInfoResponse is the hub's startup/status snapshot.
type GetInfoResponse struct {
	Version    string       `json:"version,omitempty"`
	NumShards  uint32       `json:"num_shards,omitempty"`
	ShardInfos []*ShardInfo `json:"shard_infos"`
}

// Shard returns the info row for the given shard id.
func (r *GetInfoResponse) Shard(shardID uint32) (*ShardInfo, bool) {
	if r == nil {
		return nil, false
	}
	for _, si := range r.ShardInfos {
		if si != nil && si.ShardID == shardID {
			return si, true
		}
	}
	return nil, false
}

// ShardChunksRequest asks for the chunks of one shard in
// [StartBlockNumber, StopBlockNumber). Stop is exclusive and optional; when
// nil the hub returns up to its current tip.
type ShardChunksRequest struct {
	ShardID          uint32  `json:"shard_id"`
	StartBlockNumber uint64  `json:"start_block_number"`
	StopBlockNumber  *uint64 `json:"stop_block_number,omitempty"`
}

// ShardChunksResponse carries the requested chunks in ascending block order.
type ShardChunksResponse struct {
	ShardChunks []*ShardChunk `json:"shard_chunks"`
}

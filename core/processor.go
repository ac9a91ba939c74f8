package core

// Shard processor: decodes a ShardChunk into a BatchedData of typed bucket
// rows. Pure and stateless across chunks; it never touches the store. A
// single bad message is downgraded to a warning and skipped — the chunk
// always yields a batch.

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// userDataFieldNames maps UserDataBody.Type to the user_profiles column it
// sets. Subtype 4 is unused upstream.
var userDataFieldNames = map[uint32]string{
	1:  "pfp_url",
	2:  "display_name",
	3:  "bio",
	5:  "website_url",
	6:  "username",
	7:  "location",
	8:  "twitter_username",
	9:  "github_username",
	10: "banner_url",
	11: "primary_address_ethereum",
	12: "primary_address_solana",
	13: "profile_token",
}

// chainIDsByName resolves the chain identity used for typed-data
// construction. Names outside this table are rejected.
var chainIDsByName = map[string]uint64{
	"ethereum":     1,
	"sepolia":      11155111,
	"base":         8453,
	"base-sepolia": 84532,
}

// ChainIDForName returns the chain id for a supported chain name.
func ChainIDForName(name string) (uint64, bool) {
	id, ok := chainIDsByName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// NormalizeAddress lower-cases an Ethereum-style address and ensures the 0x
// prefix.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return addr
	}
	if !strings.HasPrefix(addr, "0x") {
		addr = "0x" + addr
	}
	return addr
}

// defaultLinkType is assumed when a LinkAdd carries no type.
const defaultLinkType = "follow"

// Processor turns chunks into batches.
type Processor struct {
	logger *logrus.Logger
}

// NewProcessor returns a processor logging decode warnings to lg.
func NewProcessor(lg *logrus.Logger) *Processor {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	return &Processor{logger: lg}
}

// HandleChunk decodes every transaction of the chunk into batch buckets.
func (p *Processor) HandleChunk(shardID uint32, chunk *ShardChunk) *BatchedData {
	batch := NewBatchedData()
	if chunk == nil {
		return batch
	}
	block, ok := chunk.BlockNumber()
	if !ok {
		p.logger.WithField("shard", shardID).Warn("chunk without header; skipped")
		batch.DecodeWarnings++
		return batch
	}
	batch.MaxBlock = block
	info := ShardBlockInfo{ShardID: shardID, BlockHeight: block}

	for _, tx := range chunk.Transactions {
		if tx == nil {
			continue
		}
		for _, msg := range tx.UserMessages {
			batch.MessageCount++
			p.handleUserMessage(msg, info, batch)
		}
		for _, sys := range tx.SystemMessages {
			p.handleSystemMessage(sys, info, batch)
		}
	}
	return batch
}

func (p *Processor) handleUserMessage(msg *UserMessage, info ShardBlockInfo, batch *BatchedData) {
	if msg == nil || msg.Data == nil || len(msg.Hash) == 0 {
		batch.DecodeWarnings++
		return
	}
	data := msg.Data
	fid := int64(data.FID)
	ts := int64(data.Timestamp)
	hash := []byte(msg.Hash)

	warn := func(reason string) {
		batch.DecodeWarnings++
		p.logger.WithFields(logrus.Fields{
			"shard": info.ShardID,
			"block": info.BlockHeight,
			"fid":   fid,
			"type":  uint32(data.Type),
		}).Warn(reason)
	}

	switch data.Type {
	case MessageTypeCastAdd:
		body := data.CastAddBody
		if body == nil {
			warn("cast add without body")
			return
		}
		row := CastRow{
			FID:       fid,
			Text:      body.Text,
			Timestamp: ts,
			Hash:      hash,
			Block:     info,
		}
		if body.ParentCastID != nil {
			row.ParentHash = []byte(body.ParentCastID.Hash)
			parent := int64(body.ParentCastID.FID)
			if parent > 0 {
				row.ParentFID = &parent
				batch.EnsureFID(parent)
			}
		}
		if len(body.Mentions) > 0 {
			row.Mentions, _ = json.Marshal(body.Mentions)
		}
		if len(body.Embeds) > 0 {
			row.Embeds, _ = json.Marshal(body.Embeds)
		}
		batch.Casts = append(batch.Casts, row)
		batch.EnsureFID(fid)

	case MessageTypeReactionAdd:
		body := data.ReactionBody
		if body == nil || body.TargetCastID == nil || len(body.TargetCastID.Hash) == 0 {
			warn("reaction without target cast hash")
			return
		}
		row := ReactionRow{
			FID:            fid,
			TargetCastHash: []byte(body.TargetCastID.Hash),
			ReactionType:   int16(body.Type),
			Timestamp:      ts,
			Hash:           hash,
			Block:          info,
		}
		if target := int64(body.TargetCastID.FID); target > 0 {
			row.TargetFID = &target
			batch.EnsureFID(target)
		}
		batch.Reactions = append(batch.Reactions, row)
		batch.EnsureFID(fid)

	case MessageTypeLinkAdd:
		body := data.LinkBody
		if body == nil {
			warn("link add without body")
			return
		}
		if body.TargetFID == 0 {
			warn("link add without target fid")
			return
		}
		linkType := body.Type
		if linkType == "" {
			linkType = defaultLinkType
		}
		batch.Links = append(batch.Links, LinkRow{
			FID:       fid,
			TargetFID: int64(body.TargetFID),
			LinkType:  linkType,
			Timestamp: ts,
			Hash:      hash,
			Block:     info,
		})
		batch.EnsureFID(fid)
		batch.EnsureFID(int64(body.TargetFID))

	case MessageTypeVerificationAdd:
		body := data.VerificationAddBody
		if body == nil || len(body.Address) == 0 {
			warn("verification without address")
			return
		}
		row := VerificationRow{
			FID:       fid,
			Address:   NormalizeAddress(hexString(body.Address)),
			Timestamp: ts,
			Hash:      hash,
			Block:     info,
		}
		if len(body.ClaimSignature) > 0 {
			row.ClaimSignature = []byte(body.ClaimSignature)
		}
		if len(body.BlockHash) > 0 {
			row.BlockHash = []byte(body.BlockHash)
		}
		if body.VerificationType != 0 {
			vt := int16(body.VerificationType)
			row.VerificationType = &vt
		}
		if body.ChainID != 0 {
			cid := int32(body.ChainID)
			row.ChainID = &cid
		}
		batch.Verifications = append(batch.Verifications, row)
		batch.EnsureFID(fid)

	case MessageTypeUserDataAdd:
		body := data.UserDataBody
		if body == nil {
			warn("user data add without body")
			return
		}
		field, ok := userDataFieldNames[body.Type]
		if !ok {
			warn("unknown user data subtype")
			return
		}
		value := body.Value
		if field == "primary_address_ethereum" {
			value = NormalizeAddress(value)
		}
		batch.ProfileUpdates = append(batch.ProfileUpdates, ProfileUpdate{
			FID:       fid,
			Field:     field,
			Value:     &value,
			Timestamp: ts,
			Hash:      hash,
		})
		batch.EnsureFID(fid)

	case MessageTypeUsernameProof:
		body := data.UsernameProofBody
		if body == nil {
			warn("username proof without body")
			return
		}
		batch.UsernameProofs = append(batch.UsernameProofs, UsernameProofRow{
			FID:       fid,
			Name:      string(body.Name),
			Owner:     NormalizeAddress(hexString(body.Owner)),
			Timestamp: int64(body.Timestamp),
			ProofType: int16(body.Type),
			Hash:      hash,
		})
		p.appendActivity(batch, fid, "username_proof", body, ts, hash, info)
		batch.EnsureFID(fid)

	case MessageTypeFrameAction:
		p.appendActivity(batch, fid, "frame_action", data.FrameActionBody, ts, hash, info)
		batch.EnsureFID(fid)

	case MessageTypeLinkCompactState:
		p.appendActivity(batch, fid, "link_compact_state", data.LinkCompactStateBody, ts, hash, info)
		batch.EnsureFID(fid)

	case MessageTypeLendStorage:
		p.appendActivity(batch, fid, "lend_storage", data.LendStorageBody, ts, hash, info)
		batch.EnsureFID(fid)
		if body := data.LendStorageBody; body != nil {
			batch.EnsureFID(int64(body.ToFID))
		}

	default:
		batch.UnknownTypes[uint32(data.Type)]++
		p.logger.WithFields(logrus.Fields{
			"shard": info.ShardID,
			"block": info.BlockHeight,
			"type":  uint32(data.Type),
		}).Debug("unknown message type skipped")
	}
}

// appendActivity serializes body as the opaque activity payload. A nil body
// still produces the activity row; the payload is just null.
func (p *Processor) appendActivity(batch *BatchedData, fid int64, kind string, body any, ts int64, hash []byte, info ShardBlockInfo) {
	var payload json.RawMessage
	if body != nil {
		if raw, err := json.Marshal(body); err == nil {
			payload = raw
		} else {
			batch.DecodeWarnings++
		}
	}
	shardID := int32(info.ShardID)
	height := int64(info.BlockHeight)
	batch.Activities = append(batch.Activities, ActivityRow{
		FID:          fid,
		ActivityType: kind,
		ActivityData: payload,
		Timestamp:    ts,
		Hash:         hash,
		ShardID:      &shardID,
		BlockHeight:  &height,
	})
}

func (p *Processor) handleSystemMessage(msg *SystemMessage, info ShardBlockInfo, batch *BatchedData) {
	if msg == nil {
		return
	}
	if ev := msg.OnChainEvent; ev != nil {
		fid := int64(ev.FID)
		// The tx hash is the natural idempotency key; events that lack one
		// (old hub versions) get a synthetic content hash instead.
		hash := []byte(ev.TransactionHash)
		if len(hash) == 0 {
			hash = syntheticHash("onchain", uint64(ev.Type), ev.FID, ev.BlockNumber, uint64(ev.LogIndex))
		}
		payload, _ := json.Marshal(ev)
		shardID := int32(info.ShardID)
		height := int64(info.BlockHeight)
		batch.Activities = append(batch.Activities, ActivityRow{
			FID:          fid,
			ActivityType: ev.Type.Name(),
			ActivityData: payload,
			Timestamp:    int64(ev.BlockTimestamp),
			Hash:         hash,
			ShardID:      &shardID,
			BlockHeight:  &height,
		})
		// Registration events introduce the fid to the projection.
		batch.EnsureFID(fid)
	}
	if ft := msg.FnameTransfer; ft != nil && ft.Proof != nil {
		proof := ft.Proof
		fid := int64(proof.FID)
		proofHash := []byte(proof.Signature)
		if len(proofHash) == 0 {
			proofHash = syntheticHash("fname", proof.FID, proof.Timestamp, uint64(len(proof.Name)))
		}
		row := UsernameProofRow{
			FID:       fid,
			Name:      string(proof.Name),
			Owner:     NormalizeAddress(hexString(proof.Owner)),
			Timestamp: int64(proof.Timestamp),
			ProofType: int16(proof.Type),
			Hash:      proofHash,
		}
		batch.UsernameProofs = append(batch.UsernameProofs, row)
		batch.EnsureFID(fid)
		// A transfer also moves the username field, last-writer-wins on the
		// proof timestamp.
		name := string(proof.Name)
		batch.ProfileUpdates = append(batch.ProfileUpdates, ProfileUpdate{
			FID:       fid,
			Field:     "username",
			Value:     &name,
			Timestamp: int64(proof.Timestamp),
			Hash:      proofHash,
		})
	}
}

// syntheticHash derives a stable idempotency key for rows whose source
// message carries none.
func syntheticHash(kind string, parts ...uint64) []byte {
	h := sha256.New()
	_, _ = fmt.Fprint(h, kind)
	for _, p := range parts {
		_, _ = fmt.Fprintf(h, ":%d", p)
	}
	return h.Sum(nil)
}

func hexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2+2)
	out = append(out, '0', 'x')
	for _, c := range b {
		out = append(out, hexdigits[c>>4], hexdigits[c&0x0f])
	}
	return string(out)
}

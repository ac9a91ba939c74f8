package core

// Protobuf wire encoding for the HubService messages in hub_types.go. Field
// numbers mirror the upstream proto. Only the request types need marshaling;
// everything received from the hub needs parsing. Unknown length-delimited
// fields of MessageData (future body kinds) are kept as raw bytes
// (MessageData.RawBody) so they survive a round trip through the projection
// without a schema change here; other unknown fields are skipped.

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

type wireAppender interface {
	appendWire(b []byte) []byte
}

type wireParser interface {
	parseWire(b []byte) error
}

// hubCodec plugs the hand-rolled wire model into grpc via ForceCodec.
type hubCodec struct{}

func (hubCodec) Name() string { return "proto" }

func (hubCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireAppender)
	if !ok {
		return nil, fmt.Errorf("hub codec: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (hubCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(wireParser)
	if !ok {
		return fmt.Errorf("hub codec: cannot unmarshal into %T", v)
	}
	return p.parseWire(data)
}

// errTruncated reports a field that did not consume cleanly.
func errTruncated(msg string, n int) error {
	if n < 0 {
		return fmt.Errorf("%s: %w", msg, protowire.ParseError(n))
	}
	return nil
}

// skipField consumes a single field of the given type, returning the bytes
// consumed or an error for malformed input.
func skipField(b []byte, num protowire.Number, typ protowire.Type) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

//---------------------------------------------------------------------
// Requests
//---------------------------------------------------------------------

func (r *ShardChunksRequest) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.ShardID))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, r.StartBlockNumber)
	if r.StopBlockNumber != nil {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, *r.StopBlockNumber)
	}
	return b
}

// getInfoRequest has no fields.
type getInfoRequest struct{}

func (getInfoRequest) appendWire(b []byte) []byte { return b }

// linksByFidRequest is used by the sparse backfill RPC.
type linksByFidRequest struct {
	FID   uint64
	Limit uint32
}

func (r *linksByFidRequest) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, r.FID)
	if r.Limit > 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Limit))
	}
	return b
}

//---------------------------------------------------------------------
// Responses
//---------------------------------------------------------------------

func (r *ShardChunksResponse) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("shard chunks response tag", n)
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("shard chunk", n)
			}
			b = b[n:]
			chunk := new(ShardChunk)
			if err := chunk.parseWire(raw); err != nil {
				return err
			}
			r.ShardChunks = append(r.ShardChunks, chunk)
			continue
		}
		n, err := skipField(b, num, typ)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func (c *ShardChunk) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("shard chunk tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("shard header", n)
			}
			b = b[n:]
			hdr := new(ShardHeader)
			if err := hdr.parseWire(raw); err != nil {
				return err
			}
			c.Header = hdr
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("chunk hash", n)
			}
			b = b[n:]
			c.Hash = append(HexBytes(nil), raw...)
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("transaction", n)
			}
			b = b[n:]
			tx := new(Transaction)
			if err := tx.parseWire(raw); err != nil {
				return err
			}
			c.Transactions = append(c.Transactions, tx)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (h *ShardHeader) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("shard header tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("height", n)
			}
			b = b[n:]
			ht := new(BlockHeight)
			if err := ht.parseWire(raw); err != nil {
				return err
			}
			h.Height = ht
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("header timestamp", n)
			}
			b = b[n:]
			h.Timestamp = v
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("parent hash", n)
			}
			b = b[n:]
			h.ParentHash = append(HexBytes(nil), raw...)
		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("shard root", n)
			}
			b = b[n:]
			h.ShardRoot = append(HexBytes(nil), raw...)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (h *BlockHeight) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("height tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("shard index", n)
			}
			b = b[n:]
			h.ShardIndex = uint32(v)
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("block number", n)
			}
			b = b[n:]
			h.BlockNumber = v
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (t *Transaction) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("transaction tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("tx fid", n)
			}
			b = b[n:]
			t.FID = v
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("user message", n)
			}
			b = b[n:]
			m := new(UserMessage)
			if err := m.parseWire(raw); err != nil {
				return err
			}
			t.UserMessages = append(t.UserMessages, m)
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("system message", n)
			}
			b = b[n:]
			m := new(SystemMessage)
			if err := m.parseWire(raw); err != nil {
				return err
			}
			t.SystemMessages = append(t.SystemMessages, m)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (m *UserMessage) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("user message tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("message data", n)
			}
			b = b[n:]
			d := new(MessageData)
			if err := d.parseWire(raw); err != nil {
				return err
			}
			m.Data = d
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("message hash", n)
			}
			b = b[n:]
			m.Hash = append(HexBytes(nil), raw...)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

// Body field numbers inside MessageData.
const (
	fieldCastAddBody          = 5
	fieldReactionBody         = 7
	fieldVerificationAddBody  = 9
	fieldUserDataBody         = 12
	fieldLinkBody             = 14
	fieldUsernameProofBody    = 15
	fieldFrameActionBody      = 16
	fieldLinkCompactStateBody = 17
	fieldLendStorageBody      = 18
)

func (d *MessageData) parseWire(b []byte) error {
	for len(b) > 0 {
		start := b
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("message data tag", n)
		}
		b = b[n:]
		if typ == protowire.VarintType {
			v, vn := protowire.ConsumeVarint(b)
			if vn < 0 {
				return errTruncated("message data varint", vn)
			}
			b = b[vn:]
			switch num {
			case 1:
				d.Type = MessageType(v)
			case 2:
				d.FID = v
			case 3:
				d.Timestamp = v
			case 4:
				d.Network = uint32(v)
			}
			continue
		}
		if typ != protowire.BytesType {
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
			continue
		}
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return errTruncated("message body", n)
		}
		b = b[n:]
		var err error
		switch num {
		case fieldCastAddBody:
			d.CastAddBody = new(CastAddBody)
			err = d.CastAddBody.parseWire(raw)
		case fieldReactionBody:
			d.ReactionBody = new(ReactionBody)
			err = d.ReactionBody.parseWire(raw)
		case fieldVerificationAddBody:
			d.VerificationAddBody = new(VerificationAddBody)
			err = d.VerificationAddBody.parseWire(raw)
		case fieldUserDataBody:
			d.UserDataBody = new(UserDataBody)
			err = d.UserDataBody.parseWire(raw)
		case fieldLinkBody:
			d.LinkBody = new(LinkBody)
			err = d.LinkBody.parseWire(raw)
		case fieldUsernameProofBody:
			d.UsernameProofBody = new(UsernameProofBody)
			err = d.UsernameProofBody.parseWire(raw)
		case fieldFrameActionBody:
			d.FrameActionBody = new(FrameActionBody)
			err = d.FrameActionBody.parseWire(raw)
		case fieldLinkCompactStateBody:
			d.LinkCompactStateBody = new(LinkCompactStateBody)
			err = d.LinkCompactStateBody.parseWire(raw)
		case fieldLendStorageBody:
			d.LendStorageBody = new(LendStorageBody)
			err = d.LendStorageBody.parseWire(raw)
		default:
			// Future body kinds ride along undecoded.
			consumed := len(start) - len(b)
			d.RawBody = append(d.RawBody, start[:consumed]...)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *CastAddBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("cast body tag", n)
		}
		b = b[n:]
		switch {
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("mention", n)
			}
			b = b[n:]
			c.Mentions = append(c.Mentions, v)
		case num == 2 && typ == protowire.BytesType:
			// Packed encoding of the mentions list.
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("mentions", n)
			}
			b = b[n:]
			for len(raw) > 0 {
				v, vn := protowire.ConsumeVarint(raw)
				if vn < 0 {
					return errTruncated("packed mention", vn)
				}
				raw = raw[vn:]
				c.Mentions = append(c.Mentions, v)
			}
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("parent cast id", n)
			}
			b = b[n:]
			c.ParentCastID = new(CastID)
			if err := c.ParentCastID.parseWire(raw); err != nil {
				return err
			}
		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("cast text", n)
			}
			b = b[n:]
			c.Text = string(raw)
		case num == 5 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("mentions positions", n)
			}
			b = b[n:]
			for len(raw) > 0 {
				v, vn := protowire.ConsumeVarint(raw)
				if vn < 0 {
					return errTruncated("packed position", vn)
				}
				raw = raw[vn:]
				c.MentionsPositions = append(c.MentionsPositions, uint32(v))
			}
		case num == 6 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("embed", n)
			}
			b = b[n:]
			e := new(Embed)
			if err := e.parseWire(raw); err != nil {
				return err
			}
			c.Embeds = append(c.Embeds, e)
		case num == 7 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("parent url", n)
			}
			b = b[n:]
			c.ParentURL = string(raw)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (c *CastID) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("cast id tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("cast id fid", n)
			}
			b = b[n:]
			c.FID = v
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("cast id hash", n)
			}
			b = b[n:]
			c.Hash = append(HexBytes(nil), raw...)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (e *Embed) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("embed tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("embed url", n)
			}
			b = b[n:]
			e.URL = string(raw)
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("embed cast id", n)
			}
			b = b[n:]
			e.CastID = new(CastID)
			if err := e.CastID.parseWire(raw); err != nil {
				return err
			}
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (r *ReactionBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("reaction tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("reaction type", n)
			}
			b = b[n:]
			r.Type = uint32(v)
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("reaction target", n)
			}
			b = b[n:]
			r.TargetCastID = new(CastID)
			if err := r.TargetCastID.parseWire(raw); err != nil {
				return err
			}
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("reaction target url", n)
			}
			b = b[n:]
			r.TargetURL = string(raw)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (l *LinkBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("link tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("link type", n)
			}
			b = b[n:]
			l.Type = string(raw)
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("display timestamp", n)
			}
			b = b[n:]
			l.DisplayTimestamp = v
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("target fid", n)
			}
			b = b[n:]
			l.TargetFID = v
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (v *VerificationAddBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("verification tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("verification address", n)
			}
			b = b[n:]
			v.Address = append(HexBytes(nil), raw...)
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("claim signature", n)
			}
			b = b[n:]
			v.ClaimSignature = append(HexBytes(nil), raw...)
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("block hash", n)
			}
			b = b[n:]
			v.BlockHash = append(HexBytes(nil), raw...)
		case num == 4 && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("verification type", n)
			}
			b = b[n:]
			v.VerificationType = uint32(val)
		case num == 5 && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("chain id", n)
			}
			b = b[n:]
			v.ChainID = uint32(val)
		case num == 7 && typ == protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("protocol", n)
			}
			b = b[n:]
			v.Protocol = uint32(val)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (u *UserDataBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("user data tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("user data type", n)
			}
			b = b[n:]
			u.Type = uint32(v)
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("user data value", n)
			}
			b = b[n:]
			u.Value = string(raw)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (p *UsernameProofBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("username proof tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("proof timestamp", n)
			}
			b = b[n:]
			p.Timestamp = v
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("proof name", n)
			}
			b = b[n:]
			p.Name = append([]byte(nil), raw...)
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("proof owner", n)
			}
			b = b[n:]
			p.Owner = append(HexBytes(nil), raw...)
		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("proof signature", n)
			}
			b = b[n:]
			p.Signature = append(HexBytes(nil), raw...)
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("proof fid", n)
			}
			b = b[n:]
			p.FID = v
		case num == 6 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("proof type", n)
			}
			b = b[n:]
			p.Type = uint32(v)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (f *FrameActionBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("frame action tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("frame url", n)
			}
			b = b[n:]
			f.URL = append([]byte(nil), raw...)
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("button index", n)
			}
			b = b[n:]
			f.ButtonIndex = uint32(v)
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("frame cast id", n)
			}
			b = b[n:]
			f.CastID = new(CastID)
			if err := f.CastID.parseWire(raw); err != nil {
				return err
			}
		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("input text", n)
			}
			b = b[n:]
			f.InputText = append([]byte(nil), raw...)
		case num == 5 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("frame state", n)
			}
			b = b[n:]
			f.State = append([]byte(nil), raw...)
		case num == 6 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("transaction id", n)
			}
			b = b[n:]
			f.TransactionID = append(HexBytes(nil), raw...)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (l *LinkCompactStateBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("link compact tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("compact type", n)
			}
			b = b[n:]
			l.Type = string(raw)
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("compact target", n)
			}
			b = b[n:]
			l.TargetFIDs = append(l.TargetFIDs, v)
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("compact targets", n)
			}
			b = b[n:]
			for len(raw) > 0 {
				v, vn := protowire.ConsumeVarint(raw)
				if vn < 0 {
					return errTruncated("packed target fid", vn)
				}
				raw = raw[vn:]
				l.TargetFIDs = append(l.TargetFIDs, v)
			}
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (l *LendStorageBody) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("lend storage tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("lend to fid", n)
			}
			b = b[n:]
			l.ToFID = v
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("lend units", n)
			}
			b = b[n:]
			l.Units = v
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (m *SystemMessage) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("system message tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("on chain event", n)
			}
			b = b[n:]
			ev := new(OnChainEvent)
			if err := ev.parseWire(raw); err != nil {
				return err
			}
			m.OnChainEvent = ev
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("fname transfer", n)
			}
			b = b[n:]
			ft := new(FnameTransfer)
			if err := ft.parseWire(raw); err != nil {
				return err
			}
			m.FnameTransfer = ft
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (e *OnChainEvent) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("on chain event tag", n)
		}
		b = b[n:]
		if typ == protowire.VarintType {
			v, vn := protowire.ConsumeVarint(b)
			if vn < 0 {
				return errTruncated("on chain event varint", vn)
			}
			b = b[vn:]
			switch num {
			case 1:
				e.Type = OnChainEventType(v)
			case 2:
				e.ChainID = uint32(v)
			case 3:
				e.BlockNumber = v
			case 5:
				e.BlockTimestamp = v
			case 7:
				e.LogIndex = uint32(v)
			case 8:
				e.FID = v
			case 9:
				e.TxIndex = uint32(v)
			case 10:
				e.Version = uint32(v)
			}
			continue
		}
		if typ == protowire.BytesType {
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("on chain event bytes", n)
			}
			b = b[n:]
			switch num {
			case 4:
				e.BlockHash = append(HexBytes(nil), raw...)
			case 6:
				e.TransactionHash = append(HexBytes(nil), raw...)
			}
			continue
		}
		n, err := skipField(b, num, typ)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func (f *FnameTransfer) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("fname transfer tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("fname id", n)
			}
			b = b[n:]
			f.ID = v
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("fname from fid", n)
			}
			b = b[n:]
			f.FromFID = v
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("fname proof", n)
			}
			b = b[n:]
			f.Proof = new(UsernameProofBody)
			if err := f.Proof.parseWire(raw); err != nil {
				return err
			}
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (r *GetInfoResponse) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("info tag", n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("info version", n)
			}
			b = b[n:]
			r.Version = string(raw)
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errTruncated("num shards", n)
			}
			b = b[n:]
			r.NumShards = uint32(v)
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("shard info", n)
			}
			b = b[n:]
			si := new(ShardInfo)
			if err := si.parseWire(raw); err != nil {
				return err
			}
			r.ShardInfos = append(r.ShardInfos, si)
		default:
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
		}
	}
	return nil
}

func (s *ShardInfo) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("shard info tag", n)
		}
		b = b[n:]
		if typ != protowire.VarintType {
			n, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = b[n:]
			continue
		}
		v, vn := protowire.ConsumeVarint(b)
		if vn < 0 {
			return errTruncated("shard info varint", vn)
		}
		b = b[vn:]
		switch num {
		case 1:
			s.ShardID = uint32(v)
		case 2:
			s.MaxHeight = v
		case 3:
			s.NumMessages = v
		}
	}
	return nil
}

// messagesResponse is the wire form of the sparse linksByFid RPC.
type messagesResponse struct {
	Messages []*UserMessage `json:"messages"`
}

func (r *messagesResponse) parseWire(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errTruncated("messages tag", n)
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errTruncated("message", n)
			}
			b = b[n:]
			m := new(UserMessage)
			if err := m.parseWire(raw); err != nil {
				return err
			}
			r.Messages = append(r.Messages, m)
			continue
		}
		n, err := skipField(b, num, typ)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Test support: appendWire implementations for the response-side messages so
// round trips can be constructed without a live hub.

func (c *ShardChunk) appendWire(b []byte) []byte {
	if c.Header != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, c.Header.appendWire(nil))
	}
	if len(c.Hash) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, c.Hash)
	}
	for _, tx := range c.Transactions {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, tx.appendWire(nil))
	}
	return b
}

func (h *ShardHeader) appendWire(b []byte) []byte {
	if h.Height != nil {
		inner := protowire.AppendTag(nil, 1, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(h.Height.ShardIndex))
		inner = protowire.AppendTag(inner, 2, protowire.VarintType)
		inner = protowire.AppendVarint(inner, h.Height.BlockNumber)
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	if h.Timestamp != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, h.Timestamp)
	}
	return b
}

func (t *Transaction) appendWire(b []byte) []byte {
	if t.FID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, t.FID)
	}
	for _, m := range t.UserMessages {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.appendWire(nil))
	}
	for _, m := range t.SystemMessages {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, m.appendWire(nil))
	}
	return b
}

func (m *UserMessage) appendWire(b []byte) []byte {
	if m.Data != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data.appendWire(nil))
	}
	if len(m.Hash) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Hash)
	}
	return b
}

func (d *MessageData) appendWire(b []byte) []byte {
	if d.Type != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d.Type))
	}
	if d.FID != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, d.FID)
	}
	if d.Timestamp != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, d.Timestamp)
	}
	if d.Network != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d.Network))
	}
	appendBody := func(b []byte, num protowire.Number, body []byte) []byte {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		return protowire.AppendBytes(b, body)
	}
	if d.CastAddBody != nil {
		b = appendBody(b, fieldCastAddBody, d.CastAddBody.appendWire(nil))
	}
	if d.ReactionBody != nil {
		b = appendBody(b, fieldReactionBody, d.ReactionBody.appendWire(nil))
	}
	if d.VerificationAddBody != nil {
		b = appendBody(b, fieldVerificationAddBody, d.VerificationAddBody.appendWire(nil))
	}
	if d.UserDataBody != nil {
		inner := protowire.AppendTag(nil, 1, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(d.UserDataBody.Type))
		inner = protowire.AppendTag(inner, 2, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(d.UserDataBody.Value))
		b = appendBody(b, fieldUserDataBody, inner)
	}
	if d.LinkBody != nil {
		inner := []byte(nil)
		if d.LinkBody.Type != "" {
			inner = protowire.AppendTag(inner, 1, protowire.BytesType)
			inner = protowire.AppendBytes(inner, []byte(d.LinkBody.Type))
		}
		if d.LinkBody.DisplayTimestamp != 0 {
			inner = protowire.AppendTag(inner, 2, protowire.VarintType)
			inner = protowire.AppendVarint(inner, d.LinkBody.DisplayTimestamp)
		}
		if d.LinkBody.TargetFID != 0 {
			inner = protowire.AppendTag(inner, 3, protowire.VarintType)
			inner = protowire.AppendVarint(inner, d.LinkBody.TargetFID)
		}
		b = appendBody(b, fieldLinkBody, inner)
	}
	if d.UsernameProofBody != nil {
		b = appendBody(b, fieldUsernameProofBody, d.UsernameProofBody.appendWire(nil))
	}
	if d.FrameActionBody != nil {
		b = appendBody(b, fieldFrameActionBody, d.FrameActionBody.appendWire(nil))
	}
	if d.LinkCompactStateBody != nil {
		inner := []byte(nil)
		if d.LinkCompactStateBody.Type != "" {
			inner = protowire.AppendTag(inner, 1, protowire.BytesType)
			inner = protowire.AppendBytes(inner, []byte(d.LinkCompactStateBody.Type))
		}
		for _, fid := range d.LinkCompactStateBody.TargetFIDs {
			inner = protowire.AppendTag(inner, 2, protowire.VarintType)
			inner = protowire.AppendVarint(inner, fid)
		}
		b = appendBody(b, fieldLinkCompactStateBody, inner)
	}
	if d.LendStorageBody != nil {
		inner := protowire.AppendTag(nil, 1, protowire.VarintType)
		inner = protowire.AppendVarint(inner, d.LendStorageBody.ToFID)
		if d.LendStorageBody.Units != 0 {
			inner = protowire.AppendTag(inner, 2, protowire.VarintType)
			inner = protowire.AppendVarint(inner, d.LendStorageBody.Units)
		}
		b = appendBody(b, fieldLendStorageBody, inner)
	}
	b = append(b, d.RawBody...)
	return b
}

func (c *CastAddBody) appendWire(b []byte) []byte {
	for _, m := range c.Mentions {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, m)
	}
	if c.ParentCastID != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, c.ParentCastID.appendWire(nil))
	}
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(c.Text))
	for _, e := range c.Embeds {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, e.appendWire(nil))
	}
	if c.ParentURL != "" {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(c.ParentURL))
	}
	return b
}

func (c *CastID) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, c.FID)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, c.Hash)
	return b
}

func (e *Embed) appendWire(b []byte) []byte {
	if e.URL != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(e.URL))
	}
	if e.CastID != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, e.CastID.appendWire(nil))
	}
	return b
}

func (r *ReactionBody) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Type))
	if r.TargetCastID != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, r.TargetCastID.appendWire(nil))
	}
	if r.TargetURL != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(r.TargetURL))
	}
	return b
}

func (v *VerificationAddBody) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, v.Address)
	if len(v.ClaimSignature) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, v.ClaimSignature)
	}
	if len(v.BlockHash) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, v.BlockHash)
	}
	if v.VerificationType != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.VerificationType))
	}
	if v.ChainID != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.ChainID))
	}
	if v.Protocol != 0 {
		b = protowire.AppendTag(b, 7, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Protocol))
	}
	return b
}

func (p *UsernameProofBody) appendWire(b []byte) []byte {
	if p.Timestamp != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, p.Timestamp)
	}
	if len(p.Name) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Name)
	}
	if len(p.Owner) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Owner)
	}
	if len(p.Signature) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Signature)
	}
	if p.FID != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, p.FID)
	}
	if p.Type != 0 {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Type))
	}
	return b
}

func (f *FrameActionBody) appendWire(b []byte) []byte {
	if len(f.URL) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, f.URL)
	}
	if f.ButtonIndex != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.ButtonIndex))
	}
	if f.CastID != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, f.CastID.appendWire(nil))
	}
	return b
}

func (m *SystemMessage) appendWire(b []byte) []byte {
	if m.OnChainEvent != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.OnChainEvent.appendWire(nil))
	}
	if m.FnameTransfer != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.FnameTransfer.appendWire(nil))
	}
	return b
}

func (e *OnChainEvent) appendWire(b []byte) []byte {
	if e.Type != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Type))
	}
	if e.ChainID != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.ChainID))
	}
	if e.BlockNumber != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, e.BlockNumber)
	}
	if len(e.BlockHash) > 0 {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, e.BlockHash)
	}
	if e.BlockTimestamp != 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, e.BlockTimestamp)
	}
	if len(e.TransactionHash) > 0 {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, e.TransactionHash)
	}
	if e.LogIndex != 0 {
		b = protowire.AppendTag(b, 7, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.LogIndex))
	}
	if e.FID != 0 {
		b = protowire.AppendTag(b, 8, protowire.VarintType)
		b = protowire.AppendVarint(b, e.FID)
	}
	return b
}

func (f *FnameTransfer) appendWire(b []byte) []byte {
	if f.ID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, f.ID)
	}
	if f.FromFID != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, f.FromFID)
	}
	if f.Proof != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Proof.appendWire(nil))
	}
	return b
}

func (r *ShardChunksResponse) appendWire(b []byte) []byte {
	for _, c := range r.ShardChunks {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, c.appendWire(nil))
	}
	return b
}

func (r *GetInfoResponse) appendWire(b []byte) []byte {
	if r.Version != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(r.Version))
	}
	if r.NumShards != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.NumShards))
	}
	for _, si := range r.ShardInfos {
		inner := protowire.AppendTag(nil, 1, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(si.ShardID))
		inner = protowire.AppendTag(inner, 2, protowire.VarintType)
		inner = protowire.AppendVarint(inner, si.MaxHeight)
		if si.NumMessages != 0 {
			inner = protowire.AppendTag(inner, 3, protowire.VarintType)
			inner = protowire.AppendVarint(inner, si.NumMessages)
		}
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

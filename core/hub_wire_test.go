package core

import (
	"bytes"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestShardChunksRequestWire(t *testing.T) {
	stop := uint64(120)
	req := &ShardChunksRequest{ShardID: 2, StartBlockNumber: 100, StopBlockNumber: &stop}
	raw := req.appendWire(nil)

	// Decode by hand to verify field numbers and values.
	got := map[protowire.Number]uint64{}
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 || typ != protowire.VarintType {
			t.Fatalf("unexpected tag: num=%d typ=%d", num, typ)
		}
		raw = raw[n:]
		v, vn := protowire.ConsumeVarint(raw)
		if vn < 0 {
			t.Fatal("truncated varint")
		}
		raw = raw[vn:]
		got[num] = v
	}
	if got[1] != 2 || got[2] != 100 || got[3] != 120 {
		t.Fatalf("decoded fields: %v", got)
	}
}

func TestShardChunkRoundTrip(t *testing.T) {
	original := &ShardChunk{
		Header: &ShardHeader{
			Height:    &BlockHeight{ShardIndex: 1, BlockNumber: 42},
			Timestamp: 1700000000,
		},
		Hash: HexBytes{0xab, 0xcd},
		Transactions: []*Transaction{{
			FID: 99,
			UserMessages: []*UserMessage{
				{
					Hash: HexBytes{0xaa},
					Data: &MessageData{
						Type: MessageTypeCastAdd, FID: 99, Timestamp: 1700000001,
						CastAddBody: &CastAddBody{
							Text:         "hello",
							Mentions:     []uint64{7, 8},
							ParentCastID: &CastID{FID: 5, Hash: HexBytes{0xee}},
							Embeds:       []*Embed{{URL: "https://example.com"}},
						},
					},
				},
				{
					Hash: HexBytes{0xbb},
					Data: &MessageData{
						Type: MessageTypeLinkAdd, FID: 99, Timestamp: 1700000002,
						LinkBody: &LinkBody{Type: "follow", TargetFID: 123},
					},
				},
				{
					Hash: HexBytes{0xcc},
					Data: &MessageData{
						Type: MessageTypeUserDataAdd, FID: 99, Timestamp: 1700000003,
						UserDataBody: &UserDataBody{Type: 3, Value: "a bio"},
					},
				},
				{
					Hash: HexBytes{0xdd},
					Data: &MessageData{
						Type: MessageTypeReactionAdd, FID: 99, Timestamp: 1700000004,
						ReactionBody: &ReactionBody{Type: 1, TargetCastID: &CastID{FID: 7, Hash: HexBytes{0xfe}}},
					},
				},
			},
			SystemMessages: []*SystemMessage{{
				OnChainEvent: &OnChainEvent{
					Type: OnChainEventTypeIDRegister, FID: 99,
					BlockNumber: 10, TransactionHash: HexBytes{0x11, 0x22},
				},
			}},
		}},
	}

	raw := original.appendWire(nil)
	decoded := new(ShardChunk)
	if err := decoded.parseWire(raw); err != nil {
		t.Fatalf("parse: %v", err)
	}

	block, ok := decoded.BlockNumber()
	if !ok || block != 42 {
		t.Fatalf("block=%d ok=%t", block, ok)
	}
	if decoded.MessageCount() != 4 {
		t.Fatalf("messages=%d want 4", decoded.MessageCount())
	}
	tx := decoded.Transactions[0]
	if tx.FID != 99 {
		t.Fatalf("tx fid=%d", tx.FID)
	}
	cast := tx.UserMessages[0].Data.CastAddBody
	if cast == nil || cast.Text != "hello" {
		t.Fatalf("cast body: %+v", cast)
	}
	if len(cast.Mentions) != 2 || cast.Mentions[0] != 7 {
		t.Fatalf("mentions: %v", cast.Mentions)
	}
	if cast.ParentCastID == nil || cast.ParentCastID.FID != 5 {
		t.Fatalf("parent: %+v", cast.ParentCastID)
	}
	if len(cast.Embeds) != 1 || cast.Embeds[0].URL != "https://example.com" {
		t.Fatalf("embeds: %+v", cast.Embeds)
	}
	link := tx.UserMessages[1].Data.LinkBody
	if link == nil || link.TargetFID != 123 || link.Type != "follow" {
		t.Fatalf("link body: %+v", link)
	}
	userData := tx.UserMessages[2].Data.UserDataBody
	if userData == nil || userData.Type != 3 || userData.Value != "a bio" {
		t.Fatalf("user data body: %+v", userData)
	}
	reaction := tx.UserMessages[3].Data.ReactionBody
	if reaction == nil || !bytes.Equal(reaction.TargetCastID.Hash, []byte{0xfe}) {
		t.Fatalf("reaction body: %+v", reaction)
	}
	ev := tx.SystemMessages[0].OnChainEvent
	if ev == nil || ev.Type != OnChainEventTypeIDRegister || ev.FID != 99 {
		t.Fatalf("on chain event: %+v", ev)
	}
}

func TestMessageDataUnknownBodyPreserved(t *testing.T) {
	// A body on a field number this decoder does not know about.
	raw := protowire.AppendTag(nil, 1, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 99) // type 99: unknown
	raw = protowire.AppendTag(raw, 2, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 7)
	unknownField := protowire.AppendTag(nil, 42, protowire.BytesType)
	unknownField = protowire.AppendBytes(unknownField, []byte("future payload"))
	raw = append(raw, unknownField...)

	d := new(MessageData)
	if err := d.parseWire(raw); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Type != 99 || d.FID != 7 {
		t.Fatalf("type=%d fid=%d", d.Type, d.FID)
	}
	if !bytes.Equal(d.RawBody, unknownField) {
		t.Fatalf("raw body=%x want %x", d.RawBody, unknownField)
	}
}

func TestGetInfoResponseWire(t *testing.T) {
	resp := &GetInfoResponse{
		Version:   "0.4.2",
		NumShards: 3,
		ShardInfos: []*ShardInfo{
			{ShardID: 0, MaxHeight: 1000},
			{ShardID: 1, MaxHeight: 2000, NumMessages: 50},
		},
	}
	raw := resp.appendWire(nil)
	decoded := new(GetInfoResponse)
	if err := decoded.parseWire(raw); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded.Version != "0.4.2" || decoded.NumShards != 3 {
		t.Fatalf("decoded: %+v", decoded)
	}
	si, ok := decoded.Shard(1)
	if !ok || si.MaxHeight != 2000 || si.NumMessages != 50 {
		t.Fatalf("shard 1: %+v ok=%t", si, ok)
	}
	if _, ok := decoded.Shard(9); ok {
		t.Fatal("shard 9 should not resolve")
	}
}

func TestHubCodecRejectsForeignTypes(t *testing.T) {
	codec := hubCodec{}
	if _, err := codec.Marshal(struct{}{}); err == nil {
		t.Fatal("expected marshal error")
	}
	if err := codec.Unmarshal(nil, struct{}{}); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestSortChunksByBlock(t *testing.T) {
	mk := func(block uint64) *ShardChunk {
		return &ShardChunk{Header: &ShardHeader{Height: &BlockHeight{BlockNumber: block}}}
	}
	chunks := []*ShardChunk{mk(3), mk(1), mk(2)}
	sortChunksByBlock(chunks)
	for i, want := range []uint64{1, 2, 3} {
		got, _ := chunks[i].BlockNumber()
		if got != want {
			t.Fatalf("chunk[%d]=%d want %d", i, got, want)
		}
	}
}

package core

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestMessageTypeUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want MessageType
	}{
		{"Numeric", `1`, MessageTypeCastAdd},
		{"String", `"MESSAGE_TYPE_LINK_ADD"`, MessageTypeLinkAdd},
		{"Verification", `"MESSAGE_TYPE_VERIFICATION_ADD_ETH_ADDRESS"`, MessageTypeVerificationAdd},
		{"UnknownString", `"MESSAGE_TYPE_SOMETHING_NEW"`, MessageTypeNone},
		{"UnknownNumeric", `255`, MessageType(255)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got MessageType
			if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestHexBytesJSON(t *testing.T) {
	h := HexBytes{0xde, 0xad, 0xbe, 0xef}
	raw, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"0xdeadbeef"` {
		t.Fatalf("marshal=%s", raw)
	}

	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{"Prefixed", `"0xdeadbeef"`, []byte{0xde, 0xad, 0xbe, 0xef}},
		{"Bare", `"deadbeef"`, []byte{0xde, 0xad, 0xbe, 0xef}},
		{"UpperCase", `"0xDEADBEEF"`, []byte{0xde, 0xad, 0xbe, 0xef}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got HexBytes
			if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("got %x want %x", got, tc.want)
			}
		})
	}

	var bad HexBytes
	if err := json.Unmarshal([]byte(`"0xzz"`), &bad); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestMessageDataJSONBodySelection(t *testing.T) {
	raw := `{
		"type": "MESSAGE_TYPE_LINK_ADD",
		"fid": 7,
		"timestamp": 1700000000,
		"link_body": {"type": "follow", "target_fid": 8}
	}`
	var d MessageData
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Type != MessageTypeLinkAdd || d.FID != 7 {
		t.Fatalf("decoded: %+v", d)
	}
	if d.LinkBody == nil || d.LinkBody.TargetFID != 8 || d.LinkBody.Type != "follow" {
		t.Fatalf("link body: %+v", d.LinkBody)
	}
	if d.CastAddBody != nil {
		t.Fatal("unexpected cast body")
	}
}

func TestOnChainEventTypeName(t *testing.T) {
	tests := []struct {
		typ  OnChainEventType
		want string
	}{
		{OnChainEventTypeSigner, "on_chain_signer"},
		{OnChainEventTypeSignerMigrated, "on_chain_signer_migrated"},
		{OnChainEventTypeIDRegister, "on_chain_id_register"},
		{OnChainEventTypeStorageRent, "on_chain_storage_rent"},
		{OnChainEventTypeTierPurchase, "on_chain_tier_purchase"},
		{OnChainEventType(77), "on_chain_unknown_77"},
	}
	for _, tc := range tests {
		if got := tc.typ.Name(); got != tc.want {
			t.Fatalf("Name(%d)=%q want %q", tc.typ, got, tc.want)
		}
	}
}

func TestShardChunkHelpers(t *testing.T) {
	var nilChunk *ShardChunk
	if _, ok := nilChunk.BlockNumber(); ok {
		t.Fatal("nil chunk should have no block")
	}
	if nilChunk.MessageCount() != 0 {
		t.Fatal("nil chunk should have no messages")
	}
	chunk := &ShardChunk{Transactions: []*Transaction{
		{UserMessages: []*UserMessage{{}, {}}},
		nil,
		{UserMessages: []*UserMessage{{}}},
	}}
	if got := chunk.MessageCount(); got != 3 {
		t.Fatalf("messages=%d want 3", got)
	}
}

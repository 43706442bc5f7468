// Copyright 2025 Certen Protocol

package chainadapter

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hyperbridge/relayer-core/pkg/message"
)

func TestDecodeDispatchedMessage_RoundTripsEncodeMessage(t *testing.T) {
	msg := message.Message{
		Version:     3,
		Nonce:       42,
		Origin:      1,
		Sender:      common.HexToHash("0x01"),
		Destination: 2,
		Recipient:   common.HexToHash("0x02"),
		Body:        []byte("hello world"),
	}

	encoded := encodeMessage(msg)
	decoded, err := decodeDispatchedMessage(encoded)
	if err != nil {
		t.Fatalf("decodeDispatchedMessage: %v", err)
	}
	if !reflect.DeepEqual(decoded, msg) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, msg)
	}
}

func TestDecodeDispatchedMessage_TooShort(t *testing.T) {
	if _, err := decodeDispatchedMessage([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a truncated dispatch body")
	}
}

func TestDecodeInsertion_ReadsLeafIndexFromPaddedWord(t *testing.T) {
	messageID := common.HexToHash("0xabc123")
	data := make([]byte, 32)
	binary.BigEndian.PutUint32(data[28:32], 7)

	insertion, err := decodeInsertion([]common.Hash{{}, messageID}, data)
	if err != nil {
		t.Fatalf("decodeInsertion: %v", err)
	}
	if insertion.MessageID != messageID {
		t.Fatalf("expected message id %s, got %s", messageID, insertion.MessageID)
	}
	if insertion.LeafIndex != 7 {
		t.Fatalf("expected leaf index 7, got %d", insertion.LeafIndex)
	}
}

func TestDecodeInsertion_RejectsShortBody(t *testing.T) {
	if _, err := decodeInsertion([]common.Hash{{}, {}}, make([]byte, 4)); err == nil {
		t.Fatal("expected an error for a body shorter than one ABI word")
	}
}

func TestDecodeInsertion_RejectsMissingTopic(t *testing.T) {
	if _, err := decodeInsertion([]common.Hash{{}}, make([]byte, 32)); err == nil {
		t.Fatal("expected an error when the indexed message id topic is missing")
	}
}

func TestParseECDSAKey_DerivesMatchingAddress(t *testing.T) {
	private, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hexKey := ecdsaPrivateKeyHex(private)

	key, err := parseECDSAKey(hexKey)
	if err != nil {
		t.Fatalf("parseECDSAKey: %v", err)
	}
	want := crypto.PubkeyToAddress(private.PublicKey)
	if key.address != want {
		t.Fatalf("expected address %s, got %s", want, key.address)
	}
}

func TestParseECDSAKey_AcceptsHexPrefix(t *testing.T) {
	private, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hexKey := "0x" + ecdsaPrivateKeyHex(private)
	if _, err := parseECDSAKey(hexKey); err != nil {
		t.Fatalf("expected 0x-prefixed key to parse, got: %v", err)
	}
}

func ecdsaPrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(crypto.FromECDSA(key))
}

func TestMustParseABI_PanicsOnInvalidJSON(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected mustParseABI to panic on invalid ABI JSON")
		}
	}()
	mustParseABI("not valid json")
}

func TestBeUint32(t *testing.T) {
	b := []byte{0x00, 0x00, 0x01, 0x2c}
	if got := beUint32(b); got != 300 {
		t.Fatalf("expected 300, got %d", got)
	}
}

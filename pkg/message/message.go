// Copyright 2025 Certen Protocol
//
// Package message defines the core cross-chain message and Merkle
// insertion types the relayer transports. Application payloads are opaque
// bytes; the core never interprets message.Body.
package message

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Message is a dispatched cross-chain application message.
type Message struct {
	Version     uint8
	Nonce       uint32
	Origin      uint32
	Sender      common.Hash
	Destination uint32
	Recipient   common.Hash
	Body        []byte
}

// ID returns the canonical message identity: keccak256 of the message's
// wire-format serialization. Used for deduplication, delivery checks, and
// gas-payment accounting.
func (m Message) ID() common.Hash {
	return crypto.Keccak256Hash(m.encode())
}

// encode serializes the message in the canonical order the protocol
// defines: version, nonce, origin, sender, destination, recipient, body.
func (m Message) encode() []byte {
	buf := make([]byte, 1+4+4+32+4+32+len(m.Body))
	off := 0
	buf[off] = m.Version
	off++
	binary.BigEndian.PutUint32(buf[off:], m.Nonce)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], m.Origin)
	off += 4
	copy(buf[off:], m.Sender[:])
	off += 32
	binary.BigEndian.PutUint32(buf[off:], m.Destination)
	off += 4
	copy(buf[off:], m.Recipient[:])
	off += 32
	copy(buf[off:], m.Body)
	return buf
}

// Insertion is a single leaf insertion into the origin's dispatch Merkle
// tree. On the origin chain, the k-th insertion always has LeafIndex == k.
type Insertion struct {
	LeafIndex uint32
	MessageID common.Hash
}

// Checkpoint is a validator-attested (root, index) pair against a tree
// hook. Consumers only trust checkpoints with Index < the local tree's
// current leaf count.
type Checkpoint struct {
	TreeHookAddress common.Hash
	OriginDomain    uint32
	Root            common.Hash
	Index           uint32
}

// Count returns the number of leaves the checkpoint attests to.
func (c Checkpoint) Count() uint32 {
	return c.Index + 1
}

// CommittedMessage pairs a dispatched message with the block it was seen
// in, as produced by the origin indexer.
type CommittedMessage struct {
	Message             Message
	DispatchedBlockNumber uint64
	ObservedAt          time.Time
}

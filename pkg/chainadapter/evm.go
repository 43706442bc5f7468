// Copyright 2025 Certen Protocol
//
// Concrete EVM implementation of every capability contract in this
// package, adapted from the validator's Ethereum JSON-RPC client: same
// ethclient dial, same ABI pack/call/unpack idiom, same gas-price floor
// for submissions. Each submission is sent once; it is not retried and
// its gas price is not escalated here.
package chainadapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/hyperbridge/relayer-core/pkg/lander"
	"github.com/hyperbridge/relayer-core/pkg/merkle"
	"github.com/hyperbridge/relayer-core/pkg/message"
)

// Minimal ABI fragments for the methods and events this adapter calls.
// Only the selectors the relayer core actually drives are declared; the
// full Hyperlane interfaces carry more surface than the core needs.
const mailboxABIJSON = `[
	{"type":"function","name":"delivered","stateMutability":"view","inputs":[{"name":"messageId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"process","stateMutability":"nonpayable","inputs":[{"name":"metadata","type":"bytes"},{"name":"message","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"defaultIsm","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"recipientIsm","stateMutability":"view","inputs":[{"name":"recipient","type":"address"}],"outputs":[{"name":"","type":"address"}]}
]`

const merkleHookABIJSON = `[
	{"type":"function","name":"count","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint32"}]},
	{"type":"function","name":"latestCheckpoint","stateMutability":"view","inputs":[],"outputs":[{"name":"root","type":"bytes32"},{"name":"index","type":"uint32"}]}
]`

const validatorAnnounceABIJSON = `[
	{"type":"function","name":"getAnnouncedStorageLocations","stateMutability":"view","inputs":[{"name":"validators","type":"address[]"}],"outputs":[{"name":"","type":"string[][]"}]},
	{"type":"function","name":"announce","stateMutability":"nonpayable","inputs":[{"name":"validator","type":"address"},{"name":"storageLocation","type":"string"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"","type":"bool"}]}
]`

var (
	dispatchEventSig  = crypto.Keccak256Hash([]byte("Dispatch(address,uint32,bytes32,bytes)"))
	insertionEventSig = crypto.Keccak256Hash([]byte("InsertedIntoTree(bytes32,uint32)"))

	minGasPriceWei = big.NewInt(5_000_000_000) // 5 gwei floor, matches the validator's client
)

// EVMChainConfig names the RPC endpoint and deployed contract addresses
// for one EVM-compatible chain this relayer talks to.
type EVMChainConfig struct {
	Domain            uint32
	RPCURL            string
	MailboxAddress    common.Address
	MerkleHookAddress common.Address
	ReorgPeriod       uint32
}

// EVMClient wraps an ethclient.Client with the ABI-pack/call/send idiom
// every capability adapter below shares, so each adapter only needs to
// know its own ABI and method names.
type EVMClient struct {
	rpc     *ethclient.Client
	chainID *big.Int
}

// DialEVMClient connects to url and returns a client bound to chainID.
func DialEVMClient(url string, chainID *big.Int) (*EVMClient, error) {
	rpc, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: dial %s: %w", url, err)
	}
	return &EVMClient{rpc: rpc, chainID: chainID}, nil
}

func (c *EVMClient) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, params ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: pack %s: %w", method, err)
	}
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: call %s: %w", method, err)
	}
	outputs, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: unpack %s: %w", method, err)
	}
	return outputs, nil
}

// send signs and submits a call to method with key, enforcing the 5 gwei
// floor and waiting for inclusion before returning the receipt.
func (c *EVMClient) send(ctx context.Context, contractABI abi.ABI, to common.Address, key *ecdsaKey, gasLimit uint64, method string, params ...interface{}) (*types.Receipt, common.Hash, error) {
	data, err := contractABI.Pack(method, params...)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("chainadapter: pack %s: %w", method, err)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, key.address)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("chainadapter: nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("chainadapter: gas price: %w", err)
	}
	if gasPrice.Cmp(minGasPriceWei) < 0 {
		gasPrice = minGasPriceWei
	}
	if gasLimit == 0 {
		estimated, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: key.address, To: &to, Data: data})
		if err != nil {
			return nil, common.Hash{}, fmt.Errorf("chainadapter: estimate gas: %w", err)
		}
		gasLimit = estimated
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key.private)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("chainadapter: sign: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return nil, common.Hash{}, fmt.Errorf("chainadapter: send: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, c.rpc, signed)
	if err != nil {
		return nil, signed.Hash(), fmt.Errorf("chainadapter: wait mined: %w", err)
	}
	return receipt, signed.Hash(), nil
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chainadapter: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

// =============================================================================
// INDEXER
// =============================================================================

// EVMIndexer reads dispatch and tree-insertion events from an origin
// chain's mailbox and merkle hook contracts.
type EVMIndexer struct {
	client      *EVMClient
	mailbox     common.Address
	merkleHook  common.Address
	reorgPeriod uint32
}

// NewEVMIndexer returns an Indexer reading from cfg over client.
func NewEVMIndexer(client *EVMClient, cfg EVMChainConfig) *EVMIndexer {
	return &EVMIndexer{client: client, mailbox: cfg.MailboxAddress, merkleHook: cfg.MerkleHookAddress, reorgPeriod: cfg.ReorgPeriod}
}

func (idx *EVMIndexer) FetchMessagesInRange(ctx context.Context, from, to uint64) ([]message.Message, []LogMeta, error) {
	logs, err := idx.client.rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{idx.mailbox},
		Topics:    [][]common.Hash{{dispatchEventSig}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("chainadapter: filter dispatch logs: %w", err)
	}

	msgs := make([]message.Message, 0, len(logs))
	metas := make([]LogMeta, 0, len(logs))
	for _, lg := range logs {
		msg, err := decodeDispatchedMessage(lg.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("chainadapter: decode dispatch at block %d: %w", lg.BlockNumber, err)
		}
		msgs = append(msgs, msg)
		metas = append(metas, LogMeta{
			BlockNumber: lg.BlockNumber,
			BlockHash:   lg.BlockHash,
			TxHash:      lg.TxHash,
			LogIndex:    uint32(lg.Index),
		})
	}
	return msgs, metas, nil
}

func (idx *EVMIndexer) FetchInsertionsInRange(ctx context.Context, from, to uint64) ([]message.Insertion, []LogMeta, error) {
	logs, err := idx.client.rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{idx.merkleHook},
		Topics:    [][]common.Hash{{insertionEventSig}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("chainadapter: filter insertion logs: %w", err)
	}

	insertions := make([]message.Insertion, 0, len(logs))
	metas := make([]LogMeta, 0, len(logs))
	for _, lg := range logs {
		insertion, err := decodeInsertion(lg.Topics, lg.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("chainadapter: decode insertion at block %d: %w", lg.BlockNumber, err)
		}
		insertions = append(insertions, insertion)
		metas = append(metas, LogMeta{
			BlockNumber: lg.BlockNumber,
			BlockHash:   lg.BlockHash,
			TxHash:      lg.TxHash,
			LogIndex:    uint32(lg.Index),
		})
	}
	return insertions, metas, nil
}

func (idx *EVMIndexer) GetFinalizedBlockNumber(ctx context.Context) (uint64, error) {
	tip, err := idx.client.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chainadapter: block number: %w", err)
	}
	if uint64(idx.reorgPeriod) >= tip {
		return 0, nil
	}
	return tip - uint64(idx.reorgPeriod), nil
}

func (idx *EVMIndexer) LatestSequenceCountAndTip(ctx context.Context) (*uint32, uint64, error) {
	tip, err := idx.client.rpc.BlockNumber(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("chainadapter: block number: %w", err)
	}
	contractABI := mustParseABI(merkleHookABIJSON)
	outputs, err := idx.client.call(ctx, contractABI, idx.merkleHook, "count")
	if err != nil {
		return nil, tip, fmt.Errorf("chainadapter: count: %w", err)
	}
	count := outputs[0].(uint32)
	if count == 0 {
		return nil, tip, nil
	}
	return &count, tip, nil
}

// decodeDispatchedMessage reconstructs a Message from a Dispatch event's
// ABI-encoded body, which packs Hyperlane's wire-format message bytes.
func decodeDispatchedMessage(data []byte) (message.Message, error) {
	if len(data) < 1+4+4+32+4+32 {
		return message.Message{}, fmt.Errorf("dispatch log body too short: %d bytes", len(data))
	}
	off := 0
	version := data[off]
	off++
	nonce := beUint32(data[off:])
	off += 4
	origin := beUint32(data[off:])
	off += 4
	var sender common.Hash
	copy(sender[:], data[off:off+32])
	off += 32
	destination := beUint32(data[off:])
	off += 4
	var recipient common.Hash
	copy(recipient[:], data[off:off+32])
	off += 32
	body := append([]byte(nil), data[off:]...)

	return message.Message{
		Version:     version,
		Nonce:       nonce,
		Origin:      origin,
		Sender:      sender,
		Destination: destination,
		Recipient:   recipient,
		Body:        body,
	}, nil
}

func decodeInsertion(topics []common.Hash, data []byte) (message.Insertion, error) {
	if len(topics) < 2 {
		return message.Insertion{}, fmt.Errorf("insertion log missing indexed message id topic")
	}
	if len(data) < 32 {
		return message.Insertion{}, fmt.Errorf("insertion log body too short: %d bytes", len(data))
	}
	// index is ABI-encoded as a left-padded 32-byte word; the uint32 value
	// occupies the last 4 bytes.
	return message.Insertion{
		MessageID: topics[1],
		LeafIndex: beUint32(data[28:32]),
	}, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// =============================================================================
// MERKLE TREE HOOK
// =============================================================================

// EVMMerkleTreeHook serves a destination's reorg-safe view of an origin's
// dispatch tree by replaying insertion events through an
// IncrementalMerkle, caching the result between calls.
type EVMMerkleTreeHook struct {
	client      *EVMClient
	merkleHook  common.Address
	domain      uint32
	indexer     *EVMIndexer
	abi         abi.ABI
	reorgPeriod uint32

	tree      *merkle.IncrementalMerkle
	syncedTip uint64
}

// NewEVMMerkleTreeHook returns a MerkleTreeHook backed by indexer's
// insertion log stream.
func NewEVMMerkleTreeHook(client *EVMClient, indexer *EVMIndexer, cfg EVMChainConfig) *EVMMerkleTreeHook {
	return &EVMMerkleTreeHook{
		client:      client,
		merkleHook:  cfg.MerkleHookAddress,
		domain:      cfg.Domain,
		indexer:     indexer,
		abi:         mustParseABI(merkleHookABIJSON),
		reorgPeriod: cfg.ReorgPeriod,
		tree:        merkle.NewIncrementalMerkle(),
	}
}

func (h *EVMMerkleTreeHook) sync(ctx context.Context, reorgPeriod uint32) error {
	finalized, err := h.indexer.GetFinalizedBlockNumber(ctx)
	if err != nil {
		return err
	}
	if finalized <= h.syncedTip {
		return nil
	}
	insertions, _, err := h.indexer.FetchInsertionsInRange(ctx, h.syncedTip+1, finalized)
	if err != nil {
		return err
	}
	for _, ins := range insertions {
		var leaf [32]byte
		copy(leaf[:], ins.MessageID[:])
		if err := h.tree.Ingest(leaf, ins.LeafIndex); err != nil {
			return fmt.Errorf("chainadapter: ingest insertion %d: %w", ins.LeafIndex, err)
		}
	}
	h.syncedTip = finalized
	return nil
}

func (h *EVMMerkleTreeHook) Tree(ctx context.Context, reorgPeriod uint32) (*merkle.IncrementalMerkle, error) {
	if err := h.sync(ctx, reorgPeriod); err != nil {
		return nil, err
	}
	return h.tree, nil
}

func (h *EVMMerkleTreeHook) Count(ctx context.Context, reorgPeriod uint32) (uint32, error) {
	if err := h.sync(ctx, reorgPeriod); err != nil {
		return 0, err
	}
	return h.tree.Count(), nil
}

func (h *EVMMerkleTreeHook) LatestCheckpoint(ctx context.Context, reorgPeriod uint32) (message.Checkpoint, error) {
	outputs, err := h.client.call(ctx, h.abi, h.merkleHook, "latestCheckpoint")
	if err != nil {
		return message.Checkpoint{}, fmt.Errorf("chainadapter: latest checkpoint: %w", err)
	}
	root := outputs[0].([32]byte)
	index := outputs[1].(uint32)
	return message.Checkpoint{
		TreeHookAddress: h.merkleHook.Hash(),
		OriginDomain:    h.domain,
		Root:            root,
		Index:           index,
	}, nil
}

// =============================================================================
// MAILBOX
// =============================================================================

// EVMMailbox drives a destination chain's Mailbox contract.
type EVMMailbox struct {
	client  *EVMClient
	mailbox common.Address
	abi     abi.ABI
	signer  *ecdsaKey
}

// NewEVMMailbox returns a Mailbox bound to cfg's mailbox contract, signing
// submitted transactions with signerKeyHex.
func NewEVMMailbox(client *EVMClient, cfg EVMChainConfig, signerKeyHex string) (*EVMMailbox, error) {
	key, err := parseECDSAKey(signerKeyHex)
	if err != nil {
		return nil, err
	}
	return &EVMMailbox{client: client, mailbox: cfg.MailboxAddress, abi: mustParseABI(mailboxABIJSON), signer: key}, nil
}

func (m *EVMMailbox) Delivered(ctx context.Context, messageID common.Hash) (bool, error) {
	outputs, err := m.client.call(ctx, m.abi, m.mailbox, "delivered", messageID)
	if err != nil {
		return false, err
	}
	return outputs[0].(bool), nil
}

func (m *EVMMailbox) Process(ctx context.Context, msg message.Message, metadata []byte, proof *merkle.Proof) (TxOutcome, error) {
	encoded := encodeMessage(msg)
	receipt, hash, err := m.client.send(ctx, m.abi, m.mailbox, m.signer, 0, "process", metadata, encoded)
	if err != nil {
		return TxOutcome{TxHash: hash}, err
	}
	return TxOutcome{
		TxHash:  hash,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed: receipt.GasUsed,
	}, nil
}

func (m *EVMMailbox) ProcessEstimateCosts(ctx context.Context, msg message.Message, metadata []byte) (TxCostEstimate, error) {
	encoded := encodeMessage(msg)
	data, err := m.abi.Pack("process", metadata, encoded)
	if err != nil {
		return TxCostEstimate{}, fmt.Errorf("chainadapter: pack process: %w", err)
	}
	gasLimit, err := m.client.rpc.EstimateGas(ctx, ethereum.CallMsg{From: m.signer.address, To: &m.mailbox, Data: data})
	if err != nil {
		return TxCostEstimate{}, fmt.Errorf("chainadapter: estimate process gas: %w", err)
	}
	gasPrice, err := m.client.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return TxCostEstimate{}, fmt.Errorf("chainadapter: suggest gas price: %w", err)
	}
	if gasPrice.Cmp(minGasPriceWei) < 0 {
		gasPrice = minGasPriceWei
	}
	return TxCostEstimate{GasLimit: gasLimit, GasPrice: gasPrice}, nil
}

func (m *EVMMailbox) DefaultISM(ctx context.Context) (common.Address, error) {
	outputs, err := m.client.call(ctx, m.abi, m.mailbox, "defaultIsm")
	if err != nil {
		return common.Address{}, err
	}
	return outputs[0].(common.Address), nil
}

func (m *EVMMailbox) RecipientISM(ctx context.Context, recipient common.Address) (common.Address, error) {
	outputs, err := m.client.call(ctx, m.abi, m.mailbox, "recipientIsm", recipient)
	if err != nil {
		return common.Address{}, err
	}
	ism := outputs[0].(common.Address)
	if ism == (common.Address{}) {
		return m.DefaultISM(ctx)
	}
	return ism, nil
}

// encodeMessage mirrors message.Message.encode's canonical wire format, so
// the bytes handed to a Mailbox's process() call match what the origin
// Dispatch event carried.
func encodeMessage(m message.Message) []byte {
	buf := make([]byte, 1+4+4+32+4+32+len(m.Body))
	off := 0
	buf[off] = m.Version
	off++
	putBE32(buf[off:], m.Nonce)
	off += 4
	putBE32(buf[off:], m.Origin)
	off += 4
	copy(buf[off:], m.Sender[:])
	off += 32
	putBE32(buf[off:], m.Destination)
	off += 4
	copy(buf[off:], m.Recipient[:])
	off += 32
	copy(buf[off:], m.Body)
	return buf
}

func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// =============================================================================
// VALIDATOR ANNOUNCE
// =============================================================================

// EVMValidatorAnnounce drives a chain's ValidatorAnnounce contract.
type EVMValidatorAnnounce struct {
	client  *EVMClient
	address common.Address
	abi     abi.ABI
	signer  *ecdsaKey
}

// NewEVMValidatorAnnounce returns a ValidatorAnnounce bound to address,
// signing submitted announcements with signerKeyHex.
func NewEVMValidatorAnnounce(client *EVMClient, address common.Address, signerKeyHex string) (*EVMValidatorAnnounce, error) {
	key, err := parseECDSAKey(signerKeyHex)
	if err != nil {
		return nil, err
	}
	return &EVMValidatorAnnounce{client: client, address: address, abi: mustParseABI(validatorAnnounceABIJSON), signer: key}, nil
}

func (v *EVMValidatorAnnounce) GetAnnouncedStorageLocations(ctx context.Context, validators []common.Address) ([][]string, error) {
	outputs, err := v.client.call(ctx, v.abi, v.address, "getAnnouncedStorageLocations", validators)
	if err != nil {
		return nil, err
	}
	return outputs[0].([][]string), nil
}

func (v *EVMValidatorAnnounce) Announce(ctx context.Context, signed SignedAnnouncement) (TxOutcome, error) {
	if len(signed.StorageLocations) == 0 {
		return TxOutcome{}, fmt.Errorf("chainadapter: announce requires at least one storage location")
	}
	receipt, hash, err := v.client.send(ctx, v.abi, v.address, v.signer, 0, "announce",
		signed.Validator, signed.StorageLocations[0], signed.Signature)
	if err != nil {
		return TxOutcome{TxHash: hash}, err
	}
	return TxOutcome{
		TxHash:  hash,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed: receipt.GasUsed,
	}, nil
}

func (v *EVMValidatorAnnounce) AnnounceTokensNeeded(ctx context.Context, signed SignedAnnouncement) (*big.Int, error) {
	balance, err := v.client.rpc.BalanceAt(ctx, v.signer.address, nil)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: balance: %w", err)
	}
	gasPrice, err := v.client.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: gas price: %w", err)
	}
	if gasPrice.Cmp(minGasPriceWei) < 0 {
		gasPrice = minGasPriceWei
	}
	estimatedCost := new(big.Int).Mul(gasPrice, big.NewInt(200_000))
	if balance.Cmp(estimatedCost) >= 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).Sub(estimatedCost, balance), nil
}

// =============================================================================
// SIGNER
// =============================================================================

type ecdsaKey struct {
	private *ecdsa.PrivateKey
	address common.Address
}

func parseECDSAKey(hexKey string) (*ecdsaKey, error) {
	private, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chainadapter: parse signer key: %w", err)
	}
	return &ecdsaKey{private: private, address: crypto.PubkeyToAddress(private.PublicKey)}, nil
}

// =============================================================================
// LANDER ADAPTER
// =============================================================================

// EVMLanderAdapter drives the Lander pipeline against an EVM chain.
// Hyperlane's mailbox process() call is not batchable across distinct
// payloads, so BuildTransactions packs one payload per Transaction;
// Payload.To/Payload.Data already carry the target and calldata the
// message processor built.
type EVMLanderAdapter struct {
	client    *EVMClient
	signer    *ecdsaKey
	blockTime time.Duration
	maxBatch  uint32
}

// NewEVMLanderAdapter returns an Adapter signing with signerKeyHex.
func NewEVMLanderAdapter(client *EVMClient, signerKeyHex string, blockTime time.Duration, maxBatch uint32) (*EVMLanderAdapter, error) {
	key, err := parseECDSAKey(signerKeyHex)
	if err != nil {
		return nil, err
	}
	return &EVMLanderAdapter{client: client, signer: key, blockTime: blockTime, maxBatch: maxBatch}, nil
}

func (a *EVMLanderAdapter) BuildTransactions(ctx context.Context, payloads []*lander.Payload) ([]lander.BuildResult, error) {
	results := make([]lander.BuildResult, 0, len(payloads))
	for _, p := range payloads {
		if p.To == (common.Address{}) || len(p.Data) == 0 {
			results = append(results, lander.BuildResult{Payloads: []*lander.Payload{p}, Tx: nil})
			continue
		}
		results = append(results, lander.BuildResult{
			Payloads: []*lander.Payload{p},
			Tx: &lander.Transaction{
				UUID:        uuid.New(),
				Destination: p.Destination,
				Payloads:    []*lander.Payload{p},
				Status:      lander.TxPendingInclusion,
			},
		})
	}
	return results, nil
}

func (a *EVMLanderAdapter) EstimateGas(ctx context.Context, tx *lander.Transaction) (*big.Int, error) {
	gasPrice, err := a.client.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: estimate gas: %w", err)
	}
	if gasPrice.Cmp(minGasPriceWei) < 0 {
		gasPrice = minGasPriceWei
	}
	return gasPrice, nil
}

func (a *EVMLanderAdapter) Simulate(ctx context.Context, tx *lander.Transaction) error {
	for _, p := range tx.Payloads {
		to := p.To
		value := p.Value
		if value == nil {
			value = big.NewInt(0)
		}
		if _, err := a.client.rpc.CallContract(ctx, ethereum.CallMsg{
			From:  a.signer.address,
			To:    &to,
			Value: value,
			Data:  p.Data,
		}, nil); err != nil {
			return fmt.Errorf("chainadapter: simulate payload %s: %w", p.UUID, err)
		}
	}
	return nil
}

func (a *EVMLanderAdapter) Submit(ctx context.Context, tx *lander.Transaction) (common.Hash, error) {
	if len(tx.Payloads) != 1 {
		return common.Hash{}, fmt.Errorf("chainadapter: evm adapter only lands single-payload transactions, got %d", len(tx.Payloads))
	}
	p := tx.Payloads[0]

	nonce, err := a.client.rpc.PendingNonceAt(ctx, a.signer.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chainadapter: nonce: %w", err)
	}
	if tx.Nonce != nil {
		nonce = *tx.Nonce
	}
	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice, err = a.client.rpc.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("chainadapter: gas price: %w", err)
		}
	}
	if gasPrice.Cmp(minGasPriceWei) < 0 {
		gasPrice = minGasPriceWei
	}
	value := p.Value
	if value == nil {
		value = big.NewInt(0)
	}
	gasLimit, err := a.client.rpc.EstimateGas(ctx, ethereum.CallMsg{From: a.signer.address, To: &p.To, Value: value, Data: p.Data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chainadapter: estimate gas: %w", err)
	}

	rawTx := types.NewTransaction(nonce, p.To, value, gasLimit, gasPrice, p.Data)
	signed, err := types.SignTx(rawTx, types.NewEIP155Signer(a.client.chainID), a.signer.private)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chainadapter: sign: %w", err)
	}
	if err := a.client.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chainadapter: send: %w", err)
	}
	return signed.Hash(), nil
}

func (a *EVMLanderAdapter) TransactionStatus(ctx context.Context, tx *lander.Transaction) (lander.TxStatus, error) {
	receipt, err := a.client.rpc.TransactionReceipt(ctx, tx.Hash)
	if err != nil {
		if err == ethereum.NotFound {
			return lander.TxMempool, nil
		}
		return lander.TxMempool, fmt.Errorf("chainadapter: receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return lander.TxDropped, nil
	}

	tip, err := a.client.rpc.BlockNumber(ctx)
	if err != nil {
		return lander.TxIncluded, fmt.Errorf("chainadapter: block number: %w", err)
	}
	const finalityConfirmations = 2
	if receipt.BlockNumber != nil && tip >= receipt.BlockNumber.Uint64()+finalityConfirmations {
		return lander.TxFinalized, nil
	}
	return lander.TxIncluded, nil
}

func (a *EVMLanderAdapter) RevertedPayloads(ctx context.Context, tx *lander.Transaction) ([]uuid.UUID, error) {
	receipt, err := a.client.rpc.TransactionReceipt(ctx, tx.Hash)
	if err != nil {
		return nil, fmt.Errorf("chainadapter: receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return nil, nil
	}
	reverted := make([]uuid.UUID, 0, len(tx.Payloads))
	for _, p := range tx.Payloads {
		reverted = append(reverted, p.UUID)
	}
	return reverted, nil
}

// MaxBatchSize reports the configured per-destination batch ceiling, per
// the MaxBatchSizeAndBlockTime contract.
func (a *EVMLanderAdapter) MaxBatchSize() uint32 { return a.maxBatch }

// EstimatedBlockTime reports this chain's configured block time.
func (a *EVMLanderAdapter) EstimatedBlockTime() time.Duration { return a.blockTime }

var _ lander.Adapter = (*EVMLanderAdapter)(nil)
var _ MaxBatchSizeAndBlockTime = (*EVMLanderAdapter)(nil)
var _ Indexer = (*EVMIndexer)(nil)
var _ MerkleTreeHook = (*EVMMerkleTreeHook)(nil)
var _ Mailbox = (*EVMMailbox)(nil)
var _ ValidatorAnnounce = (*EVMValidatorAnnounce)(nil)

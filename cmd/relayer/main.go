// Copyright 2025 Certen Protocol

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/chainadapter"
	"github.com/hyperbridge/relayer-core/pkg/checkpointsync"
	"github.com/hyperbridge/relayer-core/pkg/config"
	"github.com/hyperbridge/relayer-core/pkg/ismmeta"
	"github.com/hyperbridge/relayer-core/pkg/kvstore"
	"github.com/hyperbridge/relayer-core/pkg/lander"
	"github.com/hyperbridge/relayer-core/pkg/lander/nonce"
	"github.com/hyperbridge/relayer-core/pkg/merkle"
	"github.com/hyperbridge/relayer-core/pkg/message"
	"github.com/hyperbridge/relayer-core/pkg/metrics"
	"github.com/hyperbridge/relayer-core/pkg/pgstore"
	"github.com/hyperbridge/relayer-core/pkg/processor"
	"github.com/hyperbridge/relayer-core/pkg/rlog"
	"github.com/hyperbridge/relayer-core/pkg/server"
)

const defaultPollInterval = 5 * time.Second

// origin bundles everything the relayer needs to mirror one origin
// chain's dispatch tree and serve leaves back to every destination
// Processor that reads from it.
type origin struct {
	cfg     config.OriginConfig
	client  *chainadapter.EVMClient
	indexer *chainadapter.EVMIndexer
	hook    *chainadapter.EVMMerkleTreeHook
	builder *merkle.IncrementalMerkle
	store   *kvstore.TypedStore
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		configPath = flag.String("config", "./relayer.yaml", "Path to the relayer's YAML config file")
		showHelp   = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	logger := rlog.New("relayer")
	logger.Printf("starting cross-chain relayer core")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config %s: %v", *configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	signerKeyHex, err := readSignerKey(cfg.Lander.SignerKeyPath)
	if err != nil {
		log.Fatalf("read signer key: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir %s: %v", cfg.DataDir, err)
	}

	metricsSvc := metrics.New()

	var recorder lander.Recorder
	var pgStore *pgstore.Store
	if cfg.DatabaseURL != "" {
		client, err := pgstore.NewClient(cfg.DatabaseURL, pgstore.Config{}, pgstore.WithLogger(rlog.New("pgstore")))
		if err != nil {
			logger.Printf("postgres unavailable, running without a durable lander recorder: %v", err)
		} else {
			pgStore = pgstore.NewStore(client)
			recorder = pgStore
			logger.Printf("lander transactions/payloads recorded to postgres")
		}
	}

	origins := make(map[uint32]*origin, len(cfg.Origins))
	serverDbs := make(map[uint32]kvstore.Store, len(cfg.Origins))
	for _, originCfg := range cfg.Origins {
		o, err := buildOrigin(originCfg, cfg.DataDir)
		if err != nil {
			log.Fatalf("origin %s (domain %d): %v", originCfg.Name, originCfg.Domain, err)
		}
		origins[originCfg.Domain] = o
		serverDbs[originCfg.Domain] = o.store
	}

	ctx, cancel := context.WithCancel(context.Background())

	for _, o := range origins {
		o := o
		go runOriginSync(ctx, o, metricsSvc, logger)
	}

	var destWg []chan struct{}
	for _, destCfg := range cfg.Destinations {
		destCfg := destCfg
		done := make(chan struct{})
		destWg = append(destWg, done)
		go func() {
			defer close(done)
			if err := runDestination(ctx, destCfg, cfg, origins, signerKeyHex, recorder, logger); err != nil && ctx.Err() == nil {
				logger.Printf("destination %s (domain %d) stopped: %v", destCfg.Name, destCfg.Domain, err)
			}
		}()
	}

	srv := server.NewServer(server.Config{
		Addr:    cfg.Server.Addr,
		Dbs:     serverDbs,
		Store:   pgStore,
		Metrics: metricsSvc,
		Logger:  rlog.New("server"),
	})
	srvDone := make(chan error, 1)
	go func() {
		logger.Printf("admin server listening on %s", cfg.Server.Addr)
		srvDone <- srv.Run(ctx)
	}()

	logger.Printf("relayer ready: %d origin(s), %d destination(s)", len(cfg.Origins), len(cfg.Destinations))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	select {
	case err := <-srvDone:
		if err != nil {
			logger.Printf("admin server shutdown error: %v", err)
		}
	case <-shutdownCtx.Done():
	}
	for _, done := range destWg {
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	}

	logger.Printf("relayer stopped")
}

// buildOrigin dials the origin's RPC endpoint, opens its durable store
// under dataDir, and wires an indexer/hook pair to mirror its dispatch
// tree.
func buildOrigin(cfg config.OriginConfig, dataDir string) (*origin, error) {
	client, err := chainadapter.DialEVMClient(cfg.RPCURL, new(big.Int).SetUint64(cfg.ChainID))
	if err != nil {
		return nil, err
	}

	evmCfg := chainadapter.EVMChainConfig{
		Domain:            cfg.Domain,
		RPCURL:            cfg.RPCURL,
		MailboxAddress:    common.HexToAddress(cfg.MailboxAddress),
		MerkleHookAddress: common.HexToAddress(cfg.MerkleHookAddress),
		ReorgPeriod:       cfg.ReorgPeriod,
	}
	indexer := chainadapter.NewEVMIndexer(client, evmCfg)
	hook := chainadapter.NewEVMMerkleTreeHook(client, indexer, evmCfg)

	db, err := dbm.NewGoLevelDB(fmt.Sprintf("origin-%d", cfg.Domain), dataDir)
	if err != nil {
		return nil, fmt.Errorf("open leveldb for origin %d: %w", cfg.Domain, err)
	}
	store := kvstore.NewTypedStore(kvstore.NewCometStore(db))

	return &origin{
		cfg:     cfg,
		client:  client,
		indexer: indexer,
		hook:    hook,
		builder: merkle.NewIncrementalMerkle(),
		store:   store,
	}, nil
}

// runOriginSync is the single writer into an origin's builder tree (see
// processor.Processor.updateToCheckpoint's doc comment): it polls the
// origin's indexer for newly finalized dispatches and insertions, records
// each dispatched message under its assigned leaf index, and ingests the
// leaf into the shared Merkle mirror in strict leaf order.
func runOriginSync(ctx context.Context, o *origin, metricsSvc *metrics.Metrics, logger *log.Logger) {
	pollInterval := o.cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	cursor := o.cfg.StartBlock
	if raw, err := o.store.Get(ctx, kvstore.BlockCursorKey(o.cfg.Domain)); err == nil && len(raw) == 8 {
		cursor = beUint64(raw)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tip, err := o.indexer.GetFinalizedBlockNumber(ctx)
		if err != nil {
			logger.Printf("origin %d: finalized block number: %v", o.cfg.Domain, err)
			continue
		}
		if tip < cursor {
			continue
		}

		msgs, _, err := o.indexer.FetchMessagesInRange(ctx, cursor, tip)
		if err != nil {
			logger.Printf("origin %d: fetch messages %d-%d: %v", o.cfg.Domain, cursor, tip, err)
			continue
		}
		insertions, insMetas, err := o.indexer.FetchInsertionsInRange(ctx, cursor, tip)
		if err != nil {
			logger.Printf("origin %d: fetch insertions %d-%d: %v", o.cfg.Domain, cursor, tip, err)
			continue
		}

		byID := make(map[common.Hash]message.Message, len(msgs))
		for _, m := range msgs {
			byID[m.ID()] = m
		}

		for i, ins := range insertions {
			msg, ok := byID[ins.MessageID]
			if !ok {
				logger.Printf("origin %d: insertion at leaf %d has no matching dispatch in range, skipping until replayed", o.cfg.Domain, ins.LeafIndex)
				continue
			}
			if ins.LeafIndex != o.builder.Count() {
				logger.Printf("origin %d: out-of-order insertion: expected leaf %d, got %d", o.cfg.Domain, o.builder.Count(), ins.LeafIndex)
				continue
			}
			if err := o.builder.Ingest(ins.MessageID, ins.LeafIndex); err != nil {
				logger.Printf("origin %d: ingest leaf %d: %v", o.cfg.Domain, ins.LeafIndex, err)
				continue
			}
			committed := message.CommittedMessage{
				Message:               msg,
				DispatchedBlockNumber: insMetas[i].BlockNumber,
				ObservedAt:            time.Now(),
			}
			if err := o.store.StoreJSON(ctx, kvstore.MessageByLeafIndexKey(ins.LeafIndex), committed); err != nil {
				logger.Printf("origin %d: persist leaf %d: %v", o.cfg.Domain, ins.LeafIndex, err)
			}
			if metricsSvc != nil {
				metricsSvc.MerkleTreeCount.WithLabelValues(fmt.Sprintf("%d", o.cfg.Domain)).Set(float64(o.builder.Count()))
			}
		}

		cursor = tip + 1
		cursorBytes := make([]byte, 8)
		putBE64(cursorBytes, cursor)
		if err := o.store.Set(ctx, kvstore.BlockCursorKey(o.cfg.Domain), cursorBytes); err != nil {
			logger.Printf("origin %d: persist cursor: %v", o.cfg.Domain, err)
		}
	}
}

// runDestination wires one destination's mailbox, lander, ISM resolver,
// and nonce manager, then runs one Processor per configured origin that
// targets it, blocking until ctx is canceled.
func runDestination(ctx context.Context, destCfg config.DestinationConfig, cfg *config.Config, origins map[uint32]*origin, signerKeyHex string, recorder lander.Recorder, baseLogger *log.Logger) error {
	client, err := chainadapter.DialEVMClient(destCfg.RPCURL, new(big.Int).SetUint64(destCfg.ChainID))
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	evmCfg := chainadapter.EVMChainConfig{
		Domain:         destCfg.Domain,
		RPCURL:         destCfg.RPCURL,
		MailboxAddress: common.HexToAddress(destCfg.MailboxAddress),
	}
	mailbox, err := chainadapter.NewEVMMailbox(client, evmCfg, signerKeyHex)
	if err != nil {
		return fmt.Errorf("mailbox: %w", err)
	}

	blockTime := destCfg.BlockTime
	if blockTime <= 0 {
		blockTime = 2 * time.Second
	}
	landerAdapter, err := chainadapter.NewEVMLanderAdapter(client, signerKeyHex, blockTime, cfg.Lander.MaxBatchSize)
	if err != nil {
		return fmt.Errorf("lander adapter: %w", err)
	}

	nonces := nonce.NewManager()
	l := lander.New(destCfg.Domain, landerAdapter, nonces, blockTime, rlog.New(fmt.Sprintf("lander.%d", destCfg.Domain)))
	if recorder != nil {
		l.SetRecorder(recorder)
	}

	ismResolver := chainadapter.NewEVMIsmResolver(client, buildSignatureSource(destCfg, cfg, client, signerKeyHex, baseLogger))
	ismBuilder := ismmeta.NewBuilder(ismResolver, rlog.New(fmt.Sprintf("ismmeta.%d", destCfg.Domain)))

	for domain, o := range origins {
		if domain == destCfg.Domain {
			continue
		}
		o := o
		domain := domain
		procCfg := processor.Config{
			Destination:   destCfg.Domain,
			ReorgPeriod:   o.cfg.ReorgPeriod,
			MaxRetries:    destCfg.MaxRetries,
			ThrottleEvery: 20 * time.Millisecond,
			Filter:        buildSenderFilter(destCfg),
		}
		if procCfg.MaxRetries == 0 {
			procCfg.MaxRetries = processor.DefaultConfig().MaxRetries
		}

		procLogger := rlog.New(fmt.Sprintf("processor.%d->%d", domain, destCfg.Domain))
		proc := processor.New(procCfg, o.store, o.builder, o.hook, mailbox, ismBuilder, l, procLogger)

		go func() {
			if err := proc.Run(ctx, fetchLeafFunc(o)); err != nil && ctx.Err() == nil {
				procLogger.Printf("stopped: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func fetchLeafFunc(o *origin) func(ctx context.Context, leafIndex uint32) (*message.CommittedMessage, bool, error) {
	return func(ctx context.Context, leafIndex uint32) (*message.CommittedMessage, bool, error) {
		var committed message.CommittedMessage
		found, err := o.store.LoadJSON(ctx, kvstore.MessageByLeafIndexKey(leafIndex), &committed)
		if err != nil || !found {
			return nil, found, err
		}
		return &committed, true, nil
	}
}

// buildSenderFilter turns a destination's allowed/denied sender lists
// into a processor.MessageFilter. Denied senders take precedence; an
// empty allow-list admits everyone not explicitly denied.
func buildSenderFilter(destCfg config.DestinationConfig) processor.MessageFilter {
	if len(destCfg.AllowedSenders) == 0 && len(destCfg.DeniedSenders) == 0 {
		return processor.AllowAll{}
	}
	return senderFilter{
		allowed: addressSet(destCfg.AllowedSenders),
		denied:  addressSet(destCfg.DeniedSenders),
	}
}

type senderFilter struct {
	allowed map[common.Address]bool
	denied  map[common.Address]bool
}

func (f senderFilter) Allowed(sender common.Address) bool {
	if f.denied[sender] {
		return false
	}
	if len(f.allowed) == 0 {
		return true
	}
	return f.allowed[sender]
}

func addressSet(addrs []string) map[common.Address]bool {
	set := make(map[common.Address]bool, len(addrs))
	for _, a := range addrs {
		set[common.HexToAddress(a)] = true
	}
	return set
}

// buildSignatureSource wires a checkpointsync.Source against the first
// configured origin that has a validator-announce address, or returns nil
// if no origin has one; that one source serves every origin's messages to
// this destination. Destinations
// whose ISMs never resolve to a multisig module (e.g. pure NullISM/
// AggregationISM-of-routing setups) can leave this unconfigured.
func buildSignatureSource(destCfg config.DestinationConfig, cfg *config.Config, client *chainadapter.EVMClient, signerKeyHex string, logger *log.Logger) chainadapter.SignatureSource {
	for _, originCfg := range cfg.Origins {
		if originCfg.ValidatorAnnounceAddress == "" {
			continue
		}
		announce, err := chainadapter.NewEVMValidatorAnnounce(client, common.HexToAddress(originCfg.ValidatorAnnounceAddress), signerKeyHex)
		if err != nil {
			logger.Printf("validator announce for origin %d unavailable: %v", originCfg.Domain, err)
			continue
		}
		return checkpointsync.NewSource(announce, rlog.New(fmt.Sprintf("checkpointsync.%d", destCfg.Domain)))
	}
	return nil
}

func readSignerKey(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putBE64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func printHelp() {
	fmt.Println("relayer - cross-chain message relayer core")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  relayer -config ./relayer.yaml")
	fmt.Println()
	flag.PrintDefaults()
}

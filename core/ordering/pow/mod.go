// Package pow implements an ordering service powered by a Proof-of-Work
// algorithm for a single node.
//
// The service gathers the transactions of the pool, validates them on an
// overlay of the committed state, folds the authenticators of the state
// providers into the global state tree and mines a block committing to the new
// root. The state, the block and its transactions are then written in one
// transaction of the database.
package pow

import (
	"context"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/ordering/blockstore"
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/hashtree"
	"go.dedis.ch/swarm/core/store/hashtree/binprefix"
	"go.dedis.ch/swarm/core/store/kv"
	"go.dedis.ch/swarm/core/store/mem"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/txn/pool"
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

const defaultCacheSize = 1000

var (
	promBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarm_pow_blocks_total",
		Help: "number of blocks committed",
	})

	promHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_pow_height",
		Help: "index of the last block committed",
	})

	promBlockTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_pow_block_seconds",
		Help:    "time to validate, mine and commit a block",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	swarm.PromCollectors = append(swarm.PromCollectors, promBlocks, promHeight, promBlockTime)
}

// Service is an ordering service powered by a Proof-of-Work consensus
// algorithm.
//
// - implements ordering.Service
type Service struct {
	sync.Mutex

	pool        pool.Pool
	validation  validation.Service
	db          kv.DB
	hashFactory crypto.HashFactory
	treeFactory hashtree.Factory
	difficulty  uint32
	context     serde.Context
	blocks      *blockStore
	txs         *blockstore.TxStore
	watcher     *ordering.Watcher
	logger      zerolog.Logger

	providers []ordering.StateProvider
	started   bool
	closing   chan struct{}
	closed    sync.WaitGroup
}

type serviceTemplate struct {
	hashFactory crypto.HashFactory
	treeFactory hashtree.Factory
	difficulty  uint32
	cacheSize   int
}

// ServiceOption is the type of option to set some fields of the service.
type ServiceOption func(*serviceTemplate)

// WithHashFactory is an option to set the hash factory of the blocks.
func WithHashFactory(fac crypto.HashFactory) ServiceOption {
	return func(tmpl *serviceTemplate) {
		tmpl.hashFactory = fac
	}
}

// WithTreeFactory is an option to set the implementation of the global state
// tree.
func WithTreeFactory(fac hashtree.Factory) ServiceOption {
	return func(tmpl *serviceTemplate) {
		tmpl.treeFactory = fac
	}
}

// WithBlockDifficulty is an option to set the difficulty of the proof of work.
func WithBlockDifficulty(diff uint32) ServiceOption {
	return func(tmpl *serviceTemplate) {
		tmpl.difficulty = diff
	}
}

// WithCacheSize is an option to set the number of transactions kept in memory.
func WithCacheSize(size int) ServiceOption {
	return func(tmpl *serviceTemplate) {
		tmpl.cacheSize = size
	}
}

// NewService creates a new service that orders the transactions of the pool
// and commits the blocks in the database. The last block of the database, if
// any, is loaded.
func NewService(p pool.Pool, val validation.Service, db kv.DB, txFac txn.Factory,
	opts ...ServiceOption) (*Service, error) {

	tmpl := serviceTemplate{
		hashFactory: crypto.NewSha256Factory(),
		treeFactory: binprefix.NewFactory(binprefix.Nonce{}),
		difficulty:  1,
		cacheSize:   defaultCacheSize,
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	if tmpl.difficulty > MaxDifficulty {
		return nil, xerrors.Errorf("difficulty %d is above %d", tmpl.difficulty, MaxDifficulty)
	}

	ctx := json.NewContext()

	blockFac := NewBlockFactory(NewHeaderFactory(tmpl.hashFactory), val.GetFactory())

	blocks := newBlockStore(db, blockFac, ctx)

	err := blocks.load()
	if err != nil {
		return nil, xerrors.Errorf("failed to load blocks: %v", err)
	}

	txs, err := blockstore.NewTxStore(db, txBucket, txFac, tmpl.cacheSize)
	if err != nil {
		return nil, xerrors.Errorf("tx store: %v", err)
	}

	srvc := &Service{
		pool:        p,
		validation:  val,
		db:          db,
		hashFactory: tmpl.hashFactory,
		treeFactory: tmpl.treeFactory,
		difficulty:  tmpl.difficulty,
		context:     ctx,
		blocks:      blocks,
		txs:         txs,
		watcher:     ordering.NewWatcher(),
		logger:      swarm.Logger.With().Str("service", "pow").Logger(),
	}

	last, found := blocks.Last()
	if found {
		promHeight.Set(float64(last.GetIndex()))
	}

	return srvc, nil
}

// Register adds a provider of an authenticator of the global state tree. It
// must be called before the service starts.
func (s *Service) Register(provider ordering.StateProvider) {
	s.Lock()
	s.providers = append(s.providers, provider)
	s.Unlock()
}

// Listen starts the loop that creates the blocks.
func (s *Service) Listen() error {
	s.Lock()
	defer s.Unlock()

	if s.started {
		return xerrors.New("service already started")
	}

	s.started = true
	s.closing = make(chan struct{})
	s.closed.Add(1)

	go func() {
		defer s.closed.Done()

		s.main()
	}()

	return nil
}

// Close implements ordering.Service. It stops the loop and waits for the block
// in progress, if any, to be aborted.
func (s *Service) Close() error {
	s.Lock()

	if !s.started {
		s.Unlock()
		return xerrors.New("service not started")
	}

	s.started = false
	close(s.closing)
	s.Unlock()

	s.closed.Wait()

	return nil
}

// GetHeader implements ordering.Service. It returns the header of the block at
// the index.
func (s *Service) GetHeader(index uint64) (ordering.Header, error) {
	block, err := s.blocks.Get(index)
	if err != nil {
		return nil, xerrors.Errorf("block store: %v", err)
	}

	return block.GetHeader(), nil
}

// GetLatestHeader implements ordering.Service. It returns the header of the
// last committed block.
func (s *Service) GetLatestHeader() (ordering.Header, error) {
	block, found := s.blocks.Last()
	if !found {
		return nil, xerrors.New("no block committed yet")
	}

	return block.GetHeader(), nil
}

// GetBlock returns the block at the index.
func (s *Service) GetBlock(index uint64) (Block, error) {
	return s.blocks.Get(index)
}

// GetStore implements ordering.Service. It returns a read-only view of the
// committed state.
func (s *Service) GetStore() store.Readable {
	return kv.NewReadable(s.db, stateBucket)
}

// GetStateTree implements ordering.Service. It returns the global state tree
// of the header.
func (s *Service) GetStateTree(header ordering.Header) (hashtree.Tree, error) {
	return ordering.OpenState(s.treeFactory, s.GetStore(), header.GetRoot())
}

// GetTransaction implements ordering.Service. It returns the committed
// transaction with the identifier.
func (s *Service) GetTransaction(id []byte) (txn.Transaction, error) {
	tx, err := s.txs.Get(id)
	if err != nil {
		return nil, xerrors.Errorf("tx store: %v", err)
	}

	return tx, nil
}

// Watch implements ordering.Service. It returns a channel populated with the
// new blocks until the context is done.
func (s *Service) Watch(ctx context.Context) <-chan ordering.Event {
	return s.watcher.Watch(ctx)
}

// main is the loop to create the blocks. It waits for at least one transaction
// and creates a block with all the pending ones, until the service is closed.
func (s *Service) main() {
	s.logger.Info().Uint32("difficulty", s.difficulty).Msg("ordering service started")

	for {
		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			select {
			case <-s.closing:
				cancel()
			case <-ctx.Done():
			}
		}()

		txs := s.pool.Gather(ctx, pool.Config{Min: 1})

		if ctx.Err() != nil {
			cancel()
			s.logger.Info().Msg("ordering service stopped")
			return
		}

		err := s.createBlock(ctx, txs)
		cancel()

		if err != nil {
			select {
			case <-s.closing:
				s.logger.Info().Msg("ordering service stopped")
				return
			default:
			}

			s.logger.Err(err).Msg("failed to create block")

			// The transactions are dropped so that the next block is not
			// stuck on the same failure.
			s.removeTxs(txs)
		}
	}
}

func (s *Service) createBlock(ctx context.Context, txs []txn.Transaction) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pow.createBlock")
	defer span.Finish()

	span.SetTag("txs", len(txs))

	start := time.Now()

	var index uint64
	var previous []byte
	var prevRoot []byte

	last, found := s.blocks.Last()
	if found {
		index = last.GetIndex() + 1
		previous = last.GetHeader().GetHash()
		prevRoot = last.GetHeader().GetRoot()
	}

	overlay := mem.NewSnapshot(s.GetStore())

	data, err := s.validation.Validate(overlay, txs)
	if err != nil {
		return xerrors.Errorf("failed to validate: %v", err)
	}

	root, err := ordering.UpdateState(s.treeFactory, overlay, prevRoot, s.getProviders())
	if err != nil {
		return xerrors.Errorf("failed to update state: %v", err)
	}

	block, err := NewBlock(ctx, data, s.hashFactory,
		WithIndex(index),
		WithPrevious(previous),
		WithRoot(root),
		WithDifficulty(s.difficulty))
	if err != nil {
		return xerrors.Errorf("failed to create block: %v", err)
	}

	err = s.commit(block, overlay, txs)
	if err != nil {
		return xerrors.Errorf("failed to commit block: %v", err)
	}

	s.removeTxs(txs)

	promBlocks.Inc()
	promHeight.Set(float64(index))
	promBlockTime.Observe(time.Since(start).Seconds())

	s.logger.Info().
		Uint64("index", index).
		Int("txs", len(txs)).
		Hex("root", root).
		Msg("block committed")

	s.watcher.Notify(ordering.Event{
		Index:        index,
		Header:       block.GetHeader(),
		Transactions: data.GetTransactionResults(),
	})

	return nil
}

// commit writes the pending state of the overlay, the block and its
// transactions in a single database transaction.
func (s *Service) commit(block Block, overlay *mem.Snapshot, txs []txn.Transaction) error {
	return s.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(stateBucket)
		if err != nil {
			return xerrors.Errorf("bucket: %v", err)
		}

		err = overlay.ForEach(func(key, value []byte, deleted bool) error {
			if deleted {
				return bucket.Delete(key)
			}

			return bucket.Set(key, value)
		})
		if err != nil {
			return xerrors.Errorf("failed to write state: %v", err)
		}

		err = s.blocks.Store(tx, block)
		if err != nil {
			return xerrors.Errorf("block store: %v", err)
		}

		err = s.txs.Store(tx, txs)
		if err != nil {
			return xerrors.Errorf("tx store: %v", err)
		}

		return nil
	})
}

func (s *Service) removeTxs(txs []txn.Transaction) {
	for _, tx := range txs {
		err := s.pool.Remove(tx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to remove tx from the pool")
		}
	}
}

func (s *Service) getProviders() []ordering.StateProvider {
	s.Lock()
	defer s.Unlock()

	return append([]ordering.StateProvider{}, s.providers...)
}

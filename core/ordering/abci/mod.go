// Package abci implements an ordering service on top of a CometBFT consensus
// engine. The application receives the decided blocks through the ABCI
// interface, validates their transactions on an overlay of the committed state
// and reports the root of the global state tree as the application hash.
//
// The state of a block is written to the database only when the engine calls
// Commit, so that a block which is never committed leaves no trace.
package abci

import (
	"context"
	"encoding/binary"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"
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
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

const (
	// Codespace is the namespace of the codes produced by the application
	// itself, as opposed to the ones produced by the contracts.
	Codespace = "swarm"

	// CodeRejected is the code of a transaction rejected without a code.
	CodeRejected uint32 = 1

	// CodeMalformed is the code of a transaction that cannot be decoded.
	CodeMalformed uint32 = 2

	// CodeInvalidNonce is the code of a transaction with a nonce already used.
	CodeInvalidNonce uint32 = 3

	// CodeUnknownQuery is the code of a query with an unknown path.
	CodeUnknownQuery uint32 = 4

	appName          = "swarm"
	defaultCacheSize = 1000
)

var (
	promHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_abci_height",
		Help: "height of the last block committed",
	})

	promTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_abci_txs_total",
		Help: "number of transactions processed in decided blocks",
	}, []string{"accepted"})
)

func init() {
	swarm.PromCollectors = append(swarm.PromCollectors, promHeight, promTxs)
}

// Application is a CometBFT application that orders the transactions of the
// decided blocks.
//
// - implements abcitypes.Application
// - implements ordering.Service
type Application struct {
	abcitypes.BaseApplication

	sync.Mutex

	validation  validation.Service
	db          kv.DB
	txFactory   txn.Factory
	txCheck     TxCheck
	pkFactory   crypto.PublicKeyFactory
	hashFactory crypto.HashFactory
	treeFactory hashtree.Factory
	context     serde.Context
	headers     *headerStore
	txs         *blockstore.TxStore
	watcher     *ordering.Watcher
	logger      zerolog.Logger

	providers []ordering.StateProvider
	pending   *pendingBlock
}

// pendingBlock is a block that has been finalized but not yet committed.
type pendingBlock struct {
	header  Header
	overlay *mem.Snapshot
	txs     []txn.Transaction
	results []validation.TransactionResult
}

// TxCheck returns an error when a decoded transaction must not enter the
// mempool.
type TxCheck func(txn.Transaction) error

type appTemplate struct {
	txCheck     TxCheck
	hashFactory crypto.HashFactory
	treeFactory hashtree.Factory
	pkFactory   crypto.PublicKeyFactory
	cacheSize   int
}

// AppOption is the type of option to set some fields of the application.
type AppOption func(*appTemplate)

// WithHashFactory is an option to set the hash factory of the headers.
func WithHashFactory(fac crypto.HashFactory) AppOption {
	return func(tmpl *appTemplate) {
		tmpl.hashFactory = fac
	}
}

// WithTreeFactory is an option to set the implementation of the global state
// tree.
func WithTreeFactory(fac hashtree.Factory) AppOption {
	return func(tmpl *appTemplate) {
		tmpl.treeFactory = fac
	}
}

// WithPublicKeyFactory is an option to set the factory used to decode the
// identities of the nonce queries.
func WithPublicKeyFactory(fac crypto.PublicKeyFactory) AppOption {
	return func(tmpl *appTemplate) {
		tmpl.pkFactory = fac
	}
}

// WithTxCheck is an option to set the check run on the transactions before they
// enter the mempool, in addition to the nonce.
func WithTxCheck(check TxCheck) AppOption {
	return func(tmpl *appTemplate) {
		tmpl.txCheck = check
	}
}

// WithCacheSize is an option to set the number of transactions kept in memory.
func WithCacheSize(size int) AppOption {
	return func(tmpl *appTemplate) {
		tmpl.cacheSize = size
	}
}

// NewApplication creates a new application that stores the committed blocks in
// the database. The last header of the database, if any, is loaded so that the
// engine can replay the missing blocks.
func NewApplication(val validation.Service, db kv.DB, txFac txn.Factory,
	opts ...AppOption) (*Application, error) {

	tmpl := appTemplate{
		hashFactory: crypto.NewSha256Factory(),
		treeFactory: binprefix.NewFactory(binprefix.Nonce{}),
		pkFactory:   ed25519.NewPublicKeyFactory(),
		cacheSize:   defaultCacheSize,
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	ctx := json.NewContext()

	headers := newHeaderStore(db, NewHeaderFactory(tmpl.hashFactory), ctx)

	err := headers.load()
	if err != nil {
		return nil, xerrors.Errorf("failed to load headers: %v", err)
	}

	txs, err := blockstore.NewTxStore(db, txBucket, txFac, tmpl.cacheSize)
	if err != nil {
		return nil, xerrors.Errorf("tx store: %v", err)
	}

	app := &Application{
		validation:  val,
		db:          db,
		txFactory:   txFac,
		txCheck:     tmpl.txCheck,
		pkFactory:   tmpl.pkFactory,
		hashFactory: tmpl.hashFactory,
		treeFactory: tmpl.treeFactory,
		context:     ctx,
		headers:     headers,
		txs:         txs,
		watcher:     ordering.NewWatcher(),
		logger:      swarm.Logger.With().Str("service", "abci").Logger(),
	}

	last, found := headers.Last()
	if found {
		promHeight.Set(float64(last.GetIndex()))
	}

	return app, nil
}

// Register adds a provider of an authenticator of the global state tree. It
// must be called before the engine delivers the first block.
func (a *Application) Register(provider ordering.StateProvider) {
	a.Lock()
	a.providers = append(a.providers, provider)
	a.Unlock()
}

// Info implements abcitypes.Application. It returns the last committed height
// and application hash so that the engine replays the missing blocks.
func (a *Application) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	resp := &abcitypes.ResponseInfo{
		Data: appName,
	}

	last, found := a.headers.Last()
	if found {
		resp.LastBlockHeight = int64(last.GetIndex())
		resp.LastBlockAppHash = last.GetRoot()
	}

	return resp, nil
}

// CheckTx implements abcitypes.Application. It accepts in the mempool the
// transactions that can be decoded, pass the check of the application and
// whose nonce is not already used.
func (a *Application) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	tx, err := a.txFactory.TransactionOf(a.context, req.Tx)
	if err != nil {
		return &abcitypes.ResponseCheckTx{
			Code:      CodeMalformed,
			Codespace: Codespace,
			Log:       xerrors.Errorf("failed to decode tx: %v", err).Error(),
		}, nil
	}

	if a.txCheck != nil {
		err = a.txCheck(tx)
		if err != nil {
			return &abcitypes.ResponseCheckTx{
				Code:      CodeMalformed,
				Codespace: Codespace,
				Log:       xerrors.Errorf("invalid tx: %v", err).Error(),
			}, nil
		}
	}

	nonce, err := a.validation.GetNonce(a.GetStore(), tx.GetIdentity())
	if err != nil {
		return nil, xerrors.Errorf("failed to read nonce: %v", err)
	}

	if tx.GetNonce() < nonce {
		return &abcitypes.ResponseCheckTx{
			Code:      CodeInvalidNonce,
			Codespace: Codespace,
			Log:       xerrors.Errorf("nonce '%d' < '%d'", tx.GetNonce(), nonce).Error(),
		}, nil
	}

	return &abcitypes.ResponseCheckTx{Code: abcitypes.CodeTypeOK}, nil
}

// FinalizeBlock implements abcitypes.Application. It validates the
// transactions of the decided block on an overlay of the committed state and
// returns the new root of the global state tree as the application hash. The
// overlay is written only when the block is committed.
func (a *Application) FinalizeBlock(ctx context.Context,
	req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {

	results := make([]*abcitypes.ExecTxResult, len(req.Txs))

	// Position in the block of each decoded transaction.
	positions := make([]int, 0, len(req.Txs))
	txs := make([]txn.Transaction, 0, len(req.Txs))

	for i, raw := range req.Txs {
		tx, err := a.txFactory.TransactionOf(a.context, raw)
		if err != nil {
			results[i] = &abcitypes.ExecTxResult{
				Code:      CodeMalformed,
				Codespace: Codespace,
				Log:       xerrors.Errorf("failed to decode tx: %v", err).Error(),
			}

			continue
		}

		positions = append(positions, i)
		txs = append(txs, tx)
	}

	var prevRoot []byte

	last, found := a.headers.Last()
	if found {
		prevRoot = last.GetRoot()
	}

	overlay := mem.NewSnapshot(a.GetStore())

	data, err := a.validation.Validate(overlay, txs)
	if err != nil {
		return nil, xerrors.Errorf("failed to validate: %v", err)
	}

	txResults := data.GetTransactionResults()

	for i, res := range txResults {
		results[positions[i]] = makeExecResult(res)
	}

	root, err := ordering.UpdateState(a.treeFactory, overlay, prevRoot, a.getProviders())
	if err != nil {
		return nil, xerrors.Errorf("failed to update state: %v", err)
	}

	header, err := NewHeader(a.hashFactory, uint64(req.Height), root)
	if err != nil {
		return nil, xerrors.Errorf("failed to create header: %v", err)
	}

	a.Lock()
	a.pending = &pendingBlock{
		header:  header,
		overlay: overlay,
		txs:     txs,
		results: txResults,
	}
	a.Unlock()

	return &abcitypes.ResponseFinalizeBlock{
		TxResults: results,
		AppHash:   root,
	}, nil
}

// Commit implements abcitypes.Application. It writes the state of the last
// finalized block, its header and its transactions in a single database
// transaction, then notifies the watchers.
func (a *Application) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	a.Lock()
	pending := a.pending
	a.pending = nil
	a.Unlock()

	if pending == nil {
		return nil, xerrors.New("no block to commit")
	}

	err := a.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(stateBucket)
		if err != nil {
			return xerrors.Errorf("bucket: %v", err)
		}

		err = pending.overlay.ForEach(func(key, value []byte, deleted bool) error {
			if deleted {
				return bucket.Delete(key)
			}

			return bucket.Set(key, value)
		})
		if err != nil {
			return xerrors.Errorf("failed to write state: %v", err)
		}

		err = a.headers.Store(tx, pending.header)
		if err != nil {
			return xerrors.Errorf("header store: %v", err)
		}

		err = a.txs.Store(tx, pending.txs)
		if err != nil {
			return xerrors.Errorf("tx store: %v", err)
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to commit block: %v", err)
	}

	for _, res := range pending.results {
		accepted, _ := res.GetStatus()
		if accepted {
			promTxs.WithLabelValues("true").Inc()
		} else {
			promTxs.WithLabelValues("false").Inc()
		}
	}

	promHeight.Set(float64(pending.header.GetIndex()))

	a.logger.Info().
		Uint64("height", pending.header.GetIndex()).
		Int("txs", len(pending.txs)).
		Hex("root", pending.header.GetRoot()).
		Msg("block committed")

	a.watcher.Notify(ordering.Event{
		Index:        pending.header.GetIndex(),
		Header:       pending.header,
		Transactions: pending.results,
	})

	return &abcitypes.ResponseCommit{}, nil
}

// Query implements abcitypes.Application. The supported paths are:
//   - /nonce with the binary public key as data, returns the next nonce as a
//     little-endian integer
//   - /header with the height of the request, or the latest one when zero,
//     returns the JSON header
func (a *Application) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	switch req.Path {
	case "/nonce":
		pk, err := a.pkFactory.FromBytes(req.Data)
		if err != nil {
			return queryError(CodeMalformed, xerrors.Errorf("invalid public key: %v", err)), nil
		}

		nonce, err := a.validation.GetNonce(a.GetStore(), pk)
		if err != nil {
			return nil, xerrors.Errorf("failed to read nonce: %v", err)
		}

		value := make([]byte, 8)
		binary.LittleEndian.PutUint64(value, nonce)

		return &abcitypes.ResponseQuery{Key: req.Data, Value: value}, nil
	case "/header":
		var header ordering.Header
		var err error

		if req.Height == 0 {
			header, err = a.GetLatestHeader()
		} else {
			header, err = a.GetHeader(uint64(req.Height))
		}

		if err != nil {
			return queryError(CodeRejected, err), nil
		}

		value, err := header.Serialize(a.context)
		if err != nil {
			return nil, xerrors.Errorf("failed to serialize header: %v", err)
		}

		return &abcitypes.ResponseQuery{
			Value:  value,
			Height: int64(header.GetIndex()),
		}, nil
	default:
		return queryError(CodeUnknownQuery, xerrors.Errorf("unknown path '%s'", req.Path)), nil
	}
}

// GetHeader implements ordering.Service. It returns the header at the height.
func (a *Application) GetHeader(index uint64) (ordering.Header, error) {
	header, err := a.headers.Get(index)
	if err != nil {
		return nil, xerrors.Errorf("header store: %v", err)
	}

	return header, nil
}

// GetLatestHeader implements ordering.Service. It returns the header of the
// last committed block.
func (a *Application) GetLatestHeader() (ordering.Header, error) {
	header, found := a.headers.Last()
	if !found {
		return nil, xerrors.New("no block committed yet")
	}

	return header, nil
}

// GetStore implements ordering.Service. It returns a read-only view of the
// committed state.
func (a *Application) GetStore() store.Readable {
	return kv.NewReadable(a.db, stateBucket)
}

// GetStateTree implements ordering.Service.
func (a *Application) GetStateTree(header ordering.Header) (hashtree.Tree, error) {
	return ordering.OpenState(a.treeFactory, a.GetStore(), header.GetRoot())
}

// GetTransaction implements ordering.Service.
func (a *Application) GetTransaction(id []byte) (txn.Transaction, error) {
	tx, err := a.txs.Get(id)
	if err != nil {
		return nil, xerrors.Errorf("tx store: %v", err)
	}

	return tx, nil
}

// Watch implements ordering.Service. It returns a channel populated with the
// committed blocks until the context is done.
func (a *Application) Watch(ctx context.Context) <-chan ordering.Event {
	return a.watcher.Watch(ctx)
}

// Close implements ordering.Service. The lifecycle of the application belongs
// to the consensus engine so there is nothing to stop.
func (a *Application) Close() error {
	return nil
}

func (a *Application) getProviders() []ordering.StateProvider {
	a.Lock()
	defer a.Unlock()

	return append([]ordering.StateProvider{}, a.providers...)
}

// makeExecResult converts the result of a transaction. The codes of the
// contracts are shifted by one as zero means success for the engine.
func makeExecResult(res validation.TransactionResult) *abcitypes.ExecTxResult {
	accepted, reason := res.GetStatus()
	if accepted {
		return &abcitypes.ExecTxResult{Code: abcitypes.CodeTypeOK}
	}

	codespace, code := res.GetCode()
	if codespace == "" {
		return &abcitypes.ExecTxResult{
			Code:      CodeRejected,
			Codespace: Codespace,
			Log:       reason,
		}
	}

	return &abcitypes.ExecTxResult{
		Code:      code + 1,
		Codespace: codespace,
		Log:       reason,
	}
}

func queryError(code uint32, err error) *abcitypes.ResponseQuery {
	return &abcitypes.ResponseQuery{
		Code:      code,
		Codespace: Codespace,
		Log:       err.Error(),
	}
}

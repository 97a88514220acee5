package voting

import (
	"github.com/rs/zerolog"
	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/contracts/voting/ledger"
	"go.dedis.ch/swarm/contracts/voting/proof"
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/execution/native"
	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned by the queries when the subject has no voting.
var ErrNotFound = xerrors.New("voting not found")

// Pool is the entry of the transactions in the host.
type Pool interface {
	Add(tx txn.Transaction) error
}

// Service is the adapter of the voting contract to the host. It folds the root
// of the ledger in the global state tree, forwards the transactions to the
// pool and serves the queries over the committed state.
//
// - implements ordering.StateProvider
type Service struct {
	ordering  ordering.Service
	pool      Pool
	ledgers   ledger.Factory
	txFactory txn.Factory
	context   serde.Context
	composer  proof.Composer
	logger    zerolog.Logger
}

// NewService creates the adapter of the contract.
func NewService(ord ordering.Service, pool Pool, fac ledger.Factory, txFac txn.Factory) Service {
	return Service{
		ordering:  ord,
		pool:      pool,
		ledgers:   fac,
		txFactory: txFac,
		context:   json.NewContext(),
		composer:  proof.NewComposer(ord, fac),
		logger:    swarm.Logger.With().Str("service", "voting").Logger(),
	}
}

// GetName implements ordering.StateProvider. It returns the key of the ledger
// root in the global state tree.
func (s Service) GetName() string {
	return ledger.TableName
}

// GetStateRoot implements ordering.StateProvider. It returns the root of the
// ledger, which is the only authenticator of the contract.
func (s Service) GetStateRoot(rd store.Readable) ([]byte, error) {
	return s.ledgers.Root(rd)
}

// SubmitTransaction decodes the transaction and adds it to the pool. It
// returns the identifier of the transaction.
func (s Service) SubmitTransaction(data []byte) ([]byte, error) {
	tx, err := s.txFactory.TransactionOf(s.context, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode tx: %v", err)
	}

	return s.SubmitTx(tx)
}

// SubmitTx adds a voting transaction to the pool and returns its identifier.
// The command is checked before so that a malformed transaction does not
// consume the nonce of its identity.
func (s Service) SubmitTx(tx txn.Transaction) ([]byte, error) {
	contract := string(tx.GetArg(native.ContractArg))
	if contract != ContractName {
		return nil, xerrors.Errorf("unexpected contract '%s'", contract)
	}

	_, err := types.CommandOf(tx)
	if err != nil {
		return nil, xerrors.Errorf("invalid command: %v", err)
	}

	err = s.pool.Add(tx)
	if err != nil {
		return nil, xerrors.Errorf("failed to add tx: %v", err)
	}

	s.logger.Debug().Hex("tx", tx.GetID()).Msg("transaction submitted")

	return tx.GetID(), nil
}

// GetVoting returns the committed voting of the subject, or ErrNotFound.
func (s Service) GetVoting(subject []byte) (types.Voting, error) {
	ldg, err := s.latest()
	if err != nil {
		return types.Voting{}, err
	}

	voting, err := ldg.Lookup(subject)
	if err != nil {
		return types.Voting{}, xerrors.Errorf("lookup: %v", err)
	}

	if voting == nil {
		return types.Voting{}, ErrNotFound
	}

	return *voting, nil
}

// ListVotings returns every committed voting in an unspecified order.
func (s Service) ListVotings() ([]types.Voting, error) {
	ldg, err := s.latest()
	if err != nil {
		return nil, err
	}

	votings := []types.Voting{}

	err = ldg.ForEach(func(v types.Voting) error {
		votings = append(votings, v)
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to list: %v", err)
	}

	return votings, nil
}

// GetVotingInfo returns the proof of the voting of the subject at the latest
// block.
func (s Service) GetVotingInfo(subject []byte) (proof.VotingInfoProof, error) {
	header, err := s.ordering.GetLatestHeader()
	if err != nil {
		return proof.VotingInfoProof{}, proof.NewNoBlockError(xerrors.Errorf("latest header: %v", err))
	}

	return s.GetVotingInfoAt(subject, header.GetIndex())
}

// GetVotingInfoAt returns the proof of the voting of the subject at the block
// of the given height.
func (s Service) GetVotingInfoAt(subject []byte, height uint64) (proof.VotingInfoProof, error) {
	p, err := s.composer.ComposeProof(subject, height)
	if err != nil {
		return proof.VotingInfoProof{}, xerrors.Errorf("failed to compose proof: %w", err)
	}

	return p, nil
}

// latest opens the ledger of the committed state. It is the empty ledger when
// no voting has been committed yet.
func (s Service) latest() (*ledger.Ledger, error) {
	rd := s.ordering.GetStore()

	root, err := s.ledgers.Root(rd)
	if err != nil {
		return nil, xerrors.Errorf("root: %v", err)
	}

	ldg, err := s.ledgers.Open(rd, root)
	if err != nil {
		return nil, xerrors.Errorf("failed to open ledger: %v", err)
	}

	return ldg, nil
}

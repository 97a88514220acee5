package signed

import (
	"sync"

	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/crypto"
	"golang.org/x/xerrors"
)

// Client reads the next nonce of an identity from the committed state.
type Client interface {
	GetNonce(crypto.PublicKey) (uint64, error)
}

// TransactionManager signs the transactions of one identity. It increments
// the nonce after each transaction and must be synchronized when one of them
// is refused. It can be shared by the routes of the proxy.
//
// - implements txn.Manager
type TransactionManager struct {
	sync.Mutex

	client  Client
	signer  crypto.Signer
	hashFac crypto.HashFactory
	nonce   uint64
}

// NewManager returns a manager of the transactions of the signer. It starts
// from the nonce zero until it is synchronized.
func NewManager(signer crypto.Signer, client Client) *TransactionManager {
	return &TransactionManager{
		client:  client,
		signer:  signer,
		hashFac: crypto.NewSha256Factory(),
	}
}

// Make implements txn.Manager.
func (m *TransactionManager) Make(args ...txn.Arg) (txn.Transaction, error) {
	opts := []TransactionOption{WithHashFactory(m.hashFac)}
	for _, arg := range args {
		opts = append(opts, WithArg(arg.Key, arg.Value))
	}

	m.Lock()
	defer m.Unlock()

	tx, err := NewTransaction(m.nonce, m.signer.GetPublicKey(), opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	err = tx.Sign(m.signer)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}

	m.nonce++

	return tx, nil
}

// Sync implements txn.Manager.
func (m *TransactionManager) Sync() error {
	nonce, err := m.client.GetNonce(m.signer.GetPublicKey())
	if err != nil {
		return xerrors.Errorf("client: %v", err)
	}

	m.Lock()
	m.nonce = nonce
	m.Unlock()

	swarm.Logger.Debug().Uint64("nonce", nonce).Msg("manager synchronized")

	return nil
}

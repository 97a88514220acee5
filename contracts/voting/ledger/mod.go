// Package ledger implements the storage of the voting contract.
//
// The ledger is made of an authenticated map from the subject keys to the
// voting records, and of one authenticated append-only history log per
// subject. Both live in namespaces of the snapshot of the host, so that a
// ledger is only a view over an explicit store handle.
//
// The map is the only authenticator exposed to the host: its root is folded
// into the global state tree under the table name.
package ledger

import (
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/hashlist"
	"go.dedis.ch/swarm/core/store/hashlist/binlist"
	"go.dedis.ch/swarm/core/store/hashtree"
	"go.dedis.ch/swarm/core/store/hashtree/binprefix"
	"go.dedis.ch/swarm/core/store/prefixed"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"

	// Records are stored in their JSON format.
	_ "go.dedis.ch/swarm/contracts/voting/json"
)

const (
	// TableName is the name of the map of the votings. It is also the key of
	// the ledger root in the global state tree.
	TableName = "voting.votings"

	// HistoryFamily is the namespace of the history logs.
	HistoryFamily = "voting.voting_history"
)

// rootKey is the key of the current root of the map in the namespace of the
// table. Keys of a namespace are hashed so it cannot collide with a node.
var rootKey = []byte("root")

// Factory opens the ledgers over the snapshots of the host.
type Factory struct {
	trees   hashtree.Factory
	lists   hashlist.Factory
	context serde.Context
	votings types.VotingFactory
}

// FactoryOption is the type of option to set some fields of the factory.
type FactoryOption func(*Factory)

// WithTreeFactory is an option to set the implementation of the map.
func WithTreeFactory(fac hashtree.Factory) FactoryOption {
	return func(f *Factory) {
		f.trees = fac
	}
}

// WithListFactory is an option to set the implementation of the history logs.
func WithListFactory(fac hashlist.Factory) FactoryOption {
	return func(f *Factory) {
		f.lists = fac
	}
}

// NewFactory returns a new factory of ledgers. The map is a binary prefix tree
// and the history logs are RFC 6962 lists by default.
func NewFactory(opts ...FactoryOption) Factory {
	f := Factory{
		trees:   binprefix.NewFactory(binprefix.Nonce{}),
		lists:   binlist.NewFactory(),
		context: json.NewContext(),
		votings: types.NewVotingFactory(),
	}

	for _, opt := range opts {
		opt(&f)
	}

	return f
}

// GetVotingFactory returns the factory of the records.
func (f Factory) GetVotingFactory() types.VotingFactory {
	return f.votings
}

// Root returns the current root of the map stored in the store. It is the
// root of the empty map when no voting exists.
func (f Factory) Root(rd store.Readable) ([]byte, error) {
	root, err := prefixed.NewReadable(TableName, rd).Get(rootKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to read root: %v", err)
	}

	if root != nil {
		return root, nil
	}

	tree, err := f.trees.Open(rd, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to open empty map: %v", err)
	}

	return tree.GetRoot(), nil
}

// Open returns a read-only view of the ledger whose map has the given root. A
// nil root opens the empty ledger.
func (f Factory) Open(rd store.Readable, root []byte) (*Ledger, error) {
	tree, err := f.trees.Open(prefixed.NewReadable(TableName, rd), root)
	if err != nil {
		return nil, xerrors.Errorf("failed to open map: %v", err)
	}

	ledger := &Ledger{
		factory: f,
		tree:    tree,
		history: prefixed.NewReadable(HistoryFamily, rd),
	}

	return ledger, nil
}

// OpenWritable returns the ledger of the snapshot at its current root. The
// updates are written in the snapshot.
func (f Factory) OpenWritable(snap store.Snapshot) (*Ledger, error) {
	table := prefixed.NewSnapshot(TableName, snap)

	root, err := table.Get(rootKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to read root: %v", err)
	}

	tree, err := f.trees.OpenWritable(table, root)
	if err != nil {
		return nil, xerrors.Errorf("failed to open map: %v", err)
	}

	history := prefixed.NewSnapshot(HistoryFamily, snap)

	ledger := &Ledger{
		factory:   f,
		tree:      tree,
		writable:  tree,
		table:     table,
		history:   history,
		historyWr: history,
	}

	return ledger, nil
}

// Ledger is a view of the votings and their history logs. A writable ledger
// must not be kept after the snapshot it writes to is committed or discarded.
type Ledger struct {
	factory Factory

	tree     hashtree.Tree
	writable hashtree.WritableTree
	table    store.Snapshot

	history   store.Readable
	historyWr store.Snapshot
}

// Lookup returns the voting of the subject, or nil if it does not exist. An
// error is returned only when the storage fails.
func (l *Ledger) Lookup(subject []byte) (*types.Voting, error) {
	data, err := l.tree.Get(subject)
	if err != nil {
		return nil, xerrors.Errorf("failed to read map: %v", err)
	}

	if data == nil {
		return nil, nil
	}

	voting, err := l.factory.votings.VotingOf(l.factory.context, data)
	if err != nil {
		return nil, xerrors.Errorf("malformed voting: %v", err)
	}

	return &voting, nil
}

// Put replaces the record of the subject.
func (l *Ledger) Put(subject []byte, voting types.Voting) error {
	if l.writable == nil {
		return xerrors.New("ledger is read-only")
	}

	data, err := voting.Serialize(l.factory.context)
	if err != nil {
		return xerrors.Errorf("failed to serialize voting: %v", err)
	}

	err = l.writable.Set(subject, data)
	if err != nil {
		return xerrors.Errorf("failed to write map: %v", err)
	}

	err = l.table.Set(rootKey, l.writable.GetRoot())
	if err != nil {
		return xerrors.Errorf("failed to write root: %v", err)
	}

	return nil
}

// AppendHistory appends the transaction identifier to the history log of the
// subject and returns the new head of the log.
func (l *Ledger) AppendHistory(subject, txID []byte) (hashlist.Head, error) {
	if l.historyWr == nil {
		return hashlist.Head{}, xerrors.New("ledger is read-only")
	}

	list, err := l.factory.lists.OpenWritable(l.historyWr, subject)
	if err != nil {
		return hashlist.Head{}, xerrors.Errorf("failed to open history: %v", err)
	}

	head, err := list.Append(txID)
	if err != nil {
		return hashlist.Head{}, xerrors.Errorf("failed to append history: %v", err)
	}

	return head, nil
}

// History returns the history log of the subject. Its entries beyond the
// length of the record may belong to later versions of the ledger.
func (l *Ledger) History(subject []byte) (hashlist.List, error) {
	list, err := l.factory.lists.Open(l.history, subject)
	if err != nil {
		return nil, xerrors.Errorf("failed to open history: %v", err)
	}

	return list, nil
}

// ForEach calls the function for every voting in an unspecified order. It
// stops at the first error.
func (l *Ledger) ForEach(fn func(types.Voting) error) error {
	return l.tree.ForEach(func(key, value []byte) error {
		voting, err := l.factory.votings.VotingOf(l.factory.context, value)
		if err != nil {
			return xerrors.Errorf("malformed voting %#x: %v", key, err)
		}

		return fn(voting)
	})
}

// GetPath returns the path in the map that proves the presence or the absence
// of the subject.
func (l *Ledger) GetPath(subject []byte) (hashtree.Path, error) {
	path, err := l.tree.GetPath(subject)
	if err != nil {
		return nil, xerrors.Errorf("failed to get path: %v", err)
	}

	return path, nil
}

// GetRoot returns the root of the map, which commits to every record.
func (l *Ledger) GetRoot() []byte {
	return l.tree.GetRoot()
}

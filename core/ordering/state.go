package ordering

import (
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/hashtree"
	"go.dedis.ch/swarm/core/store/prefixed"
	"golang.org/x/xerrors"
)

// StateNamespace is the namespace of the nodes of the global state tree.
const StateNamespace = "swarm.state"

// UpdateState opens the global state tree at the previous root, sets the
// authenticator of every provider computed from the snapshot and returns the
// new root. The nodes of the tree are written in the snapshot.
func UpdateState(fac hashtree.Factory, snap store.Snapshot, prev []byte,
	providers []StateProvider) ([]byte, error) {

	tree, err := fac.OpenWritable(prefixed.NewSnapshot(StateNamespace, snap), prev)
	if err != nil {
		return nil, xerrors.Errorf("failed to open state tree: %v", err)
	}

	for _, provider := range providers {
		root, err := provider.GetStateRoot(snap)
		if err != nil {
			return nil, xerrors.Errorf("provider '%s': %v", provider.GetName(), err)
		}

		err = tree.Set([]byte(provider.GetName()), root)
		if err != nil {
			return nil, xerrors.Errorf("failed to set root of '%s': %v",
				provider.GetName(), err)
		}
	}

	return tree.GetRoot(), nil
}

// OpenState returns the read-only global state tree at the root.
func OpenState(fac hashtree.Factory, rd store.Readable, root []byte) (hashtree.Tree, error) {
	tree, err := fac.Open(prefixed.NewReadable(StateNamespace, rd), root)
	if err != nil {
		return nil, xerrors.Errorf("failed to open state tree: %v", err)
	}

	return tree, nil
}

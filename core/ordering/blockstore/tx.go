// Package blockstore implements the persistent storages shared by the
// ordering services.
package blockstore

import (
	lru "github.com/hashicorp/golang-lru"
	"go.dedis.ch/swarm/core/store/kv"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

// TxStore persists the transactions of the blocks in a bucket of the
// database, indexed by their identifier, with a cache of the recent ones.
type TxStore struct {
	bucket  []byte
	db      kv.DB
	fac     txn.Factory
	context serde.Context
	cache   *lru.Cache
}

// NewTxStore creates a store of transactions in the bucket of the database.
// The cache keeps up to size transactions.
func NewTxStore(db kv.DB, bucket []byte, fac txn.Factory, size int) (*TxStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, xerrors.Errorf("failed to create cache: %v", err)
	}

	s := &TxStore{
		bucket:  bucket,
		db:      db,
		fac:     fac,
		context: json.NewContext(),
		cache:   cache,
	}

	return s, nil
}

// Get returns the transaction with the identifier.
func (s *TxStore) Get(id []byte) (txn.Transaction, error) {
	cached, found := s.cache.Get(string(id))
	if found {
		return cached.(txn.Transaction), nil
	}

	var data []byte

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(s.bucket)
		if bucket == nil {
			return nil
		}

		raw := bucket.Get(id)
		if raw != nil {
			data = append([]byte{}, raw...)
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read tx: %v", err)
	}

	if data == nil {
		return nil, xerrors.Errorf("transaction %#x not found", id)
	}

	tx, err := s.fac.TransactionOf(s.context, data)
	if err != nil {
		return nil, xerrors.Errorf("malformed tx: %v", err)
	}

	s.cache.Add(string(id), tx)

	return tx, nil
}

// Store writes the transactions in the database transaction. They are added to
// the cache when the transaction is committed.
func (s *TxStore) Store(dbtx kv.WritableTx, txs []txn.Transaction) error {
	bucket, err := dbtx.GetBucketOrCreate(s.bucket)
	if err != nil {
		return xerrors.Errorf("bucket: %v", err)
	}

	for _, tx := range txs {
		data, err := tx.Serialize(s.context)
		if err != nil {
			return xerrors.Errorf("failed to serialize tx: %v", err)
		}

		err = bucket.Set(tx.GetID(), data)
		if err != nil {
			return xerrors.Errorf("failed to write tx: %v", err)
		}
	}

	dbtx.OnCommit(func() {
		for _, tx := range txs {
			s.cache.Add(string(tx.GetID()), tx)
		}
	})

	return nil
}

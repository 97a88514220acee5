package pow

import (
	"encoding/binary"
	"sync"

	"go.dedis.ch/swarm/core/store/kv"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

var (
	stateBucket = []byte("swarm.state")
	blockBucket = []byte("swarm.blocks")
	txBucket    = []byte("swarm.txs")
)

// blockStore persists the blocks in a bucket of the database, indexed by
// their height, and keeps the last one in memory.
type blockStore struct {
	sync.Mutex

	db      kv.DB
	fac     BlockFactory
	context serde.Context
	last    *Block
}

func newBlockStore(db kv.DB, fac BlockFactory, ctx serde.Context) *blockStore {
	return &blockStore{
		db:      db,
		fac:     fac,
		context: ctx,
	}
}

// load reads the last block of the database if any.
func (s *blockStore) load() error {
	var last []byte

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(blockBucket)
		if bucket == nil {
			return nil
		}

		var max uint64

		return bucket.ForEach(func(key, value []byte) error {
			index := binary.BigEndian.Uint64(key)
			if last == nil || index >= max {
				max = index
				last = append([]byte{}, value...)
			}

			return nil
		})
	})
	if err != nil {
		return xerrors.Errorf("failed to read blocks: %v", err)
	}

	if last == nil {
		return nil
	}

	block, err := s.fac.BlockOf(s.context, last)
	if err != nil {
		return xerrors.Errorf("malformed block: %v", err)
	}

	s.Lock()
	s.last = &block
	s.Unlock()

	return nil
}

// Last returns the last block committed and true, or false if no block exists.
func (s *blockStore) Last() (Block, bool) {
	s.Lock()
	defer s.Unlock()

	if s.last == nil {
		return Block{}, false
	}

	return *s.last, true
}

// Get returns the block at the index.
func (s *blockStore) Get(index uint64) (Block, error) {
	var data []byte

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(blockBucket)
		if bucket == nil {
			return nil
		}

		raw := bucket.Get(indexKey(index))
		if raw != nil {
			data = append([]byte{}, raw...)
		}

		return nil
	})
	if err != nil {
		return Block{}, xerrors.Errorf("failed to read block: %v", err)
	}

	if data == nil {
		return Block{}, xerrors.Errorf("block at index %d not found", index)
	}

	block, err := s.fac.BlockOf(s.context, data)
	if err != nil {
		return Block{}, xerrors.Errorf("malformed block: %v", err)
	}

	return block, nil
}

// Store writes the block in the database transaction. The block becomes the
// last one when the transaction is committed.
func (s *blockStore) Store(tx kv.WritableTx, block Block) error {
	data, err := block.Serialize(s.context)
	if err != nil {
		return xerrors.Errorf("failed to serialize block: %v", err)
	}

	bucket, err := tx.GetBucketOrCreate(blockBucket)
	if err != nil {
		return xerrors.Errorf("bucket: %v", err)
	}

	err = bucket.Set(indexKey(block.GetIndex()), data)
	if err != nil {
		return xerrors.Errorf("failed to write block: %v", err)
	}

	tx.OnCommit(func() {
		s.Lock()
		s.last = &block
		s.Unlock()
	})

	return nil
}

func indexKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)

	return key
}

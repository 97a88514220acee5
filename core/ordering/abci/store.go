package abci

import (
	"encoding/binary"
	"sync"

	"go.dedis.ch/swarm/core/store/kv"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

var (
	stateBucket  = []byte("swarm.state")
	headerBucket = []byte("swarm.headers")
	txBucket     = []byte("swarm.txs")
)

// headerStore persists the headers of the decided blocks indexed by their
// height. The last one is kept in memory.
type headerStore struct {
	sync.Mutex

	db      kv.DB
	fac     HeaderFactory
	context serde.Context
	last    *Header
}

func newHeaderStore(db kv.DB, fac HeaderFactory, ctx serde.Context) *headerStore {
	return &headerStore{
		db:      db,
		fac:     fac,
		context: ctx,
	}
}

func (s *headerStore) load() error {
	var last []byte

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(headerBucket)
		if bucket == nil {
			return nil
		}

		var max uint64

		return bucket.ForEach(func(key, value []byte) error {
			height := binary.BigEndian.Uint64(key)
			if last == nil || height >= max {
				max = height
				last = append([]byte{}, value...)
			}

			return nil
		})
	})
	if err != nil {
		return xerrors.Errorf("failed to read headers: %v", err)
	}

	if last == nil {
		return nil
	}

	header, err := s.decode(last)
	if err != nil {
		return err
	}

	s.Lock()
	s.last = &header
	s.Unlock()

	return nil
}

func (s *headerStore) Last() (Header, bool) {
	s.Lock()
	defer s.Unlock()

	if s.last == nil {
		return Header{}, false
	}

	return *s.last, true
}

func (s *headerStore) Get(height uint64) (Header, error) {
	var data []byte

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(headerBucket)
		if bucket == nil {
			return nil
		}

		raw := bucket.Get(heightKey(height))
		if raw != nil {
			data = append([]byte{}, raw...)
		}

		return nil
	})
	if err != nil {
		return Header{}, xerrors.Errorf("failed to read header: %v", err)
	}

	if data == nil {
		return Header{}, xerrors.Errorf("header at height %d not found", height)
	}

	return s.decode(data)
}

// Store writes the header in the database transaction. It becomes the last
// header once the transaction commits.
func (s *headerStore) Store(tx kv.WritableTx, header Header) error {
	data, err := header.Serialize(s.context)
	if err != nil {
		return xerrors.Errorf("failed to serialize header: %v", err)
	}

	bucket, err := tx.GetBucketOrCreate(headerBucket)
	if err != nil {
		return xerrors.Errorf("bucket: %v", err)
	}

	err = bucket.Set(heightKey(header.GetIndex()), data)
	if err != nil {
		return xerrors.Errorf("failed to write header: %v", err)
	}

	tx.OnCommit(func() {
		s.Lock()
		s.last = &header
		s.Unlock()
	})

	return nil
}

func (s *headerStore) decode(data []byte) (Header, error) {
	msg, err := s.fac.HeaderOf(s.context, data)
	if err != nil {
		return Header{}, xerrors.Errorf("malformed header: %v", err)
	}

	return msg.(Header), nil
}

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)

	return key
}

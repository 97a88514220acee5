package kv

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/xerrors"
)

// maxBucketNameLen is the maximum length of a bucket name with the leveldb
// engine, as the length is encoded on a single byte.
const maxBucketNameLen = 255

// levelDB is an adapter of the KV store using goleveldb. LevelDB has no
// buckets so they are emulated by prefixing every key with the length and the
// name of the bucket. A marker key under the empty namespace records the
// buckets that exist.
//
// - implements kv.DB
type levelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens a new database in the given folder using goleveldb.
func NewLevelDB(path string) (DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return levelDB{db: db}, nil
}

// NewInMemoryLevelDB opens a new leveldb database that lives in memory.
func NewInMemoryLevelDB() (DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return levelDB{db: db}, nil
}

// View implements kv.DB. It executes the read-only transaction on a snapshot of
// the database.
func (db levelDB) View(fn func(ReadableTx) error) error {
	snap, err := db.db.GetSnapshot()
	if err != nil {
		return xerrors.Errorf("failed to get snapshot: %v", err)
	}

	defer snap.Release()

	tx := levelTx{reader: snap, failure: new(error)}

	return tx.done(fn(tx))
}

// Update implements kv.DB. It executes the writable transaction inside a
// leveldb transaction that is committed only if the function returns no
// error.
func (db levelDB) Update(fn func(WritableTx) error) error {
	txn, err := db.db.OpenTransaction()
	if err != nil {
		return xerrors.Errorf("failed to open transaction: %v", err)
	}

	tx := levelTx{
		reader:    txn,
		writer:    txn,
		callbacks: new([]func()),
		failure:   new(error),
	}

	err = tx.done(fn(tx))
	if err != nil {
		txn.Discard()
		return err
	}

	err = txn.Commit()
	if err != nil {
		return xerrors.Errorf("failed to commit: %v", err)
	}

	for _, cb := range *tx.callbacks {
		cb()
	}

	return nil
}

// Close implements kv.DB. It closes the database.
func (db levelDB) Close() error {
	return db.db.Close()
}

type levelReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type levelWriter interface {
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
}

// levelTx is the adapter of a leveldb snapshot or transaction. The buckets
// return nil for a missing key, so the first read error other than a missing
// key is kept in the transaction and fails it once the function returns.
//
// - implements kv.ReadableTx
// - implements kv.WritableTx
type levelTx struct {
	reader    levelReader
	writer    levelWriter
	callbacks *[]func()
	failure   *error
}

// GetBucket implements kv.ReadableTx. It returns the bucket with the given name
// if it has been created, otherwise nil.
func (tx levelTx) GetBucket(name []byte) Bucket {
	if len(name) == 0 || len(name) > maxBucketNameLen {
		return nil
	}

	_, err := tx.reader.Get(markerKey(name), nil)
	if err != nil {
		setFailure(tx.failure, err)
		return nil
	}

	return tx.makeBucket(name)
}

// GetBucketOrCreate implements kv.WritableTx. It creates the bucket if it does
// not exist and then return it.
func (tx levelTx) GetBucketOrCreate(name []byte) (Bucket, error) {
	if len(name) == 0 {
		return nil, xerrors.New("create bucket failed: bucket name required")
	}

	if len(name) > maxBucketNameLen {
		return nil, xerrors.Errorf("create bucket failed: name too long (%d)", len(name))
	}

	err := tx.writer.Put(markerKey(name), []byte{}, nil)
	if err != nil {
		return nil, xerrors.Errorf("create bucket failed: %v", err)
	}

	return tx.makeBucket(name), nil
}

// OnCommit implements store.Transaction. It registers a callback that is
// called after the transaction is successfully committed.
func (tx levelTx) OnCommit(fn func()) {
	*tx.callbacks = append(*tx.callbacks, fn)
}

func (tx levelTx) makeBucket(name []byte) levelBucket {
	prefix := make([]byte, 1+len(name))
	prefix[0] = byte(len(name))
	copy(prefix[1:], name)

	return levelBucket{
		prefix:  prefix,
		reader:  tx.reader,
		writer:  tx.writer,
		failure: tx.failure,
	}
}

// done returns the error of the function, or the read failure of the
// transaction if any.
func (tx levelTx) done(err error) error {
	if err != nil {
		return err
	}

	if tx.failure != nil && *tx.failure != nil {
		return xerrors.Errorf("read failed: %v", *tx.failure)
	}

	return nil
}

// levelBucket is a namespace of keys in a leveldb database.
//
// - implements kv.Bucket
type levelBucket struct {
	prefix  []byte
	reader  levelReader
	writer  levelWriter
	failure *error
}

// Get implements kv.Bucket. It returns the value of the key, or nil if it does
// not exist.
func (b levelBucket) Get(key []byte) []byte {
	value, err := b.reader.Get(b.key(key), nil)
	if err != nil {
		setFailure(b.failure, err)
		return nil
	}

	return value
}

// Set implements kv.Bucket. It sets the key to the value. It returns an error
// when the bucket is read-only.
func (b levelBucket) Set(key, value []byte) error {
	if b.writer == nil {
		return xerrors.New("bucket is read-only")
	}

	return b.writer.Put(b.key(key), value, nil)
}

// Delete implements kv.Bucket. It deletes the key from the bucket. It returns
// an error when the bucket is read-only.
func (b levelBucket) Delete(key []byte) error {
	if b.writer == nil {
		return xerrors.New("bucket is read-only")
	}

	return b.writer.Delete(b.key(key), nil)
}

// ForEach implements kv.Bucket. It iterates over the whole bucket in the byte
// order of the keys.
func (b levelBucket) ForEach(fn func(k, v []byte) error) error {
	return b.iterate(nil, fn)
}

// Scan implements kv.Bucket. It iterates over the keys matching the prefix in
// the byte order.
func (b levelBucket) Scan(prefix []byte, fn func(k, v []byte) error) error {
	err := b.iterate(prefix, fn)
	if err != nil {
		return xerrors.Errorf("callback failed: %v", err)
	}

	return nil
}

func (b levelBucket) iterate(prefix []byte, fn func(k, v []byte) error) error {
	iter := b.reader.NewIterator(util.BytesPrefix(b.key(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		key := append([]byte{}, iter.Key()[len(b.prefix):]...)
		value := append([]byte{}, iter.Value()...)

		err := fn(key, value)
		if err != nil {
			return err
		}
	}

	return iter.Error()
}

func (b levelBucket) key(key []byte) []byte {
	buffer := make([]byte, len(b.prefix)+len(key))
	copy(buffer, b.prefix)
	copy(buffer[len(b.prefix):], key)

	return buffer
}

func markerKey(name []byte) []byte {
	return append([]byte{0}, name...)
}

// setFailure keeps the first error that is not a missing key.
func setFailure(failure *error, err error) {
	if failure == nil || err == leveldb.ErrNotFound || *failure != nil {
		return
	}

	*failure = err
}

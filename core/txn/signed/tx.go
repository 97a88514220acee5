// Package signed implements the transactions of the ledger as messages signed
// by the identity that submits them.
//
// The nonce of a transaction is the sequence number of its identity, so a
// transaction cannot be replayed once a newer one is committed.
package signed

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

var txFormats = registry.NewSimpleRegistry()

// RegisterTransactionFormat sets the engine of the transactions for the
// format.
func RegisterTransactionFormat(f serde.Format, e serde.FormatEngine) {
	txFormats.Register(f, e)
}

// Transaction is a signed call of a contract.
//
// - implements txn.Transaction
type Transaction struct {
	nonce  uint64
	args   map[string][]byte
	pubkey crypto.PublicKey
	sig    crypto.Signature
	hash   []byte
}

// txTemplate gathers the options of a new transaction.
type txTemplate struct {
	args    map[string][]byte
	sig     crypto.Signature
	hashFac crypto.HashFactory
}

// TransactionOption is an option of NewTransaction.
type TransactionOption func(*txTemplate)

// WithArg sets the value of an argument.
func WithArg(key string, value []byte) TransactionOption {
	return func(tmpl *txTemplate) {
		tmpl.args[key] = value
	}
}

// WithSignature sets the signature of the transaction, which must be valid
// for the identity.
func WithSignature(sig crypto.Signature) TransactionOption {
	return func(tmpl *txTemplate) {
		tmpl.sig = sig
	}
}

// WithHashFactory replaces the SHA-256 digest of the identifier.
func WithHashFactory(f crypto.HashFactory) TransactionOption {
	return func(tmpl *txTemplate) {
		tmpl.hashFac = f
	}
}

// NewTransaction returns the transaction of the identity with the nonce. Its
// identifier is computed from its fingerprint.
func NewTransaction(nonce uint64, pk crypto.PublicKey, opts ...TransactionOption) (*Transaction, error) {
	tmpl := txTemplate{
		args:    map[string][]byte{},
		hashFac: crypto.NewSha256Factory(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	tx := &Transaction{
		nonce:  nonce,
		args:   tmpl.args,
		pubkey: pk,
	}

	h := tmpl.hashFac.New()

	err := tx.Fingerprint(h)
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint tx: %v", err)
	}

	tx.hash = h.Sum(nil)

	if tmpl.sig != nil {
		err = pk.Verify(tx.hash, tmpl.sig)
		if err != nil {
			return nil, xerrors.Errorf("invalid signature: %v", err)
		}

		tx.sig = tmpl.sig
	}

	return tx, nil
}

// GetID implements txn.Transaction.
func (t *Transaction) GetID() []byte {
	return t.hash
}

// GetNonce implements txn.Transaction.
func (t *Transaction) GetNonce() uint64 {
	return t.nonce
}

// GetIdentity implements txn.Transaction.
func (t *Transaction) GetIdentity() crypto.PublicKey {
	return t.pubkey
}

// GetSignature returns the signature, or nil if the transaction is not
// signed yet.
func (t *Transaction) GetSignature() crypto.Signature {
	return t.sig
}

// GetArgs returns the keys of the arguments in lexicographic order.
func (t *Transaction) GetArgs() []string {
	keys := make([]string, 0, len(t.args))
	for key := range t.args {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// GetArg implements txn.Transaction.
func (t *Transaction) GetArg(key string) []byte {
	return t.args[key]
}

// Sign signs the identifier with the signer, which must own the identity of
// the transaction.
func (t *Transaction) Sign(signer crypto.Signer) error {
	switch {
	case len(t.hash) == 0:
		return xerrors.New("missing digest in transaction")
	case !signer.GetPublicKey().Equal(t.pubkey):
		return xerrors.New("mismatch signer and identity")
	}

	sig, err := signer.Sign(t.hash)
	if err != nil {
		return xerrors.Errorf("signer: %v", err)
	}

	t.sig = sig

	return nil
}

// Fingerprint implements serde.Fingerprinter. It writes the nonce, then each
// argument in key order as the length and bytes of the key followed by the
// length and bytes of the value, and last the public key. The lengths make
// the encoding of different arguments always differ.
func (t *Transaction) Fingerprint(w io.Writer) error {
	err := binary.Write(w, binary.LittleEndian, t.nonce)
	if err != nil {
		return xerrors.Errorf("couldn't write nonce: %v", err)
	}

	var buf bytes.Buffer

	for _, key := range t.GetArgs() {
		value := t.args[key]

		buf.Reset()
		binary.Write(&buf, binary.LittleEndian, uint32(len(key)))
		buf.WriteString(key)
		binary.Write(&buf, binary.LittleEndian, uint32(len(value)))
		buf.Write(value)

		_, err = w.Write(buf.Bytes())
		if err != nil {
			return xerrors.Errorf("couldn't write arg: %v", err)
		}
	}

	pk, err := t.pubkey.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal public key: %v", err)
	}

	_, err = w.Write(pk)
	if err != nil {
		return xerrors.Errorf("couldn't write public key: %v", err)
	}

	return nil
}

// Serialize implements serde.Message.
func (t *Transaction) Serialize(ctx serde.Context) ([]byte, error) {
	data, err := txFormats.Get(ctx.GetFormat()).Encode(ctx, t)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	return data, nil
}

// Package simple implements a validation service that executes a batch of
// transactions sequentially.
//
// Each transaction runs in its own overlay of the snapshot. The overlay is
// merged only when the transaction is accepted, so a rejected transaction
// leaves no trace other than the consumption of its nonce.
package simple

import (
	"encoding/binary"

	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/core/execution"
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/mem"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/crypto"
	"golang.org/x/xerrors"
)

// noncePrefix is prepended to the identity before it is hashed into the key of
// its last nonce.
const noncePrefix = "nonce:"

// Service runs the transactions of a batch one after the other against the
// execution service and keeps track of the nonces of the identities.
//
// - implements validation.Service
type Service struct {
	execution execution.Service
	fac       validation.ResultFactory
	hashFac   crypto.HashFactory
}

// NewService returns a validation service on top of the execution service.
// The factory decodes the transactions of the results.
func NewService(exec execution.Service, f txn.Factory) Service {
	return Service{
		execution: exec,
		fac:       NewResultFactory(f),
		hashFac:   crypto.NewSha256Factory(),
	}
}

// GetFactory implements validation.Service.
func (s Service) GetFactory() validation.ResultFactory {
	return s.fac
}

// GetNonce implements validation.Service. It returns zero for an identity that
// never had a transaction processed, otherwise the last nonce plus one.
func (s Service) GetNonce(rd store.Readable, ident crypto.PublicKey) (uint64, error) {
	key, err := s.nonceKey(ident)
	if err != nil {
		return 0, xerrors.Errorf("key: %v", err)
	}

	value, err := rd.Get(key)
	if err != nil {
		return 0, xerrors.Errorf("store: %v", err)
	}

	if len(value) != 8 {
		return 0, nil
	}

	return binary.LittleEndian.Uint64(value) + 1, nil
}

// Validate implements validation.Service. A refused transaction is part of the
// result, whereas an error aborts the whole batch.
func (s Service) Validate(snap store.Snapshot, txs []txn.Transaction) (validation.Result, error) {
	results := make([]TransactionResult, 0, len(txs))
	step := execution.Step{Previous: make([]txn.Transaction, 0, len(txs))}

	for _, tx := range txs {
		step.Current = tx

		res, err := s.process(snap, step)
		if err != nil {
			return nil, xerrors.Errorf("tx %#x: %v", tx.GetID(), err)
		}

		results = append(results, res)
		step.Previous = append(step.Previous, tx)
	}

	return NewResult(results), nil
}

func (s Service) process(snap store.Snapshot, step execution.Step) (TransactionResult, error) {
	tx := step.Current

	expected, err := s.GetNonce(snap, tx.GetIdentity())
	if err != nil {
		return TransactionResult{}, xerrors.Errorf("nonce: %v", err)
	}

	if tx.GetNonce() != expected {
		reason := xerrors.Errorf("nonce is invalid, expected %d, got %d", expected, tx.GetNonce())

		return NewTransactionResult(tx, false, reason.Error()), nil
	}

	overlay := mem.NewSnapshot(snap)

	out, err := s.execution.Execute(overlay, step)
	if err != nil {
		return TransactionResult{}, xerrors.Errorf("failed to execute tx: %v", err)
	}

	if out.Accepted {
		err = overlay.Apply()
		if err != nil {
			return TransactionResult{}, xerrors.Errorf("failed to apply tx: %v", err)
		}
	} else {
		swarm.Logger.Debug().
			Hex("tx", tx.GetID()).
			Str("codespace", out.Codespace).
			Uint32("code", out.Code).
			Str("reason", out.Message).
			Msg("transaction rejected")
	}

	err = s.storeNonce(snap, tx.GetIdentity(), tx.GetNonce())
	if err != nil {
		return TransactionResult{}, xerrors.Errorf("failed to set nonce: %v", err)
	}

	res := NewTransactionResult(tx, out.Accepted, out.Message, WithCode(out.Codespace, out.Code))

	return res, nil
}

func (s Service) storeNonce(snap store.Snapshot, ident crypto.PublicKey, nonce uint64) error {
	key, err := s.nonceKey(ident)
	if err != nil {
		return xerrors.Errorf("key: %v", err)
	}

	value := binary.LittleEndian.AppendUint64(nil, nonce)

	err = snap.Set(key, value)
	if err != nil {
		return xerrors.Errorf("store: %v", err)
	}

	return nil
}

func (s Service) nonceKey(ident crypto.PublicKey) ([]byte, error) {
	if ident == nil {
		return nil, xerrors.New("missing identity in transaction")
	}

	data, err := ident.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal identity: %v", err)
	}

	h := s.hashFac.New()

	_, err = h.Write(append([]byte(noncePrefix), data...))
	if err != nil {
		return nil, xerrors.Errorf("failed to write identity: %v", err)
	}

	return h.Sum(nil), nil
}

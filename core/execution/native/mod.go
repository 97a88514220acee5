// Package native implements the execution service of the contracts compiled
// with the node.
//
// A transaction names its contract with the ContractArg argument. The contract
// reads and writes the snapshot directly, and refuses the transaction by
// returning an error. A transaction naming no registered contract is refused
// as well.
package native

import (
	"sync"

	"go.dedis.ch/swarm/core/execution"
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/txn"
	"golang.org/x/xerrors"
)

// ContractArg is the key of the transaction argument holding the name of the
// contract.
const ContractArg = "go.dedis.ch/swarm.ContractArg"

// Contract is a contract run by the native execution.
type Contract interface {
	// Execute applies the current transaction of the step to the snapshot.
	// An error refuses the transaction.
	Execute(store.Snapshot, execution.Step) error
}

// Service dispatches the transactions to the registered contracts.
//
// - implements execution.Service
type Service struct {
	sync.RWMutex
	contracts map[string]Contract
}

// NewExecution returns an execution service without any contract.
func NewExecution() *Service {
	return &Service{contracts: make(map[string]Contract)}
}

// Set registers the contract under the name. Registering two contracts with
// the same name is a programming error and panics.
func (s *Service) Set(name string, contract Contract) {
	s.Lock()
	defer s.Unlock()

	if _, found := s.contracts[name]; found {
		panic(xerrors.Errorf("contract '%s' already registered", name))
	}

	s.contracts[name] = contract
}

// Check returns an error when the transaction does not name a registered
// contract.
func (s *Service) Check(tx txn.Transaction) error {
	_, err := s.lookup(tx)
	return err
}

// Execute implements execution.Service. An unknown contract and an error of
// the contract are both refusals, so that the other transactions of the block
// are unaffected. The refusal carries the code of the error when it implements
// execution.Coder.
func (s *Service) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	contract, err := s.lookup(step.Current)
	if err != nil {
		return refusal(err), nil
	}

	err = contract.Execute(snap, step)
	if err == nil {
		return execution.Result{Accepted: true}, nil
	}

	return refusal(err), nil
}

func (s *Service) lookup(tx txn.Transaction) (Contract, error) {
	name := string(tx.GetArg(ContractArg))

	s.RLock()
	contract, found := s.contracts[name]
	s.RUnlock()

	if !found {
		return nil, xerrors.Errorf("unknown contract '%s'", name)
	}

	return contract, nil
}

func refusal(err error) execution.Result {
	res := execution.Result{Message: err.Error()}

	var coder execution.Coder
	if xerrors.As(err, &coder) {
		res.Codespace, res.Code = coder.Codespace(), coder.ErrorCode()
	}

	return res
}

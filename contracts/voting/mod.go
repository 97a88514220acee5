// Package voting implements a native contract that records the votes of
// validators on the votings opened by drones.
//
// A voting is opened once per subject with CreateVoting, then every validator
// can cast one vote with CastVote. Each accepted transaction is appended to the
// history log of the subject before the record is replaced, so that a record
// always commits to the transactions that produced it.
//
// The contract runs inside the validation of the host: every transaction is
// applied to its own overlay of the block snapshot, which is dropped when the
// contract returns an error. A rejected transaction therefore leaves no trace
// in the ledger.
package voting

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/contracts/voting/ledger"
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/execution"
	"go.dedis.ch/swarm/core/execution/native"
	"go.dedis.ch/swarm/core/store"
	"golang.org/x/xerrors"
)

// ContractName is the name of the contract.
const ContractName = "go.dedis.ch/swarm.Voting"

var (
	promCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarm_voting_created_total",
		Help: "number of votings opened",
	})

	promVotes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_voting_votes_total",
		Help: "number of votes recorded",
	}, []string{"decision"})

	promRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_voting_rejected_total",
		Help: "number of voting transactions rejected with a code",
	}, []string{"code"})
)

func init() {
	swarm.PromCollectors = append(swarm.PromCollectors, promCreated, promVotes, promRejected)
}

// RegisterContract registers the voting contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is the executor of the voting commands.
//
// - implements native.Contract
type Contract struct {
	ledgers ledger.Factory
	logger  zerolog.Logger
}

// NewContract creates a new voting contract that opens the ledgers with the
// factory.
func NewContract(fac ledger.Factory) Contract {
	return Contract{
		ledgers: fac,
		logger:  swarm.Logger.With().Str("contract", "voting").Logger(),
	}
}

// Execute implements native.Contract. It decodes the command of the
// transaction and applies it to the ledger of the snapshot.
func (c Contract) Execute(snap store.Snapshot, step execution.Step) error {
	cmd, err := types.CommandOf(step.Current)
	if err != nil {
		return xerrors.Errorf("invalid command: %v", err)
	}

	ldg, err := c.ledgers.OpenWritable(snap)
	if err != nil {
		return xerrors.Errorf("failed to open ledger: %v", err)
	}

	switch in := cmd.(type) {
	case types.CreateVoting:
		err = c.createVoting(ldg, in, step.Current.GetID())
	case types.CastVote:
		err = c.castVote(ldg, in, step.Current.GetID())
	default:
		return xerrors.Errorf("unsupported command of type '%T'", cmd)
	}

	if err != nil {
		var domain *Error
		if xerrors.As(err, &domain) {
			promRejected.WithLabelValues(strconv.Itoa(int(domain.Code()))).Inc()
		}

		return err
	}

	return nil
}

func (c Contract) createVoting(ldg *ledger.Ledger, cmd types.CreateVoting, txID []byte) error {
	current, err := ldg.Lookup(cmd.SubjectKey)
	if err != nil {
		return xerrors.Errorf("failed to lookup voting: %v", err)
	}

	if current != nil {
		return ErrVotingAlreadyExists
	}

	head, err := ldg.AppendHistory(cmd.SubjectKey, txID)
	if err != nil {
		return xerrors.Errorf("history: %v", err)
	}

	voting := types.NewVoting(cmd.SubjectKey, cmd.DroneKey, types.WithHistory(head))

	err = ldg.Put(cmd.SubjectKey, voting)
	if err != nil {
		return xerrors.Errorf("failed to put voting: %v", err)
	}

	promCreated.Inc()

	c.logger.Info().
		Hex("subject", cmd.SubjectKey).
		Hex("drone", cmd.DroneKey).
		Msg("voting created")

	return nil
}

func (c Contract) castVote(ldg *ledger.Ledger, cmd types.CastVote, txID []byte) error {
	current, err := ldg.Lookup(cmd.SubjectKey)
	if err != nil {
		return xerrors.Errorf("failed to lookup voting: %v", err)
	}

	if current == nil {
		return ErrVotingNotFound
	}

	if current.HasVoted(cmd.ValidatorKey) {
		return ErrValidatorAlreadyVoted
	}

	head, err := ldg.AppendHistory(cmd.SubjectKey, txID)
	if err != nil {
		return xerrors.Errorf("history: %v", err)
	}

	voting := current.Vote(cmd.ToAction(), head)

	err = ldg.Put(cmd.SubjectKey, voting)
	if err != nil {
		return xerrors.Errorf("failed to put voting: %v", err)
	}

	promVotes.WithLabelValues(strconv.FormatBool(cmd.Decision)).Inc()

	c.logger.Info().
		Hex("subject", cmd.SubjectKey).
		Hex("validator", cmd.ValidatorKey).
		Bool("decision", cmd.Decision).
		Uint64("approvals", voting.GetApprovalCount()).
		Msg("vote recorded")

	return nil
}

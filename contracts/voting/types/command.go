package types

import (
	"encoding/binary"

	"go.dedis.ch/swarm/core/txn"
	"golang.org/x/xerrors"
)

const (
	// CmdArg is the argument's name to indicate the kind of command to run on
	// the contract. Should be one of the CommandType values.
	CmdArg = "voting:command"

	// SubjectArg is the argument's name that contains the key of the subject.
	SubjectArg = "voting:subject"

	// DroneArg is the argument's name that contains the key of the drone.
	DroneArg = "voting:drone"

	// ActionArg is the argument's name that contains the identifier of the
	// vote, as a little-endian 64-bit integer.
	ActionArg = "voting:action"

	// ValidatorArg is the argument's name that contains the key of the
	// validator.
	ValidatorArg = "voting:validator"

	// DecisionArg is the argument's name that contains the decision, either
	// "1" to approve or "0" to reject.
	DecisionArg = "voting:decision"

	// SeedArg is the argument's name that contains the seed of a vote, as a
	// little-endian 64-bit integer.
	SeedArg = "voting:seed"
)

// CommandType is the type of a command of the voting contract.
type CommandType string

const (
	// CmdCreateVoting is the command to open a voting.
	CmdCreateVoting CommandType = "CREATE_VOTING"

	// CmdCastVote is the command to vote on an opened voting.
	CmdCastVote CommandType = "CAST_VOTE"
)

// Command is one of the commands of the voting contract: CreateVoting or
// CastVote.
type Command interface {
	// GetSubjectKey returns the key of the voting the command applies to.
	GetSubjectKey() []byte

	// Args returns the arguments of a transaction carrying the command.
	Args() []txn.Arg

	isCommand()
}

// CreateVoting is the command to open a voting for a subject.
type CreateVoting struct {
	SubjectKey []byte
	DroneKey   []byte
}

// GetSubjectKey implements types.Command.
func (c CreateVoting) GetSubjectKey() []byte {
	return c.SubjectKey
}

// Args implements types.Command.
func (c CreateVoting) Args() []txn.Arg {
	return []txn.Arg{
		{Key: CmdArg, Value: []byte(CmdCreateVoting)},
		{Key: SubjectArg, Value: c.SubjectKey},
		{Key: DroneArg, Value: c.DroneKey},
	}
}

func (CreateVoting) isCommand() {}

// CastVote is the command to record the decision of a validator on a voting.
// The seed has no effect on the voting: it makes the transactions of two
// otherwise identical votes different.
type CastVote struct {
	ActionID     uint64
	SubjectKey   []byte
	ValidatorKey []byte
	Decision     bool
	Seed         uint64
}

// GetSubjectKey implements types.Command.
func (c CastVote) GetSubjectKey() []byte {
	return c.SubjectKey
}

// Args implements types.Command.
func (c CastVote) Args() []txn.Arg {
	decision := []byte("0")
	if c.Decision {
		decision = []byte("1")
	}

	return []txn.Arg{
		{Key: CmdArg, Value: []byte(CmdCastVote)},
		{Key: SubjectArg, Value: c.SubjectKey},
		{Key: ActionArg, Value: uint64Bytes(c.ActionID)},
		{Key: ValidatorArg, Value: c.ValidatorKey},
		{Key: DecisionArg, Value: decision},
		{Key: SeedArg, Value: uint64Bytes(c.Seed)},
	}
}

// ToAction returns the vote recorded by the command.
func (c CastVote) ToAction() VoteAction {
	return VoteAction{
		ActionID:     c.ActionID,
		ValidatorKey: c.ValidatorKey,
		Decision:     c.Decision,
	}
}

func (CastVote) isCommand() {}

// CommandOf returns the command carried by the arguments of the transaction.
func CommandOf(tx txn.Transaction) (Command, error) {
	cmd := tx.GetArg(CmdArg)
	if len(cmd) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", CmdArg)
	}

	subject := tx.GetArg(SubjectArg)
	if len(subject) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", SubjectArg)
	}

	switch CommandType(cmd) {
	case CmdCreateVoting:
		drone := tx.GetArg(DroneArg)
		if len(drone) == 0 {
			return nil, xerrors.Errorf("'%s' not found in tx arg", DroneArg)
		}

		return CreateVoting{SubjectKey: subject, DroneKey: drone}, nil
	case CmdCastVote:
		validator := tx.GetArg(ValidatorArg)
		if len(validator) == 0 {
			return nil, xerrors.Errorf("'%s' not found in tx arg", ValidatorArg)
		}

		action, err := readUint64(tx, ActionArg)
		if err != nil {
			return nil, err
		}

		seed, err := readUint64(tx, SeedArg)
		if err != nil {
			return nil, err
		}

		var decision bool

		switch string(tx.GetArg(DecisionArg)) {
		case "1":
			decision = true
		case "0":
			decision = false
		default:
			return nil, xerrors.Errorf("invalid decision '%s'", tx.GetArg(DecisionArg))
		}

		vote := CastVote{
			ActionID:     action,
			SubjectKey:   subject,
			ValidatorKey: validator,
			Decision:     decision,
			Seed:         seed,
		}

		return vote, nil
	default:
		return nil, xerrors.Errorf("unknown command: %s", cmd)
	}
}

func readUint64(tx txn.Transaction, key string) (uint64, error) {
	value := tx.GetArg(key)
	if len(value) != 8 {
		return 0, xerrors.Errorf("'%s' must be 8 bytes but got %d", key, len(value))
	}

	return binary.LittleEndian.Uint64(value), nil
}

func uint64Bytes(value uint64) []byte {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, value)

	return buffer
}

package voting

import "fmt"

// Codespace is the namespace of the error codes of the contract.
const Codespace = "voting"

// ErrorCode is a stable code of a rejected voting transaction.
type ErrorCode uint32

const (
	// CodeVotingAlreadyExists is the code of a voting opened twice.
	CodeVotingAlreadyExists ErrorCode = 0

	// CodeVotingNotFound is the code of a vote on an unknown voting.
	CodeVotingNotFound ErrorCode = 1

	// CodeValidatorNotFound is reserved for a vote from a validator that is not
	// eligible. The contract does not maintain the set of validators so it is
	// never produced.
	CodeValidatorNotFound ErrorCode = 2

	// CodeValidatorAlreadyVoted is the code of a second vote of a validator.
	CodeValidatorAlreadyVoted ErrorCode = 3
)

func (c ErrorCode) String() string {
	switch c {
	case CodeVotingAlreadyExists:
		return "VotingAlreadyExists"
	case CodeVotingNotFound:
		return "VotingNotFound"
	case CodeValidatorNotFound:
		return "ValidatorNotFound"
	case CodeValidatorAlreadyVoted:
		return "ValidatorAlreadyVoted"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint32(c))
	}
}

var (
	// ErrVotingAlreadyExists is returned when a voting is opened for a subject
	// that already has one.
	ErrVotingAlreadyExists = &Error{code: CodeVotingAlreadyExists, message: "Voting already exists"}

	// ErrVotingNotFound is returned when a vote is cast on a subject without
	// voting.
	ErrVotingNotFound = &Error{code: CodeVotingNotFound, message: "Voting doesn't exist"}

	// ErrValidatorNotFound is reserved, see CodeValidatorNotFound.
	ErrValidatorNotFound = &Error{code: CodeValidatorNotFound, message: "Validator doesn't exist"}

	// ErrValidatorAlreadyVoted is returned when a validator votes twice on the
	// same voting.
	ErrValidatorAlreadyVoted = &Error{code: CodeValidatorAlreadyVoted, message: "Validator already voted"}
)

// Error is a domain error of the contract. The host turns it into a rejected
// transaction that carries the code.
//
// - implements execution.Coder
type Error struct {
	code    ErrorCode
	message string
}

// Code returns the code of the error.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Error implements error.
func (e *Error) Error() string {
	return e.message
}

// Codespace implements execution.Coder.
func (e *Error) Codespace() string {
	return Codespace
}

// ErrorCode implements execution.Coder.
func (e *Error) ErrorCode() uint32 {
	return uint32(e.code)
}

// Is returns true when the target is an error of the same code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)

	return ok && other.code == e.code
}

// Package types defines the records and the commands of the voting contract.
package types

import (
	"go.dedis.ch/swarm/core/store/hashlist"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

var votingFormats = registry.NewSimpleRegistry()

// RegisterVotingFormat registers the engine for the provided format.
func RegisterVotingFormat(format serde.Format, engine serde.FormatEngine) {
	votingFormats.Register(format, engine)
}

// VoteAction is a vote recorded in a voting.
type VoteAction struct {
	ActionID     uint64
	ValidatorKey []byte
	Decision     bool
}

// Voting is the record of a proposal. A record is never updated in place: a
// new vote produces a new record that replaces the previous one.
//
// - implements serde.Message
type Voting struct {
	subjectKey    []byte
	droneKey      []byte
	actions       []VoteAction
	approvalCount uint64
	historyLen    uint64
	historyRoot   []byte
}

// VotingOption is the type of option to set some fields of a voting.
type VotingOption func(*Voting)

// WithActions is an option to set the votes of the voting. The number of
// approvals is derived from them.
func WithActions(actions ...VoteAction) VotingOption {
	return func(v *Voting) {
		v.actions = actions
		v.approvalCount = 0

		for _, action := range actions {
			if action.Decision {
				v.approvalCount++
			}
		}
	}
}

// WithHistory is an option to set the head of the history log the record was
// last updated with.
func WithHistory(head hashlist.Head) VotingOption {
	return func(v *Voting) {
		v.historyLen = head.Len
		v.historyRoot = head.Root
	}
}

// NewVoting creates a new voting for the subject opened by the drone.
func NewVoting(subject, drone []byte, opts ...VotingOption) Voting {
	v := Voting{
		subjectKey: subject,
		droneKey:   drone,
		actions:    []VoteAction{},
	}

	for _, opt := range opts {
		opt(&v)
	}

	return v
}

// GetSubjectKey returns the key of the subject, which is the primary key of
// the record.
func (v Voting) GetSubjectKey() []byte {
	return append([]byte{}, v.subjectKey...)
}

// GetDroneKey returns the key of the identity that opened the voting.
func (v Voting) GetDroneKey() []byte {
	return append([]byte{}, v.droneKey...)
}

// GetActions returns the votes in the order they were cast.
func (v Voting) GetActions() []VoteAction {
	return append([]VoteAction{}, v.actions...)
}

// GetApprovalCount returns the number of votes that approve.
func (v Voting) GetApprovalCount() uint64 {
	return v.approvalCount
}

// GetHistoryLen returns the length of the history log at the last update.
func (v Voting) GetHistoryLen() uint64 {
	return v.historyLen
}

// GetHistoryRoot returns the root of the history log at the last update.
func (v Voting) GetHistoryRoot() []byte {
	return append([]byte{}, v.historyRoot...)
}

// HasVoted returns true if the validator has already voted.
func (v Voting) HasVoted(validator []byte) bool {
	for _, action := range v.actions {
		if string(action.ValidatorKey) == string(validator) {
			return true
		}
	}

	return false
}

// Vote returns the record that replaces this one after the vote has been
// appended to the history log with the given head.
func (v Voting) Vote(action VoteAction, head hashlist.Head) Voting {
	actions := make([]VoteAction, len(v.actions), len(v.actions)+1)
	copy(actions, v.actions)

	return NewVoting(v.subjectKey, v.droneKey,
		WithActions(append(actions, action)...),
		WithHistory(head))
}

// Serialize implements serde.Message. It returns the data of the voting.
func (v Voting) Serialize(ctx serde.Context) ([]byte, error) {
	format := votingFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, v)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode voting: %v", err)
	}

	return data, nil
}

// NewVotingFromFields creates a voting with all its fields. It is meant for
// the format engines, as the approval count is taken as is.
func NewVotingFromFields(subject, drone []byte, actions []VoteAction,
	approvals uint64, head hashlist.Head) Voting {

	if actions == nil {
		actions = []VoteAction{}
	}

	return Voting{
		subjectKey:    subject,
		droneKey:      drone,
		actions:       actions,
		approvalCount: approvals,
		historyLen:    head.Len,
		historyRoot:   head.Root,
	}
}

// VotingFactory is the factory to deserialize votings.
//
// - implements serde.Factory
type VotingFactory struct{}

// NewVotingFactory returns a new factory of votings.
func NewVotingFactory() VotingFactory {
	return VotingFactory{}
}

// Deserialize implements serde.Factory.
func (f VotingFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.VotingOf(ctx, data)
}

// VotingOf returns the voting of the data, otherwise an error.
func (f VotingFactory) VotingOf(ctx serde.Context, data []byte) (Voting, error) {
	format := votingFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return Voting{}, xerrors.Errorf("failed to decode voting: %v", err)
	}

	voting, ok := msg.(Voting)
	if !ok {
		return Voting{}, xerrors.Errorf("invalid voting of type '%T'", msg)
	}

	return voting, nil
}

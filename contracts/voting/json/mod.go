// Package json implements the JSON format of the voting records.
package json

import (
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/store/hashlist"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

func init() {
	types.RegisterVotingFormat(serde.FormatJSON, votingFormat{})
}

// VoteActionJSON is the JSON message of a vote.
type VoteActionJSON struct {
	ActionID  uint64
	Validator []byte
	Decision  bool
}

// VotingJSON is the JSON message of a voting. The fields are always written in
// the same order, which makes the encoding of a record deterministic.
type VotingJSON struct {
	Subject       []byte
	Drone         []byte
	Actions       []VoteActionJSON
	ApprovalCount uint64
	HistoryLen    uint64
	HistoryRoot   []byte
}

// votingFormat is the engine to encode and decode votings in JSON format.
//
// - implements serde.FormatEngine
type votingFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the voting.
func (f votingFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	voting, ok := msg.(types.Voting)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	actions := make([]VoteActionJSON, 0, len(voting.GetActions()))
	for _, action := range voting.GetActions() {
		actions = append(actions, VoteActionJSON{
			ActionID:  action.ActionID,
			Validator: action.ValidatorKey,
			Decision:  action.Decision,
		})
	}

	m := VotingJSON{
		Subject:       voting.GetSubjectKey(),
		Drone:         voting.GetDroneKey(),
		Actions:       actions,
		ApprovalCount: voting.GetApprovalCount(),
		HistoryLen:    voting.GetHistoryLen(),
		HistoryRoot:   voting.GetHistoryRoot(),
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the voting of the JSON data.
func (f votingFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := VotingJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	actions := make([]types.VoteAction, len(m.Actions))
	for i, action := range m.Actions {
		actions[i] = types.VoteAction{
			ActionID:     action.ActionID,
			ValidatorKey: action.Validator,
			Decision:     action.Decision,
		}
	}

	head := hashlist.Head{
		Len:  m.HistoryLen,
		Root: m.HistoryRoot,
	}

	return types.NewVotingFromFields(m.Subject, m.Drone, actions, m.ApprovalCount, head), nil
}

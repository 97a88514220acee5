package controller

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.dedis.ch/swarm/cli"
	"go.dedis.ch/swarm/cli/node"
	"go.dedis.ch/swarm/contracts/voting"
	"go.dedis.ch/swarm/contracts/voting/proof"
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/execution/native"
	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/crypto"
	sjson "go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

const (
	decisionApprove = "approve"
	decisionReject  = "reject"
)

// createAction is an action to submit a transaction creating a voting.
//
// - implements node.ActionTemplate
type createAction struct{}

// Execute implements node.ActionTemplate.
func (createAction) Execute(ctx node.Context) error {
	subject, err := readFlagHex(ctx.Flags, "subject")
	if err != nil {
		return err
	}

	drone, err := readFlagHex(ctx.Flags, "drone")
	if err != nil {
		return err
	}

	return submit(ctx, types.CreateVoting{SubjectKey: subject, DroneKey: drone})
}

// voteAction is an action to submit a transaction casting a vote.
//
// - implements node.ActionTemplate
type voteAction struct{}

// Execute implements node.ActionTemplate.
func (voteAction) Execute(ctx node.Context) error {
	subject, err := readFlagHex(ctx.Flags, "subject")
	if err != nil {
		return err
	}

	validator, err := readFlagHex(ctx.Flags, "validator")
	if err != nil {
		return err
	}

	var decision bool

	switch ctx.Flags.String("decision") {
	case decisionApprove:
		decision = true
	case decisionReject:
		decision = false
	default:
		return xerrors.Errorf("invalid decision '%s'", ctx.Flags.String("decision"))
	}

	action := ctx.Flags.Int("action")
	if action < 0 {
		return xerrors.Errorf("invalid action %d", action)
	}

	cmd := types.CastVote{
		ActionID:     uint64(action),
		SubjectKey:   subject,
		ValidatorKey: validator,
		Decision:     decision,
		Seed:         uint64(ctx.Flags.Int("seed")),
	}

	return submit(ctx, cmd)
}

// submit signs a transaction carrying the command with the manager of the
// node and submits it to the voting service. It waits for the transaction to
// be included in a block when the wait flag is set.
func submit(ctx node.Context, cmd types.Command) error {
	var srv Service
	err := ctx.Injector.Resolve(&srv)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	var mgr txn.Manager
	err = ctx.Injector.Resolve(&mgr)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = mgr.Sync()
	if err != nil {
		return xerrors.Errorf("failed to sync manager: %v", err)
	}

	args := append([]txn.Arg{{
		Key:   native.ContractArg,
		Value: []byte(voting.ContractName),
	}}, cmd.Args()...)

	tx, err := mgr.Make(args...)
	if err != nil {
		return xerrors.Errorf("failed to make tx: %v", err)
	}

	timeout := ctx.Flags.Duration("wait")
	if timeout <= 0 {
		id, err := srv.SubmitTx(tx)
		if err != nil {
			return xerrors.Errorf("failed to submit tx: %v", err)
		}

		fmt.Fprintf(ctx.Out, "transaction %x submitted", id)

		return nil
	}

	var ord ordering.Service
	err = ctx.Injector.Resolve(&ord)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	wctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	events := ord.Watch(wctx)

	id, err := srv.SubmitTx(tx)
	if err != nil {
		return xerrors.Errorf("failed to submit tx: %v", err)
	}

	for {
		select {
		case evt := <-events:
			for _, res := range evt.Transactions {
				if !bytes.Equal(res.GetTransaction().GetID(), id) {
					continue
				}

				accepted, reason := res.GetStatus()
				if !accepted {
					return xerrors.Errorf("transaction %x refused: %s", id, reason)
				}

				fmt.Fprintf(ctx.Out, "transaction %x accepted in block %d", id, evt.Index)

				return nil
			}
		case <-wctx.Done():
			return xerrors.Errorf("transaction %x not included after %v", id, timeout)
		}
	}
}

// getAction is an action to print the committed voting of a subject.
//
// - implements node.ActionTemplate
type getAction struct{}

// Execute implements node.ActionTemplate.
func (getAction) Execute(ctx node.Context) error {
	var srv Service
	err := ctx.Injector.Resolve(&srv)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	subject, err := readFlagHex(ctx.Flags, "subject")
	if err != nil {
		return err
	}

	v, err := srv.GetVoting(subject)
	if err != nil {
		return xerrors.Errorf("failed to get voting: %v", err)
	}

	return printJSON(ctx, types.NewVotingResponse(v))
}

// listAction is an action to print the committed votings.
//
// - implements node.ActionTemplate
type listAction struct{}

// Execute implements node.ActionTemplate.
func (listAction) Execute(ctx node.Context) error {
	var srv Service
	err := ctx.Injector.Resolve(&srv)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	list, err := srv.ListVotings()
	if err != nil {
		return xerrors.Errorf("failed to list votings: %v", err)
	}

	res := make([]types.VotingResponse, len(list))
	for i, v := range list {
		res[i] = types.NewVotingResponse(v)
	}

	return printJSON(ctx, res)
}

// infoAction is an action to print the proof of the voting of a subject.
//
// - implements node.ActionTemplate
type infoAction struct{}

// Execute implements node.ActionTemplate. When the verify flag is set, the
// proof is checked against the header stored by the ordering service before
// it is printed.
func (infoAction) Execute(ctx node.Context) error {
	var srv Service
	err := ctx.Injector.Resolve(&srv)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	subject, err := readFlagHex(ctx.Flags, "subject")
	if err != nil {
		return err
	}

	var p proof.VotingInfoProof

	height := ctx.Flags.Int("height")
	if height < 0 {
		p, err = srv.GetVotingInfo(subject)
	} else {
		p, err = srv.GetVotingInfoAt(subject, uint64(height))
	}

	if err != nil {
		return xerrors.Errorf("failed to get proof: %v", err)
	}

	if ctx.Flags.Bool("verify") {
		var ord ordering.Service
		err = ctx.Injector.Resolve(&ord)
		if err != nil {
			return xerrors.Errorf("injector: %v", err)
		}

		header, err := ord.GetHeader(p.GetHeader().GetIndex())
		if err != nil {
			return xerrors.Errorf("failed to read header: %v", err)
		}

		err = p.Verify(header.GetHash(), crypto.NewSha256Factory())
		if err != nil {
			return xerrors.Errorf("invalid proof: %v", err)
		}
	}

	data, err := p.Serialize(sjson.NewContext())
	if err != nil {
		return xerrors.Errorf("failed to serialize proof: %v", err)
	}

	ctx.Out.Write(data)

	return nil
}

func printJSON(ctx node.Context, msg interface{}) error {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal: %v", err)
	}

	ctx.Out.Write(data)

	return nil
}

func readFlagHex(flags cli.Flags, name string) ([]byte, error) {
	value := flags.String(name)
	if value == "" {
		return nil, xerrors.Errorf("missing flag '%s'", name)
	}

	data, err := hex.DecodeString(value)
	if err != nil {
		return nil, xerrors.Errorf("invalid '%s': %v", name, err)
	}

	return data, nil
}

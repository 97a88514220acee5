package controller

import (
	"context"
	"fmt"

	"go.dedis.ch/swarm/cli/node"
	"go.dedis.ch/swarm/core/ordering"
	"golang.org/x/xerrors"
)

// infoAction is an action to print the header of a block.
//
// - implements node.ActionTemplate
type infoAction struct{}

// Execute implements node.ActionTemplate. It prints the header at the height,
// or the last one when the height is negative.
func (infoAction) Execute(ctx node.Context) error {
	var srvc ordering.Service
	err := ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	var header ordering.Header

	height := ctx.Flags.Int("height")
	if height < 0 {
		header, err = srvc.GetLatestHeader()
	} else {
		header, err = srvc.GetHeader(uint64(height))
	}

	if err != nil {
		return xerrors.Errorf("failed to read header: %v", err)
	}

	fmt.Fprintf(ctx.Out, "height=%d hash=%x root=%x",
		header.GetIndex(), header.GetHash(), header.GetRoot())

	return nil
}

// waitAction is an action to wait for the next block.
//
// - implements node.ActionTemplate
type waitAction struct{}

// Execute implements node.ActionTemplate. It waits for the next block and
// prints the status of its transactions.
func (waitAction) Execute(ctx node.Context) error {
	var srvc ordering.Service
	err := ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	wctx, cancel := context.WithTimeout(context.Background(), ctx.Flags.Duration("timeout"))
	defer cancel()

	events := srvc.Watch(wctx)

	select {
	case evt := <-events:
		accepted := 0
		for _, res := range evt.Transactions {
			ok, _ := res.GetStatus()
			if ok {
				accepted++
			}
		}

		fmt.Fprintf(ctx.Out, "block %d with %d/%d accepted transactions",
			evt.Index, accepted, len(evt.Transactions))
	case <-wctx.Done():
		return xerrors.New("timeout while waiting for a block")
	}

	return nil
}

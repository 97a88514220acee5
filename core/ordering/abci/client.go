package abci

import (
	"context"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

const defaultSubmitTimeout = 10 * time.Second

// broadcaster is the subset of the RPC client used to submit transactions.
type broadcaster interface {
	BroadcastTxSync(context.Context, cmttypes.Tx) (*rpccoretypes.ResultBroadcastTx, error)
}

// Client submits the transactions to a CometBFT node through its RPC
// interface. The transactions are checked by the mempool of the node before
// the call returns.
type Client struct {
	rpc     broadcaster
	context serde.Context
	timeout time.Duration
}

// NewClient creates a client connected to the RPC address of a node, for
// instance tcp://127.0.0.1:26657.
func NewClient(remote string) (*Client, error) {
	rpc, err := rpchttp.New(remote, "/websocket")
	if err != nil {
		return nil, xerrors.Errorf("failed to create rpc client: %v", err)
	}

	return &Client{
		rpc:     rpc,
		context: json.NewContext(),
		timeout: defaultSubmitTimeout,
	}, nil
}

// Add broadcasts the transaction to the node. It returns an error when the
// mempool of the node refuses it.
func (c *Client) Add(tx txn.Transaction) error {
	data, err := tx.Serialize(c.context)
	if err != nil {
		return xerrors.Errorf("failed to serialize tx: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	res, err := c.rpc.BroadcastTxSync(ctx, cmttypes.Tx(data))
	if err != nil {
		return xerrors.Errorf("failed to broadcast tx: %v", err)
	}

	if res.Code != abcitypes.CodeTypeOK {
		return xerrors.Errorf("tx refused with code %s/%d: %s", res.Codespace, res.Code, res.Log)
	}

	return nil
}

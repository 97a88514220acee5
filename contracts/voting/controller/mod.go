package controller

import (
	"fmt"
	"path/filepath"
	"time"

	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/cli"
	"go.dedis.ch/swarm/cli/node"
	"go.dedis.ch/swarm/contracts/voting"
	"go.dedis.ch/swarm/contracts/voting/ledger"
	"go.dedis.ch/swarm/core/execution/native"
	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/txn/signed"
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/crypto/loader"
	"go.dedis.ch/swarm/proxy"
	"golang.org/x/xerrors"
)

// PrivateKeyFile is the name of the file in the config folder that stores the
// key signing the transactions of the node.
const PrivateKeyFile = "private.key"

// stateRegistry is implemented by the ordering services that accept state
// providers.
type stateRegistry interface {
	Register(ordering.StateProvider)
}

// NewController returns the initializer of the voting contract.
func NewController() node.Initializer {
	return controller{}
}

// controller is the initializer of the voting contract. It must be placed
// after the ordering controller and before the ordering listener.
//
// - implements node.Initializer
type controller struct{}

// SetCommands implements node.Initializer.
func (controller) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("voting")
	cmd.SetDescription("Voting contract")

	sub := cmd.SetSubCommand("create")
	sub.SetDescription("Submit a transaction creating a voting")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "subject",
			Usage:    "hex-encoded key of the subject",
			Required: true,
		},
		cli.StringFlag{
			Name:     "drone",
			Usage:    "hex-encoded key of the drone",
			Required: true,
		},
		waitFlag,
	)
	sub.SetAction(builder.MakeAction(createAction{}))

	sub = cmd.SetSubCommand("vote")
	sub.SetDescription("Submit a transaction casting a vote")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "subject",
			Usage:    "hex-encoded key of the subject",
			Required: true,
		},
		cli.IntFlag{
			Name:  "action",
			Usage: "identifier of the action",
		},
		cli.StringFlag{
			Name:     "validator",
			Usage:    "hex-encoded key of the validator",
			Required: true,
		},
		cli.StringFlag{
			Name:  "decision",
			Usage: "approve or reject",
			Value: decisionApprove,
		},
		cli.IntFlag{
			Name:  "seed",
			Usage: "seed making two identical votes different",
		},
		waitFlag,
	)
	sub.SetAction(builder.MakeAction(voteAction{}))

	sub = cmd.SetSubCommand("get")
	sub.SetDescription("Print the committed voting of a subject")
	sub.SetFlags(cli.StringFlag{
		Name:     "subject",
		Usage:    "hex-encoded key of the subject",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(getAction{}))

	sub = cmd.SetSubCommand("list")
	sub.SetDescription("Print the committed votings")
	sub.SetAction(builder.MakeAction(listAction{}))

	sub = cmd.SetSubCommand("info")
	sub.SetDescription("Print the proof of the voting of a subject")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "subject",
			Usage:    "hex-encoded key of the subject",
			Required: true,
		},
		cli.IntFlag{
			Name:  "height",
			Usage: "height of the block, or the last one if negative",
			Value: -1,
		},
		cli.BoolFlag{
			Name:  "verify",
			Usage: "verify the proof against the header of the block",
		},
	)
	sub.SetAction(builder.MakeAction(infoAction{}))
}

var waitFlag = cli.DurationFlag{
	Name:  "wait",
	Usage: "wait for the transaction to be included in a block",
	Value: 0 * time.Second,
}

// OnStart implements node.Initializer. It registers the contract and the
// service to the components of the host, and the routes to the proxy if any.
func (controller) OnStart(flags cli.Flags, inj node.Injector) error {
	var exec *native.Service
	err := inj.Resolve(&exec)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	var ord ordering.Service
	err = inj.Resolve(&ord)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	var pool voting.Pool
	err = inj.Resolve(&pool)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	var vs validation.Service
	err = inj.Resolve(&vs)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	reg, ok := ord.(stateRegistry)
	if !ok {
		return xerrors.Errorf("ordering '%T' does not accept state providers", ord)
	}

	signer, err := loadSigner(flags)
	if err != nil {
		return xerrors.Errorf("signer: %v", err)
	}

	fac := ledger.NewFactory()
	txFac := signed.NewTransactionFactory()

	voting.RegisterContract(exec, voting.NewContract(fac))

	srv := voting.NewService(ord, pool, fac, txFac)
	reg.Register(srv)

	nonces := NewNonceReader(vs, ord)

	inj.Inject(srv)
	inj.Inject(signed.NewManager(signer, nonces))

	var p proxy.Proxy
	err = inj.Resolve(&p)
	if err == nil {
		NewHandlers(srv, nonces, txFac, ed25519.NewPublicKeyFactory()).Register(p)
	}

	swarm.Logger.Info().
		Str("identity", fmt.Sprint(signer.GetPublicKey())).
		Bool("http", err == nil).
		Msg("voting contract registered")

	return nil
}

// OnStop implements node.Initializer.
func (controller) OnStop(node.Injector) error {
	return nil
}

func loadSigner(flags cli.Flags) (ed25519.Signer, error) {
	path := filepath.Join(flags.Path("config"), PrivateKeyFile)

	data, err := loader.NewFileLoader(path).LoadOrCreate(signerGenerator{})
	if err != nil {
		return ed25519.Signer{}, xerrors.Errorf("failed to load key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return ed25519.Signer{}, xerrors.Errorf("failed to unmarshal key: %v", err)
	}

	return signer, nil
}

// signerGenerator generates a new ed25519 signer.
//
// - implements loader.Generator
type signerGenerator struct{}

// Generate implements loader.Generator. It returns the serialized data of a
// new signer.
func (signerGenerator) Generate() ([]byte, error) {
	data, err := ed25519.NewSigner().MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal signer: %v", err)
	}

	return data, nil
}

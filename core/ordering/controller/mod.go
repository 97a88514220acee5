// Package controller implements the initializers of the ordering service of a
// node.
//
// The controller creates the components of the host from the configuration of
// the node and injects them. The ordering service is started by the listener,
// which must be placed after the initializers registering contracts and state
// providers.
package controller

import (
	"time"

	abciserver "github.com/cometbft/cometbft/abci/server"
	cmtservice "github.com/cometbft/cometbft/libs/service"
	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/cli"
	"go.dedis.ch/swarm/cli/node"
	"go.dedis.ch/swarm/core/execution/native"
	"go.dedis.ch/swarm/core/ordering/abci"
	"go.dedis.ch/swarm/core/ordering/pow"
	"go.dedis.ch/swarm/core/store/kv"
	"go.dedis.ch/swarm/core/txn/pool/mem"
	"go.dedis.ch/swarm/core/txn/signed"
	_ "go.dedis.ch/swarm/core/txn/signed/json"
	"go.dedis.ch/swarm/core/validation/simple"
	_ "go.dedis.ch/swarm/core/validation/simple/json"
	"golang.org/x/xerrors"
)

// NewController returns the initializer of the host components.
func NewController() node.Initializer {
	return controller{}
}

// controller is the initializer that creates the database, the execution, the
// validation and the ordering service of the node.
//
// - implements node.Initializer
type controller struct{}

// SetCommands implements node.Initializer.
func (controller) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("ordering")
	cmd.SetDescription("Ordering service administration")

	sub := cmd.SetSubCommand("info")
	sub.SetDescription("Print the header of a block, or of the last one")
	sub.SetFlags(cli.IntFlag{
		Name:  "height",
		Usage: "height of the block, or the last one if negative",
		Value: -1,
	})
	sub.SetAction(builder.MakeAction(infoAction{}))

	sub = cmd.SetSubCommand("wait")
	sub.SetDescription("Wait for the next block")
	sub.SetFlags(cli.DurationFlag{
		Name:  "timeout",
		Usage: "maximum amount of time to wait",
		Value: 20 * time.Second,
	})
	sub.SetAction(builder.MakeAction(waitAction{}))
}

// OnStart implements node.Initializer. It opens the database and creates the
// ordering service described by the configuration.
func (controller) OnStart(flags cli.Flags, inj node.Injector) error {
	var cfg node.Config
	err := inj.Resolve(&cfg)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	db, err := openDB(cfg.DB)
	if err != nil {
		return xerrors.Errorf("db: %v", err)
	}

	txFac := signed.NewTransactionFactory()
	exec := native.NewExecution()
	vs := simple.NewService(exec, txFac)

	switch cfg.Ordering {
	case node.OrderingABCI:
		app, err := abci.NewApplication(vs, db, txFac, abci.WithTxCheck(exec.Check))
		if err != nil {
			db.Close()
			return xerrors.Errorf("abci: %v", err)
		}

		client, err := abci.NewClient(cfg.ABCI.RPC)
		if err != nil {
			db.Close()
			return xerrors.Errorf("abci client: %v", err)
		}

		inj.Inject(app)
		inj.Inject(client)
	default:
		pool := mem.NewPool()

		srvc, err := pow.NewService(pool, vs, db, txFac,
			pow.WithBlockDifficulty(cfg.PoW.Difficulty))
		if err != nil {
			db.Close()
			return xerrors.Errorf("pow: %v", err)
		}

		inj.Inject(pool)
		inj.Inject(srvc)
	}

	inj.Inject(db)
	inj.Inject(exec)
	inj.Inject(vs)

	swarm.Logger.Info().
		Str("ordering", cfg.Ordering).
		Str("engine", cfg.DB.Engine).
		Str("path", cfg.DB.Path).
		Msg("host created")

	return nil
}

// OnStop implements node.Initializer. It closes the database.
func (controller) OnStop(inj node.Injector) error {
	var db kv.DB
	err := inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = db.Close()
	if err != nil {
		return xerrors.Errorf("failed to close db: %v", err)
	}

	return nil
}

func openDB(cfg node.DBConfig) (kv.DB, error) {
	switch cfg.Engine {
	case node.EngineLevel:
		return kv.NewLevelDB(cfg.Path)
	default:
		return kv.New(cfg.Path)
	}
}

// NewListener returns the initializer that starts the ordering service.
func NewListener() node.Initializer {
	return &listener{}
}

// listener is the initializer that starts the ordering service once the state
// providers are registered. In ABCI mode, it serves the application to the
// CometBFT node.
//
// - implements node.Initializer
type listener struct {
	server cmtservice.Service
}

// SetCommands implements node.Initializer.
func (l *listener) SetCommands(node.Builder) {}

// OnStart implements node.Initializer. It starts the ordering service of the
// configuration.
func (l *listener) OnStart(flags cli.Flags, inj node.Injector) error {
	var cfg node.Config
	err := inj.Resolve(&cfg)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	if cfg.Ordering == node.OrderingABCI {
		var app *abci.Application
		err = inj.Resolve(&app)
		if err != nil {
			return xerrors.Errorf("injector: %v", err)
		}

		server, err := abciserver.NewServer(cfg.ABCI.Addr, "socket", app)
		if err != nil {
			return xerrors.Errorf("failed to create abci server: %v", err)
		}

		err = server.Start()
		if err != nil {
			return xerrors.Errorf("failed to start abci server: %v", err)
		}

		l.server = server

		swarm.Logger.Info().Str("addr", cfg.ABCI.Addr).Msg("abci application served")

		return nil
	}

	var srvc *pow.Service
	err = inj.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = srvc.Listen()
	if err != nil {
		return xerrors.Errorf("failed to start pow: %v", err)
	}

	return nil
}

// OnStop implements node.Initializer. It stops the ordering service.
func (l *listener) OnStop(inj node.Injector) error {
	if l.server != nil {
		err := l.server.Stop()
		if err != nil {
			return xerrors.Errorf("failed to stop abci server: %v", err)
		}

		l.server = nil

		return nil
	}

	var srvc *pow.Service
	err := inj.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = srvc.Close()
	if err != nil {
		return xerrors.Errorf("failed to stop pow: %v", err)
	}

	return nil
}

// Package controller implements the initializer of the HTTP proxy of a node.
package controller

import (
	"fmt"
	"time"

	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/cli"
	"go.dedis.ch/swarm/cli/node"
	"go.dedis.ch/swarm/internal/tracing"
	"go.dedis.ch/swarm/proxy"
	"go.dedis.ch/swarm/proxy/http"
	"golang.org/x/xerrors"
)

const (
	metricsPath = "/metrics"

	// tracerName is the name of the service in the traces of the node.
	tracerName = "swarm"
)

var (
	defaultRetry = 50
	retryDelay   = 100 * time.Millisecond

	proxyFac = http.NewHTTP
)

// NewController returns the initializer of the proxy.
func NewController() node.Initializer {
	return controller{}
}

// controller is the initializer that starts the proxy server when the
// configuration of the node has an address for it. The collectors are served
// on /metrics.
//
// - implements node.Initializer
type controller struct{}

// SetCommands implements node.Initializer.
func (controller) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("proxy")
	cmd.SetDescription("HTTP proxy administration")

	sub := cmd.SetSubCommand("addr")
	sub.SetDescription("Print the address of the proxy server")
	sub.SetAction(builder.MakeAction(addrAction{}))
}

// OnStart implements node.Initializer. It installs the tracer if enabled, then
// starts and injects the proxy.
func (controller) OnStart(flags cli.Flags, inj node.Injector) error {
	var cfg node.Config
	err := inj.Resolve(&cfg)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	if cfg.Tracing.Enabled {
		err = tracing.Setup(tracerName)
		if err != nil {
			return xerrors.Errorf("tracing: %v", err)
		}
	}

	if cfg.HTTP.Addr == "" {
		swarm.Logger.Info().Msg("proxy server disabled")
		return nil
	}

	srv := proxyFac(cfg.HTTP.Addr)

	go srv.Listen()

	for i := 0; i < defaultRetry && srv.GetAddr() == nil; i++ {
		time.Sleep(retryDelay)
	}

	if srv.GetAddr() == nil {
		return xerrors.New("failed to start proxy server")
	}

	srv.RegisterMetrics(metricsPath)

	inj.Inject(srv)

	return nil
}

// OnStop implements node.Initializer. It stops the proxy and closes the
// tracers.
func (controller) OnStop(inj node.Injector) error {
	var srv proxy.Proxy
	err := inj.Resolve(&srv)
	if err == nil {
		srv.Stop()
	}

	err = tracing.CloseAll()
	if err != nil {
		return xerrors.Errorf("tracing: %v", err)
	}

	return nil
}

// addrAction is an action to print the address of the proxy.
//
// - implements node.ActionTemplate
type addrAction struct{}

// Execute implements node.ActionTemplate.
func (addrAction) Execute(ctx node.Context) error {
	var srv proxy.Proxy
	err := ctx.Injector.Resolve(&srv)
	if err != nil {
		return xerrors.Errorf("proxy server is not running: %v", err)
	}

	fmt.Fprintf(ctx.Out, "http://%s", srv.GetAddr())

	return nil
}

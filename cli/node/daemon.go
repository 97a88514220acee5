// This file contains the client and the daemon exchanging the actions over a
// UNIX socket.
//
// A client writes one request, the JSON message of the action index and the
// flags, then reads replies until the daemon closes the connection. Each reply
// is either a piece of output or the error that ended the action.

package node

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/cli"
	"golang.org/x/xerrors"
)

// SocketName is the name of the socket file in the config folder.
const SocketName = "daemon.sock"

const ioTimeout = 30 * time.Second

// request is the message of a client asking the daemon to run an action.
type request struct {
	Action uint16
	Flags  FlagSet
}

// reply is a message of the daemon to the client. A non-empty error ends the
// exchange.
type reply struct {
	Output string `json:",omitempty"`
	Error  string `json:",omitempty"`
}

type dialer func(network, addr string, timeout time.Duration) (net.Conn, error)

// socketClient sends the actions to the daemon listening on the socket.
//
// - implements node.Client
type socketClient struct {
	path    string
	out     io.Writer
	timeout time.Duration
	dial    dialer
}

// Send implements node.Client. It writes the request and copies the output of
// the action to the writer of the client, one line per reply.
func (c socketClient) Send(data []byte) error {
	conn, err := c.dial("unix", c.path, c.timeout)
	if err != nil {
		return xerrors.Errorf("couldn't open connection: %v", err)
	}

	defer conn.Close()

	_, err = conn.Write(data)
	if err != nil {
		return xerrors.Errorf("couldn't write to daemon: %v", err)
	}

	dec := json.NewDecoder(conn)

	for {
		var msg reply

		err = dec.Decode(&msg)
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return xerrors.Errorf("fail to decode reply: %v", err)
		}

		if msg.Error != "" {
			return xerrors.New(msg.Error)
		}

		fmt.Fprintln(c.out, msg.Output)
	}
}

// socketDaemon runs the actions requested on a UNIX socket, so that the
// permissions are those of the file: a user needs read and write access to
// control the node.
//
// - implements node.Daemon
type socketDaemon struct {
	path        string
	injector    Injector
	actions     *actionMap
	logger      zerolog.Logger
	readTimeout time.Duration
	listen      func(network, addr string) (net.Listener, error)

	wg       sync.WaitGroup
	listener net.Listener
	closing  chan struct{}
}

// Listen implements node.Daemon. It binds the socket and serves the requests
// in the background.
func (d *socketDaemon) Listen() error {
	ln, err := d.listen("unix", d.path)
	if err != nil {
		return xerrors.Errorf("couldn't bind socket: %v", err)
	}

	d.listener = ln

	d.wg.Add(1)
	go d.serve()

	return nil
}

func (d *socketDaemon) serve() {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.closing:
			default:
				d.logger.Err(err).Msg("daemon closed unexpectedly")
			}

			return
		}

		d.wg.Add(1)

		go func() {
			defer d.wg.Done()
			d.handle(conn)
		}()
	}
}

func (d *socketDaemon) handle(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(d.readTimeout))

	var req request

	err := json.NewDecoder(conn).Decode(&req)
	if err == io.EOF {
		// Nothing was sent, which is how the clients check that the daemon
		// is up.
		return
	}

	if err != nil {
		d.fail(conn, xerrors.Errorf("failed to decode request: %v", err))
		return
	}

	d.logger.Debug().
		Uint16("action", req.Action).
		Interface("flags", req.Flags).
		Msg("request received")

	action := d.actions.Get(req.Action)
	if action == nil {
		d.fail(conn, xerrors.Errorf("unknown command '%d'", req.Action))
		return
	}

	if req.Flags == nil {
		req.Flags = FlagSet{}
	}

	ctx := Context{
		Injector: d.injector,
		Flags:    req.Flags,
		Out:      replyWriter{enc: json.NewEncoder(conn)},
	}

	err = action.Execute(ctx)
	if err != nil {
		d.fail(conn, xerrors.Errorf("command error: %v", err))
	}
}

func (d *socketDaemon) fail(conn net.Conn, err error) {
	d.logger.Debug().Err(err).Msg("request failed")

	err = json.NewEncoder(conn).Encode(reply{Error: err.Error()})
	if err != nil {
		d.logger.Warn().Err(err).Msg("connection to daemon has error")
	}
}

// Close implements node.Daemon. It closes the socket and waits for the
// requests in progress.
func (d *socketDaemon) Close() error {
	close(d.closing)

	if d.listener != nil {
		d.listener.Close()
	}

	d.wg.Wait()

	return nil
}

// replyWriter sends every write to the client as a reply.
//
// - implements io.Writer
type replyWriter struct {
	enc *json.Encoder
}

// Write implements io.Writer.
func (w replyWriter) Write(data []byte) (int, error) {
	err := w.enc.Encode(reply{Output: string(data)})
	if err != nil {
		return 0, xerrors.Errorf("while packing data: %v", err)
	}

	return len(data), nil
}

// socketFactory creates the daemon and the clients of the socket in the
// config folder.
//
// - implements node.DaemonFactory
type socketFactory struct {
	injector Injector
	actions  *actionMap
	out      io.Writer
}

// ClientFromContext implements node.DaemonFactory.
func (f socketFactory) ClientFromContext(flags cli.Flags) (Client, error) {
	client := socketClient{
		path:    socketPath(flags),
		out:     f.out,
		timeout: ioTimeout,
		dial:    net.DialTimeout,
	}

	return client, nil
}

// DaemonFromContext implements node.DaemonFactory.
func (f socketFactory) DaemonFromContext(flags cli.Flags) (Daemon, error) {
	path := socketPath(flags)

	daemon := &socketDaemon{
		path:        path,
		injector:    f.injector,
		actions:     f.actions,
		logger:      swarm.Logger.With().Str("daemon", path).Logger(),
		readTimeout: ioTimeout,
		listen:      net.Listen,
		closing:     make(chan struct{}),
	}

	return daemon, nil
}

func socketPath(flags cli.Flags) string {
	return filepath.Join(flags.Path("config"), SocketName)
}

// Package proxy defines the server that exposes the services of a node to the
// clients.
package proxy

import (
	"net"
	"net/http"
)

// Proxy defines the primitives of the server that handles the client side
// requests.
type Proxy interface {
	// Listen starts the proxy server. This call is blocking.
	Listen()

	// Stop stops the proxy server.
	Stop()

	// RegisterHandler registers a new handler.
	RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request))

	// GetAddr returns the address the server is listening on, or nil if it is
	// not listening yet.
	GetAddr() net.Addr
}

// Package tracing installs the tracer of the node. When tracing is enabled,
// the Jaeger tracer configured from the JAEGER_* environment variables becomes
// the global tracer used by the HTTP proxy.
package tracing

import (
	"io"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"golang.org/x/xerrors"
)

type tracerCatalog struct {
	sync.Mutex

	tracers map[string]opentracing.Tracer
	closers []io.Closer
}

var catalog = tracerCatalog{
	tracers: make(map[string]opentracing.Tracer),
}

// newTracer creates the tracer of a service. It is called with the catalog
// locked.
var newTracer = newJaegerTracer

func newJaegerTracer(service string) (opentracing.Tracer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, xerrors.Errorf("failed to parse jaeger config from env: %v", err)
	}

	cfg.ServiceName = service

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, xerrors.Errorf("failed to create jaeger tracer: %v", err)
	}

	catalog.closers = append(catalog.closers, closer)

	return tracer, nil
}

// GetTracer returns the tracer of the service. The tracers are cached so that
// the same instance is returned for a service.
func GetTracer(service string) (opentracing.Tracer, error) {
	catalog.Lock()
	defer catalog.Unlock()

	tracer, ok := catalog.tracers[service]
	if ok {
		return tracer, nil
	}

	tracer, err := newTracer(service)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tracer: %v", err)
	}

	catalog.tracers[service] = tracer

	return tracer, nil
}

// Setup makes the tracer of the service the global tracer.
func Setup(service string) error {
	tracer, err := GetTracer(service)
	if err != nil {
		return err
	}

	opentracing.SetGlobalTracer(tracer)

	return nil
}

// CloseAll flushes and closes the tracers, and resets the global tracer.
func CloseAll() error {
	catalog.Lock()
	defer catalog.Unlock()

	closers := catalog.closers

	catalog.tracers = make(map[string]opentracing.Tracer)
	catalog.closers = nil

	opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	for _, closer := range closers {
		err := closer.Close()
		if err != nil {
			return xerrors.Errorf("failed to close tracer: %v", err)
		}
	}

	return nil
}

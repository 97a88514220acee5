package fake

import opentracing "github.com/opentracing/opentracing-go"

// NewTracerWithError is used to mock the tracer creation with an error.
func NewTracerWithError(string) (opentracing.Tracer, error) {
	return nil, fakeErr
}

// NewTracerEmpty is used to mock the tracer creation with a no-op tracer.
func NewTracerEmpty(string) (opentracing.Tracer, error) {
	return opentracing.NoopTracer{}, nil
}

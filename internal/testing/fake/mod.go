// Package fake provides fake implementations of the module interfaces that
// the tests share.
package fake

import (
	"encoding/json"
	"hash"
	"sync"

	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

const fakeErrMsg = "fake error"

var fakeErr = xerrors.New(fakeErrMsg)

// GetError returns the fake error.
func GetError() error {
	return fakeErr
}

// Err returns the expected message of an error that wraps the fake error with
// the given message.
func Err(msg string) string {
	return msg + ": " + fakeErrMsg
}

// Call is a tool to keep track of a function calls.
type Call struct {
	sync.Mutex
	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	c.Lock()
	defer c.Unlock()

	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	if c == nil {
		return 0
	}

	c.Lock()
	defer c.Unlock()

	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	if c == nil {
		return
	}

	c.Lock()
	c.calls = append(c.calls, args)
	c.Unlock()
}

// Message is a fake implementation of a serde message.
//
// - implements serde.Message
type Message struct {
	Digest []byte
}

// Serialize implements serde.Message. It returns a fixed JSON object.
func (m Message) Serialize(serde.Context) ([]byte, error) {
	return []byte("{}"), nil
}

// MessageFactory is a fake implementation of a serde factory.
//
// - implements serde.Factory
type MessageFactory struct {
	err error
}

// NewBadMessageFactory returns a factory that always fails.
func NewBadMessageFactory() MessageFactory {
	return MessageFactory{err: fakeErr}
}

// Deserialize implements serde.Factory. It returns an empty message, or the
// error if set.
func (f MessageFactory) Deserialize(serde.Context, []byte) (serde.Message, error) {
	return Message{}, f.err
}

// Format is a fake format engine.
//
// - implements serde.FormatEngine
type Format struct {
	Msg  serde.Message
	Err  error
	Call *Call
}

// NewBadFormat returns a format engine that always fails.
func NewBadFormat() Format {
	return Format{Err: fakeErr}
}

// Encode implements serde.FormatEngine. It returns fixed data, or the error if
// set.
func (f Format) Encode(ctx serde.Context, m serde.Message) ([]byte, error) {
	f.Call.Add(ctx, m)

	if f.Err != nil {
		return nil, f.Err
	}

	return GetFakeFormatValue(), nil
}

// Decode implements serde.FormatEngine. It returns the message set in the
// format, or the error if set.
func (f Format) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	f.Call.Add(ctx, data)

	if f.Err != nil {
		return nil, f.Err
	}

	return f.Msg, nil
}

// GoodFormat is the format name of a context that succeeds.
const GoodFormat = serde.Format("FakeGood")

// BadFormat is the format name of a context that fails.
const BadFormat = serde.Format("FakeBad")

// GetFakeFormatValue returns the data produced by the fake format engine.
func GetFakeFormatValue() []byte {
	return []byte("fake format")
}

// ContextEngine is a fake context engine that uses the JSON encoding under a
// configurable format name.
//
// - implements serde.ContextEngine
type ContextEngine struct {
	Format serde.Format
	err    error
}

// NewContext returns a context using the good fake format.
func NewContext() serde.Context {
	return serde.NewContext(ContextEngine{Format: GoodFormat})
}

// NewBadContext returns a context using the bad fake format whose engine
// always fails.
func NewBadContext() serde.Context {
	return serde.NewContext(ContextEngine{Format: BadFormat, err: fakeErr})
}

// NewContextWithFormat returns a context whose engine announces the given
// format.
func NewContextWithFormat(f serde.Format) serde.Context {
	return serde.NewContext(ContextEngine{Format: f})
}

// GetFormat implements serde.ContextEngine.
func (ctx ContextEngine) GetFormat() serde.Format {
	return ctx.Format
}

// Marshal implements serde.ContextEngine.
func (ctx ContextEngine) Marshal(m interface{}) ([]byte, error) {
	if ctx.err != nil {
		return nil, ctx.err
	}

	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine.
func (ctx ContextEngine) Unmarshal(data []byte, m interface{}) error {
	if ctx.err != nil {
		return ctx.err
	}

	return json.Unmarshal(data, m)
}

// Hash is a fake implementation of a hash that can fail on write.
//
// - implements hash.Hash
type Hash struct {
	hash.Hash
	delay int
	err   error
	Call  *Call
}

// NewBadHash returns a hash that fails on the first write.
func NewBadHash() *Hash {
	return &Hash{err: fakeErr}
}

// NewBadHashWithDelay returns a hash that fails after the given number of
// successful writes.
func NewBadHashWithDelay(delay int) *Hash {
	return &Hash{err: fakeErr, delay: delay}
}

// Write implements hash.Hash.
func (h *Hash) Write(data []byte) (int, error) {
	h.Call.Add(data)

	if h.err != nil {
		if h.delay > 0 {
			h.delay--
			return len(data), nil
		}

		return 0, h.err
	}

	return len(data), nil
}

// Sum implements hash.Hash. It returns a fixed digest.
func (h *Hash) Sum([]byte) []byte {
	return make([]byte, 32)
}

// HashFactory is a fake implementation of a hash factory.
//
// - implements crypto.HashFactory
type HashFactory struct {
	hash *Hash
}

// NewHashFactory returns a factory that always returns the given hash.
func NewHashFactory(h *Hash) HashFactory {
	return HashFactory{hash: h}
}

// New implements crypto.HashFactory.
func (f HashFactory) New() hash.Hash {
	return f.hash
}

// NewCall returns a new empty call monitor.
func NewCall() *Call {
	return &Call{}
}

// Clear empties the call monitor.
func (c *Call) Clear() {
	c.Lock()
	c.calls = nil
	c.Unlock()
}

// Size implements hash.Hash. It returns the size of the fixed digest.
func (h *Hash) Size() int {
	return 32
}

// Reset implements hash.Hash.
func (h *Hash) Reset() {}

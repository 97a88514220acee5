package serde

// ContextEngine encodes the raw structures of the messages for one format.
type ContextEngine interface {
	GetFormat() Format

	Marshal(message interface{}) ([]byte, error)

	Unmarshal(data []byte, message interface{}) error
}

// Context is passed through the serialization of a message and of the
// messages it contains. On the decoding side, it carries the factories of the
// nested messages that a format engine cannot know by itself.
type Context struct {
	ContextEngine

	factories *factoryEntry
}

// factoryEntry is a link of an immutable list so that a context derived with
// WithFactory never alters its parent.
type factoryEntry struct {
	key     interface{}
	factory Factory
	parent  *factoryEntry
}

// NewContext returns a context of the engine without factories.
func NewContext(engine ContextEngine) Context {
	return Context{ContextEngine: engine}
}

// GetFactory returns the latest factory set for the key, or nil.
func (ctx Context) GetFactory(key interface{}) Factory {
	for e := ctx.factories; e != nil; e = e.parent {
		if e.key == key {
			return e.factory
		}
	}

	return nil
}

// WithFactory returns a copy of the context where the key resolves to the
// factory.
func WithFactory(ctx Context, key interface{}, f Factory) Context {
	ctx.factories = &factoryEntry{key: key, factory: f, parent: ctx.factories}

	return ctx
}

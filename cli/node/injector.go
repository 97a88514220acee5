// This file contains the dependency injector of the node.

package node

import (
	"reflect"
	"sync"

	"golang.org/x/xerrors"
)

// reflectInjector resolves a dependency with the latest injected value that
// is assignable to it. Injecting a value of a type already present replaces
// the previous one.
//
// - implements node.Injector
type reflectInjector struct {
	sync.Mutex

	values []interface{}
}

// NewInjector returns an empty injector.
func NewInjector() Injector {
	return &reflectInjector{}
}

// Resolve implements node.Injector. The argument must be a pointer to the
// type of the dependency.
func (inj *reflectInjector) Resolve(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return xerrors.New("expect a pointer")
	}

	if rv.IsNil() {
		return xerrors.Errorf("reflect value '%v' is invalid", rv)
	}

	target := rv.Elem()

	inj.Lock()
	defer inj.Unlock()

	for i := len(inj.values) - 1; i >= 0; i-- {
		value := reflect.ValueOf(inj.values[i])

		if value.Type().AssignableTo(target.Type()) {
			target.Set(value)
			return nil
		}
	}

	return xerrors.Errorf("couldn't find dependency for '%v'", target.Type())
}

// Inject implements node.Injector.
func (inj *reflectInjector) Inject(v interface{}) {
	inj.Lock()
	defer inj.Unlock()

	typ := reflect.TypeOf(v)

	for i, value := range inj.values {
		if reflect.TypeOf(value) == typ {
			inj.values[i] = v
			return
		}
	}

	inj.values = append(inj.values, v)
}

package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"
)

// Container resolves contracts to fresh instances. Bindings are published
// once, as a whole, and are read-only afterwards.
type Container struct {
	bindings atomic.Pointer[map[reflect.Type]Binding]
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{}
}

// Register validates batch and publishes it. Nothing is visible to Resolve
// unless the entire batch is accepted.
func (c *Container) Register(batch []Binding) error {
	if c.bindings.Load() != nil {
		return ErrSealed
	}
	table := make(map[reflect.Type]Binding, len(batch))
	for _, b := range batch {
		if b.Contract == nil || b.Contract.Kind() != reflect.Interface {
			return fmt.Errorf("registry: binding %s: contract must be an interface", b.Implementation)
		}
		if b.New == nil {
			return fmt.Errorf("registry: binding %s: factory required", b.Implementation)
		}
		if existing, ok := table[b.Contract]; ok {
			return fmt.Errorf("%w: %s bound to %s and %s", ErrDuplicateContract, b.Contract, existing.Implementation, b.Implementation)
		}
		table[b.Contract] = b
	}
	if !c.bindings.CompareAndSwap(nil, &table) {
		return ErrSealed
	}
	return nil
}

// Ready reports whether bindings have been published.
func (c *Container) Ready() bool {
	return c.bindings.Load() != nil
}

// Resolve builds a new instance for contract.
func (c *Container) Resolve(contract reflect.Type) (any, error) {
	table := c.bindings.Load()
	if table == nil {
		return nil, ErrNotReady
	}
	b, ok := (*table)[contract]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, contract)
	}
	instance, err := b.New()
	if err != nil {
		return nil, fmt.Errorf("registry: build %s: %w", b.Implementation, err)
	}
	if instance == nil || !reflect.TypeOf(instance).Implements(contract) {
		return nil, fmt.Errorf("registry: %s produced %T, not a %s", b.Implementation, instance, contract)
	}
	return instance, nil
}

// Bindings returns the published bindings ordered by implementation name.
func (c *Container) Bindings() []Binding {
	table := c.bindings.Load()
	if table == nil {
		return nil
	}
	out := make([]Binding, 0, len(*table))
	for _, b := range *table {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Implementation < out[j].Implementation
	})
	return out
}

// Resolve builds a new instance of contract T from c.
func Resolve[T any](c *Container) (T, error) {
	var zero T
	instance, err := c.Resolve(ContractOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("registry: resolved %T is not assignable to %s", instance, reflect.TypeFor[T]())
	}
	return typed, nil
}

package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greeterBinding(factory Factory) Binding {
	return Binding{
		Contract:       ContractOf[Greeter](),
		Implementation: "registry.greeter",
		Lifetime:       Transient,
		New:            factory,
	}
}

func TestContainerResolvesFreshInstances(t *testing.T) {
	built := 0
	c := NewContainer()
	require.NoError(t, c.Register([]Binding{greeterBinding(func() (any, error) {
		built++
		return &greeter{calls: built}, nil
	})}))

	first, err := Resolve[Greeter](c)
	require.NoError(t, err)
	second, err := Resolve[Greeter](c)
	require.NoError(t, err)

	assert.Equal(t, 2, built)
	assert.NotSame(t, first, second)
}

func TestContainerNotReadyBeforeRegister(t *testing.T) {
	c := NewContainer()
	_, err := Resolve[Greeter](c)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Nil(t, c.Bindings())
}

func TestContainerUnknownContract(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register(nil))
	_, err := Resolve[ProductService](c)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestContainerRegistersOnce(t *testing.T) {
	c := NewContainer()
	b := greeterBinding(func() (any, error) { return &greeter{}, nil })
	require.NoError(t, c.Register([]Binding{b}))
	assert.ErrorIs(t, c.Register([]Binding{b}), ErrSealed)
}

func TestContainerRejectsDuplicateBatch(t *testing.T) {
	c := NewContainer()
	b := greeterBinding(func() (any, error) { return &greeter{}, nil })
	dup := b
	dup.Implementation = "registry.altGreeter"

	err := c.Register([]Binding{b, dup})
	assert.ErrorIs(t, err, ErrDuplicateContract)
	assert.False(t, c.Ready())

	require.NoError(t, c.Register([]Binding{b}))
	require.Len(t, c.Bindings(), 1)
}

func TestContainerFactoryErrors(t *testing.T) {
	boom := errors.New("boom")
	c := NewContainer()
	require.NoError(t, c.Register([]Binding{greeterBinding(func() (any, error) { return nil, boom })}))
	_, err := Resolve[Greeter](c)
	assert.ErrorIs(t, err, boom)
}

func TestContainerRejectsWrongInstance(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register([]Binding{greeterBinding(func() (any, error) { return &orphan{}, nil })}))
	_, err := Resolve[Greeter](c)
	assert.Error(t, err)
}

func TestContainerConcurrentResolve(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register([]Binding{greeterBinding(func() (any, error) { return &greeter{}, nil })}))

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := Resolve[Greeter](c)
			if err == nil && g.Greet() != "hello" {
				err = errors.New("unexpected greeting")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

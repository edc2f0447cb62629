package registry

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Greeter interface {
	Greet() string
}

type Auditable interface {
	Audit() string
}

type ProductService interface {
	Products() []string
}

type greeter struct {
	calls int
}

func (g *greeter) Greet() string { return "hello" }

type altGreeter struct {
	calls int
}

func (g *altGreeter) Greet() string { return "hi" }

type productService struct {
	items []string
}

func (s *productService) Products() []string { return s.items }
func (s *productService) Audit() string      { return "products" }

type orphan struct {
	id int
}

func (o *orphan) Audit() string { return "orphan" }

func newGreeter() (*greeter, error)               { return &greeter{}, nil }
func newAltGreeter() (*altGreeter, error)         { return &altGreeter{}, nil }
func newProductService() (*productService, error) { return &productService{items: []string{"corn"}}, nil }
func newOrphan() (*orphan, error)                 { return &orphan{}, nil }

func testModule(candidates ...Candidate) Module {
	return Module{
		Path:       "github.com/ifarmer/ifarmer-api/internal/registry",
		Contracts:  []reflect.Type{ContractOf[Auditable](), ContractOf[Greeter](), ContractOf[ProductService]()},
		Candidates: candidates,
	}
}

func TestDiscoverSingleBinding(t *testing.T) {
	b := NewBuilder(nil, Strict)
	bindings, err := b.Discover(Manifest{testModule(Component(newGreeter))})
	require.NoError(t, err)
	require.Len(t, bindings, 1)

	assert.Equal(t, ContractOf[Greeter](), bindings[0].Contract)
	assert.Equal(t, Transient, bindings[0].Lifetime)
	assert.Equal(t, "github.com/ifarmer/ifarmer-api/internal/registry.greeter", bindings[0].Implementation)
}

func TestDiscoverPicksContractByName(t *testing.T) {
	// productService implements Auditable first in declaration order, but only
	// ProductService carries its name.
	b := NewBuilder(nil, Strict)
	bindings, err := b.Discover(Manifest{testModule(Component(newProductService))})
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, ContractOf[ProductService](), bindings[0].Contract)
}

func TestDiscoverStrictFailsWithoutContract(t *testing.T) {
	b := NewBuilder(nil, Strict)
	bindings, err := b.Discover(Manifest{testModule(Component(newGreeter), Component(newOrphan))})
	require.Error(t, err)
	assert.Nil(t, bindings)
	assert.True(t, errors.Is(err, ErrContractResolution))

	var resolutionErr *ContractResolutionError
	require.True(t, errors.As(err, &resolutionErr))
	assert.Equal(t, "github.com/ifarmer/ifarmer-api/internal/registry.orphan", resolutionErr.Candidate)
}

func TestDiscoverLenientSkipsWithoutContract(t *testing.T) {
	b := NewBuilder(nil, Lenient)
	bindings, err := b.Discover(Manifest{testModule(Component(newGreeter), Component(newOrphan))})
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, ContractOf[Greeter](), bindings[0].Contract)
}

func TestDiscoverIgnoresUnregistrableCandidates(t *testing.T) {
	abstract := Component(newGreeter)
	abstract.New = nil
	iface := Candidate{Name: "iface", Type: ContractOf[Greeter](), Component: true, New: func() (any, error) { return &greeter{}, nil }}

	b := NewBuilder(nil, Strict)
	bindings, err := b.Discover(Manifest{testModule(Describe(newOrphan), abstract, iface)})
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestDiscoverExplicitContract(t *testing.T) {
	b := NewBuilder(nil, Strict)
	bindings, err := b.Discover(Manifest{testModule(Bind[Auditable](newProductService))})
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, ContractOf[Auditable](), bindings[0].Contract)

	_, err = b.Discover(Manifest{testModule(Bind[Greeter](newProductService))})
	assert.True(t, errors.Is(err, ErrContractResolution))
}

func TestDiscoverFirstByNameWinsSharedContract(t *testing.T) {
	b := NewBuilder(nil, Strict)
	first := Module{Path: "github.com/ifarmer/ifarmer-api/b", Contracts: []reflect.Type{ContractOf[Greeter]()}, Candidates: []Candidate{Component(newGreeter)}}
	second := Module{Path: "github.com/ifarmer/ifarmer-api/a", Candidates: []Candidate{Bind[Greeter](newAltGreeter)}}

	for _, manifest := range []Manifest{{first, second}, {second, first}} {
		bindings, err := b.Discover(manifest)
		require.NoError(t, err)
		require.Len(t, bindings, 1)
		assert.Equal(t, "github.com/ifarmer/ifarmer-api/internal/registry.altGreeter", bindings[0].Implementation)
	}
}

func TestWithPrefixesFiltersModules(t *testing.T) {
	kept := Module{Path: "github.com/ifarmer/ifarmer-api/internal/accounts", Contracts: []reflect.Type{ContractOf[Greeter]()}, Candidates: []Candidate{Component(newGreeter)}}
	dropped := Module{Path: "github.com/other/vendor", Contracts: []reflect.Type{ContractOf[ProductService]()}, Candidates: []Candidate{Component(newProductService)}}

	src := WithPrefixes(Manifest{kept, dropped}, "github.com/ifarmer/", " ")
	require.Len(t, src.Modules(), 1)

	bindings, err := NewBuilder(nil, Strict).Discover(src)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, ContractOf[Greeter](), bindings[0].Contract)

	assert.Len(t, WithPrefixes(Manifest{kept, dropped}).Modules(), 2)
}

func TestDiscoverAndRegisterIsAllOrNothing(t *testing.T) {
	c := NewContainer()
	_, err := NewBuilder(nil, Strict).DiscoverAndRegister(Manifest{testModule(Component(newGreeter), Component(newOrphan))}, c)
	require.Error(t, err)
	assert.False(t, c.Ready())

	bindings, err := NewBuilder(nil, Strict).DiscoverAndRegister(Manifest{testModule(Component(newGreeter))}, c)
	require.NoError(t, err)
	assert.Len(t, bindings, 1)
	assert.True(t, c.Ready())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Strict, p)

	p, err = ParsePolicy(" Lenient ")
	require.NoError(t, err)
	assert.Equal(t, Lenient, p)

	_, err = ParsePolicy("loose")
	assert.Error(t, err)
}

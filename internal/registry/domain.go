// Package registry discovers marked component implementations from package
// manifests and binds them to the contracts they serve.
package registry

import (
	"fmt"
	"reflect"
)

// Lifetime controls how the container produces instances for a binding.
type Lifetime int

const (
	// Transient produces a new instance for every resolution.
	Transient Lifetime = iota
)

func (l Lifetime) String() string {
	switch l {
	case Transient:
		return "transient"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// Factory builds one instance of an implementation.
type Factory func() (any, error)

// Candidate describes an implementation type declared by a module.
type Candidate struct {
	// Name is the fully-qualified type name, e.g. "example.com/app/internal/accounts.accountDirectory".
	Name string
	Type reflect.Type
	// Component marks the candidate as registrable.
	Component bool
	// Contract optionally pins the interface the candidate is bound to.
	Contract reflect.Type
	New      Factory
}

// Binding is the resolved (contract, implementation, lifetime) triple.
type Binding struct {
	Contract       reflect.Type
	Implementation string
	Type           reflect.Type
	Lifetime       Lifetime
	New            Factory
}

// Module is the manifest a package exports for discovery.
type Module struct {
	Path       string
	Contracts  []reflect.Type
	Candidates []Candidate
}

// ContractOf returns the interface type T.
func ContractOf[T any]() reflect.Type {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Interface {
		panic(fmt.Sprintf("registry: %s is not an interface", t))
	}
	return t
}

// Component declares a marked candidate whose contract is inferred from its name.
func Component[T any](factory func() (T, error)) Candidate {
	c := Describe(factory)
	c.Component = true
	return c
}

// Bind declares a marked candidate explicitly bound to contract C.
func Bind[C, T any](factory func() (T, error)) Candidate {
	c := Component(factory)
	c.Contract = ContractOf[C]()
	return c
}

// Describe declares an unmarked candidate. It is visible to discovery but
// never registered.
func Describe[T any](factory func() (T, error)) Candidate {
	t := reflect.TypeFor[T]()
	c := Candidate{Name: qualifiedName(t), Type: t}
	if factory != nil {
		c.New = func() (any, error) {
			return factory()
		}
	}
	return c
}

func qualifiedName(t reflect.Type) string {
	base := baseType(t)
	if base.PkgPath() == "" {
		return base.String()
	}
	return base.PkgPath() + "." + base.Name()
}

func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func shortName(c Candidate) string {
	if c.Type != nil {
		if name := baseType(c.Type).Name(); name != "" {
			return name
		}
	}
	name := c.Name
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' || name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}

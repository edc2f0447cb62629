package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Policy decides what happens to a marked candidate without a contract.
type Policy int

const (
	// Strict aborts discovery with a ContractResolutionError.
	Strict Policy = iota
	// Lenient skips the candidate and logs a warning.
	Lenient
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, fmt.Errorf("registry: unknown policy %q", value)
	}
}

func (p Policy) String() string {
	if p == Lenient {
		return "lenient"
	}
	return "strict"
}

// Builder turns module manifests into bindings.
type Builder struct {
	logger *slog.Logger
	policy Policy
}

// NewBuilder constructs a Builder. A nil logger discards output.
func NewBuilder(logger *slog.Logger, policy Policy) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{logger: logger, policy: policy}
}

// DiscoverAndRegister runs Discover and publishes the result into c as one batch.
func (b *Builder) DiscoverAndRegister(src Source, c *Container) ([]Binding, error) {
	bindings, err := b.Discover(src)
	if err != nil {
		return nil, err
	}
	if err := c.Register(bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

// Discover filters the registrable candidates of src and resolves each to a
// single contract. Candidates are processed in fully-qualified name order so
// the result does not depend on module order.
func (b *Builder) Discover(src Source) ([]Binding, error) {
	modules := src.Modules()

	var contracts []reflect.Type
	seen := make(map[reflect.Type]struct{})
	var candidates []Candidate
	for _, m := range modules {
		for _, contract := range m.Contracts {
			if contract == nil || contract.Kind() != reflect.Interface {
				continue
			}
			if _, ok := seen[contract]; ok {
				continue
			}
			seen[contract] = struct{}{}
			contracts = append(contracts, contract)
		}
		for _, c := range m.Candidates {
			if registrable(c) {
				candidates = append(candidates, c)
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Name < candidates[j].Name
	})

	fold := cases.Fold()
	bindings := make([]Binding, 0, len(candidates))
	owners := make(map[reflect.Type]string, len(candidates))
	for _, c := range candidates {
		contract, err := resolveContract(c, contracts, fold)
		if err != nil {
			if b.policy == Lenient {
				b.logger.Warn("skip component", slog.String("candidate", c.Name), slog.Any("error", err))
				continue
			}
			return nil, err
		}
		if owner, ok := owners[contract]; ok {
			b.logger.Warn("contract already bound",
				slog.String("contract", contract.String()),
				slog.String("bound_to", owner),
				slog.String("candidate", c.Name))
			continue
		}
		owners[contract] = c.Name
		bindings = append(bindings, Binding{
			Contract:       contract,
			Implementation: c.Name,
			Type:           c.Type,
			Lifetime:       Transient,
			New:            c.New,
		})
		b.logger.Debug("component discovered",
			slog.String("contract", contract.String()),
			slog.String("implementation", c.Name))
	}
	return bindings, nil
}

func registrable(c Candidate) bool {
	if !c.Component || c.New == nil || c.Type == nil {
		return false
	}
	return c.Type.Kind() != reflect.Interface
}

func resolveContract(c Candidate, contracts []reflect.Type, fold cases.Caser) (reflect.Type, error) {
	if c.Contract != nil {
		if c.Contract.Kind() != reflect.Interface {
			return nil, &ContractResolutionError{Candidate: c.Name, Reason: fmt.Sprintf("%s is not an interface", c.Contract)}
		}
		if !c.Type.Implements(c.Contract) {
			return nil, &ContractResolutionError{Candidate: c.Name, Reason: fmt.Sprintf("does not implement %s", c.Contract)}
		}
		return c.Contract, nil
	}
	name := fold.String(shortName(c))
	for _, contract := range contracts {
		if !c.Type.Implements(contract) {
			continue
		}
		if strings.Contains(fold.String(contract.Name()), name) {
			return contract, nil
		}
	}
	return nil, &ContractResolutionError{Candidate: c.Name, Reason: "no implemented contract name contains " + shortName(c)}
}

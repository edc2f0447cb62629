package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrContractResolution is the sentinel behind ContractResolutionError.
	ErrContractResolution = errors.New("registry: contract resolution failed")
	// ErrNotRegistered indicates that no binding exists for a contract.
	ErrNotRegistered = errors.New("registry: contract not registered")
	// ErrNotReady indicates that the container has not received its bindings yet.
	ErrNotReady = errors.New("registry: container not ready")
	// ErrSealed indicates a second registration attempt.
	ErrSealed = errors.New("registry: container already registered")
	// ErrDuplicateContract indicates two bindings for one contract in a batch.
	ErrDuplicateContract = errors.New("registry: duplicate contract")
)

// ContractResolutionError reports a marked candidate without a usable contract.
type ContractResolutionError struct {
	Candidate string
	Reason    string
}

func (e *ContractResolutionError) Error() string {
	return fmt.Sprintf("registry: resolve contract for %s: %s", e.Candidate, e.Reason)
}

func (e *ContractResolutionError) Unwrap() error {
	return ErrContractResolution
}

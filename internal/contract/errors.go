package contract

import "errors"

var (
	// ErrUnknownMethod indicates no method with the requested name.
	ErrUnknownMethod = errors.New("contract: unknown method")
	// ErrNotView indicates a state-changing method was requested through View.
	ErrNotView = errors.New("contract: method is not a view")
	// ErrNotDeployed indicates a call before Deploy committed.
	ErrNotDeployed = errors.New("contract: not deployed")
	// ErrAlreadyDeployed indicates a second Deploy.
	ErrAlreadyDeployed = errors.New("contract: already deployed")
	// ErrInvalidArgs indicates arguments that failed decoding or validation.
	ErrInvalidArgs = errors.New("contract: invalid arguments")
	// ErrDeployForbidden indicates a deploy requested by an account other than the
	// contract's own.
	ErrDeployForbidden = errors.New("contract: only the contract account may deploy")
	// ErrMissingCaller indicates a call without an authenticated caller.
	ErrMissingCaller = errors.New("contract: caller required")
)

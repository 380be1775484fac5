package tablet

import "github.com/pkg/errors"

var (
	// ErrIllegalState is returned by submissions outside the RUNNING state.
	ErrIllegalState = errors.New("tablet peer is not in RUNNING state")

	// ErrPrecondition is returned by Init when a required input is missing.
	ErrPrecondition = errors.New("tablet peer precondition failed")

	// ErrAbortedByShutdown marks transactions discarded because the peer
	// began shutting down before they replicated.
	ErrAbortedByShutdown = errors.New("transaction aborted by tablet shutdown")
)

// Package taskerr defines the closed error taxonomy surfaced by the
// scheduling core to its callers.
package taskerr

import (
	"github.com/cockroachdb/errors"
)

// Re-exported so callers don't need to import cockroachdb/errors directly
// for wrapping and inspection.
var (
	New    = errors.New
	Newf   = errors.Newf
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// Sentinel errors forming the closed taxonomy from spec §7. Every error the
// core surfaces to a caller either is one of these, or wraps one of these.
var (
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrAlreadyExists         = errors.New("already exists")
	ErrNotFound              = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidSpec           = errors.New("invalid spec")
	ErrCycleDetected         = errors.New("cycle detected")
	ErrTimedOut              = errors.New("timed out")
	ErrQueueFull             = errors.New("queue full")
	ErrNoSuchQueue           = errors.New("no such queue")
	ErrChannelUnavailable    = errors.New("channel unavailable")
	ErrTransientUpstream     = errors.New("transient upstream error")
	ErrPermanentUpstream     = errors.New("permanent upstream error")
)

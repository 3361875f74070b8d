// pkg/syncerr/syncerr.go

// Package syncerr defines the error kinds the synchronization engine
// distinguishes between. Handlers classify with the Is helpers rather than
// matching on message text, so wrapping with cockroachdb/errors is safe
// anywhere in the call chain.
package syncerr

import (
	cerr "github.com/cockroachdb/errors"
)

var (
	// ErrNotFound marks a referenced local entity that was absent when a
	// handler expected it to exist.
	ErrNotFound = cerr.New("entity not found")

	// ErrRemoteUnavailable marks a transport-level failure talking to the
	// remote system (dial, timeout, connection reset).
	ErrRemoteUnavailable = cerr.New("remote unavailable")

	// ErrRemoteRejected marks a non-2xx, non-404 response from the remote
	// system.
	ErrRemoteRejected = cerr.New("remote rejected request")

	// ErrUnsupportedOperation marks an operation the remote contract cannot
	// express, such as creating a single item inside an existing list.
	// Callers log it at warn level; the entity stays local-only.
	ErrUnsupportedOperation = cerr.New("operation unsupported by remote contract")

	// ErrInternal marks a state the engine cannot reconcile on its own, e.g.
	// an item still unsynced after its owning list was pushed.
	ErrInternal = cerr.New("internal sync error")
)

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...interface{}) error {
	return cerr.Wrapf(ErrNotFound, format, args...)
}

func IsNotFound(err error) bool          { return cerr.Is(err, ErrNotFound) }
func IsRemoteUnavailable(err error) bool { return cerr.Is(err, ErrRemoteUnavailable) }
func IsRemoteRejected(err error) bool    { return cerr.Is(err, ErrRemoteRejected) }
func IsUnsupported(err error) bool       { return cerr.Is(err, ErrUnsupportedOperation) }

// IsRemote reports whether the error originated in the remote system,
// transport or response alike.
func IsRemote(err error) bool {
	return cerr.Is(err, ErrRemoteUnavailable) || cerr.Is(err, ErrRemoteRejected)
}

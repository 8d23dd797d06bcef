// Package cmn holds the ambient stack shared by every kernel component:
// config, sentinel errors, and small cross-cutting constants -- the same
// role the teacher's cmn package plays for aistore.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error codes from spec.md §6.
var (
	ErrPending       = errors.New("pending")
	ErrBusy          = errors.New("busy")
	ErrNoMemory      = errors.New("out of memory")
	ErrNotPermitted  = errors.New("not permitted")
	ErrGuidExists    = errors.New("guid exists")
	ErrNoMessage     = errors.New("no message")
	ErrPollMore      = errors.New("poll more")
	ErrInval         = errors.New("invalid argument")
	ErrNotSupported  = errors.New("not supported")
	ErrQuiesceTimeout = errors.New("quiesce timeout")
)

// NewErrAborted wraps cause with the name of the entity that aborted and a
// short reason, following the teacher's cmn.NewErrAborted constructor.
func NewErrAborted(name, reason string, cause error) error {
	if cause == nil {
		return errors.Errorf("%s: aborted, %s", name, reason)
	}
	return errors.Wrapf(cause, "%s: aborted, %s", name, reason)
}

// NewErrXactUsePrev reports that a newly-requested EDT/xaction-like entity
// collided with one already in flight and must reuse it (teacher:
// cmn.NewErrXactUsePrev, used verbatim for the same WORK_CREATE collision
// shape described in spec.md §4.5 "WhenPrevIsRunning").
func NewErrXactUsePrev(name string) error {
	return errors.Errorf("%s: already running, use previous", name)
}

// NewErrNotFound renders a standard "X not found: Y" message, used by the
// GUID layer and dispatcher alike.
func NewErrNotFound(what string, id any) error {
	return errors.Errorf("%s not found: %v", what, id)
}

const FmtErrUnknown = "unknown %s: %q"

func NewErrUnknown(kind, name string) error {
	return fmt.Errorf(FmtErrUnknown, kind, name)
}

// Cause unwraps to the deepest pkg/errors cause, used when a dispatcher
// logs a cross-PD error locally but still needs the original root (spec.md
// §7 "cross-PD errors are carried in the response's returnDetail field").
func Cause(err error) error { return errors.Cause(err) }

/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package msgbus

import "github.com/pkg/errors"

var (
	errInvalidSize    = errors.New("msgbus: usefulSize exceeds bufferSize")
	errTooLarge       = errors.New("msgbus: payload exceeds platform max")
	errMixedStyle     = errors.New("msgbus: classic and MT styles must not be mixed for the same message instance")
	errNoCapacity     = errors.New("msgbus: buffer too small for APPEND mode")
	errUnknownCorrelation = errors.New("msgbus: response correlates to no pending request")
)

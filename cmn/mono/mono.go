// Package mono provides monotonic-clock helpers for idle/quiescence timing,
// modelled on the teacher's cmn/mono package. No other package in this
// repository imports it.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since process start -- cheaper to
// store in an atomic.Int64 than a wall-clock timestamp, and immune to
// clock adjustments.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the monotonic duration elapsed since a NanoTime() reading.
// A zero ts means "never recorded": duration is reported as elapsed-since-start.
func Since(ts int64) time.Duration {
	return time.Duration(NanoTime() - ts)
}

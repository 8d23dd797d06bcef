//go:build debug

// Package debug provides assertions compiled in only under the "debug" build
// tag, mirroring the teacher's cmn/debug package: zero cost in release builds.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package debug

import "fmt"

const Enabled = true

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
	}
}

// Func runs f only in debug builds; used for checks too expensive to pay for
// on every call in production (e.g. walking a list to validate an invariant).
func Func(f func()) { f() }

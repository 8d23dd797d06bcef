//go:build !debug

/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package debug

const Enabled = false

func Assert(bool, ...any)          {}
func Assertf(bool, string, ...any) {}
func AssertNoErr(error)            {}
func Func(func())                  {}

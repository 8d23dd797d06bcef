// Package nlog is a minimal leveled logger used throughout the runtime.
/*
 * Copyright (c) 2024, OCR-CORE contributors.
 */
package nlog

import (
	"log"
	"os"
	"sync/atomic"
)

// verbosity, set once at bring-up (RL_CONFIG_PARSE) and read lock-free elsewhere.
var verbosity int32

var std = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)

func SetVerbosity(v int) { atomic.StoreInt32(&verbosity, int32(v)) }
func Verbosity() int     { return int(atomic.LoadInt32(&verbosity)) }

func Infoln(v ...any)             { std.Println(append([]any{"I:"}, v...)...) }
func Infof(f string, v ...any)     { std.Printf("I: "+f+"\n", v...) }
func Warningln(v ...any)          { std.Println(append([]any{"W:"}, v...)...) }
func Warningf(f string, v ...any)  { std.Printf("W: "+f+"\n", v...) }
func Errorln(v ...any)            { std.Println(append([]any{"E:"}, v...)...) }
func Errorf(f string, v ...any)    { std.Printf("E: "+f+"\n", v...) }

// Fatalln logs and terminates the process. Reserved for internal invariant
// violations (§7 "Internal invariant violation" — assertion, no recovery).
func Fatalln(v ...any) { std.Println(append([]any{"F:"}, v...)...); os.Exit(1) }

// FastV reports whether logging at level should proceed for module. Modules
// are free-form strings (e.g. SmoduleGUID, SmoduleSched); cheap to call on
// hot paths since it's a single atomic load plus an int compare.
func FastV(level int, _ string) bool { return Verbosity() >= level }

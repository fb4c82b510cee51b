// log/stack.go
// Copyright(c) 2022-2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package log

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const modulePrefix = "github.com/mmp/seba/"

type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) String() string {
	return f.File + ":" + strconv.Itoa(f.Line) + ":" + f.Function
}

// Stack is a call stack, innermost frame first.
type Stack []StackFrame

// LogValue logs the stack as a list of "file:line:function" strings.
func (s Stack) LogValue() slog.Value {
	fr := make([]string, len(s))
	for i, f := range s {
		fr[i] = f.String()
	}
	return slog.AnyValue(fr)
}

// Callstack returns the calling goroutine's stack. Frames of the Logger
// methods are skipped, so the stack starts where the message was logged,
// and it ends before the frames that started the goroutine. fr is reused
// if it has enough capacity.
func Callstack(fr []StackFrame) Stack {
	var callers [32]uintptr
	n := runtime.Callers(2, callers[:])
	frames := runtime.CallersFrames(callers[:n])

	fr = fr[:0]
	for {
		frame, more := frames.Next()
		if strings.HasPrefix(frame.Function, modulePrefix+"log.(*Logger).") {
			if !more {
				break
			}
			continue
		}
		if frame.Function == "runtime.goexit" || frame.Function == "testing.tRunner" {
			break
		}

		fn := strings.TrimPrefix(frame.Function, modulePrefix)
		fr = append(fr, StackFrame{
			File:     filepath.Base(frame.File),
			Line:     frame.Line,
			Function: strings.TrimPrefix(fn, "main."),
		})

		if !more || frame.Function == "main.main" {
			break
		}
	}
	return fr
}

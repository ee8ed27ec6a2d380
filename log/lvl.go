// Package log provides a small level-based logger used throughout this
// repository. It is deliberately simpler than the standard library's
// log package: every call site picks a numeric debug level, and only
// levels at or below the globally configured threshold are printed.
package log

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	lvlWarning = iota - 20
	lvlError
	lvlFatal
	lvlPanic
	lvlInfo
	lvlPrint
)

// NamePadding is a padding width for the caller's function name. The
// output path does not read it: writeLine pads the "file:line" caller
// column to a fixed 10 characters.
var NamePadding = 40

// LinePadding is a padding width for the caller's line number. Like
// NamePadding, it is not read by writeLine.
var LinePadding = 3

var debugMut sync.RWMutex
var debugVisible = 1

// SetDebugVisible sets the global debug level. Calls at a level higher
// than this are discarded.
func SetDebugVisible(lvl int) {
	debugMut.Lock()
	defer debugMut.Unlock()
	debugVisible = lvl
}

// DebugVisible returns the current global debug level.
func DebugVisible() int {
	debugMut.RLock()
	defer debugMut.RUnlock()
	return debugVisible
}

func lvl(level, skip int, args ...interface{}) {
	if level > DebugVisible() {
		return
	}
	msg := fmt.Sprint(args...)
	caller := callerInfo(skip)
	writeLine(level, caller, msg)
}

func callerInfo(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	short := file
	if i := strings.LastIndex(file, "/"); i >= 0 {
		short = file[i+1:]
	}
	return short + ":" + strconv.Itoa(line)
}

// Lvl1 logs at debug level 1 (always shown by default).
func Lvl1(args ...interface{}) { lvl(1, 3, args...) }

// Lvl2 logs at debug level 2.
func Lvl2(args ...interface{}) { lvl(2, 3, args...) }

// Lvl3 logs at debug level 3.
func Lvl3(args ...interface{}) { lvl(3, 3, args...) }

// Lvl4 logs at debug level 4.
func Lvl4(args ...interface{}) { lvl(4, 3, args...) }

// Lvl5 logs at debug level 5 (most verbose).
func Lvl5(args ...interface{}) { lvl(5, 3, args...) }

// Lvlf1 is Lvl1 with a format string.
func Lvlf1(f string, args ...interface{}) { lvl(1, 3, fmt.Sprintf(f, args...)) }

// Lvlf2 is Lvl2 with a format string.
func Lvlf2(f string, args ...interface{}) { lvl(2, 3, fmt.Sprintf(f, args...)) }

// Lvlf3 is Lvl3 with a format string.
func Lvlf3(f string, args ...interface{}) { lvl(3, 3, fmt.Sprintf(f, args...)) }

var stdOut = os.Stdout
var stdErr = os.Stderr

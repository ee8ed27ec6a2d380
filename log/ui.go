package log

import (
	"fmt"
	"os"

	ct "github.com/daviddengcn/go-colortext"
)

func writeLine(level int, caller, msg string) {
	var color ct.Color
	bright := false
	out := stdOut
	switch level {
	case lvlPrint, lvlInfo:
		color, bright = ct.White, true
	case lvlWarning:
		color, bright = ct.Green, true
		out = stdErr
	case lvlError:
		color = ct.Red
		out = stdErr
	case lvlFatal, lvlPanic:
		color, bright = ct.Red, true
		out = stdErr
	default:
		colors := []ct.Color{ct.Yellow, ct.Cyan, ct.Green, ct.Blue, ct.Cyan}
		if level >= 1 && level <= len(colors) {
			color, bright = colors[level-1], false
		}
	}
	ct.ChangeColor(color, bright, ct.None, false)
	fmt.Fprintf(out, "%-10s %s\n", caller, msg)
	ct.ResetColor()
}

// Info prints an informational message regardless of the debug level.
func Info(args ...interface{}) { lvl(lvlInfo, 3, args...) }

// Infof is Info with a format string.
func Infof(f string, args ...interface{}) { lvl(lvlInfo, 3, fmt.Sprintf(f, args...)) }

// Print writes its arguments unconditionally.
func Print(args ...interface{}) { lvl(lvlPrint, 3, args...) }

// Warn prints a warning message.
func Warn(args ...interface{}) { lvl(lvlWarning, 3, args...) }

// Warnf is Warn with a format string.
func Warnf(f string, args ...interface{}) { lvl(lvlWarning, 3, fmt.Sprintf(f, args...)) }

// Error prints an error message.
func Error(args ...interface{}) { lvl(lvlError, 3, args...) }

// Errorf is Error with a format string.
func Errorf(f string, args ...interface{}) { lvl(lvlError, 3, fmt.Sprintf(f, args...)) }

// Fatal prints a fatal message and exits the process.
func Fatal(args ...interface{}) {
	lvl(lvlFatal, 3, args...)
	os.Exit(1)
}

// Fatalf is Fatal with a format string.
func Fatalf(f string, args ...interface{}) {
	lvl(lvlFatal, 3, fmt.Sprintf(f, args...))
	os.Exit(1)
}

// ErrFatal calls Fatal if err is non-nil.
func ErrFatal(err error, args ...interface{}) {
	if err != nil {
		lvl(lvlFatal, 3, append([]interface{}{err.Error() + " "}, args...)...)
		os.Exit(1)
	}
}

// Panic prints a panic message and panics with it.
func Panic(args ...interface{}) {
	lvl(lvlPanic, 3, args...)
	panic(fmt.Sprint(args...))
}

package core

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
)

// Sequences restoring a terminal left in raw alternate-screen mode
var emergencySequences = [][]byte{
	[]byte("\x1b[?1003l"), // mouse motion off
	[]byte("\x1b[?1002l"), // mouse drag off
	[]byte("\x1b[?1000l"), // mouse click off
	[]byte("\x1b[?1006l"), // SGR mouse off
	[]byte("\x1b[?25h"),   // cursor show
	[]byte("\x1b[?1049l"), // alt screen exit
	[]byte("\x1b[0m"),
	[]byte("\x1b[?7h"), // auto wrap on
}

var (
	resetMu sync.Mutex
	reset   func()

	// Swapped by tests
	crashOutput io.Writer = os.Stderr
	exit                  = os.Exit
)

// SetReset registers the terminal teardown run before a crash report, usually screen.Fini
// A nil fn restores the escape-sequence fallback
func SetReset(fn func()) {
	resetMu.Lock()
	reset = fn
	resetMu.Unlock()
}

// EmergencyReset writes the terminal restore sequences to w
func EmergencyReset(w io.Writer) {
	for _, seq := range emergencySequences {
		w.Write(seq)
	}
	if f, ok := w.(*os.File); ok {
		f.Sync()
	}
}

// HandleCrash resets the terminal, prints the panic value with its stack and exits
func HandleCrash(r any) {
	if r == nil {
		return
	}

	resetMu.Lock()
	fn := reset
	resetMu.Unlock()
	if fn != nil {
		fn()
	} else {
		EmergencyReset(os.Stdout)
	}

	fmt.Fprintf(crashOutput, "\r\n\x1b[31mCRASH DETECTED: %v\x1b[0m\r\n", r)
	fmt.Fprintf(crashOutput, "Stack Trace:\r\n%s\r\n", debug.Stack())

	exit(1)
}

// Go runs fn in a new goroutine with panic recovery
// Use this instead of the 'go' keyword to ensure terminal cleanup on crash
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				HandleCrash(r)
			}
		}()
		fn()
	}()
}

// Guard wraps an errgroup task with the same panic recovery as Go
func Guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				HandleCrash(r)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}
}

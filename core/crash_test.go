package core

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

// captureCrash swaps the exit and output hooks for the duration of a test
func captureCrash(t *testing.T) (*bytes.Buffer, *int) {
	t.Helper()
	var buf bytes.Buffer
	code := -1
	prevOut, prevExit := crashOutput, exit
	crashOutput = &buf
	exit = func(c int) { code = c }
	t.Cleanup(func() {
		crashOutput, exit = prevOut, prevExit
		SetReset(nil)
	})
	return &buf, &code
}

func TestHandleCrashRunsReset(t *testing.T) {
	buf, code := captureCrash(t)
	reset := false
	SetReset(func() { reset = true })

	HandleCrash("boom")

	if !reset {
		t.Error("reset hook not called")
	}
	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
	if !strings.Contains(buf.String(), "CRASH DETECTED: boom") {
		t.Errorf("crash output = %q", buf.String())
	}
}

func TestHandleCrashNil(t *testing.T) {
	_, code := captureCrash(t)
	HandleCrash(nil)
	if *code != -1 {
		t.Error("nil panic value triggered exit")
	}
}

func TestGuard(t *testing.T) {
	_, code := captureCrash(t)
	SetReset(func() {})

	want := errors.New("plain")
	if err := Guard(func() error { return want })(); !errors.Is(err, want) {
		t.Errorf("Guard passthrough err = %v", err)
	}

	err := Guard(func() error { panic("kaput") })()
	if err == nil || !strings.Contains(err.Error(), "kaput") {
		t.Errorf("Guard panic err = %v", err)
	}
	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
}

func TestGoRecovers(t *testing.T) {
	captureCrash(t)
	var wg sync.WaitGroup
	wg.Add(1)
	SetReset(func() {})
	exit = func(int) { wg.Done() }

	Go(func() { panic("async") })
	wg.Wait()
}

func TestEmergencyReset(t *testing.T) {
	var buf bytes.Buffer
	EmergencyReset(&buf)
	if !strings.Contains(buf.String(), "\x1b[?1049l") || !strings.Contains(buf.String(), "\x1b[?25h") {
		t.Errorf("reset sequences missing: %q", buf.String())
	}
}

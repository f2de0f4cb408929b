package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

const (
	logDir      = "logs"
	logFileName = "barrager.log"
	maxLogSize  = 10 * 1024 * 1024

	// debugVerbosity enables admission and release traces
	debugVerbosity = 2
)

// setupLogging routes all logging to logs/barrager.log when debug is set, and discards it otherwise
// Nothing may reach stdout or stderr while the screen is in raw mode
func setupLogging(debug bool) (logr.Logger, *os.File) {
	if !debug {
		log.SetOutput(io.Discard)
		return logr.Discard(), nil
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.SetOutput(io.Discard)
		return logr.Discard(), nil
	}

	path := filepath.Join(logDir, logFileName)
	if info, err := os.Stat(path); err == nil && info.Size() > maxLogSize {
		rotated := filepath.Join(logDir, fmt.Sprintf("barrager-%s.log", time.Now().Format("20060102-150405")))
		os.Rename(path, rotated)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.SetOutput(io.Discard)
		return logr.Discard(), nil
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var mu sync.Mutex
	sink := func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		if prefix != "" {
			fmt.Fprintf(f, "%s %s %s\n", time.Now().Format(time.StampMicro), prefix, args)
			return
		}
		fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.StampMicro), args)
	}
	return funcr.New(sink, funcr.Options{Verbosity: debugVerbosity}), f
}

// Package feed turns lines appended to a file into fragment pushes
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// highPrefix marks a line as high priority; the prefix is not displayed
const highPrefix = "!"

// Line is one fragment worth of content read from the feed
type Line struct {
	Text string
	High bool
}

// ParseLine strips line endings and the priority prefix
// Blank lines yield false
func ParseLine(s string) (Line, bool) {
	s = strings.TrimRight(s, "\r\n")
	high := strings.HasPrefix(s, highPrefix)
	if high {
		s = strings.TrimPrefix(s, highPrefix)
	}
	if strings.TrimSpace(s) == "" {
		return Line{}, false
	}
	return Line{Text: s, High: high}, true
}

// Tail follows a file and emits each complete line appended to it
// Truncation and replacement restart reading from the beginning of the new content
type Tail struct {
	path      string
	fromStart bool
	log       logr.Logger

	offset  int64
	partial []byte
}

// NewTail creates a follower for path
// With fromStart false, content present before Run is skipped
func NewTail(path string, fromStart bool, log logr.Logger) *Tail {
	return &Tail{
		path:      filepath.Clean(path),
		fromStart: fromStart,
		log:       log.WithName("feed").WithValues("path", path),
	}
}

// Run blocks until ctx is done, calling emit from its own goroutine
func (t *Tail) Run(ctx context.Context, emit func(Line)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("feed watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so the file may be created or replaced later
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("watch %q: %w", filepath.Dir(t.path), err)
	}

	if fi, err := os.Stat(t.path); err == nil && !t.fromStart {
		t.offset = fi.Size()
	}
	if err := t.readNew(emit); err != nil {
		t.log.Error(err, "initial read failed")
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != t.path {
				continue
			}
			t.log.V(2).Info("feed event", "op", ev.Op.String())

			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				t.reset()
			case ev.Op&fsnotify.Create != 0:
				t.reset()
				fallthrough
			case ev.Op&fsnotify.Write != 0:
				if err := t.readNew(emit); err != nil {
					t.log.Error(err, "read failed")
				}
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			t.log.Error(err, "feed watcher failed")

		case <-ctx.Done():
			return nil
		}
	}
}

func (t *Tail) reset() {
	t.offset = 0
	t.partial = t.partial[:0]
}

// readNew emits every complete line between the saved offset and EOF
func (t *Tail) readNew(emit func(Line)) error {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() < t.offset {
		t.log.V(1).Info("feed truncated", "size", fi.Size(), "offset", t.offset)
		t.reset()
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if line, ok := ParseLine(string(buf[:i])); ok {
			emit(line)
		}
		buf = buf[i+1:]
	}
	t.partial = append(t.partial[:0:0], buf...)
	return nil
}

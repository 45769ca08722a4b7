// Package persistence implements the append-only write-ahead log used to make
// the in-memory record store durable.
package persistence

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// MaxEntrySize bounds a single log line. Artwork payloads can be large.
const MaxEntrySize = 32 << 20

// logFile is the subset of *os.File the WAL writes through.
type logFile interface {
	io.WriteCloser
	Sync() error
	Truncate(size int64) error
}

// WAL appends JSON entries, one per line, and fsyncs after every write.
type WAL struct {
	mu   sync.Mutex
	path string
	file logFile
	size int64 // end of the last complete line
}

// NewWAL opens (or creates) the log at path for appending.
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &WAL{
		path: path,
		file: file,
		size: info.Size(),
	}, nil
}

// Append writes entry as a single JSON line and syncs it to disk.
// A failed write or sync is cut off again so the next entry starts on a
// clean line.
func (w *WAL) Append(entry any) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if len(data) >= MaxEntrySize {
		return fmt.Errorf("wal entry of %d bytes exceeds limit", len(data))
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(data); err != nil {
		return w.rollback(err)
	}
	if err := w.file.Sync(); err != nil {
		return w.rollback(err)
	}
	w.size += int64(len(data))
	return nil
}

func (w *WAL) rollback(cause error) error {
	if err := w.file.Truncate(w.size); err != nil {
		return errors.Join(cause, fmt.Errorf("truncate wal to %d: %w", w.size, err))
	}
	return cause
}

// Path returns the file backing the log.
func (w *WAL) Path() string { return w.path }

// Close closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Replay calls applyFunc for every line in the log at path.
// A missing log is treated as empty.
//
// Every line but the last is newline terminated by Append. An unterminated
// last line is the tail of an interrupted write: when applyFunc rejects it the
// file is truncated to the last complete line, otherwise the missing newline
// is written. A bad line anywhere else fails the replay.
func Replay(path string, applyFunc func(entry []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	end, tail, err := replayLines(file, path, applyFunc)
	file.Close()
	if err != nil {
		return err
	}

	switch tail {
	case tailTorn:
		if err := os.Truncate(path, end); err != nil {
			return fmt.Errorf("truncate torn wal tail: %w", err)
		}
	case tailApplied:
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		if _, err := f.Write([]byte{'\n'}); err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}

type tailState int

const (
	tailNone tailState = iota
	tailApplied
	tailTorn
)

// replayLines returns the offset just past the last complete line and what
// was found after it.
func replayLines(r io.Reader, path string, applyFunc func(entry []byte) error) (int64, tailState, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var end int64
	line := 0
	for {
		b, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return 0, tailNone, err
		}
		if len(b) == 0 {
			return end, tailNone, nil
		}
		line++

		if b[len(b)-1] != '\n' {
			if applyFunc(b) != nil {
				return end, tailTorn, nil
			}
			return end, tailApplied, nil
		}

		entry := bytes.TrimSuffix(b, []byte{'\n'})
		if len(entry) > MaxEntrySize {
			return 0, tailNone, fmt.Errorf("wal %s line %d: entry exceeds %d bytes", path, line, MaxEntrySize)
		}
		if len(entry) > 0 {
			if err := applyFunc(entry); err != nil {
				return 0, tailNone, fmt.Errorf("wal %s line %d: %w", path, line, err)
			}
		}
		end += int64(len(b))
	}
}

package obslog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/xerrors"
)

// RotatingFile is an io.Writer over a single log file that truncates
// itself once it exceeds maxSize, keeping only the most recent tenth of
// the file. Adapted from the teacher's daemon.TruncateLogFile, which ran
// the same check out-of-band between daemon restarts; here the check runs
// inline on every Write so a long-lived server session self-limits too.
type RotatingFile struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	maxSize int64
}

func NewRotatingFile(path string, maxSize int64) (*RotatingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, xerrors.Errorf("obslog: open log file: %w", err)
	}
	return &RotatingFile{f: f, path: path, maxSize: maxSize}, nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.f.Write(p)
	if err != nil {
		return n, err
	}
	if stat, statErr := r.f.Stat(); statErr == nil && stat.Size() > r.maxSize {
		if rotErr := r.truncateLocked(stat.Size()); rotErr != nil {
			return n, rotErr
		}
	}
	return n, nil
}

// truncateLocked keeps the last tenth of the file, matching the teacher's
// TruncateLogFile behavior, and reopens the handle positioned for append.
func (r *RotatingFile) truncateLocked(size int64) error {
	keepSize := r.maxSize / 10

	if _, err := r.f.Seek(size-keepSize, io.SeekStart); err != nil {
		return xerrors.Errorf("obslog: seek for rotation: %w", err)
	}
	remaining := make([]byte, keepSize)
	n, err := r.f.Read(remaining)
	if err != nil && err != io.EOF {
		return xerrors.Errorf("obslog: read tail for rotation: %w", err)
	}

	header := fmt.Sprintf("=== log truncated at %s ===\n", time.Now().UTC().Format(time.RFC3339))
	content := append([]byte(header), remaining[:n]...)

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return xerrors.Errorf("obslog: write rotated file: %w", err)
	}
	if err := r.f.Close(); err != nil {
		return xerrors.Errorf("obslog: close before rotation swap: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return xerrors.Errorf("obslog: swap rotated file: %w", err)
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Errorf("obslog: reopen after rotation: %w", err)
	}
	r.f = f
	return nil
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

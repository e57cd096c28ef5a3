// Package sink provides [audio.Sink] implementations for hosts without a
// sound card: one writes every reply to a WAV file, one only logs it.
package sink

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/wav"
)

// ─── Dir ──────────────────────────────────────────────────────────────────────

// Dir writes each played buffer to its own WAV file in a directory. File
// names are "<prefix>-<UTC timestamp>-<n>.wav".
type Dir struct {
	dir    string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	written []string
	n       int
}

var _ audio.Sink = (*Dir)(nil)

// DirOption is a functional option for [NewDir].
type DirOption func(*Dir)

// WithPrefix sets the file name prefix. Default "reply".
func WithPrefix(p string) DirOption {
	return func(d *Dir) { d.prefix = p }
}

// NewDir returns a sink writing into dir, creating it if needed.
func NewDir(dir string, opts ...DirOption) (*Dir, error) {
	if dir == "" {
		return nil, errors.New("sink: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", dir, err)
	}
	d := &Dir{dir: dir, prefix: "reply", now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Play implements [audio.Sink]. Write errors are logged; the buffer is
// dropped.
func (d *Dir) Play(b audio.SampleBuffer) {
	d.mu.Lock()
	d.n++
	name := fmt.Sprintf("%s-%s-%d.wav", d.prefix, d.now().UTC().Format("20060102T150405"), d.n)
	d.mu.Unlock()

	path := filepath.Join(d.dir, name)
	if err := os.WriteFile(path, wav.Encode(b), 0o644); err != nil {
		slog.Warn("sink: write reply", "path", path, "error", err)
		return
	}
	slog.Info("reply written", "path", path, "duration", b.Duration(), "format", b.Format())

	d.mu.Lock()
	d.written = append(d.written, path)
	d.mu.Unlock()
}

// Written returns the paths of all files written so far, oldest first.
func (d *Dir) Written() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.written...)
}

// ─── Log ──────────────────────────────────────────────────────────────────────

// Log discards audio after logging its format and length.
type Log struct {
	Logger *slog.Logger // nil uses slog.Default()
}

var _ audio.Sink = Log{}

// Play implements [audio.Sink].
func (l Log) Play(b audio.SampleBuffer) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("reply ready", "duration", b.Duration(), "format", b.Format(), "samples", len(b.Samples))
}

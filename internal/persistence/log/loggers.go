package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"lodestar.gg/internal/sim/world"
)

// ErrClosed is returned by Append once the journal is closed.
var ErrClosed = errors.New("log: journal closed")

const hourLayout = "2006-01-02-15"

// Journal appends entries of one type as JSON lines to hourly zstd
// segments named <prefix>-YYYY-MM-DD-HH.jsonl.zst under dir.
//
// An entry goes to the segment of the hour stamp returns for it, or of the
// current hour when stamp is nil or returns the zero time. Reopening a
// segment appends a new zstd frame, which readers decode as one stream.
type Journal[T any] struct {
	dir    string
	prefix string
	stamp  func(T) time.Time
	now    func() time.Time

	mu     sync.Mutex
	closed bool
	seg    *segment
}

func NewJournal[T any](dir, prefix string, stamp func(T) time.Time) *Journal[T] {
	return &Journal[T]{dir: dir, prefix: prefix, stamp: stamp, now: time.Now}
}

func (j *Journal[T]) Append(e T) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("log: encode %s entry: %w", j.prefix, err)
	}
	hour := j.hourOf(e)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if j.seg == nil || j.seg.hour != hour {
		if err := j.switchLocked(hour); err != nil {
			return err
		}
	}
	return j.seg.append(line)
}

// Close flushes the open segment. Later appends fail with ErrClosed.
func (j *Journal[T]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.seg == nil {
		return nil
	}
	err := j.seg.close()
	j.seg = nil
	return err
}

func (j *Journal[T]) hourOf(e T) string {
	t := j.now()
	if j.stamp != nil {
		if ts := j.stamp(e); !ts.IsZero() {
			t = ts
		}
	}
	return t.UTC().Format(hourLayout)
}

func (j *Journal[T]) switchLocked(hour string) error {
	if j.seg != nil {
		err := j.seg.close()
		j.seg = nil
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	seg, err := openSegment(segmentPath(j.dir, j.prefix, hour), hour)
	if err != nil {
		return err
	}
	j.seg = seg
	return nil
}

func segmentPath(dir, prefix, hour string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl.zst", prefix, hour))
}

// segment is one open hourly file.
type segment struct {
	hour string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
}

func openSegment(path, hour string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, f: f, enc: enc, buf: bufio.NewWriterSize(enc, 32*1024)}, nil
}

func (s *segment) append(line []byte) error {
	if _, err := s.buf.Write(line); err != nil {
		return err
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return err
	}
	return s.buf.Flush()
}

func (s *segment) close() error {
	err := s.buf.Flush()
	if cerr := s.enc.Close(); err == nil {
		err = cerr
	}
	if ferr := s.f.Close(); err == nil {
		err = ferr
	}
	return err
}

// Files lists the journal files written with prefix under dir, oldest
// first.
func Files(dir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadJSONL decodes every line of a zstd JSONL file into a new T.
func ReadJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	return decodeLines(dec, fn)
}

func decodeLines[T any](r io.Reader, fn func(T) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return fmt.Errorf("jsonl: %w", err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return sc.Err()
}

// TickLogger writes one entry per eventful tick.
type TickLogger struct {
	*Journal[world.TickLogEntry]
}

func NewTickLogger(dataDir string) *TickLogger {
	return &TickLogger{NewJournal[world.TickLogEntry](EventsDir(dataDir), "events", nil)}
}

func EventsDir(dataDir string) string { return filepath.Join(dataDir, "events") }

func (l *TickLogger) WriteTick(e world.TickLogEntry) error { return l.Append(e) }

// AuditLogger writes login, reject and logout entries, filed under the
// hour of each entry's own time.
type AuditLogger struct {
	*Journal[world.AuditEntry]
}

func NewAuditLogger(dataDir string) *AuditLogger {
	stamp := func(e world.AuditEntry) time.Time { return e.Time }
	return &AuditLogger{NewJournal(AuditDir(dataDir), "audit", stamp)}
}

func AuditDir(dataDir string) string { return filepath.Join(dataDir, "audit") }

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error { return l.Append(e) }

package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/rzbill/flr/internal/chunk"
	"github.com/rzbill/flr/pkg/log"
)

// Extension is the file suffix of chunk files.
const Extension = ".flr"

const (
	headerCacheExpiration = 10 * time.Minute
	headerCacheCleanup    = 5 * time.Minute
)

// Options configures a Dir.
type Options struct {
	// Path is the directory holding chunk files.
	Path string
	// Fixed marks a directory chosen by the user rather than the live
	// repository of a running producer.
	Fixed bool
	// PollInterval is how often the directory is rescanned. Zero disables the
	// background poller; Scan must then be called explicitly.
	PollInterval time.Duration
	// BlockSize is the reader block size used for header reads.
	BlockSize int
	Logger    log.Logger
}

// Dir is a Repository over a directory of chunk files, one chunk per file.
type Dir struct {
	opts    Options
	logger  log.Logger
	headers *cache.Cache

	mu       sync.Mutex
	chunks   []ChunkFile
	notifyCh chan struct{}

	stopPoll chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

var _ Repository = (*Dir)(nil)

// Open scans path once and, when PollInterval is set, starts polling it.
func Open(opts Options) (*Dir, error) {
	if opts.Path == "" {
		return nil, errors.New("repository: Options.Path is required")
	}
	info, err := os.Stat(opts.Path)
	if err != nil {
		return nil, errors.Wrap(err, "repository: stat")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("repository: %s is not a directory", opts.Path)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	d := &Dir{
		opts:     opts,
		logger:   logger.WithComponent("repository").With(log.Str("path", opts.Path)),
		headers:  cache.New(headerCacheExpiration, headerCacheCleanup),
		notifyCh: make(chan struct{}),
		stopPoll: make(chan struct{}),
	}
	if _, err := d.Scan(); err != nil {
		return nil, err
	}
	if opts.PollInterval > 0 {
		d.wg.Add(1)
		go d.poll()
	}
	return d, nil
}

func (d *Dir) poll() {
	defer d.wg.Done()
	t := time.NewTicker(d.opts.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-d.stopPoll:
			return
		case <-t.C:
			if _, err := d.Scan(); err != nil {
				d.logger.Warn("scan failed", log.Err(err))
			}
		}
	}
}

// Path returns the directory.
func (d *Dir) Path() string { return d.opts.Path }

// Fixed reports whether the directory was pinned by the user.
func (d *Dir) Fixed() bool { return d.opts.Fixed }

// Scan re-reads the directory listing and wakes waiters when it changed.
// Files whose chunk is not completely written yet are left out until a later
// scan.
func (d *Dir) Scan() (bool, error) {
	entries, err := os.ReadDir(d.opts.Path)
	if err != nil {
		return false, errors.Wrap(err, "repository: read dir")
	}
	var found []ChunkFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		path := filepath.Join(d.opts.Path, e.Name())
		cf, err := d.chunkFile(path, info)
		if err != nil {
			if chunk.IsIOError(err) {
				d.logger.Debug("chunk not readable yet", log.Str("file", e.Name()), log.Err(err))
			} else {
				d.logger.Warn("skipping chunk file", log.Str("file", e.Name()), log.Err(err))
			}
			continue
		}
		found = append(found, cf)
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].StartNanos != found[j].StartNanos {
			return found[i].StartNanos < found[j].StartNanos
		}
		return found[i].Path < found[j].Path
	})

	d.mu.Lock()
	changed := !sameChunks(d.chunks, found)
	if changed {
		d.chunks = found
		close(d.notifyCh)
		d.notifyCh = make(chan struct{})
	}
	d.mu.Unlock()
	if changed {
		d.logger.Debug("repository changed", log.Int("chunks", len(found)))
	}
	return changed, nil
}

func (d *Dir) chunkFile(path string, info os.FileInfo) (ChunkFile, error) {
	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if v, ok := d.headers.Get(key); ok {
		return v.(ChunkFile), nil
	}
	r, err := chunk.Open(path, d.opts.BlockSize)
	if err != nil {
		return ChunkFile{}, err
	}
	defer r.Close()
	h, err := chunk.ReadHeader(r, 0, 0)
	if err != nil {
		return ChunkFile{}, err
	}
	if info.Size() < h.End {
		return ChunkFile{}, errors.Wrapf(chunk.ErrEOF, "chunk ends at %d, file has %d bytes", h.End, info.Size())
	}
	cf := ChunkFile{
		Path:          path,
		Size:          info.Size(),
		StartNanos:    h.StartNanos,
		DurationNanos: h.DurationNanos,
	}
	d.headers.Set(key, cf, cache.DefaultExpiration)
	return cf, nil
}

func sameChunks(a, b []ChunkFile) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Chunks returns the known chunk files ordered by start time.
func (d *Dir) Chunks() []ChunkFile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ChunkFile(nil), d.chunks...)
}

func (d *Dir) FirstChunkAfter(ns int64) (ChunkFile, bool) {
	for _, c := range d.Chunks() {
		if c.EndNanos() > ns || c.StartNanos >= ns {
			return c, true
		}
	}
	return ChunkFile{}, false
}

func (d *Dir) LastChunk() (ChunkFile, bool) {
	chunks := d.Chunks()
	if len(chunks) == 0 {
		return ChunkFile{}, false
	}
	return chunks[len(chunks)-1], true
}

func (d *Dir) NextChunk(ns int64) (ChunkFile, bool) {
	for _, c := range d.Chunks() {
		if c.StartNanos >= ns {
			return c, true
		}
	}
	return ChunkFile{}, false
}

// Wait blocks until the listing changes, timeout elapses or stop is closed.
// A zero timeout waits without limit. It reports whether a change woke it.
func (d *Dir) Wait(stop <-chan struct{}, timeout time.Duration) bool {
	d.mu.Lock()
	ch := d.notifyCh
	d.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-ch:
		return true
	case <-stop:
		return false
	case <-timer:
		return false
	}
}

// Notify rescans immediately, waking waiters if anything changed.
func (d *Dir) Notify() {
	if _, err := d.Scan(); err != nil {
		d.logger.Warn("scan failed", log.Err(err))
	}
}

// Close stops the poller.
func (d *Dir) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	close(d.stopPoll)
	d.wg.Wait()
	return nil
}

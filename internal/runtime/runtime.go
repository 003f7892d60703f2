package runtime

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rzbill/flr/internal/checkpoint"
	cfgpkg "github.com/rzbill/flr/internal/config"
	"github.com/rzbill/flr/internal/consumer"
	"github.com/rzbill/flr/internal/repository"
	pebblestore "github.com/rzbill/flr/internal/storage/pebble"
	"github.com/rzbill/flr/pkg/log"
)

// slowStorageOp is the latency above which storage operations are logged.
const slowStorageOp = 100 * time.Millisecond

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
}

// Runtime wires configuration, logging, the checkpoint database and chunk
// repositories. The database is opened on first use so reading a single file
// needs no data directory.
type Runtime struct {
	config cfgpkg.Config
	logger log.Logger

	mu          sync.Mutex
	db          *pebblestore.DB
	checkpoints *checkpoint.Store
	closed      bool
}

// Open validates the configuration and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runtime{config: opts.Config, logger: logger.WithComponent("runtime")}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.checkpoints = nil
	return err
}

// CheckHealth reports whether the checkpoint database, when open, answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("runtime closed")
	}
	if r.db == nil {
		return nil
	}
	return r.db.ScanPrefix([]byte("cp/"), func(_, _ []byte) bool { return false })
}

// Checkpoints returns the checkpoint store, opening the database if needed.
func (r *Runtime) Checkpoints() (*checkpoint.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("runtime closed")
	}
	if r.checkpoints != nil {
		return r.checkpoints, nil
	}
	fsync, err := pebblestore.ParseFsyncMode(r.config.Fsync)
	if err != nil {
		return nil, err
	}
	dir := r.config.CheckpointDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "checkpoint dir")
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: dir,
		Fsync:   fsync,
		Logger:  r.logger,
		Metrics: pebblestore.SlowOpMetrics{Logger: r.logger, Threshold: slowStorageOp},
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("checkpoint database opened", log.Str("dir", dir))
	r.db = db
	r.checkpoints = checkpoint.New(db, r.logger)
	return r.checkpoints, nil
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime's root logger.
func (r *Runtime) Logger() log.Logger { return r.logger }

// OpenFile returns an unstarted stream over one recording file, configured
// with the ordering and reuse settings.
func (r *Runtime) OpenFile(path string) *consumer.FileStream {
	s := consumer.NewFileStream(consumer.FileOptions{
		Path:      path,
		BlockSize: r.config.BlockSize,
		Logger:    r.logger,
	})
	s.SetOrdered(r.config.Ordered)
	s.SetReuse(r.config.Reuse)
	return s
}

// TailOptions selects where a repository tail starts.
type TailOptions struct {
	// Repository overrides the configured repository directory.
	Repository string
	// Fixed marks a directory that no longer receives chunks; the tail ends
	// at its final chunk.
	Fixed bool
	// FromStart begins at the oldest chunk instead of the newest.
	FromStart bool
	// Start and End bound the delivered events when non-zero.
	Start, End time.Time
	// Consumer, when set, resumes from and records a checkpoint.
	Consumer string
}

// Tail is a directory stream together with the repository it owns.
type Tail struct {
	*consumer.DirectoryStream
	repo *repository.Dir
}

// Repository returns the followed repository.
func (t *Tail) Repository() *repository.Dir { return t.repo }

// Close closes the stream and stops watching the repository.
func (t *Tail) Close() error {
	err := t.DirectoryStream.Close()
	if cerr := t.repo.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenTail opens the repository and returns an unstarted stream over it.
func (r *Runtime) OpenTail(opts TailOptions) (*Tail, error) {
	dir := opts.Repository
	if dir == "" {
		dir = r.config.RepositoryDir
	}
	if dir == "" {
		return nil, errors.New("no repository directory configured")
	}
	repo, err := repository.Open(repository.Options{
		Path:         dir,
		Fixed:        opts.Fixed,
		PollInterval: r.config.PollInterval.Std(),
		BlockSize:    r.config.BlockSize,
		Logger:       r.logger,
	})
	if err != nil {
		return nil, err
	}
	s := consumer.NewDirectoryStream(consumer.DirectoryOptions{
		Repository:   repo,
		BlockSize:    r.config.BlockSize,
		WaitInterval: r.config.WaitInterval.Std(),
		Logger:       r.logger,
	})
	s.SetOrdered(r.config.Ordered)
	s.SetReuse(r.config.Reuse)
	t := &Tail{DirectoryStream: s, repo: repo}

	if err := r.position(t, dir, opts); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return t, nil
}

func (r *Runtime) position(t *Tail, dir string, opts TailOptions) error {
	start := opts.Start
	if opts.FromStart && start.IsZero() {
		start = time.Unix(0, 0)
	}
	if opts.Consumer != "" {
		store, err := r.Checkpoints()
		if err != nil {
			return err
		}
		pos, err := store.Load(opts.Consumer)
		switch {
		case err == nil:
			if pos.Repository != "" && pos.Repository != dir {
				r.logger.Warn("checkpoint recorded for another repository",
					log.Str("consumer", opts.Consumer), log.Str("repository", pos.Repository))
			}
			resume := time.Unix(0, pos.ChunkEndNanos)
			if resume.After(start) {
				start = resume
			}
			r.logger.Info("resuming from checkpoint",
				log.Str("consumer", opts.Consumer), log.Int64("chunk_end", pos.ChunkEndNanos))
		case errors.Is(err, checkpoint.ErrNotFound):
		default:
			return err
		}
		t.OnChunkComplete(store.Tracker(opts.Consumer, dir))
	}
	if !start.IsZero() {
		if err := t.SetStartTime(start); err != nil {
			return err
		}
	}
	if !opts.End.IsZero() {
		if err := t.SetEndTime(opts.End); err != nil {
			return err
		}
	}
	return nil
}

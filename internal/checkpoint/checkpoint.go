// Package checkpoint persists how far each named consumer has read a
// repository, so a tail can resume after a restart.
package checkpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	pebblestore "github.com/rzbill/flr/internal/storage/pebble"
	"github.com/rzbill/flr/pkg/log"
)

// ErrNotFound is returned for consumers without a checkpoint.
var ErrNotFound = errors.New("checkpoint: not found")

// Key layout: cp/{consumer}. Values hold the big-endian chunk end and update
// time followed by the repository path.
var keyPrefix = []byte("cp/")

const valueHeaderSize = 16

// Position is the resume point of one consumer.
type Position struct {
	// ChunkEndNanos is the end of the last fully delivered chunk.
	ChunkEndNanos int64
	UpdatedAt     time.Time
	Repository    string
}

// Entry pairs a consumer with its position.
type Entry struct {
	Consumer string
	Position Position
}

// Store keeps checkpoints in a pebble database.
type Store struct {
	db     *pebblestore.DB
	logger log.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// New returns a store over db.
func New(db *pebblestore.DB, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Store{db: db, logger: logger.WithComponent("checkpoint"), now: time.Now}
}

func key(consumer string) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(consumer))
	k = append(k, keyPrefix...)
	return append(k, consumer...)
}

func encode(p Position) []byte {
	b := make([]byte, valueHeaderSize, valueHeaderSize+len(p.Repository))
	binary.BigEndian.PutUint64(b[:8], uint64(p.ChunkEndNanos))
	binary.BigEndian.PutUint64(b[8:16], uint64(p.UpdatedAt.UnixNano()))
	return append(b, p.Repository...)
}

func decode(b []byte) (Position, error) {
	if len(b) < valueHeaderSize {
		return Position{}, pkgerrors.Errorf("checkpoint: short value of %d bytes", len(b))
	}
	return Position{
		ChunkEndNanos: int64(binary.BigEndian.Uint64(b[:8])),
		UpdatedAt:     time.Unix(0, int64(binary.BigEndian.Uint64(b[8:16]))),
		Repository:    string(b[valueHeaderSize:]),
	}, nil
}

func validConsumer(consumer string) error {
	if consumer == "" {
		return errors.New("checkpoint: empty consumer name")
	}
	return nil
}

// Save stores pos for consumer. A position at or before the stored one is
// ignored, and Save reports whether it wrote. A zero UpdatedAt is set to now.
func (s *Store) Save(ctx context.Context, consumer string, pos Position) (bool, error) {
	if err := validConsumer(consumer); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.load(consumer)
	switch {
	case err == nil:
		if pos.ChunkEndNanos <= prev.ChunkEndNanos {
			return false, nil
		}
	case !errors.Is(err, ErrNotFound):
		return false, err
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = s.now()
	}
	if err := s.db.Set(ctx, key(consumer), encode(pos)); err != nil {
		return false, pkgerrors.Wrapf(err, "checkpoint: save %s", consumer)
	}
	return true, nil
}

// Load returns the position of consumer or ErrNotFound.
func (s *Store) Load(consumer string) (Position, error) {
	if err := validConsumer(consumer); err != nil {
		return Position{}, err
	}
	return s.load(consumer)
}

func (s *Store) load(consumer string) (Position, error) {
	b, err := s.db.Get(key(consumer))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Position{}, pkgerrors.Wrap(ErrNotFound, consumer)
	}
	if err != nil {
		return Position{}, pkgerrors.Wrapf(err, "checkpoint: load %s", consumer)
	}
	return decode(b)
}

// List returns all checkpoints ordered by consumer name.
func (s *Store) List() ([]Entry, error) {
	var (
		out    []Entry
		decErr error
	)
	err := s.db.ScanPrefix(keyPrefix, func(k, v []byte) bool {
		p, err := decode(v)
		if err != nil {
			decErr = pkgerrors.Wrapf(err, "consumer %s", k[len(keyPrefix):])
			return false
		}
		out = append(out, Entry{Consumer: string(k[len(keyPrefix):]), Position: p})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// Delete removes the checkpoint of consumer.
func (s *Store) Delete(ctx context.Context, consumer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Load(consumer); err != nil {
		return err
	}
	return s.db.Delete(ctx, key(consumer))
}

// Tracker returns a chunk-complete callback that records progress of consumer
// over repository. Failures are logged; the stream keeps running.
func (s *Store) Tracker(consumer, repository string) func(endNanos int64) {
	logger := s.logger.With(log.Str("consumer", consumer))
	return func(endNanos int64) {
		saved, err := s.Save(context.Background(), consumer, Position{
			ChunkEndNanos: endNanos,
			Repository:    repository,
		})
		if err != nil {
			logger.Warn("checkpoint failed", log.Err(err))
			return
		}
		if saved {
			logger.Debug("checkpoint saved", log.Int64("chunk_end", endNanos))
		}
	}
}

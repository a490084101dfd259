// Package cache provides the content-addressed audio artifact store. Keys
// are digests over synthesis identity; for any key at most one production
// runs system-wide, and entries become visible only after a successful
// atomic commit.
package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/readaloud/readaloud/speech"
)

const indexFile = "index.gob.zst"

// entry is the persisted index record for one artifact.
type entry struct {
	Key        string
	FileName   string
	Size       int64
	Format     speech.AudioFormat
	Backend    string
	CreatedAt  time.Time
	LastAccess time.Time
}

// Store is a disk-backed implementation of speech.Store.
type Store struct {
	dir             string
	maxBytes        int64
	maxAge          time.Duration
	cleanupInterval time.Duration

	mu       sync.Mutex
	index    map[string]*entry
	size     int64
	inflight map[string]struct{} // keys with a production in progress

	group singleflight.Group

	// Index snapshots are zstd-compressed gob; level 0 disables.
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	stopCh chan struct{}
	doneCh chan struct{}
	logger *log.Logger
}

// Open creates or reopens a store rooted at cfg.Dir and starts the eviction
// janitor. Errors here mean the cache is unavailable; callers should degrade
// to uncached synthesis rather than fail.
func Open(cfg speech.CacheConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: cache directory not configured", speech.ErrCacheUnavailable)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", speech.ErrCacheUnavailable, err)
	}

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	s := &Store{
		dir:             cfg.Dir,
		maxBytes:        cfg.MaxBytes,
		maxAge:          cfg.MaxAge,
		cleanupInterval: interval,
		index:           make(map[string]*entry),
		inflight:        make(map[string]struct{}),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
		logger:          log.Default().WithPrefix("cache"),
	}

	if cfg.CompressionLevel > 0 {
		var err error
		s.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.CompressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", speech.ErrCacheUnavailable, err)
		}
		s.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", speech.ErrCacheUnavailable, err)
		}
	}

	if err := s.loadIndex(); err != nil {
		// Start over with whatever files can be accounted for.
		s.logger.Warn("cache index unreadable, starting fresh", "err", err)
		s.index = make(map[string]*entry)
	}
	s.pruneMissing()

	go s.janitor()
	return s, nil
}

// Lookup returns the committed entry for key, refreshing its access time.
func (s *Store) Lookup(key string) (speech.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(key)
}

func (s *Store) lookupLocked(key string) (speech.Entry, bool) {
	e, ok := s.index[key]
	if !ok {
		return speech.Entry{}, false
	}
	path := filepath.Join(s.dir, e.FileName)
	if _, err := os.Stat(path); err != nil {
		// File vanished behind our back. Drop the stale record.
		delete(s.index, key)
		s.size -= e.Size
		return speech.Entry{}, false
	}
	e.LastAccess = time.Now()
	return speech.Entry{
		Key:       e.Key,
		Path:      path,
		Size:      e.Size,
		Format:    e.Format,
		Backend:   e.Backend,
		CreatedAt: e.CreatedAt,
	}, true
}

// GetOrCreate returns the entry for key, running produce at most once
// system-wide on a miss. Concurrent callers for the same key share the
// single production. A caller whose context ends while waiting receives its
// context error, but the production keeps running for the other waiters and
// the cache. The boolean reports a cache hit.
func (s *Store) GetOrCreate(ctx context.Context, key string, produce func(context.Context) (*speech.Audio, error)) (speech.Entry, bool, error) {
	s.mu.Lock()
	if e, ok := s.lookupLocked(key); ok {
		s.mu.Unlock()
		return e, true, nil
	}
	s.inflight[key] = struct{}{}
	s.mu.Unlock()

	ch := s.group.DoChan(key, func() (any, error) {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
		}()

		// Another waiter may have committed between our miss and now.
		s.mu.Lock()
		e, ok := s.lookupLocked(key)
		s.mu.Unlock()
		if ok {
			return e, nil
		}

		// Production is shared; detach it from any single waiter's
		// cancellation so the artifact survives for the rest.
		audio, err := produce(context.WithoutCancel(ctx))
		if err != nil {
			return speech.Entry{}, err
		}
		return s.commit(key, audio)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return speech.Entry{}, false, res.Err
		}
		return res.Val.(speech.Entry), false, nil
	case <-ctx.Done():
		return speech.Entry{}, false, ctx.Err()
	}
}

// commit writes the artifact next to the index under its key, atomically:
// temp file first, rename after, index record last. A failed commit does not
// fail the request; the artifact is parked outside the cache instead.
func (s *Store) commit(key string, audio *speech.Audio) (speech.Entry, error) {
	name := key + audio.Format.Extension()
	path := filepath.Join(s.dir, name)

	if err := writeFileAtomic(path, audio.Data); err != nil {
		s.logger.Warn("artifact commit failed, serving uncached", "key", key, "err", err)
		return s.parkUncached(audio)
	}

	now := time.Now()
	e := &entry{
		Key:        key,
		FileName:   name,
		Size:       int64(len(audio.Data)),
		Format:     audio.Format,
		Backend:    audio.Backend,
		CreatedAt:  now,
		LastAccess: now,
	}

	s.mu.Lock()
	s.index[key] = e
	s.size += e.Size
	needEvict := s.size > s.maxBytes
	s.mu.Unlock()

	if needEvict {
		if err := s.Evict(); err != nil {
			s.logger.Warn("eviction failed", "err", err)
		}
	}

	return speech.Entry{
		Key:       key,
		Path:      path,
		Size:      e.Size,
		Format:    e.Format,
		Backend:   e.Backend,
		CreatedAt: now,
	}, nil
}

// parkUncached stores the artifact in a temp file when the cache directory
// rejects writes, so the request can still be served.
func (s *Store) parkUncached(audio *speech.Audio) (speech.Entry, error) {
	f, err := os.CreateTemp("", "readaloud-*"+audio.Format.Extension())
	if err != nil {
		return speech.Entry{}, fmt.Errorf("%w: %v", speech.ErrCacheUnavailable, err)
	}
	if _, err := f.Write(audio.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return speech.Entry{}, fmt.Errorf("%w: %v", speech.ErrCacheUnavailable, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return speech.Entry{}, fmt.Errorf("%w: %v", speech.ErrCacheUnavailable, err)
	}
	return speech.Entry{
		Path:      f.Name(),
		Size:      int64(len(audio.Data)),
		Format:    audio.Format,
		Backend:   audio.Backend,
		CreatedAt: time.Now(),
	}, nil
}

// Evict applies the age bound, then trims least-recently-used entries until
// the store fits its size budget. Keys with an in-flight production are
// never removed.
func (s *Store) Evict() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	freed := int64(0)

	for key, e := range s.index {
		if _, busy := s.inflight[key]; busy {
			continue
		}
		if e.CreatedAt.Before(cutoff) {
			freed += s.removeLocked(key)
			removed++
		}
	}

	for s.size > s.maxBytes {
		key := s.oldestEvictableLocked()
		if key == "" {
			break
		}
		freed += s.removeLocked(key)
		removed++
	}

	if removed > 0 {
		s.logger.Info("evicted cache entries",
			"count", removed, "freed", humanize.Bytes(uint64(freed)), "size", humanize.Bytes(uint64(s.size)))
	}
	return nil
}

func (s *Store) oldestEvictableLocked() string {
	var oldestKey string
	var oldestTime time.Time
	for key, e := range s.index {
		if _, busy := s.inflight[key]; busy {
			continue
		}
		if oldestKey == "" || e.LastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.LastAccess
		}
	}
	return oldestKey
}

func (s *Store) removeLocked(key string) int64 {
	e := s.index[key]
	if e == nil {
		return 0
	}
	os.Remove(filepath.Join(s.dir, e.FileName))
	delete(s.index, key)
	s.size -= e.Size
	return e.Size
}

// Purge removes every committed entry. Manual maintenance only.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.index {
		if _, busy := s.inflight[key]; busy {
			continue
		}
		s.removeLocked(key)
	}
	return s.saveIndexLocked()
}

// Len returns the number of committed entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Size returns the total artifact bytes on disk.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Close stops the janitor and persists the index.
func (s *Store) Close() error {
	select {
	case <-s.stopCh:
		// already closed
	default:
		close(s.stopCh)
		<-s.doneCh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveIndexLocked()
}

func (s *Store) janitor() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Evict(); err != nil {
				s.logger.Warn("eviction failed", "err", err)
			}
			s.mu.Lock()
			if err := s.saveIndexLocked(); err != nil {
				s.logger.Warn("index snapshot failed", "err", err)
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// pruneMissing drops index records whose artifact files are gone and
// recomputes the total size.
func (s *Store) pruneMissing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = 0
	for key, e := range s.index {
		if _, err := os.Stat(filepath.Join(s.dir, e.FileName)); err != nil {
			delete(s.index, key)
			continue
		}
		s.size += e.Size
	}
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if s.decoder != nil {
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			return err
		}
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&s.index)
}

func (s *Store) saveIndexLocked() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.index); err != nil {
		return err
	}
	data := buf.Bytes()
	if s.encoder != nil {
		data = s.encoder.EncodeAll(data, nil)
	}
	return writeFileAtomic(filepath.Join(s.dir, indexFile), data)
}

// writeFileAtomic writes to a sibling temp file and renames it into place,
// so readers never observe a partial artifact.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		os.Remove(tmp)
		return werr
	}
	if cerr != nil {
		os.Remove(tmp)
		return cerr
	}
	return os.Rename(tmp, path)
}

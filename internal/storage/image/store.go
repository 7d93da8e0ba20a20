package image

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/telemetry/metric"
)

// ChunkSize is the size of one stored content chunk.
const ChunkSize = 1 << 20

const (
	metaKey      = "meta"
	regionPrefix = "region/"
	chunkPrefix  = "chunk/"
)

// ErrNoImage indicates the directory holds no saved image.
var ErrNoImage = errors.New("image: no image in directory")

// Meta describes a saved image.
type Meta struct {
	ID         string    `json:"id" yaml:"id"`
	PID        int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	CapturedAt time.Time `json:"captured_at" yaml:"captured_at"`
	SavedAt    time.Time `json:"saved_at" yaml:"saved_at"`
	Regions    int       `json:"regions" yaml:"regions"`
	Bytes      uint64    `json:"bytes" yaml:"bytes"`
	Version    string    `json:"version,omitempty" yaml:"version,omitempty"`
}

// Store is a heap image in a Badger directory. It implements procmem.Source.
type Store struct {
	db     *badger.DB
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	regions []domain.RegionInfo
	loaded  bool
}

// Option configures a Store.
type Option func(*badger.Options, *Store)

// WithLogger sets the logger. Badger's own log lines go through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(o *badger.Options, s *Store) {
		s.logger = logger
		o.Logger = &badgerLogger{logger: logger}
	}
}

// WithSyncWrites makes every write durable before it returns.
func WithSyncWrites(enabled bool) Option {
	return func(o *badger.Options, _ *Store) {
		o.SyncWrites = enabled
	}
}

// Open opens or creates the image in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, domain.ErrInvalidArgument.WithDetails("image dir is required")
	}

	s := &Store{dir: dir, logger: slog.Default()}
	bopts := badger.DefaultOptions(dir)
	bopts.Logger = &badgerLogger{logger: s.logger}
	for _, opt := range opts {
		opt(&bopts, s)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("image: open %s: %w", dir, err)
	}
	s.db = db

	s.logger.Debug("image store opened", "dir", dir)
	return s, nil
}

// Dir returns the image directory.
func (s *Store) Dir() string {
	return s.dir
}

func regionKey(base domain.Addr) []byte {
	return []byte(fmt.Sprintf("%s%016x", regionPrefix, uint64(base)))
}

func chunkKey(base domain.Addr, idx uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x/%08x", chunkPrefix, uint64(base), idx))
}

// Save writes every region of snap and the metadata, replacing any image
// already in the directory.
func (s *Store) Save(snap *regions.Snapshot, meta Meta) (Meta, error) {
	if snap.Len() == 0 {
		return Meta{}, domain.ErrNoRegions
	}
	if err := s.db.DropAll(); err != nil {
		return Meta{}, fmt.Errorf("image: clear: %w", err)
	}

	start := time.Now()
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, r := range snap.Regions() {
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], r.Size())
		if err := wb.Set(regionKey(r.Base), size[:]); err != nil {
			return Meta{}, fmt.Errorf("image: write region %s: %w", r.Base, err)
		}
		for idx, off := uint64(0), uint64(0); off < r.Size(); idx, off = idx+1, off+ChunkSize {
			end := min(off+ChunkSize, r.Size())
			if err := wb.Set(chunkKey(r.Base, idx), r.Content[off:end]); err != nil {
				return Meta{}, fmt.Errorf("image: write chunk %s/%d: %w", r.Base, idx, err)
			}
		}
	}

	if meta.ID == "" {
		meta.ID = snap.ID().String()
	}
	if meta.CapturedAt.IsZero() {
		meta.CapturedAt = snap.CapturedAt()
	}
	meta.SavedAt = time.Now().UTC()
	meta.Regions = snap.Len()
	meta.Bytes = snap.Bytes()

	data, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, fmt.Errorf("image: encode meta: %w", err)
	}
	if err := wb.Set([]byte(metaKey), data); err != nil {
		return Meta{}, fmt.Errorf("image: write meta: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return Meta{}, fmt.Errorf("image: flush: %w", err)
	}

	s.mu.Lock()
	s.loaded = false
	s.regions = nil
	s.mu.Unlock()

	s.logger.Info("image saved",
		"dir", s.dir,
		"id", meta.ID,
		"regions", meta.Regions,
		"bytes", meta.Bytes,
		"elapsed", time.Since(start))
	return meta, nil
}

// Info returns the image metadata.
func (s *Store) Info() (Meta, error) {
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoImage
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &meta)
		})
	})
	return meta, err
}

// Regions implements procmem.Source. Every stored region reads back as
// committed and readable.
func (s *Store) Regions() ([]domain.RegionInfo, error) {
	infos, err := s.loadRegions()
	if err != nil {
		return nil, err
	}
	out := make([]domain.RegionInfo, len(infos))
	copy(out, infos)
	return out, nil
}

func (s *Store) loadRegions() ([]domain.RegionInfo, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.regions, nil
	}
	s.mu.RUnlock()

	var infos []domain.RegionInfo
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(regionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			hex := strings.TrimPrefix(string(item.Key()), regionPrefix)
			base, err := strconv.ParseUint(hex, 16, 64)
			if err != nil {
				return fmt.Errorf("image: bad region key %q: %w", item.Key(), err)
			}
			var size uint64
			err = item.Value(func(v []byte) error {
				if len(v) != 8 {
					return fmt.Errorf("image: bad size for region %s", hex)
				}
				size = binary.BigEndian.Uint64(v)
				return nil
			})
			if err != nil {
				return err
			}
			infos = append(infos, domain.RegionInfo{
				Base:       domain.Addr(base),
				Size:       size,
				Protection: domain.ProtCommitted | domain.ProtRead,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Base < infos[j].Base })

	s.mu.Lock()
	s.regions = infos
	s.loaded = true
	s.mu.Unlock()
	return infos, nil
}

// ReadAt implements procmem.Source. A read running past the end of its
// region is short and reports io.ErrUnexpectedEOF.
func (s *Store) ReadAt(addr domain.Addr, buf []byte) (int, error) {
	infos, err := s.loadRegions()
	if err != nil {
		return 0, err
	}

	i := sort.Search(len(infos), func(i int) bool { return infos[i].Base > addr }) - 1
	if i < 0 || uint64(addr-infos[i].Base) >= infos[i].Size {
		return 0, domain.ErrAddressNotMapped.WithDetails(addr.String())
	}
	info := infos[i]

	off := uint64(addr - info.Base)
	want := min(uint64(len(buf)), info.Size-off)

	var n uint64
	err = s.db.View(func(txn *badger.Txn) error {
		for n < want {
			pos := off + n
			idx := pos / ChunkSize
			item, err := txn.Get(chunkKey(info.Base, idx))
			if err != nil {
				return fmt.Errorf("image: chunk %s/%d: %w", info.Base, idx, err)
			}
			err = item.Value(func(v []byte) error {
				inChunk := pos - idx*ChunkSize
				if inChunk >= uint64(len(v)) {
					return io.ErrUnexpectedEOF
				}
				n += uint64(copy(buf[n:want], v[inChunk:]))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return int(n), err
	}
	if n < uint64(len(buf)) {
		return int(n), io.ErrUnexpectedEOF
	}
	return int(n), nil
}

// RegisterMetrics exposes the store's on-disk size.
func (s *Store) RegisterMetrics(reg *metric.Registry) error {
	if reg == nil {
		return nil
	}
	lsm := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "heapsight",
		Subsystem: "image",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size of the open image",
	}, func() float64 {
		l, _ := s.db.Size()
		return float64(l)
	})
	vlog := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "heapsight",
		Subsystem: "image",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size of the open image",
	}, func() float64 {
		_, v := s.db.Size()
		return float64(v)
	})
	if err := reg.Register(lsm); err != nil {
		return err
	}
	return reg.Register(vlog)
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("image: close: %w", err)
	}
	s.logger.Debug("image store closed", "dir", s.dir)
	return nil
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger is
// chatty at info level, so its info lines are logged at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

// Package matcache persists computed projection tensors so that a session
// never recomputes a matrix set that an earlier run already produced.
//
// Records are keyed by the full session configuration and served on a
// superset basis: a stored record with at least as many Zernike modes and a
// height set containing every requested height satisfies the request after
// slicing. Records are gob-encoded, zstd-compressed and carry an xxhash
// checksum; a record that fails its checksum, fails to decode, or does not
// match its claimed key is treated as a miss and never trusted.
package matcache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/geometry"
	"github.com/hammal/mcao/projection"
)

var magic = [4]byte{'M', 'P', 'R', 'J'}

const recordVersion = 1

// Key identifies a stored projection tensor.
type Key struct {
	NStars   int
	NZernike int
	// FOV [arcsec] and DTel [m] must match a request exactly.
	FOV  float64
	DTel float64
	// Heights [km] may be a superset of a request.
	Heights []float64
}

// KeyFromConfig derives the cache key of a session configuration.
func KeyFromConfig(c geometry.Config) Key {
	heights := make([]float64, len(c.Heights))
	copy(heights, c.Heights)
	return Key{
		NStars:   c.NStars,
		NZernike: c.NZernike,
		FOV:      c.FOV,
		DTel:     c.DTel,
		Heights:  heights,
	}
}

// Record is the persisted unit: a key plus its full projection tensor and a
// unique identifier assigned at store time.
type Record struct {
	ID     string
	Key    Key
	Tensor *projection.Tensor
}

// Store is a directory-backed record store. Reads are lock-free; writes go
// through a temporary file and a rename so concurrent readers never observe
// a partially written record.
type Store struct {
	dir string
	log *slog.Logger
}

// NewStore returns a store rooted at dir, creating it if needed. A nil
// logger disables diagnostics.
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("matcache: create store dir: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Find returns the tensor of the first stored record covering key, in
// directory scan order, sliced down to the requested modes and heights.
// It returns false when no stored record covers the request.
func (s *Store) Find(key Key) (*projection.Tensor, bool) {
	files, err := filepath.Glob(filepath.Join(s.dir, "projection-*.mcache"))
	if err != nil {
		return nil, false
	}
	for _, f := range files {
		rec, err := readRecord(f)
		if err != nil {
			s.log.Warn("discarding cache record", "file", f, "err", err)
			continue
		}
		idx, ok := covers(rec.Key, key)
		if !ok {
			continue
		}
		tensor, err := rec.Tensor.Slice(key.NZernike, idx)
		if err != nil {
			s.log.Warn("discarding cache record", "file", f, "err", err)
			continue
		}
		s.log.Debug("projection cache hit", "file", f, "id", rec.ID)
		return tensor, true
	}
	return nil, false
}

// Store persists the tensor under key and returns the identifier of the new
// record.
func (s *Store) Store(key Key, tensor *projection.Tensor) (string, error) {
	rec := Record{ID: uuid.NewString(), Key: key, Tensor: tensor}
	raw, err := encodeRecord(&rec)
	if err != nil {
		return "", err
	}

	final := filepath.Join(s.dir, fmt.Sprintf("projection-%s.mcache", rec.ID))
	tmp, err := os.CreateTemp(s.dir, ".projection-*.tmp")
	if err != nil {
		return "", fmt.Errorf("matcache: create temp record: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return "", fmt.Errorf("matcache: write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("matcache: close record: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("matcache: publish record: %w", err)
	}
	s.log.Debug("stored projection record", "id", rec.ID, "file", final)
	return rec.ID, nil
}

// covers reports whether a stored key satisfies a requested key and, if so,
// returns the indices of the requested heights within the stored height set.
func covers(stored, req Key) ([]int, bool) {
	if stored.NStars != req.NStars || stored.FOV != req.FOV || stored.DTel != req.DTel {
		return nil, false
	}
	if stored.NZernike < req.NZernike {
		return nil, false
	}
	idx := make([]int, 0, len(req.Heights))
	for _, h := range req.Heights {
		found := -1
		for i, sh := range stored.Heights {
			if sh == h {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		idx = append(idx, found)
	}
	return idx, true
}

func encodeRecord(rec *Record) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(rec); err != nil {
		return nil, fmt.Errorf("matcache: encode record: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("matcache: compressor: %w", err)
	}
	compressed := enc.EncodeAll(payload.Bytes(), nil)
	enc.Close()

	// magic | version | xxhash64(compressed) | compressed payload
	raw := make([]byte, 0, len(magic)+1+8+len(compressed))
	raw = append(raw, magic[:]...)
	raw = append(raw, recordVersion)
	raw = binary.LittleEndian.AppendUint64(raw, xxhash.Sum64(compressed))
	raw = append(raw, compressed...)
	return raw, nil
}

func readRecord(file string) (*Record, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if len(raw) < len(magic)+1+8 || !bytes.Equal(raw[:4], magic[:]) {
		return nil, fmt.Errorf("bad header: %w", errs.ErrCacheInconsistency)
	}
	if raw[4] != recordVersion {
		return nil, fmt.Errorf("record version %d: %w", raw[4], errs.ErrCacheInconsistency)
	}
	sum := binary.LittleEndian.Uint64(raw[5:13])
	compressed := raw[13:]
	if xxhash.Sum64(compressed) != sum {
		return nil, fmt.Errorf("checksum mismatch: %w", errs.ErrCacheInconsistency)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", errs.ErrCacheInconsistency)
	}

	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode: %w", errs.ErrCacheInconsistency)
	}
	if rec.Tensor == nil || !rec.Tensor.Consistent() ||
		rec.Tensor.NZernike != rec.Key.NZernike ||
		rec.Tensor.NHeights != len(rec.Key.Heights) ||
		rec.Tensor.NStars != rec.Key.NStars {
		return nil, fmt.Errorf("record does not match its key: %w", errs.ErrCacheInconsistency)
	}
	return &rec, nil
}

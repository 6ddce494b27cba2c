// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Package modelstore persists trained scoring models and tracks which one is
// active.
//
// # Storage Format
//
// A bundle is a gob-encoded storedFile holding Meta and the gzip-compressed
// gob encoding of an anomaly.Model. Meta carries a SHA-256 checksum of the
// uncompressed model bytes, verified on every load. Bundles are keyed
// "{kind}_v{version}.gob.gz" and never rewritten; a retrain writes a new
// version and the ConfigStore row is repointed afterwards. Several processes
// may share a backend (the server and wardenctl): Save re-reads the stored
// versions before numbering, and backends refuse to replace an existing key.
//
// # Backends
//
// FileBackend writes through a temp file and a hard link. BadgerBackend
// checks and writes in one transaction. Both report a missing key as anomaly.ErrModelNotFound.
package modelstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/warden/internal/anomaly"
	"github.com/tomtom215/warden/internal/features"
)

// ErrChecksumMismatch means a bundle's model bytes do not match its recorded
// checksum.
var ErrChecksumMismatch = errors.New("model checksum mismatch")

const bundleSuffix = ".gob.gz"

// maxSaveAttempts bounds retries when another writer takes the next version.
const maxSaveAttempts = 5

// Meta describes a stored model bundle.
type Meta struct {
	Kind          string    `json:"kind"`
	Version       int       `json:"version"`
	Key           string    `json:"key"`
	SchemaVersion int       `json:"schema_version"`
	SampleCount   int       `json:"sample_count"`
	Threshold     float64   `json:"threshold"`
	TrainedAt     time.Time `json:"trained_at"`
	SavedAt       time.Time `json:"saved_at"`
	Checksum      string    `json:"checksum"`
	SizeBytes     int64     `json:"size_bytes"`
}

// storedFile is the on-backend format for bundles.
type storedFile struct {
	Metadata       Meta
	CompressedData []byte
}

// Store versions and encodes models on top of a Backend.
type Store struct {
	backend Backend
	mu      sync.RWMutex

	// latest version per kind
	versions map[string]int
}

// NewStore scans backend for existing bundles.
func NewStore(ctx context.Context, backend Backend) (*Store, error) {
	s := &Store{
		backend:  backend,
		versions: make(map[string]int),
	}
	keys, err := backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan existing models: %w", err)
	}
	for _, key := range keys {
		kind, version := ParseKey(key)
		if kind == "" {
			continue
		}
		if current, ok := s.versions[kind]; !ok || version > current {
			s.versions[kind] = version
		}
	}
	return s, nil
}

// Key returns the bundle key for kind and version.
func Key(kind string, version int) string {
	return fmt.Sprintf("%s_v%d%s", kind, version, bundleSuffix)
}

// ParseKey extracts kind and version from a key like "isolation_forest_v3.gob.gz".
// It returns "" for anything else.
func ParseKey(key string) (kind string, version int) {
	name, ok := strings.CutSuffix(key, bundleSuffix)
	if !ok {
		return "", 0
	}
	idx := strings.LastIndex(name, "_v")
	if idx <= 0 {
		return "", 0
	}
	if _, err := fmt.Sscanf(name[idx+2:], "%d", &version); err != nil || version <= 0 {
		return "", 0
	}
	return name[:idx], version
}

// LatestVersion returns the highest stored version of kind.
func (s *Store) LatestVersion(kind string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[kind]
	return v, ok
}

// Save writes m as the next version of kind.
func (s *Store) Save(ctx context.Context, kind string, m *anomaly.Model) (Meta, error) {
	if !m.Trained() {
		return Meta{}, anomaly.ErrModelNotTrained
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return Meta{}, fmt.Errorf("encode model: %w", err)
	}
	raw := buf.Bytes()
	hash := sha256.Sum256(raw)

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return Meta{}, fmt.Errorf("compress model: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return Meta{}, fmt.Errorf("finalize compression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	latest, err := s.refreshLatest(ctx, kind)
	if err != nil {
		return Meta{}, err
	}
	for attempt := 1; ; attempt++ {
		version := latest + 1
		meta := Meta{
			Kind:          kind,
			Version:       version,
			Key:           Key(kind, version),
			SchemaVersion: m.SchemaVersion,
			SampleCount:   m.SampleCount,
			Threshold:     m.Threshold,
			TrainedAt:     m.TrainedAt,
			SavedAt:       time.Now().UTC(),
			Checksum:      hex.EncodeToString(hash[:]),
			SizeBytes:     int64(compressed.Len()),
		}

		var file bytes.Buffer
		if err := gob.NewEncoder(&file).Encode(storedFile{Metadata: meta, CompressedData: compressed.Bytes()}); err != nil {
			return Meta{}, fmt.Errorf("encode bundle: %w", err)
		}
		err := s.backend.Put(ctx, meta.Key, file.Bytes())
		switch {
		case err == nil:
			s.versions[kind] = version
			return meta, nil
		case errors.Is(err, ErrBundleExists) && attempt < maxSaveAttempts:
			latest = version
		default:
			return Meta{}, err
		}
	}
}

// refreshLatest re-reads the highest stored version of kind, since another
// process may have saved since this store last looked. Callers hold s.mu.
func (s *Store) refreshLatest(ctx context.Context, kind string) (int, error) {
	keys, err := s.kindKeys(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("scan existing models: %w", err)
	}
	latest := s.versions[kind]
	if len(keys) > 0 && keys[0].version > latest {
		latest = keys[0].version
	}
	if latest > 0 {
		s.versions[kind] = latest
	}
	return latest, nil
}

// Load reads, verifies and decodes the bundle at key. A model trained on a
// different feature schema yields *anomaly.SchemaMismatchError.
func (s *Store) Load(ctx context.Context, key string) (*anomaly.Model, error) {
	m, _, err := s.load(ctx, key)
	return m, err
}

// LoadLatest loads the highest stored version of kind, including versions
// saved by other processes.
func (s *Store) LoadLatest(ctx context.Context, kind string) (*anomaly.Model, Meta, error) {
	s.mu.Lock()
	v, err := s.refreshLatest(ctx, kind)
	s.mu.Unlock()
	if err != nil {
		return nil, Meta{}, err
	}
	if v == 0 {
		return nil, Meta{}, fmt.Errorf("%w: no %s model stored", anomaly.ErrModelNotFound, kind)
	}
	return s.load(ctx, Key(kind, v))
}

func (s *Store) load(ctx context.Context, key string) (*anomaly.Model, Meta, error) {
	sf, err := s.readBundle(ctx, key)
	if err != nil {
		return nil, Meta{}, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, Meta{}, fmt.Errorf("decompress model: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(raw)
	if got := hex.EncodeToString(hash[:]); got != sf.Metadata.Checksum {
		return nil, Meta{}, fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, key, sf.Metadata.Checksum, got)
	}

	var m anomaly.Model
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&m); err != nil {
		return nil, Meta{}, fmt.Errorf("decode model: %w", err)
	}
	if err := m.CheckSchema(features.SchemaVersion); err != nil {
		return nil, sf.Metadata, err
	}
	return &m, sf.Metadata, nil
}

func (s *Store) readBundle(ctx context.Context, key string) (*storedFile, error) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var sf storedFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read model bundle: %w", err)
	}
	return &sf, nil
}

// List returns metadata for every stored version of kind, newest first.
// Unreadable bundles are skipped.
func (s *Store) List(ctx context.Context, kind string) ([]Meta, error) {
	keys, err := s.kindKeys(ctx, kind)
	if err != nil {
		return nil, err
	}
	metas := make([]Meta, 0, len(keys))
	for _, k := range keys {
		sf, err := s.readBundle(ctx, k.key)
		if err != nil {
			continue
		}
		metas = append(metas, sf.Metadata)
	}
	return metas, nil
}

type versionedKey struct {
	key     string
	version int
}

// kindKeys lists kind's keys sorted by version, newest first.
func (s *Store) kindKeys(ctx context.Context, kind string) ([]versionedKey, error) {
	keys, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []versionedKey
	for _, key := range keys {
		if k, v := ParseKey(key); k == kind {
			out = append(out, versionedKey{key: key, version: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version > out[j].version })
	return out, nil
}

// Prune deletes all but the newest keep versions of kind and returns how many
// were removed. keep is at least 1. Version numbering continues from the
// highest version ever saved.
func (s *Store) Prune(ctx context.Context, kind string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kindKeys(ctx, kind)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := keep; i < len(keys); i++ {
		if err := s.backend.Delete(ctx, keys[i].key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

//nolint:gochecknoinits // gob.Register must be called in init for type registration
func init() {
	gob.Register(storedFile{})
	gob.Register(Meta{})
}

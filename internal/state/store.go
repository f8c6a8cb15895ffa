// Package state persists the processed-URL set and the matched records as
// two JSON documents on a blob backend.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/storage"
)

// Default object names, compatible with the files earlier deployments wrote.
const (
	DefaultProcessedObject = "processed.json"
	DefaultRecordsObject   = "data.json"
)

// Config names the objects inside the backend.
type Config struct {
	Prefix          string
	ProcessedObject string
	RecordsObject   string
}

// Snapshot is the full persisted state.
type Snapshot struct {
	Processed []string
	Records   []contest.Record
}

// Store reads and replaces the state documents. It holds no state of its own;
// callers serialize access.
type Store struct {
	blobs  storage.BlobStore
	cfg    Config
	logger *zap.Logger
}

// New returns a Store over blobs.
func New(blobs storage.BlobStore, cfg Config, logger *zap.Logger) *Store {
	if cfg.ProcessedObject == "" {
		cfg.ProcessedObject = DefaultProcessedObject
	}
	if cfg.RecordsObject == "" {
		cfg.RecordsObject = DefaultRecordsObject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{blobs: blobs, cfg: cfg, logger: logger}
}

// Load reads both documents. The returned snapshot is always usable: a missing
// or corrupt document yields an empty value, and the returned error (a join of
// *contest.StateLoadError) only reports what was defaulted.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var errs []error

	processedKey := s.key(s.cfg.ProcessedObject)
	var processed []string
	if err := s.readJSON(ctx, processedKey, &processed); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]struct{}, len(processed))
	for _, u := range processed {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		snap.Processed = append(snap.Processed, u)
	}

	recordsKey := s.key(s.cfg.RecordsObject)
	if err := s.readJSON(ctx, recordsKey, &snap.Records); err != nil {
		errs = append(errs, err)
		snap.Records = nil
	}

	s.logger.Debug("state loaded",
		zap.Int("processed", len(snap.Processed)),
		zap.Int("records", len(snap.Records)),
	)
	return snap, errors.Join(errs...)
}

// Persist replaces both documents. The processed set goes first so a crash
// between the two writes never leaves a record whose URL could be retried.
func (s *Store) Persist(ctx context.Context, snap Snapshot) error {
	processed := append([]string(nil), snap.Processed...)
	sort.Strings(processed)
	if err := s.writeJSON(ctx, s.key(s.cfg.ProcessedObject), processed); err != nil {
		return err
	}
	records := snap.Records
	if records == nil {
		records = []contest.Record{}
	}
	return s.writeJSON(ctx, s.key(s.cfg.RecordsObject), records)
}

func (s *Store) readJSON(ctx context.Context, key string, dst any) error {
	data, err := s.blobs.GetObject(ctx, key)
	if err != nil {
		return &contest.StateLoadError{Object: key, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &contest.StateLoadError{Object: key, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &contest.StatePersistError{Object: key, Err: fmt.Errorf("encode: %w", err)}
	}
	if _, err := s.blobs.PutObject(ctx, key, "application/json", bytes.NewReader(data)); err != nil {
		return &contest.StatePersistError{Object: key, Err: err}
	}
	return nil
}

func (s *Store) key(object string) string {
	if s.cfg.Prefix == "" {
		return object
	}
	return path.Join(s.cfg.Prefix, object)
}

// Segue - Listening Telemetry and Autoplay Recommendation
// Copyright 2026 Segue Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/seguefm/segue

package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/seguefm/segue/internal/config"
	"github.com/seguefm/segue/internal/logging"
	"github.com/seguefm/segue/internal/metrics"
	"github.com/seguefm/segue/internal/models"
)

// MetadataSource resolves track metadata; the Client satisfies it.
type MetadataSource interface {
	GetTrack(ctx context.Context, trackID string) (*models.TrackMetadata, error)
}

// MetadataCache fronts a MetadataSource with a Badger TTL cache so each
// recommendation does not cost a metadata round trip. Entries expire on the
// configured TTL; a miss or expired entry falls through to the source.
type MetadataCache struct {
	db     *badger.DB
	source MetadataSource
	ttl    time.Duration
}

// NewMetadataCache opens the cache store. An empty cfg.Path runs Badger
// in-memory (tests, ephemeral deployments).
func NewMetadataCache(cfg *config.CacheConfig, source MetadataSource) (*MetadataCache, error) {
	var opts badger.Options
	if cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open metadata cache: %w", err)
	}

	ttl := cfg.MetadataTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &MetadataCache{db: db, source: source, ttl: ttl}, nil
}

// GetTrack returns cached metadata, falling through to the source on a miss.
func (mc *MetadataCache) GetTrack(ctx context.Context, trackID string) (*models.TrackMetadata, error) {
	if md := mc.lookup(trackID); md != nil {
		metrics.MetadataCacheHits.Inc()
		return md, nil
	}
	metrics.MetadataCacheMisses.Inc()

	md, err := mc.source.GetTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}

	mc.store(trackID, md)
	return md, nil
}

func (mc *MetadataCache) lookup(trackID string) *models.TrackMetadata {
	var md *models.TrackMetadata
	err := mc.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metadataKey(trackID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded models.TrackMetadata
			if err := json.Unmarshal(val, &decoded); err != nil {
				return err
			}
			md = &decoded
			return nil
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		logging.Debug().Err(err).Str("track_id", trackID).Msg("metadata cache read failed")
	}
	return md
}

func (mc *MetadataCache) store(trackID string, md *models.TrackMetadata) {
	if md == nil {
		return
	}
	val, err := json.Marshal(md)
	if err != nil {
		return
	}
	err = mc.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(metadataKey(trackID), val).WithTTL(mc.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		logging.Debug().Err(err).Str("track_id", trackID).Msg("metadata cache write failed")
	}
}

// Close releases the underlying store.
func (mc *MetadataCache) Close() error {
	return mc.db.Close()
}

func metadataKey(trackID string) []byte {
	return []byte("meta:" + trackID)
}

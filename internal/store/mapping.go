package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tasklink.app/bridge/internal/model"
)

type mappingStore struct {
	db DBTX
}

func newMappingStore(db DBTX) MappingStore {
	return &mappingStore{db: db}
}

func (s *mappingStore) Lookup(ctx context.Context, upstreamID string) (string, error) {
	var downstreamID string
	err := s.db.QueryRow(ctx,
		`SELECT downstream_id FROM identity_mappings WHERE upstream_id = $1`,
		upstreamID,
	).Scan(&downstreamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("looking up mapping: %w", err)
	}
	return downstreamID, nil
}

// Insert is idempotent: re-inserting the same pair is a no-op. A conflicting
// downstream id for an existing upstream id is rejected, because mappings are
// immutable once created.
func (s *mappingStore) Insert(ctx context.Context, upstreamID, downstreamID string) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO identity_mappings (upstream_id, downstream_id)
		 VALUES ($1, $2)
		 ON CONFLICT (upstream_id) DO NOTHING`,
		upstreamID, downstreamID,
	)
	if err != nil {
		return fmt.Errorf("inserting mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.Lookup(ctx, upstreamID)
		if err != nil {
			return fmt.Errorf("verifying existing mapping: %w", err)
		}
		if existing != downstreamID {
			return fmt.Errorf("mapping conflict for %s: have %s, got %s", upstreamID, existing, downstreamID)
		}
	}
	return nil
}

func (s *mappingStore) BulkInsert(ctx context.Context, pairs []model.MappingPair) error {
	if len(pairs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range pairs {
		batch.Queue(
			`INSERT INTO identity_mappings (upstream_id, downstream_id)
			 VALUES ($1, $2)
			 ON CONFLICT (upstream_id) DO NOTHING`,
			p.UpstreamID, p.DownstreamID,
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range pairs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("bulk inserting mappings: %w", err)
		}
	}
	return nil
}

func (s *mappingStore) Delete(ctx context.Context, upstreamID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM identity_mappings WHERE upstream_id = $1`,
		upstreamID,
	); err != nil {
		return fmt.Errorf("deleting mapping: %w", err)
	}
	if _, err := s.db.Exec(ctx,
		`DELETE FROM attachment_mappings WHERE upstream_id = $1`,
		upstreamID,
	); err != nil {
		return fmt.Errorf("deleting attachment map: %w", err)
	}
	return nil
}

func (s *mappingStore) GetAttachments(ctx context.Context, upstreamID string) (map[string]string, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT assets FROM attachment_mappings WHERE upstream_id = $1`,
		upstreamID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("getting attachment map: %w", err)
	}

	assets := make(map[string]string)
	if err := json.Unmarshal(raw, &assets); err != nil {
		return nil, fmt.Errorf("decoding attachment map: %w", err)
	}
	return assets, nil
}

// SetAttachments replaces the whole attachment map. It never merges: the
// caller has already computed the exact surviving set.
func (s *mappingStore) SetAttachments(ctx context.Context, upstreamID string, assets map[string]string) error {
	raw, err := json.Marshal(assets)
	if err != nil {
		return fmt.Errorf("encoding attachment map: %w", err)
	}

	if _, err := s.db.Exec(ctx,
		`INSERT INTO attachment_mappings (upstream_id, assets, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (upstream_id) DO UPDATE SET assets = EXCLUDED.assets, updated_at = now()`,
		upstreamID, raw,
	); err != nil {
		return fmt.Errorf("replacing attachment map: %w", err)
	}
	return nil
}

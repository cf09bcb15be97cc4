package store

import (
	"context"
	"errors"

	"tasklink.app/bridge/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// MappingStore defines the contract for identity-mapping data access.
//
// Mappings are created exactly once per upstream id (the dispatcher checks
// Lookup before creating under the entity lock) and are immutable thereafter.
// The attachment sub-map is the one mutable part: it is always replaced
// wholesale, matching the diff-and-replace policy of the sync engine.
type MappingStore interface {
	Lookup(ctx context.Context, upstreamID string) (string, error)
	Insert(ctx context.Context, upstreamID, downstreamID string) error
	BulkInsert(ctx context.Context, pairs []model.MappingPair) error
	Delete(ctx context.Context, upstreamID string) error

	GetAttachments(ctx context.Context, upstreamID string) (map[string]string, error)
	SetAttachments(ctx context.Context, upstreamID string, assets map[string]string) error
}

// UserMappingStore resolves upstream handles to downstream user ids.
type UserMappingStore interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, upstreamLogin, downstreamUserID string) error
}

// DeliveryStore defines the contract for the webhook delivery log.
type DeliveryStore interface {
	Record(ctx context.Context, d *model.Delivery) error
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	GetByID(ctx context.Context, id int64) (*model.Delivery, error)
}

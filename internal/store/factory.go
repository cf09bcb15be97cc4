package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface the stores need. Both *pgxpool.Pool and pgx.Tx
// satisfy it, so the same store code runs inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Provider is the store access surface consumers depend on, so tests can
// substitute in-memory fakes.
type Provider interface {
	Mappings() MappingStore
	UserMappings() UserMappingStore
	Deliveries() DeliveryStore
}

type Stores struct {
	db DBTX
}

var _ Provider = (*Stores)(nil)

func NewStores(db DBTX) *Stores {
	return &Stores{db: db}
}

func (s *Stores) Mappings() MappingStore {
	return newMappingStore(s.db)
}

func (s *Stores) UserMappings() UserMappingStore {
	return newUserMappingStore(s.db)
}

func (s *Stores) Deliveries() DeliveryStore {
	return newDeliveryStore(s.db)
}

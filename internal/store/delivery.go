package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tasklink.app/bridge/internal/model"
)

type deliveryStore struct {
	db DBTX
}

func newDeliveryStore(db DBTX) DeliveryStore {
	return &deliveryStore{db: db}
}

func (s *deliveryStore) Record(ctx context.Context, d *model.Delivery) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO deliveries (id, delivery_id, event_type, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING received_at`,
		d.ID, d.DeliveryID, d.EventType, string(model.DeliveryStatusReceived),
	).Scan(&d.ReceivedAt)
	if err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	d.Status = model.DeliveryStatusReceived
	return nil
}

func (s *deliveryStore) MarkProcessed(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE deliveries SET status = $2, processed_at = now() WHERE id = $1`,
		id, string(model.DeliveryStatusProcessed),
	)
	if err != nil {
		return fmt.Errorf("marking delivery processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *deliveryStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE deliveries SET status = $2, processing_error = $3, processed_at = now() WHERE id = $1`,
		id, string(model.DeliveryStatusFailed), errMsg,
	)
	if err != nil {
		return fmt.Errorf("marking delivery failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *deliveryStore) GetByID(ctx context.Context, id int64) (*model.Delivery, error) {
	var d model.Delivery
	var status string
	err := s.db.QueryRow(ctx,
		`SELECT id, delivery_id, event_type, status, processing_error, received_at, processed_at
		 FROM deliveries WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.DeliveryID, &d.EventType, &status, &d.ProcessingError, &d.ReceivedAt, &d.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting delivery: %w", err)
	}
	d.Status = model.DeliveryStatus(status)
	return &d, nil
}

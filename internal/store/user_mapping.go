package store

import (
	"context"
	"fmt"
)

type userMappingStore struct {
	db DBTX
}

func newUserMappingStore(db DBTX) UserMappingStore {
	return &userMappingStore{db: db}
}

func (s *userMappingStore) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT upstream_login, downstream_user_id FROM user_mappings`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing user mappings: %w", err)
	}
	defer rows.Close()

	mappings := make(map[string]string)
	for rows.Next() {
		var login, userID string
		if err := rows.Scan(&login, &userID); err != nil {
			return nil, fmt.Errorf("scanning user mapping: %w", err)
		}
		mappings[login] = userID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading user mappings: %w", err)
	}
	return mappings, nil
}

func (s *userMappingStore) Set(ctx context.Context, upstreamLogin, downstreamUserID string) error {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO user_mappings (upstream_login, downstream_user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (upstream_login) DO UPDATE SET downstream_user_id = EXCLUDED.downstream_user_id`,
		upstreamLogin, downstreamUserID,
	); err != nil {
		return fmt.Errorf("setting user mapping: %w", err)
	}
	return nil
}

package model

import "time"

// IdentityMapping is the durable association between one upstream entity id
// and one downstream entity id. Unique per upstream id and immutable once
// created: the same upstream id always maps to the same downstream id.
type IdentityMapping struct {
	UpstreamID   string    `json:"upstream_id"`
	DownstreamID string    `json:"downstream_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// MappingPair is one element of a bulk insert, e.g. every inline comment of a
// review mapping to the same downstream comment id.
type MappingPair struct {
	UpstreamID   string
	DownstreamID string
}

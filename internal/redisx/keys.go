package redisx

import "time"

const (
	// Search index document per product: search:product:{product_id} -> JSON doc
	KeySearchProduct = "search:product:%s"

	// Dedup fast path for event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDedup = 48 * time.Hour
)

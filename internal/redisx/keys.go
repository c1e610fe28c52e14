package redisx

import "time"

const (
	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// stock:{location}:{variant_id} -> JSON snapshot
	KeyStockSnapshot = "stock:%s:%s"

	// lease:{job}, value is the owner token
	KeyLease = "lease:%s"
)

var (
	TTLDedup         = 48 * time.Hour
	TTLStockSnapshot = 5 * time.Second
)

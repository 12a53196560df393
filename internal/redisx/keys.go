package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{Idempotency-Key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache product: catalog:product:{id} -> JSON product
	KeyProduct = "catalog:product:%d"

	// Cache list product: satu key untuk seluruh list
	KeyProductList = "catalog:products"

	// Generasi cache: {cache key}:gen, di-INCR setiap invalidasi. Read-through
	// hanya boleh SET kalau generasinya belum berubah sejak sebelum baca DB.
	KeyGenSuffix = ":gen"

	// Versi product terakhir yang sudah diterapkan ke low-stock set: hash id -> version
	KeyLowStockVersion = "catalog:low_stock:version"

	// Set id product yang stoknya <= threshold
	KeyLowStock = "catalog:low_stock"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLProduct     = 5 * time.Minute
	TTLDedup       = 48 * time.Hour

	// lebih lama dari TTLProduct, supaya generasi tidak reset selama cache lama masih hidup
	TTLGeneration = 2 * TTLProduct
)

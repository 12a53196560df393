package orders

import "strconv"

const (
	TopicOrderPlaced    = "shop.order.placed"
	TopicProductChanged = "shop.product.changed"
)

// Partition key = id entitas, supaya semua event 1 order/product tetap urut.
func PartitionKey(id int64) []byte { return []byte(strconv.FormatInt(id, 10)) }

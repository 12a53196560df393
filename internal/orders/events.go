package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventProductChanged = "ProductChanged"
)

const EnvelopeVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "shop-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id / product_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an already encoded payload.
func NewEnvelope(eventType, producer, traceID, correlationID string, payload json.RawMessage) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// ---- Payload per event ----

type PlacedItem struct {
	ProductID      int64           `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	RemainingStock int             `json:"remaining_stock"`
	ProductVersion int64           `json:"product_version"`
}

type OrderPlacedPayload struct {
	OrderID    int64           `json:"order_id"`
	Items      []PlacedItem    `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

const (
	ProductCreated = "created"
	ProductUpdated = "updated"
	ProductDeleted = "deleted"
)

type ProductChangedPayload struct {
	ProductID int64  `json:"product_id"`
	Change    string `json:"change"` // created | updated | deleted
	Stock     int    `json:"stock"`
	Version   int64  `json:"version"` // products.version setelah perubahan; 0 untuk deleted
}

func NewOrderPlacedPayload(o *Order) OrderPlacedPayload {
	items := make([]PlacedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, PlacedItem{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			RemainingStock: it.Product.Stock,
			ProductVersion: it.Product.Version,
		})
	}
	return OrderPlacedPayload{OrderID: o.ID, Items: items, TotalPrice: o.TotalPrice}
}

package catalogsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
)

const deletedVersion = math.MaxInt64

// Service keeps the low-stock set in Redis in line with order and product
// events.
type Service struct {
	Cache             *redisx.Cache
	LowStockThreshold int
	ServiceName       string
}

// HandleMessage dipasang sebagai handler consumer.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// 2) dedup via Redis (pakai event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := s.Cache.MarkOnce(ctx, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	// 3) proses per tipe event; kalau gagal, lepas dedup key supaya bisa di-retry
	if err := s.apply(ctx, env); err != nil {
		_ = s.Cache.Del(ctx, dkey)
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		for _, it := range p.Items {
			if err := s.track(ctx, it.ProductID, it.ProductVersion, it.RemainingStock); err != nil {
				return err
			}
		}
		return nil
	case orders.EventProductChanged:
		p, err := kafkax.UnwrapPayload[orders.ProductChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		if p.Change == orders.ProductDeleted {
			// id tidak pernah dipakai ulang, jadi delete menang atas event apa pun
			_, err := s.Cache.ApplyLowStock(ctx, p.ProductID, deletedVersion, false)
			return err
		}
		return s.track(ctx, p.ProductID, p.Version, p.Stock)
	default:
		return nil // ignore
	}
}

// track applies the stock level seen at version. Events can arrive out of
// order (two topics, several workers), so anything not newer than what was
// already applied for the product is skipped.
func (s *Service) track(ctx context.Context, productID, version int64, stock int) error {
	low := stock <= s.LowStockThreshold
	applied, err := s.Cache.ApplyLowStock(ctx, productID, version, low)
	if err != nil {
		return err
	}
	if !applied {
		slog.DebugContext(ctx, "stale stock event skipped", "product_id", productID, "version", version)
		return nil
	}
	if low {
		slog.WarnContext(ctx, "low stock", "product_id", productID, "stock", stock, "threshold", s.LowStockThreshold)
	}
	return nil
}

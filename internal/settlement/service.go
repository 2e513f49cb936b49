// Package settlement consumes paid-order events and reconciles stock across
// the catalog store and the search index. Delivery is at-least-once, so every
// step tolerates replay: the catalog store keeps one applied record per
// (order, product) pair and redeliveries become stock no-ops.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/retailcore/go-order-settlement/internal/apperr"
	"github.com/retailcore/go-order-settlement/internal/catalog"
	kafkax "github.com/retailcore/go-order-settlement/internal/kafka"
	"github.com/retailcore/go-order-settlement/internal/orders"
	"github.com/retailcore/go-order-settlement/internal/redisx"
)

// StockSettler applies one (order, product) decrement exactly once.
type StockSettler interface {
	ApplyDecrement(ctx context.Context, orderID, productID string, qty int) (catalog.Application, error)
}

// Mirror is the search-index surface the consumer updates best-effort.
type Mirror interface {
	Get(ctx context.Context, productID string) (*catalog.Document, error)
	Save(ctx context.Context, doc catalog.Document) error
}

// Dedup is a fast-path seen-before check on event IDs. It is advisory only;
// the applied records in the catalog store are the real idempotency guard.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type RedisDedup struct {
	R       *redis.Client
	Service string
}

func (d *RedisDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return redisx.Exists(ctx, d.R, fmt.Sprintf(redisx.KeyDedup, d.Service, eventID))
}

func (d *RedisDedup) Mark(ctx context.Context, eventID string) error {
	return d.R.Set(ctx, fmt.Sprintf(redisx.KeyDedup, d.Service, eventID), "1", redisx.TTLDedup).Err()
}

type Service struct {
	Catalog StockSettler
	Index   Mirror
	Dedup   Dedup
}

// HandleOrderPaid is the consumer handler for the order.paid topic. A non-nil
// return leaves the offset uncommitted so the event is redelivered; only
// transient infrastructure failures warrant that. Per-pair domain failures
// (missing product, oversold) are logged and do not block the rest of the event.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// Poison message: log and commit, redelivery cannot fix it.
		slog.Error("undecodable settlement event, dropping", slog.Any("error", err))
		return nil
	}
	if env.EventType != orders.EventOrderPaid {
		return nil
	}

	if seen, err := s.Dedup.Seen(ctx, env.EventID); err == nil && seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
	if err != nil {
		slog.Error("undecodable order paid payload, dropping",
			slog.String("event_id", env.EventID), slog.Any("error", err))
		return nil
	}

	var retryable error
	for _, it := range p.Items {
		if err := s.settleItem(ctx, p.OrderID, it); err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				// Pair isolation: one missing product must not hold the
				// other pairs of the event hostage.
				slog.Error("settlement skipped, product missing",
					slog.String("order_id", p.OrderID),
					slog.String("product_id", it.ProductID),
					slog.Any("error", err))
				continue
			}
			if retryable == nil {
				retryable = err
			}
		}
	}
	if retryable != nil {
		return fmt.Errorf("settle order %s: %w", p.OrderID, retryable)
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		slog.Warn("dedup mark failed", slog.String("event_id", env.EventID), slog.Any("error", err))
	}
	return nil
}

func (s *Service) settleItem(ctx context.Context, orderID string, it orders.ItemQty) error {
	app, err := s.Catalog.ApplyDecrement(ctx, orderID, it.ProductID, it.Qty)
	if err != nil {
		return err
	}

	if app.Oversold {
		// Policy choice: clamp and carry on rather than fail the order.
		slog.Error("oversold stock clamped to zero",
			slog.String("order_id", orderID),
			slog.String("product_id", it.ProductID),
			slog.Int("quantity", it.Qty))
	}
	if !app.Applied {
		slog.Info("settlement already applied, skipping decrement",
			slog.String("order_id", orderID),
			slog.String("product_id", it.ProductID))
	}

	// Best-effort mirror of the current value. Only existing documents are
	// updated; index population belongs to the catalog write path.
	doc, err := s.Index.Get(ctx, it.ProductID)
	if err != nil {
		slog.Error("index read failed, document stale until reindex",
			slog.String("product_id", it.ProductID), slog.Any("error", err))
		return nil
	}
	if doc == nil {
		return nil
	}
	doc.Stock = app.NewStock
	doc.UpdatedAt = time.Now().UTC()
	if err := s.Index.Save(ctx, *doc); err != nil {
		slog.Error("index mirror failed, document stale until reindex",
			slog.String("product_id", it.ProductID), slog.Any("error", err))
	}
	return nil
}

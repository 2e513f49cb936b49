package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/retailcore/go-order-settlement/internal/apperr"
	"github.com/retailcore/go-order-settlement/internal/catalog"
	kafkax "github.com/retailcore/go-order-settlement/internal/kafka"
	"github.com/retailcore/go-order-settlement/internal/users"
)

type OrderStore interface {
	Save(ctx context.Context, o Order) error
	Get(ctx context.Context, orderID string) (Order, error)
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
	FindByUser(ctx context.Context, userID string, pr PageRequest) (Page, error)
}

type CatalogReader interface {
	Get(ctx context.Context, productID string) (catalog.CatalogItem, error)
}

type UserStore interface {
	GetByUsername(ctx context.Context, username string) (users.User, error)
}

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Service drives the order state machine: PENDING -> PAID on payment,
// PENDING or CANCELLED at creation, nothing after a terminal state.
type Service struct {
	Orders      OrderStore
	Catalog     CatalogReader
	Users       UserStore
	Events      Publisher
	ServiceName string
}

// Create places an order for username. Any missing product fails the whole
// call; any insufficient line cancels the whole order (no lines, zero total).
// Stock is not decremented here, only checked: the decrement happens at
// settlement after payment.
func (s *Service) Create(ctx context.Context, username string, lines []LineInput) (Order, error) {
	if len(lines) == 0 {
		return Order{}, apperr.Validation("order must have at least one line")
	}
	for _, ln := range lines {
		if ln.Quantity < 1 {
			return Order{}, apperr.Validation("quantity must be at least 1 for product %s", ln.ProductID)
		}
	}
	lines = mergeLines(lines)

	user, err := s.Users.GetByUsername(ctx, username)
	if err != nil {
		return Order{}, err
	}

	o := Order{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		Status:    StatusPending,
		Total:     decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}

	for _, ln := range lines {
		item, err := s.Catalog.Get(ctx, ln.ProductID)
		if err != nil {
			return Order{}, err
		}
		if item.Stock < ln.Quantity {
			// All-or-nothing: the first shortfall cancels the whole order.
			o.Status = StatusCancelled
			o.Lines = nil
			o.Total = decimal.Zero
			break
		}
		o.Lines = append(o.Lines, OrderLine{
			ProductID:       item.ID,
			ProductName:     item.Name,
			Quantity:        ln.Quantity,
			PriceAtPurchase: item.Price, // snapshot, never re-priced
		})
		o.Total = o.Total.Add(item.Price.Mul(decimal.NewFromInt(int64(ln.Quantity))))
	}

	if err := s.Orders.Save(ctx, o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Pay flips a PENDING order to PAID and publishes the paid event. The status
// write is durable before the publish; a failed publish leaves the order PAID
// and is reported as a settlement gap, not rolled back.
func (s *Service) Pay(ctx context.Context, orderID, username string) (Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Username != username {
		return Order{}, apperr.Unauthorized("you can only pay your own orders")
	}
	if !CanTransition(o.Status, StatusPaid) {
		return Order{}, apperr.InvalidState("order cannot be paid, current status: %s", o.Status)
	}

	paidAt := time.Now().UTC()
	ok, err := s.Orders.MarkPaid(ctx, orderID, paidAt)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		// Lost the race: someone else moved the order first.
		cur, err := s.Orders.Get(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		return Order{}, apperr.InvalidState("order cannot be paid, current status: %s", cur.Status)
	}
	o.Status = StatusPaid
	o.PaidAt = &paidAt

	s.publishPaid(ctx, o)
	return o, nil
}

func (s *Service) ListMine(ctx context.Context, username string, pr PageRequest) (Page, error) {
	user, err := s.Users.GetByUsername(ctx, username)
	if err != nil {
		return Page{}, err
	}
	if pr.Size <= 0 {
		pr.Size = 20
	}
	if pr.Page < 0 {
		pr.Page = 0
	}
	return s.Orders.FindByUser(ctx, user.ID, pr)
}

// mergeLines folds repeated products into one line each, summing quantities.
// Order lines key on (order_id, product_id), so a request listing the same
// product twice must collapse before the stock check and the insert.
func mergeLines(lines []LineInput) []LineInput {
	merged := make([]LineInput, 0, len(lines))
	at := make(map[string]int, len(lines))
	for _, ln := range lines {
		if i, ok := at[ln.ProductID]; ok {
			merged[i].Quantity += ln.Quantity
			continue
		}
		at[ln.ProductID] = len(merged)
		merged = append(merged, ln)
	}
	return merged
}

func (s *Service) publishPaid(ctx context.Context, o Order) {
	items := make([]ItemQty, 0, len(o.Lines))
	for _, ln := range o.Lines {
		items = append(items, ItemQty{ProductID: ln.ProductID, Qty: ln.Quantity})
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderPaid,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(OrderPaidPayload{OrderID: o.ID, Items: items}),
	}
	err := s.Events.Publish(ctx, PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderPaid)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if err != nil {
		// Known gap: order stays PAID, stock for it is never decremented
		// until an out-of-band retry. Loud on purpose.
		slog.Error("order paid event publish failed, settlement gap",
			slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

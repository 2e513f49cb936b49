package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/retailcore/go-order-settlement/internal/apperr"
	"github.com/retailcore/go-order-settlement/internal/catalog"
	kafkax "github.com/retailcore/go-order-settlement/internal/kafka"
	"github.com/retailcore/go-order-settlement/internal/orders"
)

type fakeSettler struct {
	stock   map[string]int
	applied map[string]bool
	err     error
}

func newFakeSettler(stock map[string]int) *fakeSettler {
	return &fakeSettler{stock: stock, applied: map[string]bool{}}
}

func (f *fakeSettler) ApplyDecrement(_ context.Context, orderID, productID string, qty int) (catalog.Application, error) {
	if f.err != nil {
		return catalog.Application{}, f.err
	}
	cur, ok := f.stock[productID]
	if !ok {
		return catalog.Application{}, apperr.NotFound("product not found: %s", productID)
	}
	key := orderID + "|" + productID
	if f.applied[key] {
		return catalog.Application{Applied: false, NewStock: cur}, nil
	}
	newStock, oversold := catalog.ClampDecrement(cur, qty)
	f.stock[productID] = newStock
	f.applied[key] = true
	return catalog.Application{Applied: true, NewStock: newStock, Oversold: oversold}, nil
}

type fakeMirror struct {
	docs map[string]catalog.Document
}

func newFakeMirror() *fakeMirror { return &fakeMirror{docs: map[string]catalog.Document{}} }

func (f *fakeMirror) Get(_ context.Context, productID string) (*catalog.Document, error) {
	doc, ok := f.docs[productID]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (f *fakeMirror) Save(_ context.Context, doc catalog.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

type fakeDedup struct {
	seen map[string]bool
}

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: map[string]bool{}} }

func (f *fakeDedup) Seen(_ context.Context, eventID string) (bool, error) { return f.seen[eventID], nil }
func (f *fakeDedup) Mark(_ context.Context, eventID string) error {
	f.seen[eventID] = true
	return nil
}

func paidMessage(orderID string, items ...orders.ItemQty) kafkago.Message {
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPaid,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "order-api-test",
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(orders.OrderPaidPayload{OrderID: orderID, Items: items}),
	}
	return kafkago.Message{Key: orders.PartitionKey(orderID), Value: kafkax.MustMarshal(env)}
}

const productP = "aaaaaaaa-0000-4000-8000-0000000000aa"

func TestSettlementDecrementsStockAndMirrorsIndex(t *testing.T) {
	settler := newFakeSettler(map[string]int{productP: 2})
	mirror := newFakeMirror()
	mirror.docs[productP] = catalog.Document{ID: productP, Name: "Keyboard", Stock: 2}
	svc := &Service{Catalog: settler, Index: mirror, Dedup: newFakeDedup()}

	m := paidMessage("order-1", orders.ItemQty{ProductID: productP, Qty: 2})
	if err := svc.HandleOrderPaid(context.Background(), m); err != nil {
		t.Fatalf("HandleOrderPaid: %v", err)
	}

	if got := settler.stock[productP]; got != 0 {
		t.Errorf("stock = %d, want 0", got)
	}
	if got := mirror.docs[productP].Stock; got != 0 {
		t.Errorf("index stock = %d, want 0", got)
	}
}

func TestSettlementOversoldClampsToZero(t *testing.T) {
	settler := newFakeSettler(map[string]int{productP: 2})
	svc := &Service{Catalog: settler, Index: newFakeMirror(), Dedup: newFakeDedup()}

	m := paidMessage("order-1", orders.ItemQty{ProductID: productP, Qty: 5})
	if err := svc.HandleOrderPaid(context.Background(), m); err != nil {
		t.Fatalf("HandleOrderPaid: %v", err)
	}
	if got := settler.stock[productP]; got != 0 {
		t.Errorf("stock = %d, want exactly 0 after oversold clamp", got)
	}
}

func TestSettlementRedeliveryIsIdempotent(t *testing.T) {
	settler := newFakeSettler(map[string]int{productP: 10})
	// Dedup that remembers nothing: redelivery must be stopped by the
	// applied records alone.
	svc := &Service{Catalog: settler, Index: newFakeMirror(), Dedup: noopDedup{}}

	m := paidMessage("order-1", orders.ItemQty{ProductID: productP, Qty: 3})
	for i := 0; i < 3; i++ {
		if err := svc.HandleOrderPaid(context.Background(), m); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if got := settler.stock[productP]; got != 7 {
		t.Errorf("stock = %d, want 7 (single decrement)", got)
	}
}

type noopDedup struct{}

func (noopDedup) Seen(context.Context, string) (bool, error) { return false, nil }
func (noopDedup) Mark(context.Context, string) error         { return nil }

func TestSettlementDedupFastPath(t *testing.T) {
	settler := newFakeSettler(map[string]int{productP: 10})
	dedup := newFakeDedup()
	svc := &Service{Catalog: settler, Index: newFakeMirror(), Dedup: dedup}

	m := paidMessage("order-1", orders.ItemQty{ProductID: productP, Qty: 3})
	if err := svc.HandleOrderPaid(context.Background(), m); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleOrderPaid(context.Background(), m); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if got := settler.stock[productP]; got != 7 {
		t.Errorf("stock = %d, want 7", got)
	}
}

func TestSettlementNeverCreatesIndexDocuments(t *testing.T) {
	settler := newFakeSettler(map[string]int{productP: 5})
	mirror := newFakeMirror()
	svc := &Service{Catalog: settler, Index: mirror, Dedup: newFakeDedup()}

	m := paidMessage("order-1", orders.ItemQty{ProductID: productP, Qty: 1})
	if err := svc.HandleOrderPaid(context.Background(), m); err != nil {
		t.Fatalf("HandleOrderPaid: %v", err)
	}
	if len(mirror.docs) != 0 {
		t.Error("mirror must not create documents")
	}
}

func TestSettlementIsolatesMissingProduct(t *testing.T) {
	settler := newFakeSettler(map[string]int{productP: 5})
	svc := &Service{Catalog: settler, Index: newFakeMirror(), Dedup: newFakeDedup()}

	m := paidMessage("order-1",
		orders.ItemQty{ProductID: "aaaaaaaa-0000-4000-8000-00000000dead", Qty: 1},
		orders.ItemQty{ProductID: productP, Qty: 2},
	)
	if err := svc.HandleOrderPaid(context.Background(), m); err != nil {
		t.Fatalf("missing product must not fail the event: %v", err)
	}
	if got := settler.stock[productP]; got != 3 {
		t.Errorf("stock = %d, want 3 (other pair still settled)", got)
	}
}

func TestSettlementRetriesOnTransientFailure(t *testing.T) {
	settler := newFakeSettler(map[string]int{productP: 5})
	settler.err = apperr.Transient(nil, "db down")
	dedup := newFakeDedup()
	svc := &Service{Catalog: settler, Index: newFakeMirror(), Dedup: dedup}

	m := paidMessage("order-1", orders.ItemQty{ProductID: productP, Qty: 2})
	if err := svc.HandleOrderPaid(context.Background(), m); err == nil {
		t.Fatal("transient failure must surface so the event is redelivered")
	}
	if len(dedup.seen) != 0 {
		t.Error("failed event must not be marked as seen")
	}

	settler.err = nil
	if err := svc.HandleOrderPaid(context.Background(), m); err != nil {
		t.Fatalf("redelivery after recovery: %v", err)
	}
	if got := settler.stock[productP]; got != 3 {
		t.Errorf("stock = %d, want 3", got)
	}
}

func TestSettlementIgnoresForeignAndBrokenMessages(t *testing.T) {
	settler := newFakeSettler(map[string]int{productP: 5})
	svc := &Service{Catalog: settler, Index: newFakeMirror(), Dedup: newFakeDedup()}

	other := paidMessage("order-1", orders.ItemQty{ProductID: productP, Qty: 2})
	var env orders.Envelope
	_ = kafkax.UnmarshalEnvelope(other.Value, &env)
	env.EventType = "SomethingElse"
	other.Value = kafkax.MustMarshal(env)

	if err := svc.HandleOrderPaid(context.Background(), other); err != nil {
		t.Fatalf("foreign event type: %v", err)
	}
	if err := svc.HandleOrderPaid(context.Background(), kafkago.Message{Value: []byte("{not json")}); err != nil {
		t.Fatalf("poison message must be dropped, not retried: %v", err)
	}
	if got := settler.stock[productP]; got != 5 {
		t.Errorf("stock = %d, want untouched 5", got)
	}
}

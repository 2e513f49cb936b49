package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/retailcore/go-order-settlement/internal/apperr"
)

type memStore struct {
	items map[string]CatalogItem
}

func newMemStore() *memStore { return &memStore{items: map[string]CatalogItem{}} }

func (m *memStore) Get(_ context.Context, id string) (CatalogItem, error) {
	it, ok := m.items[id]
	if !ok {
		return CatalogItem{}, apperr.NotFound("product not found: %s", id)
	}
	return it, nil
}

func (m *memStore) List(_ context.Context) ([]CatalogItem, error) {
	out := make([]CatalogItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, it CatalogItem) error {
	m.items[it.ID] = it
	return nil
}

func (m *memStore) Update(_ context.Context, it CatalogItem) error {
	if _, ok := m.items[it.ID]; !ok {
		return apperr.NotFound("product not found: %s", it.ID)
	}
	m.items[it.ID] = it
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("product not found: %s", id)
	}
	delete(m.items, id)
	return nil
}

type memIndex struct {
	docs    map[string]Document
	saveErr error
}

func newMemIndex() *memIndex { return &memIndex{docs: map[string]Document{}} }

func (m *memIndex) Save(_ context.Context, doc Document) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.docs[doc.ID] = doc
	return nil
}

func (m *memIndex) Delete(_ context.Context, id string) error {
	delete(m.docs, id)
	return nil
}

func TestServiceCreateMirrorsDocument(t *testing.T) {
	store := newMemStore()
	index := newMemIndex()
	svc := &Service{Store: store, Index: index}

	it, err := svc.Create(context.Background(), NewItem{
		Name:  "keyboard",
		Price: decimal.RequireFromString("129.90"),
		Stock: 5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if it.ID == "" {
		t.Fatal("expected generated product id")
	}

	doc, ok := index.docs[it.ID]
	if !ok {
		t.Fatal("expected index document after create")
	}
	if doc.Stock != 5 || doc.Name != "keyboard" {
		t.Errorf("document diverges from item: %+v", doc)
	}
	if !doc.Price.Equal(it.Price) {
		t.Errorf("document price %s, want %s", doc.Price, it.Price)
	}
}

func TestServiceCreateSurvivesIndexFailure(t *testing.T) {
	store := newMemStore()
	index := newMemIndex()
	index.saveErr = errors.New("index down")
	svc := &Service{Store: store, Index: index}

	it, err := svc.Create(context.Background(), NewItem{Name: "mouse", Price: decimal.RequireFromString("19.90")})
	if err != nil {
		t.Fatalf("index failure must not fail the write path: %v", err)
	}
	if _, ok := store.items[it.ID]; !ok {
		t.Fatal("catalog record missing")
	}
	if len(index.docs) != 0 {
		t.Fatal("no document should exist after index failure")
	}
}

func TestServiceUpdateAndDelete(t *testing.T) {
	store := newMemStore()
	index := newMemIndex()
	svc := &Service{Store: store, Index: index}

	it, err := svc.Create(context.Background(), NewItem{Name: "desk", Price: decimal.RequireFromString("300.00"), Stock: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(context.Background(), it.ID, ItemUpdate{
		Name:  "standing desk",
		Price: decimal.RequireFromString("450.00"),
		Stock: 3,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.CreatedAt != it.CreatedAt {
		t.Error("update must not touch created_at")
	}
	if index.docs[it.ID].Name != "standing desk" {
		t.Error("index document not refreshed on update")
	}

	if err := svc.Delete(context.Background(), it.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := index.docs[it.ID]; ok {
		t.Error("index document not removed on delete")
	}

	if _, err := svc.Update(context.Background(), "missing", ItemUpdate{Name: "x", Price: decimal.Zero}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound for missing product, got %v", err)
	}
}

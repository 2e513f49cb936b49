package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemStore is the authoritative catalog record store.
type ItemStore interface {
	Get(ctx context.Context, productID string) (CatalogItem, error)
	List(ctx context.Context) ([]CatalogItem, error)
	Create(ctx context.Context, it CatalogItem) error
	Update(ctx context.Context, it CatalogItem) error
	Delete(ctx context.Context, productID string) error
}

// DocIndex is the search index write surface used by the catalog write path.
type DocIndex interface {
	Save(ctx context.Context, doc Document) error
	Delete(ctx context.Context, productID string) error
}

// Service owns the catalog write path. Every write lands in the item store
// first, then is mirrored into the search index; index failures are logged
// and left for the reindexing sweep, never bubbled to the caller.
type Service struct {
	Store ItemStore
	Index DocIndex
}

type NewItem struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
}

type ItemUpdate struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	Stock       int
}

func (s *Service) Create(ctx context.Context, in NewItem) (CatalogItem, error) {
	now := time.Now().UTC()
	it := CatalogItem{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Stock:       in.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.Create(ctx, it); err != nil {
		return CatalogItem{}, err
	}
	s.mirror(ctx, it)
	return it, nil
}

func (s *Service) Update(ctx context.Context, productID string, in ItemUpdate) (CatalogItem, error) {
	it, err := s.Store.Get(ctx, productID)
	if err != nil {
		return CatalogItem{}, err
	}
	it.Name = in.Name
	it.Description = in.Description
	it.Price = in.Price
	it.Category = in.Category
	it.Stock = in.Stock
	it.UpdatedAt = time.Now().UTC()

	if err := s.Store.Update(ctx, it); err != nil {
		return CatalogItem{}, err
	}
	s.mirror(ctx, it)
	return it, nil
}

func (s *Service) Delete(ctx context.Context, productID string) error {
	if err := s.Store.Delete(ctx, productID); err != nil {
		return err
	}
	if err := s.Index.Delete(ctx, productID); err != nil {
		slog.Error("index delete failed, document will linger until reindex",
			slog.String("product_id", productID), slog.Any("error", err))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, productID string) (CatalogItem, error) {
	return s.Store.Get(ctx, productID)
}

func (s *Service) List(ctx context.Context) ([]CatalogItem, error) {
	return s.Store.List(ctx)
}

func (s *Service) mirror(ctx context.Context, it CatalogItem) {
	if err := s.Index.Save(ctx, documentOf(it)); err != nil {
		slog.Error("index mirror failed, document stale until reindex",
			slog.String("product_id", it.ID), slog.Any("error", err))
	}
}

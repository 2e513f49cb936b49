package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogItem is the authoritative product record. Stock is never persisted
// negative; the settlement path clamps before writing.
type CatalogItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Document is the denormalized search-index copy of a CatalogItem. It lives
// in a separate store with no transactional link to the catalog and may
// transiently disagree with it.
type Document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func documentOf(it CatalogItem) Document {
	return Document{
		ID:          it.ID,
		Name:        it.Name,
		Description: it.Description,
		Price:       it.Price,
		Category:    it.Category,
		Stock:       it.Stock,
		UpdatedAt:   it.UpdatedAt,
	}
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/retailcore/go-order-settlement/internal/apperr"
	"github.com/retailcore/go-order-settlement/internal/redisx"
)

// Index is the search-side document store. It is independently updatable and
// not transactionally linked to the catalog; writers treat it as best-effort.
type Index struct{ R *redis.Client }

// Get returns the document for productID, or nil if none is indexed.
func (ix *Index) Get(ctx context.Context, productID string) (*Document, error) {
	key := fmt.Sprintf(redisx.KeySearchProduct, productID)
	raw, err := ix.R.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient(err, "read index document")
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode index document %s: %w", productID, err)
	}
	return &doc, nil
}

func (ix *Index) Save(ctx context.Context, doc Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode index document %s: %w", doc.ID, err)
	}
	key := fmt.Sprintf(redisx.KeySearchProduct, doc.ID)
	if err := ix.R.Set(ctx, key, b, 0).Err(); err != nil {
		return apperr.Transient(err, "write index document")
	}
	return nil
}

func (ix *Index) Delete(ctx context.Context, productID string) error {
	key := fmt.Sprintf(redisx.KeySearchProduct, productID)
	if err := ix.R.Del(ctx, key).Err(); err != nil {
		return apperr.Transient(err, "delete index document")
	}
	return nil
}

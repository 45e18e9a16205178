package services

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tenantcart/apiserver/types"
)

const maxCatalogBytes = 4 << 20

//go:embed catalog.json
var defaultCatalog []byte

// CatalogSource reads the catalog document from object storage.
type CatalogSource interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// CatalogService serves the storefront product list. It starts from the
// built-in catalog and, when a source is configured, replaces it on Refresh.
type CatalogService struct {
	source CatalogSource
	key    string

	mu       sync.RWMutex
	products []types.Product
	loadedAt time.Time
}

func NewCatalogService(source CatalogSource, key string) (*CatalogService, error) {
	products, err := ParseCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		return nil, fmt.Errorf("built-in catalog: %w", err)
	}
	return &CatalogService{
		source:   source,
		key:      key,
		products: products,
	}, nil
}

// Products returns a copy of the current catalog.
func (s *CatalogService) Products() []types.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Product, len(s.products))
	copy(out, s.products)
	return out
}

// LoadedAt is the time of the last successful refresh, zero if none.
func (s *CatalogService) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Refresh reloads the catalog from the source. The current catalog is kept
// when loading fails.
func (s *CatalogService) Refresh(ctx context.Context) error {
	if s.source == nil {
		return nil
	}

	rc, err := s.source.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("open catalog %q: %w", s.key, err)
	}
	defer rc.Close()

	products, err := ParseCatalog(rc)
	if err != nil {
		return fmt.Errorf("load catalog %q: %w", s.key, err)
	}

	s.mu.Lock()
	s.products = products
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// ParseCatalog decodes and validates a JSON array of products.
func ParseCatalog(r io.Reader) ([]types.Product, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxCatalogBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxCatalogBytes {
		return nil, errors.New("catalog is too large")
	}

	var products []types.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(products) == 0 {
		return nil, errors.New("catalog is empty")
	}

	seen := make(map[types.ProductID]struct{}, len(products))
	for i, p := range products {
		if p.ID.IsZero() {
			return nil, fmt.Errorf("product %d: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("product %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("product %s: name is required", p.ID)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("product %s: price must not be negative", p.ID)
		}
	}
	return products, nil
}

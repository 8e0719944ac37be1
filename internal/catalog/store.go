package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mesh-agent/internal/models"
)

var (
	ErrNotFound = errors.New("PRODUCT_NOT_FOUND")
)

// Store is the read-only contract the navigator needs from the product
// catalog. The dialogue core never writes products.
type Store interface {
	ByID(ctx context.Context, id string) (*models.Product, error)
	ChildrenOf(ctx context.Context, parentID string) ([]models.Product, error)
	// AncestorsOf returns the chain nearest-first (parent, grandparent, ...,
	// root), excluding the node itself.
	AncestorsOf(ctx context.Context, id string) ([]models.Product, error)
	// SellableDescendantsOf enumerates every sellable, active node under a
	// root, the root included if it qualifies.
	SellableDescendantsOf(ctx context.Context, rootID string) ([]models.Product, error)
	SearchText(ctx context.Context, query string) ([]models.Product, error)
	PreferredLink(ctx context.Context, productID string) (*models.ProductLink, error)
}

// PostgresStore reads the catalog tree from the products table using
// recursive CTEs for lineage walks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const productColumns = `id, name, COALESCE(parent_id, ''), sellable, active, COALESCE(size_text, ''), COALESCE(alias, ''), price, stock, COALESCE(wholesale_min, 0)`

func scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.ParentID, &p.Sellable, &p.Active,
		&p.SizeText, &p.Alias, &p.Price, &p.Stock, &p.WholesaleMin,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ByID(ctx context.Context, id string) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ChildrenOf(ctx context.Context, parentID string) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE parent_id = $1 AND active = true
		ORDER BY name`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectProducts(rows)
}

func (s *PostgresStore) AncestorsOf(ctx context.Context, id string) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE lineage AS (
			SELECT p.*, 0 AS depth FROM products p WHERE p.id = $1
			UNION ALL
			SELECT p.*, l.depth + 1 FROM products p
			JOIN lineage l ON p.id = l.parent_id
		)
		SELECT `+productColumns+`
		FROM lineage
		WHERE depth > 0
		ORDER BY depth`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectProducts(rows)
}

func (s *PostgresStore) SellableDescendantsOf(ctx context.Context, rootID string) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT p.* FROM products p WHERE p.id = $1
			UNION ALL
			SELECT p.* FROM products p
			JOIN subtree s ON p.parent_id = s.id
		)
		SELECT `+productColumns+`
		FROM subtree
		WHERE sellable = true AND active = true
		ORDER BY name`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectProducts(rows)
}

func (s *PostgresStore) SearchText(ctx context.Context, query string) ([]models.Product, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		  AND (name ILIKE $1 OR alias ILIKE $1 OR size_text ILIKE $1)
		ORDER BY name`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectProducts(rows)
}

func (s *PostgresStore) PreferredLink(ctx context.Context, productID string) (*models.ProductLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT product_id, url, marketplace, preferred
		FROM product_links
		WHERE product_id = $1
		ORDER BY preferred DESC
		LIMIT 1`, productID)

	var l models.ProductLink
	err := row.Scan(&l.ProductID, &l.URL, &l.Marketplace, &l.Preferred)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: link for %s", ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectProducts(rows *sql.Rows) ([]models.Product, error) {
	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

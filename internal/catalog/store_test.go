package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "parent_id", "sellable", "active",
		"size_text", "alias", "price", "stock", "wholesale_min",
	})
}

func TestPostgresStore_ByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM products").
		WithArgs("p80-4x6").
		WillReturnRows(productRows().
			AddRow("p80-4x6", "Panel 4x6", "p80", true, true, "4x6", "", 42.0, 10, 0))

	store := NewPostgresStore(db)
	p, err := store.ByID(context.Background(), "p80-4x6")
	require.NoError(t, err)
	assert.Equal(t, "Panel 4x6", p.Name)
	assert.Equal(t, "p80", p.ParentID)
	assert.True(t, p.Sellable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM products").
		WithArgs("missing").
		WillReturnRows(productRows())

	store := NewPostgresStore(db)
	_, err = store.ByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresStore_AncestorsOf(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("WITH RECURSIVE lineage").
		WithArgs("p80-4x6").
		WillReturnRows(productRows().
			AddRow("p80", "80% shade", "mesh", false, true, "", "", 0.0, 0, 0).
			AddRow("mesh", "Shade Mesh", "", false, true, "", "", 0.0, 0, 0))

	store := NewPostgresStore(db)
	ancestors, err := store.AncestorsOf(context.Background(), "p80-4x6")
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	// Nearest-first ordering.
	assert.Equal(t, "p80", ancestors[0].ID)
	assert.Equal(t, "mesh", ancestors[1].ID)
}

func TestPostgresStore_SellableDescendantsOf(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("WITH RECURSIVE subtree").
		WithArgs("p80").
		WillReturnRows(productRows().
			AddRow("p80-4x6", "Panel 4x6", "p80", true, true, "4x6", "", 42.0, 10, 0).
			AddRow("p80-5x6", "Panel 5x6", "p80", true, true, "5x6", "", 55.0, 4, 0))

	store := NewPostgresStore(db)
	leaves, err := store.SellableDescendantsOf(context.Background(), "p80")
	require.NoError(t, err)
	assert.Len(t, leaves, 2)
}

func TestPostgresStore_PreferredLink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM product_links").
		WithArgs("p80-4x6").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "url", "marketplace", "preferred"}).
			AddRow("p80-4x6", "https://market.example/p80-4x6", "mercado", true))

	store := NewPostgresStore(db)
	link, err := store.PreferredLink(context.Background(), "p80-4x6")
	require.NoError(t, err)
	assert.True(t, link.Preferred)
	assert.Equal(t, "https://market.example/p80-4x6", link.URL)
}

func TestPostgresStore_SearchText(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM products").
		WithArgs("%4x6%").
		WillReturnRows(productRows().
			AddRow("p80-4x6", "Panel 4x6", "p80", true, true, "4x6", "", 42.0, 10, 0))

	store := NewPostgresStore(db)
	hits, err := store.SearchText(context.Background(), "4x6")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p80-4x6", hits[0].ID)
}

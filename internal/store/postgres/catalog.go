package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

var (
	productColumns  = []string{"id", "name", "category", "price", "image_path", "quantity", "active", "created_at"}
	materialColumns = []string{"id", "name", "unit", "price", "image_path", "quantity", "active", "created_at"}
)

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := psql.Select(productColumns...).From("products").OrderBy("category", "name")
	if !includeInactive {
		query = query.Where(squirrel.Eq{"active": true})
	}
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, 64)
	if err := sqlscan.Select(ctx, s.db, &products, sqlText, args...); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	sqlText, args, err := psql.Select(productColumns...).From("products").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var p domain.Product
	if err := sqlscan.Get(ctx, s.db, &p, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	sqlText, args, err := psql.Insert("products").
		Columns("name", "category", "price", "image_path", "quantity", "active").
		Values(product.Name, product.Category, product.Price, product.ImagePath, product.Quantity, product.Active).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, sqlText, args...).Scan(&product.ID, &product.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	sqlText, args, err := psql.Update("products").
		Set("name", product.Name).
		Set("category", product.Category).
		Set("price", product.Price).
		Set("active", product.Active).
		Where(squirrel.Eq{"id": product.ID}).
		Suffix("RETURNING " + joinColumns(productColumns)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var updated domain.Product
	if err := sqlscan.Get(ctx, s.db, &updated, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) ListMaterials(ctx context.Context, includeInactive bool) ([]domain.Material, error) {
	query := psql.Select(materialColumns...).From("inventory").OrderBy("name")
	if !includeInactive {
		query = query.Where(squirrel.Eq{"active": true})
	}
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	materials := make([]domain.Material, 0, 64)
	if err := sqlscan.Select(ctx, s.db, &materials, sqlText, args...); err != nil {
		return nil, err
	}
	return materials, nil
}

func (s *Store) GetMaterial(ctx context.Context, id int64) (*domain.Material, error) {
	sqlText, args, err := psql.Select(materialColumns...).From("inventory").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var m domain.Material
	if err := sqlscan.Get(ctx, s.db, &m, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error) {
	if material.Name == "" || material.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	sqlText, args, err := psql.Insert("inventory").
		Columns("name", "unit", "price", "image_path", "quantity", "active").
		Values(material.Name, material.Unit, material.Price, material.ImagePath, material.Quantity, material.Active).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, sqlText, args...).Scan(&material.ID, &material.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &material, nil
}

func (s *Store) UpdateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error) {
	sqlText, args, err := psql.Update("inventory").
		Set("name", material.Name).
		Set("unit", material.Unit).
		Set("price", material.Price).
		Set("active", material.Active).
		Where(squirrel.Eq{"id": material.ID}).
		Suffix("RETURNING " + joinColumns(materialColumns)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var updated domain.Material
	if err := sqlscan.Get(ctx, s.db, &updated, sqlText, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) SetItemImage(ctx context.Context, item domain.ItemRef, path string) error {
	table, err := itemTable(item.Kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET image_path = $1 WHERE id = $2`, table), path, item.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetLiveQuantities(ctx context.Context, quantities map[domain.ItemRef]int) error {
	return s.withTx(ctx, "set_live_quantities", sql.LevelReadCommitted, func(ctx context.Context, tx *sql.Tx) error {
		for item, qty := range quantities {
			if qty < 0 {
				return store.ErrInvalidInput
			}
			if err := setLiveQuantityTx(ctx, tx, item, qty); err != nil {
				return err
			}
		}
		return nil
	})
}

func setLiveQuantityTx(ctx context.Context, tx *sql.Tx, item domain.ItemRef, qty int) error {
	table, err := itemTable(item.Kind)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET quantity = $1 WHERE id = $2`, table), qty, item.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", item, store.ErrNotFound)
	}
	return nil
}

func liveQuantityTx(ctx context.Context, tx *sql.Tx, item domain.ItemRef) (int, error) {
	table, err := itemTable(item.Kind)
	if err != nil {
		return 0, err
	}
	var qty int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT quantity FROM %s WHERE id = $1`, table), item.ID).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%s: %w", item, store.ErrNotFound)
	}
	return qty, err
}

func lockedLiveQuantityTx(ctx context.Context, tx *sql.Tx, item domain.ItemRef) (int, error) {
	table, err := itemTable(item.Kind)
	if err != nil {
		return 0, err
	}
	var qty int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT quantity FROM %s WHERE id = $1 FOR UPDATE`, table), item.ID).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%s: %w", item, store.ErrNotFound)
	}
	return qty, err
}

func itemTable(kind domain.ItemKind) (string, error) {
	switch kind {
	case domain.KindProduct:
		return "products", nil
	case domain.KindInventory:
		return "inventory", nil
	default:
		return "", store.ErrInvalidInput
	}
}

func joinColumns(columns []string) string {
	out := ""
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

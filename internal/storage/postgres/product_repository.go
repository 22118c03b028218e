package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var productColumns = []string{
	"p.id", "p.name", "p.description", "p.image_url", "p.category", "p.sub_category_id",
	"p.sizes", "p.options", "p.available", "p.sort_order", "p.created_at", "p.updated_at",
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию каталога.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := psql.Select(productColumns...).From("products p").Where(sq.Eq{"p.id": id}).ToSql()
	if err != nil {
		return domain.Product{}, fmt.Errorf("build product query: %w", err)
	}

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// List строит запрос динамически: фильтры добавляются только если заданы.
func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args, err := buildProductListQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build product list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func buildProductListQuery(filter domain.ProductFilter) sq.SelectBuilder {
	builder := psql.Select(productColumns...).
		From("products p").
		LeftJoin("sub_categories s ON s.id = p.sub_category_id").
		OrderBy("COALESCE(s.sort_order, 0)", "p.sort_order", "lower(p.name)")

	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"p.category": string(filter.Category)})
	}
	if filter.SubCategoryID != "" {
		builder = builder.Where(sq.Eq{"p.sub_category_id": filter.SubCategoryID})
	}
	if filter.OnlyAvailable {
		builder = builder.Where(sq.Eq{"p.available": true})
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + q + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"p.name": pattern},
			sq.ILike{"p.description": pattern},
		})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	return builder
}

func (r *productRepository) Upsert(ctx context.Context, product domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sizes, err := toJSONB(product.Sizes)
	if err != nil {
		return err
	}
	options := "[]"
	if len(product.Options) > 0 {
		if options, err = toJSONB(product.Options); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = now
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, description, image_url, category, sub_category_id,
			sizes, options, available, sort_order, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    image_url = EXCLUDED.image_url,
		    category = EXCLUDED.category,
		    sub_category_id = EXCLUDED.sub_category_id,
		    sizes = EXCLUDED.sizes,
		    options = EXCLUDED.options,
		    available = EXCLUDED.available,
		    sort_order = EXCLUDED.sort_order,
		    updated_at = EXCLUDED.updated_at
	`,
		product.ID, product.Name, product.Description, product.ImageURL, string(product.Category),
		product.SubCategoryID, sizes, options, product.Available, product.SortOrder,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *productRepository) ListSubCategories(ctx context.Context) ([]domain.SubCategory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, name, sort_order
		FROM sub_categories
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sub categories: %w", err)
	}
	defer rows.Close()

	result := make([]domain.SubCategory, 0)
	for rows.Next() {
		var (
			sub      domain.SubCategory
			category string
		)
		if err := rows.Scan(&sub.ID, &category, &sub.Name, &sub.SortOrder); err != nil {
			return nil, fmt.Errorf("scan sub category: %w", err)
		}
		sub.Category = domain.Category(category)
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sub categories: %w", err)
	}
	return result, nil
}

func (r *productRepository) UpsertSubCategory(ctx context.Context, sub domain.SubCategory) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO sub_categories (id, category, name, sort_order)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		SET category = EXCLUDED.category,
		    name = EXCLUDED.name,
		    sort_order = EXCLUDED.sort_order
	`, sub.ID, string(sub.Category), sub.Name, sub.SortOrder); err != nil {
		return fmt.Errorf("upsert sub category: %w", err)
	}
	return nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p              domain.Product
		category       string
		sizes, options []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.ImageURL, &category, &p.SubCategoryID,
		&sizes, &options, &p.Available, &p.SortOrder, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	p.Category = domain.Category(category)
	if err := fromJSONB(sizes, &p.Sizes); err != nil {
		return domain.Product{}, err
	}
	if err := fromJSONB(options, &p.Options); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)

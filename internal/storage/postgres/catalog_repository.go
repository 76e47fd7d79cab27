package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type userRepository struct {
	q dbtx
}

func (r userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Username, user.Email, string(user.Role), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r userRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getOne(ctx, `WHERE LOWER(username) = LOWER($1)`, strings.TrimSpace(username))
}

func (r userRepository) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		user domain.User
		role string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, username, email, role, created_at
		FROM users `+where, arg).Scan(&user.ID, &user.Username, &user.Email, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	user.Role = domain.Role(role)
	return user, nil
}

type categoryRepository struct {
	q dbtx
}

func (r categoryRepository) Create(ctx context.Context, category domain.Category) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, category.ID, category.Name, category.Description, category.CreatedAt, category.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r categoryRepository) Get(ctx context.Context, id string) (domain.Category, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var c domain.Category
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		return domain.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r categoryRepository) Update(ctx context.Context, category domain.Category) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE categories
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4
	`, category.Name, category.Description, category.UpdatedAt, category.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return expectAffected(res, domain.ErrCategoryNotFound)
}

func (r categoryRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCategoryHasProducts
		}
		return fmt.Errorf("delete category: %w", err)
	}
	return expectAffected(res, domain.ErrCategoryNotFound)
}

func (r categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM categories
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return result, nil
}

func (r categoryRepository) CountProducts(ctx context.Context, id string) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE category_id = $1`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("count category products: %w", err)
	}
	return count, nil
}

const productColumns = `id, name, description, price, stock, category_id, created_at, updated_at`

type productRepository struct {
	q dbtx
}

func (r productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		product.ID, product.Name, product.Description, product.Price, product.Stock,
		nullString(product.CategoryID), product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return mapProductWriteError("insert product", err)
	}
	return nil
}

func (r productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	product, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (r productRepository) Update(ctx context.Context, product domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = $1, description = $2, price = $3, stock = $4, category_id = $5, updated_at = $6
		WHERE id = $7
	`,
		product.Name, product.Description, product.Price, product.Stock,
		nullString(product.CategoryID), product.UpdatedAt, product.ID,
	)
	if err != nil {
		return mapProductWriteError("update product", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r productRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r productRepository) List(ctx context.Context) ([]domain.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
}

func (r productRepository) ListByCategory(ctx context.Context, categoryID string) ([]domain.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE category_id = $1 ORDER BY name, id`, categoryID)
}

// LockForUpdate берёт блокировки строк в порядке id, поэтому два оформления
// с пересекающимися товарами не образуют взаимную блокировку.
func (r productRepository) LockForUpdate(ctx context.Context, ids []string) ([]domain.Product, error) {
	ids = uniqueSorted(ids)
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	products, err := r.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	if len(products) != len(ids) {
		return nil, domain.ErrProductNotFound
	}
	return products, nil
}

func (r productRepository) SetStock(ctx context.Context, id string, stock int) error {
	if stock < 0 {
		return domain.ErrStockNegative
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `UPDATE products SET stock = $1 WHERE id = $2`, stock, id)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrStockNegative
		}
		return fmt.Errorf("set product stock: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (r productRepository) query(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p          domain.Product
		categoryID sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &categoryID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.CategoryID = categoryID.String
	return p, nil
}

func mapProductWriteError(op string, err error) error {
	switch {
	case isForeignKeyViolation(err):
		return domain.ErrCategoryNotFound
	case isCheckViolation(err):
		return domain.ErrStockNegative
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			result = append(result, id)
		}
	}
	sort.Strings(result)
	return result
}

var (
	_ domain.UserRepository     = userRepository{}
	_ domain.CategoryRepository = categoryRepository{}
	_ domain.ProductRepository  = productRepository{}
)

package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type userRepository struct{ sc scope }

func (r userRepository) Create(_ context.Context, user domain.User) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		if _, ok := st.users[user.ID]; ok {
			return nil, domain.ErrUsernameTaken
		}
		for _, existing := range st.users {
			if strings.EqualFold(existing.Username, user.Username) {
				return nil, domain.ErrUsernameTaken
			}
		}
		st.users[user.ID] = user
		return func(st *state) { delete(st.users, user.ID) }, nil
	})
}

func (r userRepository) Get(_ context.Context, id string) (domain.User, error) {
	var user domain.User
	err := r.sc.view(func(st *state) error {
		found, ok := st.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		user = found
		return nil
	})
	return user, err
}

func (r userRepository) GetByUsername(_ context.Context, username string) (domain.User, error) {
	var user domain.User
	err := r.sc.view(func(st *state) error {
		for _, existing := range st.users {
			if strings.EqualFold(existing.Username, username) {
				user = existing
				return nil
			}
		}
		return domain.ErrUserNotFound
	})
	return user, err
}

type categoryRepository struct{ sc scope }

func (r categoryRepository) Create(_ context.Context, category domain.Category) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		st.categories[category.ID] = category
		return func(st *state) { delete(st.categories, category.ID) }, nil
	})
}

func (r categoryRepository) Get(_ context.Context, id string) (domain.Category, error) {
	var category domain.Category
	err := r.sc.view(func(st *state) error {
		found, ok := st.categories[id]
		if !ok {
			return domain.ErrCategoryNotFound
		}
		category = found
		return nil
	})
	return category, err
}

func (r categoryRepository) Update(_ context.Context, category domain.Category) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		prev, ok := st.categories[category.ID]
		if !ok {
			return nil, domain.ErrCategoryNotFound
		}
		st.categories[category.ID] = category
		return func(st *state) { st.categories[prev.ID] = prev }, nil
	})
}

func (r categoryRepository) Delete(_ context.Context, id string) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		prev, ok := st.categories[id]
		if !ok {
			return nil, domain.ErrCategoryNotFound
		}
		delete(st.categories, id)
		return func(st *state) { st.categories[prev.ID] = prev }, nil
	})
}

func (r categoryRepository) List(_ context.Context) ([]domain.Category, error) {
	var result []domain.Category
	err := r.sc.view(func(st *state) error {
		result = make([]domain.Category, 0, len(st.categories))
		for _, category := range st.categories {
			result = append(result, category)
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

func (r categoryRepository) CountProducts(_ context.Context, id string) (int, error) {
	count := 0
	err := r.sc.view(func(st *state) error {
		for _, product := range st.products {
			if product.CategoryID == id {
				count++
			}
		}
		return nil
	})
	return count, err
}

type productRepository struct{ sc scope }

func (r productRepository) Create(_ context.Context, product domain.Product) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		if product.CategoryID != "" {
			if _, ok := st.categories[product.CategoryID]; !ok {
				return nil, domain.ErrCategoryNotFound
			}
		}
		st.products[product.ID] = product
		return func(st *state) { delete(st.products, product.ID) }, nil
	})
}

func (r productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := r.sc.view(func(st *state) error {
		found, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = found
		return nil
	})
	return product, err
}

func (r productRepository) Update(_ context.Context, product domain.Product) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		prev, ok := st.products[product.ID]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		if product.CategoryID != "" {
			if _, ok := st.categories[product.CategoryID]; !ok {
				return nil, domain.ErrCategoryNotFound
			}
		}
		st.products[product.ID] = product
		return func(st *state) { st.products[prev.ID] = prev }, nil
	})
}

func (r productRepository) Delete(_ context.Context, id string) error {
	return r.sc.update(func(st *state) (func(*state), error) {
		prev, ok := st.products[id]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		delete(st.products, id)
		return func(st *state) { st.products[prev.ID] = prev }, nil
	})
}

func (r productRepository) List(_ context.Context) ([]domain.Product, error) {
	return r.filter(func(domain.Product) bool { return true })
}

func (r productRepository) ListByCategory(_ context.Context, categoryID string) ([]domain.Product, error) {
	return r.filter(func(p domain.Product) bool { return p.CategoryID == categoryID })
}

func (r productRepository) filter(keep func(domain.Product) bool) ([]domain.Product, error) {
	var result []domain.Product
	err := r.sc.view(func(st *state) error {
		for _, product := range st.products {
			if keep(product) {
				result = append(result, product)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

// LockForUpdate в памяти ничего не блокирует отдельно: транзакция уже держит хранилище целиком.
func (r productRepository) LockForUpdate(_ context.Context, ids []string) ([]domain.Product, error) {
	sorted := uniqueSorted(ids)
	result := make([]domain.Product, 0, len(sorted))
	err := r.sc.view(func(st *state) error {
		for _, id := range sorted {
			product, ok := st.products[id]
			if !ok {
				return domain.ErrProductNotFound
			}
			result = append(result, product)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r productRepository) SetStock(_ context.Context, id string, stock int) error {
	if stock < 0 {
		return domain.ErrStockNegative
	}
	return r.sc.update(func(st *state) (func(*state), error) {
		prev, ok := st.products[id]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		next := prev
		next.Stock = stock
		st.products[id] = next
		return func(st *state) { st.products[id] = prev }, nil
	})
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

var (
	_ domain.UserRepository     = userRepository{}
	_ domain.CategoryRepository = categoryRepository{}
	_ domain.ProductRepository  = productRepository{}
)

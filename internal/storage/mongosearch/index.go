// Package mongosearch хранит поисковую проекцию в MongoDB.
package mongosearch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	collectionOrders     = "orders"
	collectionProducts   = "products"
	collectionCategories = "categories"
	collectionCarts      = "carts"

	connectTimeout = 10 * time.Second
)

// Index реализует domain.SearchIndex поверх коллекций MongoDB.
type Index struct {
	client     *mongo.Client
	db         *mongo.Database
	orders     *mongo.Collection
	products   *mongo.Collection
	categories *mongo.Collection
	carts      *mongo.Collection
}

// Connect подключается к MongoDB, проверяет доступность и создаёт индексы.
func Connect(ctx context.Context, uri, database string) (*Index, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	idx := New(client.Database(database))
	idx.client = client
	if err := idx.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return idx, nil
}

// New строит индекс поверх уже открытой базы.
func New(db *mongo.Database) *Index {
	return &Index{
		client:     db.Client(),
		db:         db,
		orders:     db.Collection(collectionOrders),
		products:   db.Collection(collectionProducts),
		categories: db.Collection(collectionCategories),
		carts:      db.Collection(collectionCarts),
	}
}

// EnsureIndexes создаёт вторичные индексы под фильтры поиска.
func (i *Index) EnsureIndexes(ctx context.Context) error {
	plan := map[*mongo.Collection][]mongo.IndexModel{
		i.orders: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "order_date", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "order_date", Value: -1}}},
		},
		i.products: {
			{Keys: bson.D{{Key: "category_id", Value: 1}, {Key: "name", Value: 1}}},
			{Keys: bson.D{{Key: "price", Value: 1}}},
		},
		i.carts: {
			{Keys: bson.D{{Key: "product_ids", Value: 1}}},
			{Keys: bson.D{{Key: "total_price", Value: 1}}},
		},
	}
	for coll, models := range plan {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// Drop удаляет все коллекции проекции. Используется при полной переиндексации.
func (i *Index) Drop(ctx context.Context) error {
	for _, coll := range []*mongo.Collection{i.orders, i.products, i.categories, i.carts} {
		if err := coll.Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", coll.Name(), err)
		}
	}
	return i.EnsureIndexes(ctx)
}

// Ping проверяет доступность MongoDB.
func (i *Index) Ping(ctx context.Context) error {
	if i == nil || i.client == nil {
		return errors.New("mongo search index is not initialized")
	}
	return i.client.Ping(ctx, nil)
}

// Close закрывает клиент, если индекс сам его открыл.
func (i *Index) Close(ctx context.Context) error {
	if i == nil || i.client == nil {
		return nil
	}
	return i.client.Disconnect(ctx)
}

func (i *Index) UpsertOrder(ctx context.Context, doc domain.OrderDocument) error {
	return replace(ctx, i.orders, doc.ID, fromOrder(doc))
}

func (i *Index) DeleteOrder(ctx context.Context, id string) error {
	return remove(ctx, i.orders, id)
}

func (i *Index) UpsertProduct(ctx context.Context, doc domain.ProductDocument) error {
	return replace(ctx, i.products, doc.ID, fromProduct(doc))
}

func (i *Index) DeleteProduct(ctx context.Context, id string) error {
	return remove(ctx, i.products, id)
}

func (i *Index) UpsertCategory(ctx context.Context, doc domain.CategoryDocument) error {
	return replace(ctx, i.categories, doc.ID, categoryDoc{
		ID:           doc.ID,
		Name:         doc.Name,
		Description:  doc.Description,
		ProductCount: doc.ProductCount,
	})
}

func (i *Index) DeleteCategory(ctx context.Context, id string) error {
	return remove(ctx, i.categories, id)
}

func (i *Index) UpsertCart(ctx context.Context, doc domain.CartDocument) error {
	return replace(ctx, i.carts, doc.ID, fromCart(doc))
}

func (i *Index) DeleteCart(ctx context.Context, id string) error {
	return remove(ctx, i.carts, id)
}

func (i *Index) SearchOrders(ctx context.Context, q domain.OrderSearch) ([]domain.OrderDocument, error) {
	var docs []orderDoc
	if err := find(ctx, i.orders, orderFilter(q), bson.D{{Key: "order_date", Value: -1}, {Key: "_id", Value: -1}}, q.Limit, &docs); err != nil {
		return nil, err
	}
	result := make([]domain.OrderDocument, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toDomain())
	}
	return result, nil
}

func (i *Index) SearchProducts(ctx context.Context, q domain.ProductSearch) ([]domain.ProductDocument, error) {
	var docs []productDoc
	if err := find(ctx, i.products, productFilter(q), bson.D{{Key: "name", Value: 1}}, q.Limit, &docs); err != nil {
		return nil, err
	}
	result := make([]domain.ProductDocument, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toDomain())
	}
	return result, nil
}

func (i *Index) SearchCategories(ctx context.Context, q domain.CategorySearch) ([]domain.CategoryDocument, error) {
	filter := bson.D{}
	if text := strings.TrimSpace(q.Name); text != "" {
		filter = append(filter, bson.E{Key: "name", Value: contains(text)})
	}

	var docs []categoryDoc
	if err := find(ctx, i.categories, filter, bson.D{{Key: "name", Value: 1}}, q.Limit, &docs); err != nil {
		return nil, err
	}
	result := make([]domain.CategoryDocument, 0, len(docs))
	for _, doc := range docs {
		result = append(result, domain.CategoryDocument{
			ID:           doc.ID,
			Name:         doc.Name,
			Description:  doc.Description,
			ProductCount: doc.ProductCount,
		})
	}
	return result, nil
}

func (i *Index) SearchCarts(ctx context.Context, q domain.CartSearch) ([]domain.CartDocument, error) {
	var docs []cartDoc
	if err := find(ctx, i.carts, cartFilter(q), bson.D{{Key: "username", Value: 1}}, q.Limit, &docs); err != nil {
		return nil, err
	}
	result := make([]domain.CartDocument, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toDomain())
	}
	return result, nil
}

func orderFilter(q domain.OrderSearch) bson.D {
	filter := bson.D{}
	if q.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: string(q.Status)})
	}
	if q.UserID != "" {
		filter = append(filter, bson.E{Key: "user_id", Value: q.UserID})
	}
	if name := strings.TrimSpace(q.Username); name != "" {
		filter = append(filter, bson.E{Key: "username", Value: equalsFold(name)})
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		filter = append(filter, anyField(text, "order_number", "username", "shipping_address", "notes", "status_label"))
	}
	return filter
}

func productFilter(q domain.ProductSearch) bson.D {
	filter := bson.D{}
	if q.CategoryID != "" {
		filter = append(filter, bson.E{Key: "category_id", Value: q.CategoryID})
	}
	if q.InStockOnly {
		filter = append(filter, bson.E{Key: "stock", Value: bson.M{"$gt": 0}})
	}
	if r := priceRange(q.MinPrice, q.MaxPrice); r != nil {
		filter = append(filter, bson.E{Key: "price", Value: r})
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		filter = append(filter, anyField(text, "name", "description", "category_name"))
	}
	return filter
}

func cartFilter(q domain.CartSearch) bson.D {
	filter := bson.D{}
	if name := strings.TrimSpace(q.Username); name != "" {
		filter = append(filter, bson.E{Key: "username", Value: contains(name)})
	}
	if q.ProductID != "" {
		filter = append(filter, bson.E{Key: "product_ids", Value: q.ProductID})
	}
	if r := priceRange(q.MinTotal, q.MaxTotal); r != nil {
		filter = append(filter, bson.E{Key: "total_price", Value: r})
	}
	return filter
}

func priceRange(min, max *decimal.Decimal) bson.M {
	if min == nil && max == nil {
		return nil
	}
	r := bson.M{}
	if min != nil {
		r["$gte"] = min.InexactFloat64()
	}
	if max != nil {
		r["$lte"] = max.InexactFloat64()
	}
	return r
}

// contains: подстрока без учёта регистра.
func contains(text string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(text), Options: "i"}
}

func equalsFold(text string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(text) + "$", Options: "i"}
}

func anyField(text string, fields ...string) bson.E {
	or := make(bson.A, 0, len(fields))
	for _, field := range fields {
		or = append(or, bson.M{field: contains(text)})
	}
	return bson.E{Key: "$or", Value: or}
}

func replace(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", coll.Name(), id, err)
	}
	return nil
}

func remove(ctx context.Context, coll *mongo.Collection, id string) error {
	if _, err := coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll.Name(), id, err)
	}
	return nil
}

func find(ctx context.Context, coll *mongo.Collection, filter bson.D, sort bson.D, limit int, out any) error {
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(sort).SetLimit(int64(limit)))
	if err != nil {
		return fmt.Errorf("search %s: %w", coll.Name(), err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return nil
}

var _ domain.SearchIndex = (*Index)(nil)
